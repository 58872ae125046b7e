// Package document defines the patent document model shared by the
// extraction filter, the batch pipeline and the output tooling.
package document

import (
	"sort"
	"strings"
)

// Section names in their fixed concatenation order.
const (
	SectionTitle       = "title"
	SectionAbstract    = "abstract"
	SectionClaims      = "claims"
	SectionDescription = "description"
)

// SectionOrder is the order in which section texts are joined.
var SectionOrder = []string{SectionTitle, SectionAbstract, SectionClaims, SectionDescription}

// TextSeparator separates section texts in a Record.
const TextSeparator = "\n\n"

// Annotation is a named entity attached to a section (e.g. a chemical).
type Annotation struct {
	Name string `json:"name"`
}

// Section is one named logical part of a patent document.
// A missing section is represented by an empty Section, never by an error.
type Section struct {
	Name        string       `json:"name"`
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// IsEmpty reports whether the section carries no text.
func (s Section) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Record is the unit of output: a matched document.
type Record struct {
	// ID is the patent identifier the document was fetched by.
	ID string `json:"id"`

	// Text is the non-empty section texts joined by TextSeparator.
	Text string `json:"text"`

	// Annotations holds the distinct annotation names of all sections, sorted.
	Annotations []string `json:"chem"`
}

// JoinSections concatenates the non-empty section texts in SectionOrder.
// Sections with names outside SectionOrder are appended in input order.
func JoinSections(sections []Section) string {
	byName := make(map[string][]Section, len(sections))
	var extra []Section
	known := make(map[string]bool, len(SectionOrder))
	for _, name := range SectionOrder {
		known[name] = true
	}
	for _, s := range sections {
		if known[s.Name] {
			byName[s.Name] = append(byName[s.Name], s)
		} else {
			extra = append(extra, s)
		}
	}

	var parts []string
	for _, name := range SectionOrder {
		for _, s := range byName[name] {
			if !s.IsEmpty() {
				parts = append(parts, s.Text)
			}
		}
	}
	for _, s := range extra {
		if !s.IsEmpty() {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, TextSeparator)
}

// AnnotationNames collects the distinct, non-empty annotation names of all
// sections in sorted order.
func AnnotationNames(sections []Section) []string {
	seen := make(map[string]struct{})
	for _, s := range sections {
		for _, a := range s.Annotations {
			if a.Name == "" {
				continue
			}
			seen[a.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
