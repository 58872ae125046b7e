package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/patent-harvester/pkg/document"
)

// DefaultLang is the section language used when none is configured.
const DefaultLang = "EN"

// JSONFormat reads the document-contents JSON of the chemistry annotation
// API. Sections are picked by language tag, compared case-insensitively.
type JSONFormat struct {
	Lang string
}

type contentsResponse struct {
	Data struct {
		Contents struct {
			PatentDocument *patentDocument `json:"patentDocument"`
		} `json:"contents"`
	} `json:"data"`
}

type patentDocument struct {
	BibliographicData struct {
		TechnicalData struct {
			InventionTitles []inventionTitle `json:"inventionTitles"`
		} `json:"technicalData"`
	} `json:"bibliographicData"`
	Abstracts      []langSection `json:"abstracts"`
	ClaimResponses []langSection `json:"claimResponses"`
	Descriptions   []langSection `json:"descriptions"`
}

type inventionTitle struct {
	Lang       string `json:"lang"`
	Title      string `json:"title"`
	Annotation struct {
		ChemicalAnnotations []namedEntity `json:"chemicalAnnotations"`
	} `json:"annotation"`
}

type langSection struct {
	Lang    string `json:"lang"`
	Section struct {
		Content     string        `json:"content"`
		Annotations []namedEntity `json:"annotations"`
	} `json:"section"`
}

type namedEntity struct {
	Name string `json:"name"`
}

// Name implements Format.
func (JSONFormat) Name() string { return "json" }

// Decode implements Format.
func (JSONFormat) Decode(body []byte) (any, error) {
	var resp contentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return &resp, nil
}

// Sections implements Format.
func (f JSONFormat) Sections(payload any) ([]document.Section, error) {
	resp, ok := payload.(*contentsResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: unexpected payload %T", ErrMalformedDocument, payload)
	}
	doc := resp.Data.Contents.PatentDocument
	if doc == nil {
		return nil, fmt.Errorf("%w: data.contents.patentDocument missing", ErrMalformedDocument)
	}

	lang := f.Lang
	if lang == "" {
		lang = DefaultLang
	}

	title := document.Section{Name: document.SectionTitle}
	for _, t := range doc.BibliographicData.TechnicalData.InventionTitles {
		if strings.EqualFold(t.Lang, lang) {
			title.Text = t.Title
			title.Annotations = annotations(t.Annotation.ChemicalAnnotations)
			break
		}
	}

	return []document.Section{
		title,
		pick(document.SectionAbstract, doc.Abstracts, lang),
		pick(document.SectionClaims, doc.ClaimResponses, lang),
		pick(document.SectionDescription, doc.Descriptions, lang),
	}, nil
}

// pick returns the first entry in lang as a section.
func pick(name string, entries []langSection, lang string) document.Section {
	for _, e := range entries {
		if strings.EqualFold(e.Lang, lang) {
			return document.Section{
				Name:        name,
				Text:        e.Section.Content,
				Annotations: annotations(e.Section.Annotations),
			}
		}
	}
	return document.Section{Name: name}
}

func annotations(entities []namedEntity) []document.Annotation {
	if len(entities) == 0 {
		return nil
	}
	out := make([]document.Annotation, 0, len(entities))
	for _, e := range entities {
		out = append(out, document.Annotation{Name: e.Name})
	}
	return out
}
