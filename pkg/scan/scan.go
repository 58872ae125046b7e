// Package scan finds pattern matches in harvested documents and reports each
// match with its surrounding context.
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"unicode/utf8"
)

// DefaultWindow is the number of characters of context on each side of a match.
const DefaultWindow = 50

// textFields are the object fields searched for document text, in order.
var textFields = []string{"text", "content", "body"}

// Match is one occurrence of the pattern in a document.
type Match struct {
	DocID string `json:"doc_id"`
	Text  string `json:"match"`

	// Start and End are byte offsets of the match in the document text.
	Start int `json:"start"`
	End   int `json:"end"`

	// Excerpt is the match with up to window characters on each side.
	Excerpt string `json:"excerpt"`
}

// LoadFile reads a JSON object mapping document keys to documents.
func LoadFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	docs := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return docs, nil
}

// Scan returns every match of re in docs, ordered by document key and then
// by position. A document is either a string or an object whose text is the
// first string field among text, content and body; an object's "id" field
// overrides its key. Documents without text are skipped.
func Scan(docs map[string]json.RawMessage, re *regexp.Regexp, window int) []Match {
	if window < 0 {
		window = 0
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matches []Match
	for _, key := range keys {
		id, text, ok := docText(key, docs[key])
		if !ok {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				DocID:   id,
				Text:    text[loc[0]:loc[1]],
				Start:   loc[0],
				End:     loc[1],
				Excerpt: Excerpt(text, loc[0], loc[1], window),
			})
		}
	}
	return matches
}

func docText(key string, raw json.RawMessage) (id, text string, ok bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return key, s, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return key, "", false
	}

	id = key
	if v, found := obj["id"]; found {
		var override string
		if err := json.Unmarshal(v, &override); err == nil && override != "" {
			id = override
		}
	}
	for _, field := range textFields {
		v, found := obj[field]
		if !found {
			continue
		}
		if err := json.Unmarshal(v, &s); err == nil {
			return id, s, true
		}
	}
	return id, "", false
}

// Excerpt returns text[start:end] widened by up to window runes on each side.
// The bounds never split a UTF-8 sequence.
func Excerpt(text string, start, end, window int) string {
	lo := start
	for i := 0; i < window && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < window && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi]
}
