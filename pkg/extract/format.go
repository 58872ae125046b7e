// Package extract turns fetch outcomes into keep/discard decisions: it
// projects a decoded payload into document sections, joins their text and
// tests it against the run pattern.
package extract

import (
	"errors"

	"github.com/Sternrassler/patent-harvester/pkg/document"
)

// ErrMalformedDocument is returned when a payload lacks the root structure
// of its format.
var ErrMalformedDocument = errors.New("malformed document")

// Format decodes raw payloads of one source and projects them into sections.
// Every Format is also a client.Decoder.
type Format interface {
	// Name identifies the format ("json", "html").
	Name() string

	// Decode parses a raw 200 body.
	Decode(body []byte) (any, error)

	// Sections returns the title, abstract, claims and description sections
	// of a decoded payload. Missing sections come back empty; a missing root
	// structure yields ErrMalformedDocument.
	Sections(payload any) ([]document.Section, error)
}
