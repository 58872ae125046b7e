package extract

import (
	"errors"
	"testing"

	"github.com/Sternrassler/patent-harvester/internal/testutil"
	"github.com/Sternrassler/patent-harvester/pkg/document"
)

func decodeJSON(t *testing.T, f JSONFormat, body string) any {
	t.Helper()
	payload, err := f.Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return payload
}

func TestJSONFormat_Sections(t *testing.T) {
	body := testutil.JSONDocument(
		testutil.DocSection{Text: "Kinase inhibitors", Annotations: []string{"imatinib"}},
		testutil.DocSection{Text: "Compounds with IC50 (nM) below 10.", Annotations: []string{"nilotinib", "imatinib"}},
		testutil.DocSection{Lang: "en", Text: "1. A compound."},
		testutil.DocSection{Lang: "DE", Text: "Beschreibung"},
	)

	f := JSONFormat{}
	sections, err := f.Sections(decodeJSON(t, f, body))
	if err != nil {
		t.Fatalf("Sections() error = %v", err)
	}

	want := map[string]string{
		document.SectionTitle:       "Kinase inhibitors",
		document.SectionAbstract:    "Compounds with IC50 (nM) below 10.",
		document.SectionClaims:      "1. A compound.",
		document.SectionDescription: "",
	}
	if len(sections) != 4 {
		t.Fatalf("sections = %d, want 4", len(sections))
	}
	for _, s := range sections {
		if s.Text != want[s.Name] {
			t.Errorf("%s text = %q, want %q", s.Name, s.Text, want[s.Name])
		}
	}

	names := document.AnnotationNames(sections)
	if len(names) != 2 || names[0] != "imatinib" || names[1] != "nilotinib" {
		t.Errorf("annotation names = %v, want [imatinib nilotinib]", names)
	}
}

func TestJSONFormat_Language(t *testing.T) {
	body := testutil.JSONDocument(
		testutil.DocSection{Lang: "DE", Text: "Kinasehemmer"},
		testutil.DocSection{Lang: "de", Text: "Zusammenfassung"},
		testutil.DocSection{},
		testutil.DocSection{},
	)

	f := JSONFormat{Lang: "de"}
	sections, err := f.Sections(decodeJSON(t, f, body))
	if err != nil {
		t.Fatalf("Sections() error = %v", err)
	}
	if got := document.JoinSections(sections); got != "Kinasehemmer\n\nZusammenfassung" {
		t.Errorf("text = %q", got)
	}

	sections, err = JSONFormat{}.Sections(decodeJSON(t, f, body))
	if err != nil {
		t.Fatalf("Sections() error = %v", err)
	}
	if got := document.JoinSections(sections); got != "" {
		t.Errorf("english text = %q, want empty", got)
	}
}

func TestJSONFormat_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "no patent document", body: `{"data": {"contents": {}}}`},
		{name: "null patent document", body: `{"data": {"contents": {"patentDocument": null}}}`},
	}

	f := JSONFormat{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Sections(decodeJSON(t, f, tt.body))
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("error = %v, want ErrMalformedDocument", err)
			}
		})
	}
}

func TestJSONFormat_MissingSectionsAreEmpty(t *testing.T) {
	f := JSONFormat{}
	sections, err := f.Sections(decodeJSON(t, f, `{"data": {"contents": {"patentDocument": {}}}}`))
	if err != nil {
		t.Fatalf("Sections() error = %v", err)
	}
	for _, s := range sections {
		if !s.IsEmpty() || len(s.Annotations) != 0 {
			t.Errorf("section %s = %+v, want empty", s.Name, s)
		}
	}
}

func TestJSONFormat_DecodeError(t *testing.T) {
	if _, err := (JSONFormat{}).Decode([]byte("<html>")); err == nil {
		t.Error("expected decode error for non-JSON body")
	}
}
