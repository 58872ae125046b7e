package extract

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Sternrassler/patent-harvester/internal/testutil"
	"github.com/Sternrassler/patent-harvester/pkg/client"
	"github.com/Sternrassler/patent-harvester/pkg/pattern"
)

func okOutcome(t *testing.T, f Format, id, body string) client.Outcome {
	t.Helper()
	payload, err := f.Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return client.Outcome{ID: id, Status: client.StatusOK, Payload: payload, Attempts: 1}
}

func TestNewFilter_Validation(t *testing.T) {
	if _, err := NewFilter(nil, pattern.Default); err == nil {
		t.Error("expected error for nil format")
	}
	if _, err := NewFilter(JSONFormat{}, nil); err == nil {
		t.Error("expected error for nil pattern")
	}
}

func TestFilter_Extract(t *testing.T) {
	f, err := NewFilter(JSONFormat{}, pattern.Default)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}

	matching := testutil.JSONDocument(
		testutil.DocSection{Text: "Title", Annotations: []string{"b-compound"}},
		testutil.DocSection{Text: "Shows IC50 (nM) data.", Annotations: []string{"a-compound", "b-compound"}},
		testutil.DocSection{},
		testutil.DocSection{Text: "Description."},
	)
	plain := testutil.JSONDocument(
		testutil.DocSection{Text: "Title"},
		testutil.DocSection{Text: "No measurements."},
		testutil.DocSection{},
		testutil.DocSection{},
	)

	tests := []struct {
		name     string
		outcome  client.Outcome
		decision Decision
	}{
		{name: "match", outcome: okOutcome(t, JSONFormat{}, "P1", matching), decision: DecisionMatched},
		{name: "no pattern", outcome: okOutcome(t, JSONFormat{}, "P2", plain), decision: DecisionNoPattern},
		{name: "malformed", outcome: okOutcome(t, JSONFormat{}, "P3", `{"data": {}}`), decision: DecisionMalformed},
		{name: "fetch failed", outcome: client.Outcome{ID: "P4", Status: client.StatusFailed, Err: client.ErrRetryExhausted}, decision: DecisionFetchFailed},
		{name: "undecodable", outcome: client.Outcome{ID: "P5", Status: client.StatusUndecodable}, decision: DecisionUndecodable},
		{name: "cancelled", outcome: client.Outcome{ID: "P6", Status: client.StatusCancelled}, decision: DecisionCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Extract(tt.outcome)
			if res.ID != tt.outcome.ID {
				t.Errorf("ID = %q, want %q", res.ID, tt.outcome.ID)
			}
			if res.Decision != tt.decision {
				t.Fatalf("Decision = %s, want %s", res.Decision, tt.decision)
			}
			if (res.Record != nil) != (tt.decision == DecisionMatched) {
				t.Errorf("Record = %+v for decision %s", res.Record, res.Decision)
			}
		})
	}

	res := f.Extract(okOutcome(t, JSONFormat{}, "P1", matching))
	if res.Record.Text != "Title\n\nShows IC50 (nM) data.\n\nDescription." {
		t.Errorf("Text = %q", res.Record.Text)
	}
	if !reflect.DeepEqual(res.Record.Annotations, []string{"a-compound", "b-compound"}) {
		t.Errorf("Annotations = %v", res.Record.Annotations)
	}

	malformed := f.Extract(okOutcome(t, JSONFormat{}, "P3", `{"data": {}}`))
	if !errors.Is(malformed.Err, ErrMalformedDocument) {
		t.Errorf("malformed Err = %v", malformed.Err)
	}
}

func TestFilter_ExtractIsIdempotent(t *testing.T) {
	f, err := NewFilter(HTMLFormat{}, pattern.Default)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}

	page := testutil.HTMLDocument("Title", "EC50 (nM) measured.", []string{"1. A claim."}, []string{"Text."}, []string{"aspirin"})
	out := okOutcome(t, HTMLFormat{}, "US-1-A", page)

	first := f.Extract(out)
	second := f.Extract(out)
	if first.Decision != DecisionMatched {
		t.Fatalf("Decision = %s, want matched", first.Decision)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extract is not idempotent:\n%+v\n%+v", first, second)
	}
}
