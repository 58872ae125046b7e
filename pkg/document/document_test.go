package document

import (
	"reflect"
	"testing"
)

func TestJoinSections(t *testing.T) {
	tests := []struct {
		name     string
		sections []Section
		want     string
	}{
		{
			name:     "no sections",
			sections: nil,
			want:     "",
		},
		{
			name: "fixed order regardless of input order",
			sections: []Section{
				{Name: SectionClaims, Text: "claims"},
				{Name: SectionTitle, Text: "title"},
				{Name: SectionDescription, Text: "description"},
				{Name: SectionAbstract, Text: "abstract"},
			},
			want: "title\n\nabstract\n\nclaims\n\ndescription",
		},
		{
			name: "empty sections skipped",
			sections: []Section{
				{Name: SectionTitle, Text: "title"},
				{Name: SectionAbstract, Text: "   "},
				{Name: SectionClaims, Text: ""},
				{Name: SectionDescription, Text: "description"},
			},
			want: "title\n\ndescription",
		},
		{
			name: "unknown sections appended",
			sections: []Section{
				{Name: "notes", Text: "notes"},
				{Name: SectionTitle, Text: "title"},
			},
			want: "title\n\nnotes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinSections(tt.sections); got != tt.want {
				t.Errorf("JoinSections() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnnotationNames(t *testing.T) {
	sections := []Section{
		{Name: SectionTitle, Annotations: []Annotation{{Name: "imatinib"}, {Name: ""}}},
		{Name: SectionAbstract, Annotations: []Annotation{{Name: "aspirin"}, {Name: "imatinib"}}},
		{Name: SectionClaims},
	}

	got := AnnotationNames(sections)
	want := []string{"aspirin", "imatinib"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AnnotationNames() = %v, want %v", got, want)
	}
}

func TestAnnotationNames_Empty(t *testing.T) {
	got := AnnotationNames(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("AnnotationNames(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestRunState_Merge(t *testing.T) {
	state := RunState{}
	state.Merge(Record{ID: "P1", Text: "first"})
	state.Merge(Record{ID: "P2", Text: "second"}, Record{ID: "P1", Text: "replaced"})

	if len(state) != 2 {
		t.Fatalf("len(state) = %d, want 2", len(state))
	}
	if state["P1"].Text != "replaced" {
		t.Errorf("P1 text = %q, want last write to win", state["P1"].Text)
	}
	if ids := state.IDs(); !reflect.DeepEqual(ids, []string{"P1", "P2"}) {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestRunState_Clone(t *testing.T) {
	state := RunState{"P1": {ID: "P1"}}
	clone := state.Clone()
	clone.Merge(Record{ID: "P2"})

	if _, ok := state["P2"]; ok {
		t.Error("Clone shares storage with original")
	}
}
