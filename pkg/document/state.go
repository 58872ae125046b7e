package document

import "sort"

// RunState maps identifier -> Record for every match found in a run.
// It is owned by the batch pipeline; other components receive copies.
type RunState map[string]Record

// Merge adds records keyed by their ID. Later records win.
// It returns the number of records merged.
func (s RunState) Merge(records ...Record) int {
	for _, r := range records {
		s[r.ID] = r
	}
	return len(records)
}

// Clone returns a shallow copy of the state.
func (s RunState) Clone() RunState {
	out := make(RunState, len(s))
	for id, r := range s {
		out[id] = r
	}
	return out
}

// IDs returns the identifiers in the state, sorted.
func (s RunState) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
