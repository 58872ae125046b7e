package pipeline

import (
	"time"

	"github.com/Sternrassler/patent-harvester/pkg/extract"
)

// Stats summarises a run.
type Stats struct {
	Identifiers        int
	Dispatched         int
	Batches            int
	CheckpointFailures int
	Decisions          map[extract.Decision]int
	Duration           time.Duration
}

// Matched returns the number of identifiers whose document matched.
func (s Stats) Matched() int {
	return s.Decisions[extract.DecisionMatched]
}

// Failed returns the number of identifiers on the failure stream.
func (s Stats) Failed() int {
	return s.Decisions[extract.DecisionFetchFailed] +
		s.Decisions[extract.DecisionUndecodable] +
		s.Decisions[extract.DecisionMalformed]
}

// complete reports whether every identifier was dispatched and resolved.
func (s Stats) complete() bool {
	return s.Dispatched == s.Identifiers && s.Decisions[extract.DecisionCancelled] == 0
}
