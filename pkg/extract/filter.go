package extract

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Sternrassler/patent-harvester/pkg/client"
	"github.com/Sternrassler/patent-harvester/pkg/document"
	"github.com/Sternrassler/patent-harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "patent_extract_decisions_total",
	Help: "Extraction decisions by kind",
}, []string{"decision"})

// Decision is the filter verdict for one identifier.
type Decision string

const (
	DecisionMatched     Decision = "matched"
	DecisionNoPattern   Decision = "no_pattern"
	DecisionFetchFailed Decision = "fetch_failed"
	DecisionUndecodable Decision = "undecodable"
	DecisionMalformed   Decision = "malformed"
	DecisionCancelled   Decision = "cancelled"
)

// Result is the output of Extract. Record is set only for DecisionMatched.
type Result struct {
	ID       string
	Decision Decision
	Record   *document.Record
	Err      error
}

// Filter applies a pattern to fetched documents of one format.
type Filter struct {
	format  Format
	pattern *regexp.Regexp
	logger  zerolog.Logger
}

// NewFilter creates a filter for format and pattern.
func NewFilter(format Format, pattern *regexp.Regexp) (*Filter, error) {
	if format == nil {
		return nil, fmt.Errorf("format is required")
	}
	if pattern == nil {
		return nil, fmt.Errorf("pattern is required")
	}
	return &Filter{
		format:  format,
		pattern: pattern,
		logger:  logging.NewLogger("filter").With().Str("format", format.Name()).Logger(),
	}, nil
}

// Format returns the filter's document format.
func (f *Filter) Format() Format {
	return f.format
}

// Extract decides whether out is kept. It depends only on out and the filter
// configuration, so it may be called again with the same result.
func (f *Filter) Extract(out client.Outcome) Result {
	res := f.extract(out)
	decisionsTotal.WithLabelValues(string(res.Decision)).Inc()
	return res
}

func (f *Filter) extract(out client.Outcome) Result {
	res := Result{ID: out.ID, Err: out.Err}

	switch out.Status {
	case client.StatusCancelled:
		res.Decision = DecisionCancelled
		return res
	case client.StatusFailed:
		res.Decision = DecisionFetchFailed
		return res
	case client.StatusUndecodable:
		res.Decision = DecisionUndecodable
		return res
	}
	if !out.OK() {
		res.Decision = DecisionUndecodable
		return res
	}

	sections, err := f.format.Sections(out.Payload)
	if err != nil {
		res.Decision = DecisionMalformed
		res.Err = err
		if errors.Is(err, ErrMalformedDocument) {
			f.logger.Warn().Err(err).Str("id", out.ID).Msg("Document structure not recognised")
		}
		return res
	}

	text := document.JoinSections(sections)
	if !f.pattern.MatchString(text) {
		res.Decision = DecisionNoPattern
		return res
	}

	res.Decision = DecisionMatched
	res.Record = &document.Record{
		ID:          out.ID,
		Text:        text,
		Annotations: document.AnnotationNames(sections),
	}
	return res
}
