package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/patent-harvester/internal/testutil"
	"github.com/Sternrassler/patent-harvester/pkg/audit"
	"github.com/Sternrassler/patent-harvester/pkg/client"
	"github.com/Sternrassler/patent-harvester/pkg/document"
	"github.com/Sternrassler/patent-harvester/pkg/extract"
	"github.com/Sternrassler/patent-harvester/pkg/gate"
	"github.com/Sternrassler/patent-harvester/pkg/pattern"
)

// memoryStore records every state written to it.
type memoryStore struct {
	mu             sync.Mutex
	checkpoints    []document.RunState
	final          document.RunState
	failCheckpoint bool
	onCheckpoint   func(n int)
}

func (s *memoryStore) WriteCheckpoint(state document.RunState) error {
	s.mu.Lock()
	s.checkpoints = append(s.checkpoints, state.Clone())
	n := len(s.checkpoints)
	hook := s.onCheckpoint
	fail := s.failCheckpoint
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		return errors.New("disk full")
	}
	return nil
}

func (s *memoryStore) WriteFinal(state document.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = state.Clone()
	return nil
}

var (
	matchingDoc = testutil.JSONDocument(
		testutil.DocSection{Text: "Kinase inhibitors", Annotations: []string{"imatinib"}},
		testutil.DocSection{Text: "Compound 1 showed IC50 (nM) = 4."},
		testutil.DocSection{},
		testutil.DocSection{},
	)
	plainDoc = testutil.JSONDocument(
		testutil.DocSection{Text: "Garden hose"},
		testutil.DocSection{Text: "A flexible tube."},
		testutil.DocSection{},
		testutil.DocSection{},
	)
)

type harness struct {
	mock    *testutil.MockSource
	fetcher *client.Fetcher
	store   *memoryStore
	success bytes.Buffer
	failure bytes.Buffer
	orch    *Orchestrator
}

func newHarness(t *testing.T, capacity, batchSize int) *harness {
	t.Helper()

	h := &harness{mock: testutil.NewMockSource(), store: &memoryStore{}}
	t.Cleanup(h.mock.Close)

	g, err := gate.New(capacity)
	if err != nil {
		t.Fatal(err)
	}

	cfg := client.DefaultConfig(h.mock.Template())
	cfg.AttemptTimeout = 2 * time.Second
	cfg.Retry = client.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}

	h.fetcher, err = client.New(cfg, g, extract.JSONFormat{})
	if err != nil {
		t.Fatal(err)
	}

	re, err := pattern.Compile("IC50")
	if err != nil {
		t.Fatal(err)
	}
	filter, err := extract.NewFilter(extract.JSONFormat{}, re)
	if err != nil {
		t.Fatal(err)
	}

	h.orch, err = New(Config{BatchSize: batchSize}, h.fetcher, filter, h.store, audit.New(&h.success, &h.failure))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) serve(id, body string, delay time.Duration) {
	resp := testutil.NewOKResponse(body)
	resp.Delay = delay
	h.mock.SetResponses(id, resp)
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t, 1, 1)
	filter, _ := extract.NewFilter(extract.JSONFormat{}, pattern.Default)
	auditLog := audit.New(&bytes.Buffer{}, &bytes.Buffer{})

	tests := []struct {
		name    string
		cfg     Config
		fetcher Fetcher
		filter  Extractor
		store   StateWriter
		audit   AuditLog
	}{
		{name: "zero batch size", cfg: Config{BatchSize: 0}, fetcher: h.fetcher, filter: filter, store: h.store, audit: auditLog},
		{name: "nil fetcher", cfg: DefaultConfig(), filter: filter, store: h.store, audit: auditLog},
		{name: "nil filter", cfg: DefaultConfig(), fetcher: h.fetcher, store: h.store, audit: auditLog},
		{name: "nil store", cfg: DefaultConfig(), fetcher: h.fetcher, filter: filter, audit: auditLog},
		{name: "nil audit", cfg: DefaultConfig(), fetcher: h.fetcher, filter: filter, store: h.store},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.fetcher, tt.filter, tt.store, tt.audit); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestRun_MixedOutcomes(t *testing.T) {
	h := newHarness(t, 2, 2)
	h.serve("P1", matchingDoc, 0)
	h.mock.SetResponses("P2", testutil.NewServerErrorResponse())
	h.serve("P3", plainDoc, 0)

	state, err := h.orch.Run(context.Background(), []string{"P1", "P2", "P3"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(state) != 1 {
		t.Fatalf("state = %v, want only P1", state.IDs())
	}
	rec := state["P1"]
	if rec.ID != "P1" || rec.Text != "Kinase inhibitors\n\nCompound 1 showed IC50 (nM) = 4." {
		t.Errorf("P1 record = %+v", rec)
	}
	if len(rec.Annotations) != 1 || rec.Annotations[0] != "imatinib" {
		t.Errorf("P1 annotations = %v", rec.Annotations)
	}

	if got := h.mock.RequestCount("P2"); got != 3 {
		t.Errorf("P2 requests = %d, want 3", got)
	}

	if len(h.store.checkpoints) != 2 {
		t.Fatalf("checkpoints = %d, want 2", len(h.store.checkpoints))
	}
	for i, cp := range h.store.checkpoints {
		if len(cp) != 1 || cp["P1"].ID != "P1" {
			t.Errorf("checkpoint %d = %v, want {P1}", i+1, cp.IDs())
		}
	}
	if len(h.store.final) != 1 {
		t.Errorf("final = %v, want {P1}", h.store.final.IDs())
	}

	if got, want := h.success.String(), "P1\tPATTERN_FOUND\nP3\tNO_PATTERN_FOUND\n"; got != want {
		t.Errorf("success log = %q, want %q", got, want)
	}
	if got, want := h.failure.String(), "P2\tERROR\n"; got != want {
		t.Errorf("failure log = %q, want %q", got, want)
	}

	stats := h.orch.Stats()
	if stats.Batches != 2 || stats.Matched() != 1 || stats.Failed() != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRun_CheckpointMonotonic(t *testing.T) {
	h := newHarness(t, 3, 3)

	var ids []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("P%02d", i)
		ids = append(ids, id)
		if i%3 == 0 {
			h.serve(id, matchingDoc, 0)
		} else {
			h.serve(id, plainDoc, 0)
		}
	}

	state, err := h.orch.Run(context.Background(), ids)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(state) != 4 {
		t.Errorf("records = %d, want 4", len(state))
	}

	if len(h.store.checkpoints) != 4 {
		t.Fatalf("checkpoints = %d, want 4", len(h.store.checkpoints))
	}
	for k := 1; k < len(h.store.checkpoints); k++ {
		prev, cur := h.store.checkpoints[k-1], h.store.checkpoints[k]
		for id := range prev {
			if _, ok := cur[id]; !ok {
				t.Errorf("checkpoint %d lost %s", k+1, id)
			}
		}
	}
}

func TestRun_CapOneIsSequential(t *testing.T) {
	h := newHarness(t, 1, 4)

	ids := []string{"A", "B", "C", "D", "E", "F", "G"}
	for _, id := range ids {
		h.serve(id, plainDoc, 5*time.Millisecond)
	}

	if _, err := h.orch.Run(context.Background(), ids); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var prev time.Time
	for _, id := range ids {
		times := h.mock.RequestTimes(id)
		if len(times) != 1 {
			t.Fatalf("%s requests = %d, want 1", id, len(times))
		}
		if !times[0].After(prev) {
			t.Errorf("%s fetched out of dispatch order", id)
		}
		prev = times[0]
	}

	if peak := h.mock.PeakInFlight(); peak != 1 {
		t.Errorf("peak in flight = %d, want 1", peak)
	}
}

func TestRun_GateBoundsAcrossBatches(t *testing.T) {
	h := newHarness(t, 3, 5)

	var ids []string
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("ID%d", i)
		ids = append(ids, id)
		h.serve(id, plainDoc, 10*time.Millisecond)
	}

	if _, err := h.orch.Run(context.Background(), ids); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if peak := h.fetcher.Gate().Peak(); peak > 3 {
		t.Errorf("gate peak = %d, want <= 3", peak)
	}
	if peak := h.mock.PeakInFlight(); peak > 3 {
		t.Errorf("server peak = %d, want <= 3", peak)
	}
	if got := h.fetcher.Gate().InFlight(); got != 0 {
		t.Errorf("holders after run = %d, want 0", got)
	}
}

func TestRun_CancelBetweenBatches(t *testing.T) {
	h := newHarness(t, 2, 2)
	ids := []string{"P1", "P2", "P3", "P4", "P5"}
	for _, id := range ids {
		h.serve(id, matchingDoc, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.store.onCheckpoint = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	state, err := h.orch.Run(ctx, ids)
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("Run() error = %v, want ErrRunCancelled", err)
	}
	if len(state) != 2 {
		t.Errorf("state = %v, want first batch only", state.IDs())
	}
	if len(h.store.checkpoints) != 1 {
		t.Errorf("checkpoints = %d, want 1", len(h.store.checkpoints))
	}
	if h.store.final != nil {
		t.Error("final output written for a cancelled run")
	}
	if got := h.mock.RequestCount("P3"); got != 0 {
		t.Errorf("P3 requests = %d, want 0", got)
	}
}

func TestRun_CancelMidBatchCheckpointsDispatched(t *testing.T) {
	h := newHarness(t, 1, 4)
	ids := []string{"P1", "P2", "P3", "P4"}
	for _, id := range ids {
		h.serve(id, matchingDoc, 100*time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	state, err := h.orch.Run(ctx, ids)
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("Run() error = %v, want ErrRunCancelled", err)
	}

	// P1 was in flight when the run was cancelled and is allowed to finish.
	if _, ok := state["P1"]; !ok || len(state) != 1 {
		t.Errorf("state = %v, want [P1]", state.IDs())
	}
	if len(h.store.checkpoints) != 1 || len(h.store.checkpoints[0]) != 1 {
		t.Errorf("checkpoints = %d, want one holding P1", len(h.store.checkpoints))
	}
	if h.mock.TotalRequests() != 1 {
		t.Errorf("requests = %d, want 1", h.mock.TotalRequests())
	}
	if h.success.String() != "P1\tPATTERN_FOUND\n" || h.failure.Len() != 0 {
		t.Errorf("audit = %q / %q", h.success.String(), h.failure.String())
	}
}

func TestRun_CheckpointFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 2, 1)
	h.store.failCheckpoint = true
	h.serve("P1", matchingDoc, 0)
	h.serve("P2", plainDoc, 0)

	state, err := h.orch.Run(context.Background(), []string{"P1", "P2"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(state) != 1 {
		t.Errorf("state = %v", state.IDs())
	}
	if got := h.orch.Stats().CheckpointFailures; got != 2 {
		t.Errorf("checkpoint failures = %d, want 2", got)
	}
	if len(h.store.final) != 1 {
		t.Error("final output not written")
	}
}

func TestRun_Empty(t *testing.T) {
	h := newHarness(t, 1, 10)

	state, err := h.orch.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(state) != 0 || len(h.store.checkpoints) != 0 {
		t.Errorf("state = %v, checkpoints = %d", state.IDs(), len(h.store.checkpoints))
	}
	if h.store.final == nil {
		t.Error("final output not written for an empty run")
	}
}
