// Package gate bounds the number of simultaneous outstanding fetches.
// It is the only resource shared by all concurrent fetch attempts of a run.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for gate occupancy.
var (
	gateInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patent_gate_in_flight",
		Help: "Number of fetch attempts currently holding a gate slot",
	})

	gateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "patent_gate_wait_seconds",
		Help:    "Time spent waiting for a gate slot",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})
)

// Gate is a counting admission gate with a fixed capacity.
// Admission is FIFO; capacity cannot change after construction.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	holders  atomic.Int64
	peak     atomic.Int64
	admitted atomic.Int64
}

// New creates a gate admitting at most capacity concurrent holders.
func New(capacity int) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("gate capacity must be >= 1 (got %d)", capacity)
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Acquire blocks until a slot is free or ctx is done.
// On error no slot is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := prometheus.NewTimer(gateWaitSeconds)
	err := g.sem.Acquire(ctx, 1)
	timer.ObserveDuration()
	if err != nil {
		return err
	}

	n := g.holders.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	g.admitted.Add(1)
	gateInFlight.Inc()
	return nil
}

// Release returns a slot. It must be called exactly once per successful Acquire.
func (g *Gate) Release() {
	g.holders.Add(-1)
	gateInFlight.Dec()
	g.sem.Release(1)
}

// Capacity returns the fixed number of slots.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of current holders.
func (g *Gate) InFlight() int {
	return int(g.holders.Load())
}

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// Admitted returns the total number of successful acquisitions.
func (g *Gate) Admitted() int64 {
	return g.admitted.Load()
}
