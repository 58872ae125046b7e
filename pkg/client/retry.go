package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patent_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 5, 10, 20, 40, 80, 160},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt. Attempt k waits
	// BaseDelay * 2^(k-1) after failing; no jitter, no cap.
	BaseDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Second,
	}
}

// Backoff returns the delay after failed attempt number attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable
// class, the attempts are exhausted, or ctx is cancelled between attempts.
// fn reports success with a nil Attempt.Err. The last attempt is returned
// together with the terminal error, if any.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(number int) Attempt, observe func(Attempt)) (Attempt, error) {
	var last Attempt

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		last = fn(attempt)

		if last.Err == nil {
			if observe != nil {
				observe(last)
			}
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return last, nil
		}

		if !shouldRetry(last.ErrorClass) {
			if observe != nil {
				observe(last)
			}
			return last, last.Err
		}

		if attempt >= config.MaxAttempts {
			if observe != nil {
				observe(last)
			}
			logger.Warn().
				Err(last.Err).
				Int("attempt", attempt).
				Int("status", last.StatusCode).
				Str("error_class", string(last.ErrorClass)).
				Msg("Fetch attempt failed")
			break
		}

		last.Backoff = config.Backoff(attempt)
		if observe != nil {
			observe(last)
		}

		fetchRetriesTotal.WithLabelValues(string(last.ErrorClass)).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(string(last.ErrorClass)).Observe(last.Backoff.Seconds())

		logger.Warn().
			Err(last.Err).
			Int("attempt", attempt).
			Int("status", last.StatusCode).
			Str("error_class", string(last.ErrorClass)).
			Dur("backoff", last.Backoff).
			Msg("Fetch attempt failed, retrying after backoff")

		timer := time.NewTimer(last.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return last, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(string(last.ErrorClass)).Inc()

	return last, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, last.Err)
}
