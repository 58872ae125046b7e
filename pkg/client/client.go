// Package client provides the retrying patent fetcher: one GET per attempt
// under a hard timeout, gated by a shared concurrency gate, with unjittered
// exponential backoff between attempts.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/patent-harvester/pkg/cache"
	"github.com/Sternrassler/patent-harvester/pkg/gate"
	"github.com/Sternrassler/patent-harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_fetch_requests_total",
		Help: "Total fetch attempts by source and status",
	}, []string{"source", "status"})

	fetchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patent_fetch_request_duration_seconds",
		Help:    "Fetch attempt duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_fetch_errors_total",
		Help: "Total failed fetch attempts by class",
	}, []string{"class"})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patent_fetch_outcomes_total",
		Help: "Final fetch outcomes by status",
	}, []string{"status"})
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnexpected represents any other non-200 status.
	ErrorClassUnexpected ErrorClass = "unexpected"

	// ErrorClassTimeout represents an attempt that hit its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport errors (DNS, refused, reset).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassCancelled represents a run cancellation. Never retried.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// IDPlaceholder is replaced by the identifier in URL templates.
const IDPlaceholder = "{id}"

// maxDrainBytes bounds how much of an error body is read before closing.
const maxDrainBytes = 64 << 10

// Decoder turns a raw 200 body into a payload. A decode error makes the
// outcome StatusUndecodable and is never retried.
type Decoder interface {
	Decode(body []byte) (any, error)
}

// PayloadCache is the subset of the cache manager used by the fetcher.
type PayloadCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Set(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) error
}

// Fetcher resolves identifiers to payloads.
type Fetcher struct {
	httpClient *http.Client
	gate       *gate.Gate
	decoder    Decoder
	config     Config
	logger     zerolog.Logger
}

// Config holds the fetcher configuration.
type Config struct {
	// URLTemplate is the per-identifier URL; IDPlaceholder marks the identifier.
	URLTemplate string

	// Source labels metrics and cache keys ("json", "html").
	Source string

	// UserAgent header sent with every request (optional)
	UserAgent string

	// Headers are extra request headers.
	Headers map[string]string

	// AttemptTimeout is the hard deadline of one attempt, body read included.
	AttemptTimeout time.Duration

	// Retry policy
	Retry RetryConfig

	// Cache is consulted before fetching when non-nil.
	Cache PayloadCache

	// CacheTTL is the lifetime of stored payloads.
	CacheTTL time.Duration

	// Observer, when set, receives every attempt of every identifier.
	// It is called from fetch goroutines and must be safe for concurrent use.
	Observer func(id string, a Attempt)
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(urlTemplate string) Config {
	return Config{
		URLTemplate:    urlTemplate,
		Source:         "json",
		AttemptTimeout: 60 * time.Second,
		Retry:          DefaultRetryConfig(),
		CacheTTL:       cache.DefaultTTL,
	}
}

// New creates a new fetcher drawing slots from g.
func New(cfg Config, g *gate.Gate, decoder Decoder) (*Fetcher, error) {
	if g == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if !strings.Contains(cfg.URLTemplate, IDPlaceholder) {
		return nil, fmt.Errorf("url template must contain %s (got %q)", IDPlaceholder, cfg.URLTemplate)
	}
	if _, err := url.Parse(strings.ReplaceAll(cfg.URLTemplate, IDPlaceholder, "x")); err != nil {
		return nil, fmt.Errorf("parse url template: %w", err)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay < 0 {
		return nil, fmt.Errorf("base delay must be >= 0 (got %v)", cfg.Retry.BaseDelay)
	}
	if cfg.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be > 0 (got %v)", cfg.AttemptTimeout)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	return &Fetcher{
		// Deadlines come from the per-attempt context.
		httpClient: &http.Client{},
		gate:       g,
		decoder:    decoder,
		config:     cfg,
		logger:     logging.NewLogger("fetcher").With().Str("source", cfg.Source).Logger(),
	}, nil
}

// URL returns the request URL for id.
func (f *Fetcher) URL(id string) string {
	return strings.ReplaceAll(f.config.URLTemplate, IDPlaceholder, url.PathEscape(id))
}

// Admit acquires a gate slot for the first attempt of an identifier that will
// be passed to FetchAdmitted.
func (f *Fetcher) Admit(ctx context.Context) error {
	return f.gate.Acquire(ctx)
}

// Fetch resolves one identifier. It never returns an error: failures are
// reported through the Outcome.
func (f *Fetcher) Fetch(ctx context.Context, id string) Outcome {
	return f.fetch(ctx, id, false)
}

// FetchAdmitted is Fetch for an identifier whose first attempt already holds
// a slot obtained through Admit. The slot is released when that attempt ends.
func (f *Fetcher) FetchAdmitted(ctx context.Context, id string) Outcome {
	return f.fetch(ctx, id, true)
}

func (f *Fetcher) fetch(ctx context.Context, id string, admitted bool) Outcome {
	start := time.Now()
	logger := f.logger.With().Str("id", id).Logger()

	if out, ok := f.fromCache(ctx, id, logger); ok {
		if admitted {
			f.gate.Release()
		}
		out.Duration = time.Since(start)
		fetchOutcomesTotal.WithLabelValues(string(out.Status)).Inc()
		return out
	}

	out := Outcome{ID: id}
	held := admitted
	sent := 0

	var observe func(Attempt)
	if f.config.Observer != nil {
		observe = func(a Attempt) { f.config.Observer(id, a) }
	}

	last, err := retryWithBackoff(ctx, f.config.Retry, logger, func(number int) Attempt {
		if !held {
			if err := f.gate.Acquire(ctx); err != nil {
				return Attempt{
					Number:     number,
					Start:      time.Now(),
					Result:     ResultTransport,
					ErrorClass: ErrorClassCancelled,
					Err:        &FetchError{ErrorClass: ErrorClassCancelled, Message: "gate not acquired", Err: err},
				}
			}
		}
		held = false
		sent++

		a, body, header := f.attempt(ctx, id, number)
		f.gate.Release()

		if a.Err != nil {
			return a
		}

		payload, err := f.decoder.Decode(body)
		if err != nil {
			out.Status = StatusUndecodable
			out.Err = fmt.Errorf("%w: %v", ErrUndecodablePayload, err)
			logger.Warn().Err(err).Int("bytes", len(body)).Msg("Payload could not be decoded")
			return a
		}

		out.Status = StatusOK
		out.Payload = payload
		f.store(ctx, id, body, header, logger)
		return a
	}, observe)

	out.Attempts = sent
	out.Duration = time.Since(start)

	switch {
	case err == nil:
		// Status set by the attempt (ok or undecodable).
	case errors.Is(err, ErrContextCancelled) || last.ErrorClass == ErrorClassCancelled:
		out.Status = StatusCancelled
		out.Err = err
		logger.Info().Int("attempts", out.Attempts).Msg("Fetch abandoned, run cancelled")
	default:
		out.Status = StatusFailed
		out.Err = err
		logger.Error().
			Err(err).
			Int("attempts", out.Attempts).
			Str("error_class", string(classOf(err))).
			Msg("Document fetch failed permanently")
	}

	fetchOutcomesTotal.WithLabelValues(string(out.Status)).Inc()
	return out
}

// attempt performs one GET. The request context is detached from ctx so run
// cancellation lets an attempt in flight finish; only the attempt timeout
// applies.
func (f *Fetcher) attempt(ctx context.Context, id string, number int) (a Attempt, body []byte, header http.Header) {
	a = Attempt{Number: number, Start: time.Now()}
	defer func() {
		a.Duration = time.Since(a.Start)
	}()

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.AttemptTimeout)
	defer cancel()

	timer := prometheus.NewTimer(fetchRequestDuration.WithLabelValues(f.config.Source))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, f.URL(id), nil)
	if err != nil {
		f.fail(&a, 0, ErrorClassNetwork, "create request", err)
		return a, nil, nil
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	for k, v := range f.config.Headers {
		req.Header.Set(k, v)
	}

	f.logger.Debug().
		Str("id", id).
		Int("attempt", number).
		Str("url", req.URL.String()).
		Msg("Executing fetch attempt")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.fail(&a, 0, classifyError(err), "request failed", err)
		return a, nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		f.fail(&a, resp.StatusCode, classifyStatus(resp.StatusCode), resp.Status, nil)
		return a, nil, nil
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		f.fail(&a, resp.StatusCode, classifyError(err), "read body", err)
		return a, nil, nil
	}

	a.Result = ResultSuccess
	a.StatusCode = resp.StatusCode
	fetchRequestsTotal.WithLabelValues(f.config.Source, strconv.Itoa(resp.StatusCode)).Inc()
	return a, body, resp.Header
}

// fail records a failed attempt.
func (f *Fetcher) fail(a *Attempt, status int, class ErrorClass, msg string, err error) {
	a.StatusCode = status
	a.ErrorClass = class
	a.Err = &FetchError{StatusCode: status, ErrorClass: class, Message: msg, Err: err}

	switch {
	case status != 0:
		a.Result = ResultHTTPError
		fetchRequestsTotal.WithLabelValues(f.config.Source, strconv.Itoa(status)).Inc()
	case class == ErrorClassTimeout:
		a.Result = ResultTimeout
		fetchRequestsTotal.WithLabelValues(f.config.Source, "timeout").Inc()
	default:
		a.Result = ResultTransport
		fetchRequestsTotal.WithLabelValues(f.config.Source, "network_error").Inc()
	}
	fetchErrorsTotal.WithLabelValues(string(class)).Inc()
}

// fromCache returns a decoded cached payload for id, if any.
func (f *Fetcher) fromCache(ctx context.Context, id string, logger zerolog.Logger) (Outcome, bool) {
	if f.config.Cache == nil {
		return Outcome{}, false
	}

	entry, err := f.config.Cache.Get(ctx, f.cacheKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		return Outcome{}, false
	}

	payload, err := f.decoder.Decode(entry.Data)
	if err != nil {
		logger.Warn().Err(err).Msg("Cached payload could not be decoded, refetching")
		return Outcome{}, false
	}

	logger.Debug().
		Time("cached_at", entry.CachedAt).
		Str("content_type", entry.ContentType).
		Str("etag", entry.ETag).
		Msg("Payload served from cache")
	return Outcome{ID: id, Status: StatusOK, Payload: payload, FromCache: true}, true
}

func (f *Fetcher) store(ctx context.Context, id string, body []byte, header http.Header, logger zerolog.Logger) {
	if f.config.Cache == nil {
		return
	}
	entry := cache.NewEntry(body, header, f.config.CacheTTL)
	if err := f.config.Cache.Set(ctx, f.cacheKey(id), entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache payload")
	}
}

func (f *Fetcher) cacheKey(id string) cache.CacheKey {
	return cache.CacheKey{Source: f.config.Source, Identifier: id}
}

// classifyStatus categorizes a non-200 status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// classifyError categorizes a transport error.
func classifyError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// Gate returns the gate the fetcher draws slots from.
func (f *Fetcher) Gate() *gate.Gate {
	return f.gate
}
