package client

import "time"

// AttemptResult is the classified result of one fetch attempt.
type AttemptResult string

const (
	ResultSuccess   AttemptResult = "success"
	ResultHTTPError AttemptResult = "http_error"
	ResultTimeout   AttemptResult = "timeout"
	ResultTransport AttemptResult = "transport"
)

// Attempt describes one fetch attempt. It is transient: it is logged and handed
// to the configured observer, never persisted.
type Attempt struct {
	// Number is 1-based.
	Number     int
	Start      time.Time
	Duration   time.Duration
	Result     AttemptResult
	StatusCode int
	ErrorClass ErrorClass
	Err        error

	// Backoff is the delay before the next attempt; zero on success or on the
	// last attempt.
	Backoff time.Duration
}

// OutcomeStatus is the final status of one identifier after all attempts.
type OutcomeStatus string

const (
	// StatusOK carries a decoded payload.
	StatusOK OutcomeStatus = "ok"

	// StatusUndecodable is a 200 response whose body could not be decoded.
	// It is not retried; Payload is nil.
	StatusUndecodable OutcomeStatus = "undecodable"

	// StatusFailed is a terminal failure after all attempts.
	StatusFailed OutcomeStatus = "failed"

	// StatusCancelled means the run was cancelled before the identifier could
	// be resolved.
	StatusCancelled OutcomeStatus = "cancelled"
)

// Outcome is the final result of fetching one identifier.
// Failures are carried as data; Fetch never returns an error.
type Outcome struct {
	ID        string
	Status    OutcomeStatus
	Payload   any
	Attempts  int
	FromCache bool
	Duration  time.Duration

	// Err describes why the outcome is not StatusOK.
	Err error
}

// OK reports whether the outcome carries a decoded payload.
func (o Outcome) OK() bool {
	return o.Status == StatusOK && o.Payload != nil
}
