// Package audit writes one line per identifier decision to two append-only
// streams: a success stream for documents that were inspected and a failure
// stream for documents that could not be.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Default file names.
const (
	DefaultSuccessFile = "success.log"
	DefaultFailureFile = "error.log"
)

// Kind is the second column of an audit line.
type Kind string

const (
	PatternFound   Kind = "PATTERN_FOUND"
	NoPatternFound Kind = "NO_PATTERN_FOUND"
	Error          Kind = "ERROR"
	Undecodable    Kind = "UNDECODABLE"
	Malformed      Kind = "MALFORMED"
)

// Success reports whether k belongs on the success stream.
func (k Kind) Success() bool {
	return k == PatternFound || k == NoPatternFound
}

// Log writes audit lines. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	success io.Writer
	failure io.Writer
	closers []io.Closer
}

// New creates a log over the given writers.
func New(success, failure io.Writer) *Log {
	return &Log{success: success, failure: failure}
}

// Open opens (or creates) both files in append mode.
func Open(successPath, failurePath string) (*Log, error) {
	success, err := openAppend(successPath)
	if err != nil {
		return nil, err
	}
	failure, err := openAppend(failurePath)
	if err != nil {
		success.Close()
		return nil, err
	}
	l := New(success, failure)
	l.closers = []io.Closer{success, failure}
	return l, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return f, nil
}

// Write appends "<id>\t<kind>" to the stream k belongs to.
func (l *Log) Write(id string, k Kind) error {
	w := l.failure
	if k.Success() {
		w = l.success
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(w, "%s\t%s\n", id, k); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return nil
}

// Close closes files opened by Open.
func (l *Log) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
