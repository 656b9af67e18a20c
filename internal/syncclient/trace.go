package syncclient

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Trace is an append-only debug trail of sync traffic, one timestamped JSON
// record per line. Every method is safe on a nil receiver and swallows write
// failures: tracing must never affect sync outcomes.
type Trace struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

// NewTrace opens (or creates) the trace file for appending. On any error it
// returns nil and tracing is silently disabled.
func NewTrace(path string) *Trace {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return &Trace{
		file:   file,
		logger: zerolog.New(file).With().Timestamp().Logger(),
	}
}

// Request records an outbound request body.
func (t *Trace) Request(method, path string, body []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Info().
		Str("kind", "request").
		Str("method", method).
		Str("path", path).
		RawJSON("body", body).
		Msg("")
}

// Response records a response status and body.
func (t *Trace) Response(method, path string, status int, body string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Info().
		Str("kind", "response").
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Str("body", body).
		Msg("")
}

// Error records a transport-level failure.
func (t *Trace) Error(method, path string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Info().
		Str("kind", "error").
		Str("method", method).
		Str("path", path).
		Str("error", err.Error()).
		Msg("")
}

// Close releases the trace file.
func (t *Trace) Close() {
	if t == nil || t.file == nil {
		return
	}
	t.file.Close()
}
