package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/local/shasdl/internal/shas"
)

// ErrNotFound is returned when the remote store has no object for a page.
// It is a definitive answer and must not be retried.
var ErrNotFound = errors.New("remote page not found")

// Request identifies one amud to download.
type Request struct {
	Corpus   shas.CorpusItem
	Page     int
	Address  shas.Address
	Filename string
}

// Sink receives downloaded bytes. *os.File satisfies it.
type Sink interface {
	io.Writer
	io.WriterAt
}

// Source is a remote store holding per-amud PDFs.
type Source interface {
	Name() string
	Download(ctx context.Context, req Request, dst Sink) error
}

// Pinger is implemented by sources that can check their connection cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPError is a non-success HTTP status from a remote store.
type HTTPError struct {
	StatusCode int
	Source     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Source, e.URL)
}

// PermanentError marks a failure that retrying cannot fix (bad credentials,
// forbidden folder, malformed request).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the fetcher does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ThrottledError marks a failure where the remote store asked us to slow down.
// It is still retried.
type ThrottledError struct {
	Err error
}

func (e *ThrottledError) Error() string { return "throttled: " + e.Err.Error() }
func (e *ThrottledError) Unwrap() error { return e.Err }

// Throttled wraps err so the fetcher opens the source cooldown.
func Throttled(err error) error {
	if err == nil {
		return nil
	}
	return &ThrottledError{Err: err}
}

// IsThrottled reports whether err was marked with Throttled.
func IsThrottled(err error) bool {
	var t *ThrottledError
	return errors.As(err, &t)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
