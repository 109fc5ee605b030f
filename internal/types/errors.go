package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrNoIdentity    = errors.New("record identity could not be derived")
	ErrNotFound      = errors.New("not found")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrEmptyResponse = errors.New("empty response body")
	ErrBadProbe      = errors.New("probe returned an out-of-range page length")
	ErrProbeOverflow = errors.New("page probe overflowed")
	ErrUnauthorized  = errors.New("unauthorized")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ExtractError is a structural failure while extracting records from a page.
// The page produces no records when one occurs.
type ExtractError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("extract error (selector=%q): %v", e.Selector, e.Err)
	}
	return fmt.Sprintf("extract error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// TransformError reports a field transform that failed. It is logged, never
// returned to callers: the field is simply left out of the record.
type TransformError struct {
	Field string
	Key   string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error for field %q (key=%s): %v", e.Field, e.Key, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ProbeError wraps a failed page-length probe.
type ProbeError struct {
	Page int
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe of page %d failed: %v", e.Page, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
