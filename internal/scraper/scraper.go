package scraper

import (
	"errors"
	"fmt"
	"time"
)

// ErrRendererUnavailable is wrapped by ConfigurationError when no rendering
// engine was started for category extraction.
var ErrRendererUnavailable = errors.New("rendering engine not configured")

// InvalidInputError rejects a request before any upstream work happens.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError means a required downstream dependency is missing.
// It is operator-fixable and never retried.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s misconfigured: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamFetchError reports a non-success answer from the source site.
// Status is zero when no HTTP response was received.
type UpstreamFetchError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s returned %d", e.URL, e.Status)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.URL, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// ExtractionError is a rendering or DOM-mining failure after the page was
// fetched. It carries counters instead of stack data.
type ExtractionError struct {
	Op               string
	FinalURL         string
	AnchorsInspected int
	CandidateBlocks  int
	Err              error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed during %s (url=%s anchors=%d blocks=%d): %v",
		e.Op, e.FinalURL, e.AnchorsInspected, e.CandidateBlocks, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TimeoutError is raised when a bounded wait is exceeded.
type TimeoutError struct {
	Phase string
	Limit time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Phase, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Truncate shortens diagnostic text for client-facing error details.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
