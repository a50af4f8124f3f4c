package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailure marks any backend call that did not produce a response.
	ErrFetchFailure = errors.New("settlement: fetch failed")
	// ErrBackendMissing indicates the aggregator has no backend configured.
	ErrBackendMissing = errors.New("settlement: backend not configured")
	// ErrRangeTooLong rejects a daily range that would fan out past the configured span.
	ErrRangeTooLong = errors.New("settlement: daily range too long")
)

const fetchFailureMessage = "Settlement data could not be loaded. Please try again."

// FetchError wraps a failed backend call with the query that triggered it.
type FetchError struct {
	Granularity Granularity
	// Day is set when the failure came from one call of a daily fan-out.
	Day string
	Err error
}

func (e *FetchError) Error() string {
	if e.Day != "" {
		return fmt.Sprintf("settlement: fetch %s %s: %v", e.Granularity, e.Day, e.Err)
	}
	return fmt.Sprintf("settlement: fetch %s: %v", e.Granularity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrFetchFailure.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

// UserMessage renders err for display on the dashboard.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Day != "" {
		return fmt.Sprintf("Settlement data for %s could not be loaded. Please try again.", fe.Day)
	}
	return fetchFailureMessage
}
