package search

import (
	"errors"
	"fmt"
)

// SearchErrorCode categorizes query failures.
type SearchErrorCode string

const (
	// ErrCodeMalformedFilter indicates a filter key that is not a field path.
	ErrCodeMalformedFilter SearchErrorCode = "MALFORMED_FILTER"

	// ErrCodeUnindexedField indicates a filter on a path the topic does not
	// index.
	ErrCodeUnindexedField SearchErrorCode = "UNINDEXED_FIELD"

	// ErrCodeInvalidValue indicates a filter value that can never match,
	// such as a non-string id.
	ErrCodeInvalidValue SearchErrorCode = "INVALID_VALUE"

	// ErrCodeInvalidCardinality indicates a cardinality other than
	// singleton or vector.
	ErrCodeInvalidCardinality SearchErrorCode = "INVALID_CARDINALITY"
)

// SearchError reports a query the index layer refuses to answer. No partial
// result accompanies it.
type SearchError struct {
	Code    SearchErrorCode
	Topic   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	return fmt.Sprintf("%s: %s (topic=%s)", e.Code, msg, e.Topic)
}

// Unwrap returns the underlying cause.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// IsSearchError reports whether err wraps a *SearchError.
func IsSearchError(err error) bool {
	var se *SearchError
	return errors.As(err, &se)
}
