package engine

import (
	"errors"
	"fmt"
)

// ResolutionError is a request-level failure to turn an operation and its
// arguments into a query.
type ResolutionError struct {
	// Code identifies the error category.
	Code ResolutionErrorCode

	// Message is a human-readable description.
	Message string

	// Topic and Operation identify the request.
	Topic     string
	Operation string

	// Argument names the offending argument, if any.
	Argument string
}

// ResolutionErrorCode categorizes resolution errors.
type ResolutionErrorCode string

const (
	// ErrCodeUnknownTopic indicates the topic is not in the catalog.
	ErrCodeUnknownTopic ResolutionErrorCode = "UNKNOWN_TOPIC"

	// ErrCodeUnknownOperation indicates the topic declares no such operation.
	ErrCodeUnknownOperation ResolutionErrorCode = "UNKNOWN_OPERATION"

	// ErrCodeMissingArgument indicates a placeholder with no argument.
	ErrCodeMissingArgument ResolutionErrorCode = "MISSING_ARGUMENT"

	// ErrCodeInvalidArgument indicates an argument that cannot be
	// substituted, such as an object interpolated into a string.
	ErrCodeInvalidArgument ResolutionErrorCode = "INVALID_ARGUMENT"

	// ErrCodeMalformedTemplate indicates a filter template that does not
	// parse. The catalog rejects these at load, so it only surfaces for
	// operations built by hand.
	ErrCodeMalformedTemplate ResolutionErrorCode = "MALFORMED_TEMPLATE"
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch {
	case e.Topic != "" && e.Operation != "":
		return fmt.Sprintf("%s: %s (topic=%s, operation=%s)", e.Code, e.Message, e.Topic, e.Operation)
	case e.Topic != "":
		return fmt.Sprintf("%s: %s (topic=%s)", e.Code, e.Message, e.Topic)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsResolutionError reports whether err wraps a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsMissingArgument reports whether err is a missing-argument error.
// Uses errors.As to handle wrapped errors.
func IsMissingArgument(err error) bool {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMissingArgument
	}
	return false
}

func missingArgument(name string) *ResolutionError {
	return &ResolutionError{
		Code:     ErrCodeMissingArgument,
		Message:  fmt.Sprintf("no argument supplied for placeholder {{%s}}", name),
		Argument: name,
	}
}

func asResolutionError(err error) (*ResolutionError, bool) {
	var re *ResolutionError
	ok := errors.As(err, &re)
	return re, ok
}
