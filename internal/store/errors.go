package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no event has the requested id.
var ErrNotFound = errors.New("event not found")

// StoreErrorCode categorizes broker failures.
type StoreErrorCode string

const (
	// ErrCodeUnknownTopic indicates the topic is not served by this broker.
	ErrCodeUnknownTopic StoreErrorCode = "UNKNOWN_TOPIC"

	// ErrCodeInvalidPayload indicates the payload cannot be canonicalized
	// (for example it contains a float).
	ErrCodeInvalidPayload StoreErrorCode = "INVALID_PAYLOAD"

	// ErrCodeInvalidQuery indicates a filter the index layer cannot answer.
	ErrCodeInvalidQuery StoreErrorCode = "INVALID_QUERY"

	// ErrCodePersistence indicates the database rejected a read or write.
	ErrCodePersistence StoreErrorCode = "PERSISTENCE"

	// ErrCodeCorrupt indicates persisted state that contradicts itself.
	ErrCodeCorrupt StoreErrorCode = "CORRUPT"
)

// StoreError is the typed error every broker operation returns.
type StoreError struct {
	Code    StoreErrorCode
	Topic   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Topic != "" {
		return fmt.Sprintf("%s: %s (topic=%s)", e.Code, msg, e.Topic)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err wraps a *StoreError with the given code.
func HasCode(err error, code StoreErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func persistenceError(topic, msg string, err error) *StoreError {
	return &StoreError{Code: ErrCodePersistence, Topic: topic, Message: msg, Err: err}
}
