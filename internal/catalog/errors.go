package catalog

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ConfigErrorCode categorizes catalog configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeLoadFailed indicates the catalog source could not be read or built.
	ErrCodeLoadFailed ConfigErrorCode = "LOAD_FAILED"

	// ErrCodeMissingField indicates a required catalog field is absent.
	ErrCodeMissingField ConfigErrorCode = "MISSING_FIELD"

	// ErrCodeMalformedPlaceholder indicates a filter template token like "{{" without
	// a closing "}}" or with an invalid name.
	ErrCodeMalformedPlaceholder ConfigErrorCode = "MALFORMED_PLACEHOLDER"

	// ErrCodeInvalidCardinality indicates a cardinality other than singleton or vector.
	ErrCodeInvalidCardinality ConfigErrorCode = "INVALID_CARDINALITY"

	// ErrCodeFloatForbidden indicates a float literal in a filter template.
	ErrCodeFloatForbidden ConfigErrorCode = "FLOAT_FORBIDDEN"

	// ErrCodeInvalidFieldPath indicates a filter key or index path that is
	// neither "id" nor rooted at "payload.".
	ErrCodeInvalidFieldPath ConfigErrorCode = "INVALID_FIELD_PATH"

	// ErrCodeInvalidIDFilter indicates a non-string literal on the id key.
	ErrCodeInvalidIDFilter ConfigErrorCode = "INVALID_ID_FILTER"

	// ErrCodeMissingSchema indicates the topic's schema file cannot be read.
	ErrCodeMissingSchema ConfigErrorCode = "MISSING_SCHEMA"

	// ErrCodeMalformedSchema indicates the schema document does not compile.
	ErrCodeMalformedSchema ConfigErrorCode = "MALFORMED_SCHEMA"
)

// ConfigError is a fatal catalog problem detected at load time.
type ConfigError struct {
	Code    ConfigErrorCode
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
