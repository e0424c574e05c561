package endpoint

import (
	"errors"
	"net/http"

	"github.com/roach88/conduit/internal/engine"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/store"
)

// Error codes for failures that do not come from a typed core error.
const (
	codeMalformedRequest = "MALFORMED_REQUEST"
	codeTooLarge         = "PAYLOAD_TOO_LARGE"
	codeValidation       = "VALIDATION_FAILED"
	codeNotFound         = "NOT_FOUND"
	codeRateLimited      = "RATE_LIMITED"
	codeInternal         = "INTERNAL"
)

// errorBody is the record path's error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// requestError marks a request the handler could not decode.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

// classify maps an error to its HTTP status and a stable code.
//
//	400  malformed request, schema validation, resolution, uncanonicalizable payload
//	404  unknown event or topic
//	413  body over the request limit
//	422  filter the index layer refuses
//	500  persistence and corruption
func classify(err error) (int, errorDetail) {
	d := errorDetail{Message: err.Error()}

	var (
		tooBig  *http.MaxBytesError
		reqErr  *requestError
		valErr  *schema.ValidationError
		resErr  *engine.ResolutionError
		srchErr *search.SearchError
		stErr   *store.StoreError
	)
	switch {
	case errors.As(err, &tooBig):
		d.Code = codeTooLarge
		return http.StatusRequestEntityTooLarge, d
	case errors.As(err, &reqErr):
		d.Code = codeMalformedRequest
		return http.StatusBadRequest, d
	case errors.As(err, &valErr):
		d.Code = codeValidation
		d.Details = valErr.Violations
		return http.StatusBadRequest, d
	case errors.As(err, &resErr):
		d.Code = string(resErr.Code)
		return http.StatusBadRequest, d
	case errors.As(err, &srchErr):
		d.Code = string(srchErr.Code)
		return http.StatusUnprocessableEntity, d
	case errors.Is(err, store.ErrNotFound):
		d.Code = codeNotFound
		return http.StatusNotFound, d
	case errors.As(err, &stErr):
		d.Code = string(stErr.Code)
		switch stErr.Code {
		case store.ErrCodeInvalidPayload:
			return http.StatusBadRequest, d
		case store.ErrCodeUnknownTopic:
			return http.StatusNotFound, d
		case store.ErrCodeInvalidQuery:
			return http.StatusUnprocessableEntity, d
		default:
			return http.StatusInternalServerError, d
		}
	default:
		d.Code = codeInternal
		return http.StatusInternalServerError, d
	}
}
