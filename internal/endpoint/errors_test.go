package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/conduit/internal/engine"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"request", &requestError{msg: "bad"}, http.StatusBadRequest, codeMalformedRequest},
		{"too large", &requestError{msg: "read body", err: &http.MaxBytesError{Limit: maxBody}}, http.StatusRequestEntityTooLarge, codeTooLarge},
		{"validation", &schema.ValidationError{Topic: "t"}, http.StatusBadRequest, codeValidation},
		{"resolution", &engine.ResolutionError{Code: engine.ErrCodeMissingArgument}, http.StatusBadRequest, "MISSING_ARGUMENT"},
		{"search", &search.SearchError{Code: search.ErrCodeUnindexedField}, http.StatusUnprocessableEntity, "UNINDEXED_FIELD"},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, codeNotFound},
		{"invalid payload", &store.StoreError{Code: store.ErrCodeInvalidPayload}, http.StatusBadRequest, "INVALID_PAYLOAD"},
		{"unknown topic", &store.StoreError{Code: store.ErrCodeUnknownTopic}, http.StatusNotFound, "UNKNOWN_TOPIC"},
		{"persistence", &store.StoreError{Code: store.ErrCodePersistence, Err: errors.New("disk")}, http.StatusInternalServerError, "PERSISTENCE"},
		{"corrupt", &store.StoreError{Code: store.ErrCodeCorrupt}, http.StatusInternalServerError, "CORRUPT"},
		{"other", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, d := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, d.Code)
		})
	}
}
