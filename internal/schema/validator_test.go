package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
)

func defaultValidator(t *testing.T) *Validator {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	v, err := New(cat)
	require.NoError(t, err)
	return v
}

func TestValidateAccepts(t *testing.T) {
	v := defaultValidator(t)

	err := v.Validate("system_registered", ir.IRObject{
		"name":  ir.IRString("billing"),
		"owner": ir.IRString("team-payments"),
	})
	assert.NoError(t, err)

	err = v.Validate("advisory_raised", ir.IRObject{
		"targetId": ir.IRString("sys-1"),
		"severity": ir.IRString("high"),
		"title":    ir.IRString("openssl"),
		"cvss":     ir.IRInt(75),
	})
	assert.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	v := defaultValidator(t)

	tests := []struct {
		name    string
		topic   string
		payload ir.IRObject
		path    string
	}{
		{
			name:    "missing required field",
			topic:   "system_registered",
			payload: ir.IRObject{"name": ir.IRString("billing")},
			path:    "",
		},
		{
			name:    "wrong type",
			topic:   "system_updated",
			payload: ir.IRObject{"systemId": ir.IRInt(7)},
			path:    "/systemId",
		},
		{
			name:    "enum",
			topic:   "advisory_raised",
			payload: ir.IRObject{"targetId": ir.IRString("sys-1"), "severity": ir.IRString("urgent"), "title": ir.IRString("x")},
			path:    "/severity",
		},
		{
			name:    "unknown property",
			topic:   "annotation_added",
			payload: ir.IRObject{"targetId": ir.IRString("a"), "author": ir.IRString("b"), "body": ir.IRString("c"), "extra": ir.IRBool(true)},
			path:    "",
		},
		{
			name:    "empty payload",
			topic:   "dependency_removed",
			payload: nil,
			path:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.topic, tt.payload)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.topic, ve.Topic)
			require.NotEmpty(t, ve.Violations)
			assert.Equal(t, tt.path, ve.Violations[0].Path)
			assert.Contains(t, err.Error(), tt.topic)
		})
	}
}

func TestValidateUnknownTopic(t *testing.T) {
	v := defaultValidator(t)
	err := v.Validate("nope", ir.IRObject{})
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestNewRejectsMalformedSchema(t *testing.T) {
	cat := &catalog.Catalog{Topics: []catalog.Topic{{
		Name:   "broken",
		Schema: []byte(`{"type": 12}`),
	}}}
	_, err := New(cat)
	require.Error(t, err)

	var ce *catalog.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, catalog.ErrCodeMalformedSchema, ce.Code)
}
