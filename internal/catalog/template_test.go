package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/ir"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{"literal", "abc", []Segment{{Text: "abc"}}},
		{"empty", "", []Segment{{Text: ""}}},
		{"whole token", "{{id}}", []Segment{{Param: "id"}}},
		{"spaces inside braces", "{{ id }}", []Segment{{Param: "id"}}},
		{"embedded", "sys-{{id}}", []Segment{{Text: "sys-"}, {Param: "id"}}},
		{"two tokens", "{{a}}/{{b}}!", []Segment{{Param: "a"}, {Text: "/"}, {Param: "b"}, {Text: "!"}}},
		{"stray closer is literal", "a}}b", []Segment{{Text: "a}}b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTemplate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTemplateMalformed(t *testing.T) {
	for _, in := range []string{"{{id", "{{}}", "{{ 1abc }}", "x{{a-b}}"} {
		_, err := ParseTemplate(in)
		assert.Error(t, err, in)
	}
}

func TestWholePlaceholder(t *testing.T) {
	segs, err := ParseTemplate("{{systemId}}")
	require.NoError(t, err)
	name, ok := WholePlaceholder(segs)
	assert.True(t, ok)
	assert.Equal(t, "systemId", name)

	segs, err = ParseTemplate("pre-{{systemId}}")
	require.NoError(t, err)
	_, ok = WholePlaceholder(segs)
	assert.False(t, ok)
}

func TestParams(t *testing.T) {
	tmpl := ir.IRObject{
		"payload.a": ir.IRString("{{b}}-{{a}}"),
		"payload.n": ir.IRObject{"x": ir.IRArray{ir.IRString("{{c}}"), ir.IRInt(3)}},
		"payload.l": ir.IRString("{{a}}"),
	}
	params, err := Params(tmpl)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, params)
}
