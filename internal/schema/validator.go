// Package schema validates event payloads against each topic's JSON Schema
// before they reach the store.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
)

// Violation is one failed schema constraint.
type Violation struct {
	// Path is the JSON pointer of the offending value ("" for the root).
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports that a payload does not satisfy its topic schema.
type ValidationError struct {
	Topic      string      `json:"topic"`
	Violations []Violation `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		path := v.Path
		if path == "" {
			path = "/"
		}
		parts[i] = fmt.Sprintf("%s: %s", path, v.Message)
	}
	return fmt.Sprintf("payload rejected by %s schema: %s", e.Topic, strings.Join(parts, "; "))
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator holds one compiled schema per topic.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles the schema of every topic in cat. A schema that does not
// compile is a *catalog.ConfigError.
func New(cat *catalog.Catalog) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(cat.Topics))}
	for _, topic := range cat.Topics {
		compiled, err := compile(topic.Name, topic.Schema)
		if err != nil {
			return nil, &catalog.ConfigError{
				Code:    catalog.ErrCodeMalformedSchema,
				Field:   "topic." + topic.Name + ".schema",
				Message: err.Error(),
			}
		}
		v.schemas[topic.Name] = compiled
	}
	return v, nil
}

func compile(topic string, doc []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://conduit.schemas.local/%s.schema.json", topic)
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return compiled, nil
}

// Has reports whether topic has a compiled schema.
func (v *Validator) Has(topic string) bool {
	_, ok := v.schemas[topic]
	return ok
}

// Validate checks payload against the topic's schema. It returns nil when
// the payload conforms and a *ValidationError listing every violated
// constraint otherwise.
func (v *Validator) Validate(topic string, payload ir.IRObject) error {
	s, ok := v.schemas[topic]
	if !ok {
		return fmt.Errorf("validate: no schema for topic %q", topic)
	}
	if payload == nil {
		payload = ir.IRObject{}
	}

	err := s.Validate(ir.ToAny(payload))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate %s: %w", topic, err)
	}
	return &ValidationError{Topic: topic, Violations: flatten(ve)}
}

// flatten collects the leaf causes of a validation error tree, ordered by
// instance path so reports are stable.
func flatten(ve *jsonschema.ValidationError) []Violation {
	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Violation{Path: e.InstanceLocation, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
