// Package repository is the record path of a topic: validated appends and
// point lookups by id.
package repository

import (
	"context"
	"fmt"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/queryir"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/store"
)

// ErrNotFound is returned by Get when no event has the requested id.
var ErrNotFound = store.ErrNotFound

// Repository appends to and reads from one topic.
//
// Thread-safety: safe for concurrent use; the broker serializes appends.
type Repository struct {
	topic     string
	log       *store.Log
	validator *schema.Validator
}

// New binds a repository to topic. The topic must be served by b and have
// a schema in v.
func New(b *store.Broker, v *schema.Validator, topic string) (*Repository, error) {
	l, err := b.Log(topic)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", topic, err)
	}
	if !v.Has(topic) {
		return nil, fmt.Errorf("repository %s: no schema for topic", topic)
	}
	return &Repository{topic: topic, log: l, validator: v}, nil
}

// Topic returns the topic this repository writes to.
func (r *Repository) Topic() string {
	return r.topic
}

// Append validates payload against the topic schema and appends it. A
// payload that fails validation returns a *schema.ValidationError and leaves
// the topic untouched. The returned event carries the assigned id.
func (r *Repository) Append(ctx context.Context, payload ir.IRObject) (ir.Event, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	if err := r.validator.Validate(r.topic, payload); err != nil {
		return ir.Event{}, err
	}
	return r.log.Append(ctx, payload)
}

// Get returns the event with id, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (ir.Event, error) {
	return r.log.Get(ctx, id)
}

// List returns the topic's events in ascending sequence order. limit 0
// returns all of them.
func (r *Repository) List(ctx context.Context, limit int) ([]ir.Event, error) {
	return r.log.Select(ctx, queryir.Select{From: r.topic, Limit: limit})
}
