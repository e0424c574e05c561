// Package search is the read path of a topic: a conjunction of exact-match
// equalities executed against the topic's indexes, shaped by cardinality.
package search

import (
	"context"
	"errors"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/queryir"
	"github.com/roach88/conduit/internal/store"
)

// Filter maps a field path ("id" or "payload.x.y") to the value it must
// equal. Every entry must match. An empty filter matches every event.
type Filter map[string]ir.IRValue

// Result is the shape of a query answer.
//
// A singleton result holds at most one event in Event; nil means nothing
// matched, which is not an error. A vector result holds every match in
// Events, ascending by sequence.
type Result struct {
	Cardinality ir.Cardinality
	Event       *ir.Event
	Events      []ir.Event
}

// Found reports whether a singleton query matched.
func (r Result) Found() bool {
	return r.Event != nil
}

// Searcher queries one topic.
//
// Thread-safety: safe for concurrent use; it never takes the topic's writer
// lock.
type Searcher struct {
	topic string
	log   *store.Log
}

// New binds a searcher to topic.
func New(b *store.Broker, topic string) (*Searcher, error) {
	l, err := b.Log(topic)
	if err != nil {
		return nil, err
	}
	return &Searcher{topic: topic, log: l}, nil
}

// Topic returns the topic this searcher reads.
func (s *Searcher) Topic() string {
	return s.topic
}

// Query runs filter with the given cardinality.
//
// Singleton returns the highest-sequence match, so among duplicates the most
// recently appended event wins. Vector returns all matches oldest first.
func (s *Searcher) Query(ctx context.Context, filter Filter, card ir.Cardinality) (Result, error) {
	sel := queryir.Select{
		From:   s.topic,
		Filter: queryir.Conjunction(filter),
	}
	switch card {
	case ir.Singleton:
		sel.Order = queryir.Descending
		sel.Limit = 1
	case ir.Vector:
		sel.Order = queryir.Ascending
	default:
		return Result{}, &SearchError{Code: ErrCodeInvalidCardinality, Topic: s.topic, Message: card.String()}
	}

	events, err := s.log.Select(ctx, sel)
	if err != nil {
		return Result{}, s.classify(err)
	}

	res := Result{Cardinality: card}
	if card == ir.Singleton {
		if len(events) > 0 {
			res.Event = &events[0]
		}
		return res, nil
	}
	res.Events = events
	return res, nil
}

// classify turns a rejected query into a *SearchError. Persistence and
// corruption failures keep their store type.
func (s *Searcher) classify(err error) error {
	switch {
	case errors.Is(err, queryir.ErrMalformedField):
		return &SearchError{Code: ErrCodeMalformedFilter, Topic: s.topic, Err: err}
	case errors.Is(err, queryir.ErrUnindexedField):
		return &SearchError{Code: ErrCodeUnindexedField, Topic: s.topic, Err: err}
	case errors.Is(err, queryir.ErrInvalidValue):
		return &SearchError{Code: ErrCodeInvalidValue, Topic: s.topic, Err: err}
	case store.HasCode(err, store.ErrCodeInvalidQuery):
		return &SearchError{Code: ErrCodeMalformedFilter, Topic: s.topic, Err: err}
	default:
		return err
	}
}
