package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/search"
)

// Searcher answers a concrete filter for one topic.
// Implemented by *search.Searcher.
type Searcher interface {
	Query(ctx context.Context, filter search.Filter, card ir.Cardinality) (search.Result, error)
}

// Engine executes catalog operations.
//
// Thread-safety: the catalog and searcher set are fixed at construction, so
// Execute is safe from any goroutine.
type Engine struct {
	catalog   *catalog.Catalog
	searchers map[string]Searcher
	logger    *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger used for debug traces of resolved filters.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over cat. Every topic in the catalog must have a
// searcher.
func New(cat *catalog.Catalog, searchers map[string]Searcher, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		catalog:   cat,
		searchers: make(map[string]Searcher, len(searchers)),
		logger:    slog.Default(),
	}
	for _, name := range cat.TopicNames() {
		s, ok := searchers[name]
		if !ok || s == nil {
			return nil, fmt.Errorf("engine: no searcher for topic %q", name)
		}
		e.searchers[name] = s
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Operation returns the declared operation, or a *ResolutionError when the
// topic or operation is unknown.
func (e *Engine) Operation(topic, name string) (*catalog.Operation, error) {
	t, ok := e.catalog.Topic(topic)
	if !ok {
		return nil, &ResolutionError{Code: ErrCodeUnknownTopic, Message: "topic not in catalog", Topic: topic}
	}
	op, ok := t.Operation(name)
	if !ok {
		return nil, &ResolutionError{Code: ErrCodeUnknownOperation, Message: "operation not declared", Topic: topic, Operation: name}
	}
	return op, nil
}

// Execute resolves operation on topic with args and runs it with the
// operation's declared cardinality.
//
// Resolution failures are *ResolutionError. Query failures come back from
// the searcher unchanged (*search.SearchError or a store error).
func (e *Engine) Execute(ctx context.Context, topic, operation string, args ir.IRObject) (search.Result, error) {
	op, err := e.Operation(topic, operation)
	if err != nil {
		return search.Result{}, err
	}

	filter, err := Resolve(*op, args)
	if err != nil {
		if re, ok := asResolutionError(err); ok {
			re.Topic = topic
		}
		return search.Result{}, err
	}

	e.logger.Debug("resolved operation",
		"topic", topic,
		"operation", operation,
		"cardinality", op.Cardinality.String(),
		"filter", len(filter),
	)

	return e.searchers[topic].Query(ctx, filter, op.Cardinality)
}
