// Package service assembles a running conduit from a catalog: one broker,
// one validator, and per topic a repository and a searcher behind a single
// resolution engine. The HTTP endpoint, the CLI and the scenario harness all
// build on it.
package service

import (
	"context"
	"fmt"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/engine"
	"github.com/roach88/conduit/internal/repository"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/store"
)

// Service owns the broker for its lifetime.
type Service struct {
	Catalog   *catalog.Catalog
	Broker    *store.Broker
	Validator *schema.Validator
	Engine    *engine.Engine

	repos     map[string]*repository.Repository
	searchers map[string]*search.Searcher
}

// Open compiles the catalog's schemas and opens its topics under dataDir.
// The engine logs through the logger given with store.WithLogger.
// Schema errors are *catalog.ConfigError; nothing is opened when they occur.
func Open(ctx context.Context, dataDir string, cat *catalog.Catalog, opts ...store.Option) (*Service, error) {
	v, err := schema.New(cat)
	if err != nil {
		return nil, err
	}

	b, err := store.Open(ctx, dataDir, TopicSpecs(cat), opts...)
	if err != nil {
		return nil, fmt.Errorf("open broker: %w", err)
	}

	s := &Service{
		Catalog:   cat,
		Broker:    b,
		Validator: v,
		repos:     make(map[string]*repository.Repository, len(cat.Topics)),
		searchers: make(map[string]*search.Searcher, len(cat.Topics)),
	}
	searchers := make(map[string]engine.Searcher, len(cat.Topics))
	for _, name := range cat.TopicNames() {
		repo, err := repository.New(b, v, name)
		if err != nil {
			b.Close()
			return nil, err
		}
		srch, err := search.New(b, name)
		if err != nil {
			b.Close()
			return nil, err
		}
		s.repos[name] = repo
		s.searchers[name] = srch
		searchers[name] = srch
	}

	s.Engine, err = engine.New(cat, searchers, engine.WithLogger(b.Logger()))
	if err != nil {
		b.Close()
		return nil, err
	}
	return s, nil
}

// TopicSpecs derives the broker topics and their index sets from cat.
func TopicSpecs(cat *catalog.Catalog) []store.TopicSpec {
	specs := make([]store.TopicSpec, len(cat.Topics))
	for i := range cat.Topics {
		specs[i] = store.TopicSpec{Name: cat.Topics[i].Name, IndexPaths: cat.Topics[i].IndexPaths()}
	}
	return specs
}

// Repository returns topic's write path.
func (s *Service) Repository(topic string) (*repository.Repository, bool) {
	r, ok := s.repos[topic]
	return r, ok
}

// Searcher returns topic's read path.
func (s *Service) Searcher(topic string) (*search.Searcher, bool) {
	r, ok := s.searchers[topic]
	return r, ok
}

// Topics returns topic names in catalog order.
func (s *Service) Topics() []string {
	return s.Catalog.TopicNames()
}

// Close closes the broker.
func (s *Service) Close() error {
	return s.Broker.Close()
}
