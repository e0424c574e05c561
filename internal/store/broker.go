package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/roach88/conduit/internal/accumulator"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/queryir"
)

var topicName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TopicSpec names a topic and the payload paths it must index.
type TopicSpec struct {
	Name       string
	IndexPaths []string
}

// Option configures a Broker.
type Option func(*options)

type options struct {
	clock      Clock
	ids        IDGenerator
	logger     *slog.Logger
	maxRetries int
}

// WithClock overrides the received_at clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the logger for backfills and retries.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxRetries bounds retries of an append that hit SQLITE_BUSY or
// SQLITE_LOCKED.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

func defaultOptions() options {
	return options{
		clock:      SystemClock{},
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
		maxRetries: 3,
	}
}

// Broker owns one Log per topic. It is safe for concurrent use.
type Broker struct {
	names  []string
	logs   map[string]*Log
	logger *slog.Logger
}

// Open opens (or creates) a database per topic under dir and restores each
// topic's head. Index paths added since the last open are backfilled.
func Open(ctx context.Context, dir string, topics []TopicSpec, opts ...Option) (*Broker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, persistenceError("", "create data directory", err)
	}

	b := &Broker{logs: make(map[string]*Log, len(topics)), logger: o.logger}
	for _, t := range topics {
		if !topicName.MatchString(t.Name) {
			b.Close()
			return nil, &StoreError{Code: ErrCodeUnknownTopic, Topic: t.Name, Message: "topic names must match " + topicName.String()}
		}
		if _, dup := b.logs[t.Name]; dup {
			b.Close()
			return nil, &StoreError{Code: ErrCodeUnknownTopic, Topic: t.Name, Message: "topic declared twice"}
		}

		db, err := openDB(filepath.Join(dir, t.Name+".db"))
		if err != nil {
			b.Close()
			return nil, persistenceError(t.Name, "open topic database", err)
		}
		l, err := newLog(ctx, t.Name, db, t.IndexPaths, o)
		if err != nil {
			db.Close()
			b.Close()
			return nil, err
		}
		b.names = append(b.names, t.Name)
		b.logs[t.Name] = l
	}
	return b, nil
}

// Close closes every topic database.
func (b *Broker) Close() error {
	var errs []error
	for _, name := range b.names {
		if err := b.logs[name].close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Topics returns topic names in the order they were opened.
func (b *Broker) Topics() []string {
	return append([]string(nil), b.names...)
}

// Logger returns the logger the broker was opened with.
func (b *Broker) Logger() *slog.Logger {
	return b.logger
}

// Log returns the log for topic.
func (b *Broker) Log(topic string) (*Log, error) {
	l, ok := b.logs[topic]
	if !ok {
		return nil, &StoreError{Code: ErrCodeUnknownTopic, Topic: topic, Message: "unknown topic"}
	}
	return l, nil
}

// Append durably records payload on topic and returns the stored event.
func (b *Broker) Append(ctx context.Context, topic string, payload ir.IRObject) (ir.Event, error) {
	l, err := b.Log(topic)
	if err != nil {
		return ir.Event{}, err
	}
	return l.Append(ctx, payload)
}

// Get returns the event with id, or ErrNotFound.
func (b *Broker) Get(ctx context.Context, topic, id string) (ir.Event, error) {
	l, err := b.Log(topic)
	if err != nil {
		return ir.Event{}, err
	}
	return l.Get(ctx, id)
}

// Lookup returns the ids of events whose value at path equals value, in
// ascending sequence order.
func (b *Broker) Lookup(ctx context.Context, topic, path string, value ir.IRValue) ([]string, error) {
	l, err := b.Log(topic)
	if err != nil {
		return nil, err
	}
	return l.Lookup(ctx, path, value)
}

// Select runs a validated query against sel.From.
func (b *Broker) Select(ctx context.Context, sel queryir.Select) ([]ir.Event, error) {
	l, err := b.Log(sel.From)
	if err != nil {
		return nil, err
	}
	return l.Select(ctx, sel)
}

// Verify recomputes topic's integrity from its persisted rows.
func (b *Broker) Verify(ctx context.Context, topic string) (IntegrityReport, error) {
	l, err := b.Log(topic)
	if err != nil {
		return IntegrityReport{}, err
	}
	return l.Verify(ctx)
}

// Prove builds an inclusion proof for event id against topic's current root.
func (b *Broker) Prove(ctx context.Context, topic, id string) (accumulator.InclusionProof, error) {
	l, err := b.Log(topic)
	if err != nil {
		return accumulator.InclusionProof{}, err
	}
	return l.Prove(ctx, id)
}

// Head returns topic's committed size and accumulator root.
func (b *Broker) Head(topic string) (Head, error) {
	l, err := b.Log(topic)
	if err != nil {
		return Head{}, err
	}
	return l.Head(), nil
}

// IndexedPaths returns topic's declared index set, sorted.
func (b *Broker) IndexedPaths(topic string) ([]string, error) {
	l, err := b.Log(topic)
	if err != nil {
		return nil, err
	}
	return l.IndexedPaths(), nil
}

// Head is a committed position in a topic's log.
type Head struct {
	Size int64  `json:"size"`
	Root string `json:"root"`
}

func normalizePaths(paths []string) ([]string, error) {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == ir.IDField {
			continue
		}
		if err := ir.ValidFieldPath(p); err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// backoff is the pause before retry attempt n (1-based).
func backoff(n int) time.Duration {
	return time.Duration(n*n) * 10 * time.Millisecond
}
