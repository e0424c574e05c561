package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/conduit/internal/accumulator"
)

// head is the immutable committed state readers observe.
type head struct {
	seq int64
	acc *accumulator.Accumulator
}

// Log is one topic's event log.
//
// Thread-safety: Append and Verify serialize on mu. Reads use the database
// directly and the atomically published head, never mu.
type Log struct {
	name       string
	db         *sql.DB
	indexPaths []string
	indexed    map[string]bool

	clock      Clock
	ids        IDGenerator
	logger     *slog.Logger
	maxRetries int

	mu   sync.Mutex
	head atomic.Pointer[head]
}

// newLog restores a topic's head from db and brings its index set up to
// date with paths.
func newLog(ctx context.Context, name string, db *sql.DB, paths []string, o options) (*Log, error) {
	normalized, err := normalizePaths(paths)
	if err != nil {
		return nil, &StoreError{Code: ErrCodeInvalidQuery, Topic: name, Message: "index paths", Err: err}
	}

	l := &Log{
		name:       name,
		db:         db,
		indexPaths: normalized,
		indexed:    make(map[string]bool, len(normalized)),
		clock:      o.clock,
		ids:        o.ids,
		logger:     o.logger.With("topic", name),
		maxRetries: o.maxRetries,
	}
	for _, p := range normalized {
		l.indexed[p] = true
	}

	h, err := l.loadHead(ctx)
	if err != nil {
		return nil, err
	}
	l.head.Store(h)

	if err := l.syncIndexPaths(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// loadHead reads the persisted accumulator frontier. An empty topic has no
// accumulator row.
func (l *Log) loadHead(ctx context.Context) (*head, error) {
	var (
		size  int64
		peaks string
		root  string
	)
	err := l.db.QueryRowContext(ctx, `SELECT size, peaks, root FROM accumulator WHERE id = 1`).Scan(&size, &peaks, &root)
	if errors.Is(err, sql.ErrNoRows) {
		return &head{acc: accumulator.New()}, nil
	}
	if err != nil {
		return nil, persistenceError(l.name, "load accumulator", err)
	}

	peakList, err := unmarshalPeaks(peaks)
	if err != nil {
		return nil, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: "accumulator peaks", Err: err}
	}
	acc, err := accumulator.Restore(accumulator.State{Size: uint64(size), Peaks: peakList})
	if err != nil {
		return nil, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: "accumulator state", Err: err}
	}
	if got := acc.Root().String(); got != root {
		return nil, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: fmt.Sprintf("accumulator root %s does not match its peaks (%s)", root, got)}
	}
	return &head{seq: size, acc: acc}, nil
}

// syncIndexPaths reconciles the persisted set of complete index paths with
// the declared one. Newly declared paths are backfilled from every stored
// event; paths no longer declared stop being tracked but their entries stay.
// Everything happens in one transaction.
func (l *Log) syncIndexPaths(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT field_path FROM index_paths ORDER BY field_path ASC`)
	if err != nil {
		return persistenceError(l.name, "read index paths", err)
	}
	stored := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return persistenceError(l.name, "scan index path", err)
		}
		stored[p] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return persistenceError(l.name, "iterate index paths", err)
	}
	rows.Close()

	var added, dropped []string
	for _, p := range l.indexPaths {
		if !stored[p] {
			added = append(added, p)
		}
	}
	for p := range stored {
		if !l.indexed[p] {
			dropped = append(dropped, p)
		}
	}
	if len(added) == 0 && len(dropped) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(l.name, "begin index sync", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, p := range dropped {
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_paths WHERE field_path = ?`, p); err != nil {
			return persistenceError(l.name, "untrack index path", err)
		}
	}

	backfilled := 0
	if len(added) > 0 {
		n, err := backfill(ctx, tx, added)
		if err != nil {
			return persistenceError(l.name, "backfill index", err)
		}
		backfilled = n
		for _, p := range added {
			if _, err := tx.ExecContext(ctx, `INSERT INTO index_paths (field_path) VALUES (?)`, p); err != nil {
				return persistenceError(l.name, "track index path", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError(l.name, "commit index sync", err)
	}
	if len(added) > 0 {
		l.logger.Info("backfilled index", "paths", added, "entries", backfilled)
	}
	if len(dropped) > 0 {
		l.logger.Info("index paths no longer declared", "paths", dropped)
	}
	return nil
}

// backfill writes index entries for paths over every stored event and
// returns the number of entries written. Entries that already exist from an
// earlier declaration are kept.
func backfill(ctx context.Context, tx *sql.Tx, paths []string) (int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seq, payload FROM events ORDER BY seq ASC`)
	if err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}
	type pending struct {
		seq     int64
		entries []indexEntry
	}
	var todo []pending
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan event: %w", err)
		}
		obj, err := unmarshalPayload(payload)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("event %d: %w", seq, err)
		}
		entries, err := indexEntries(obj, paths)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("event %d: %w", seq, err)
		}
		if len(entries) > 0 {
			todo = append(todo, pending{seq: seq, entries: entries})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate events: %w", err)
	}
	rows.Close()

	n := 0
	for _, p := range todo {
		for _, e := range p.entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO index_entries (field_path, value, seq) VALUES (?, ?, ?)`,
				e.path, e.value, p.seq); err != nil {
				return 0, fmt.Errorf("insert entry: %w", err)
			}
			n++
		}
	}
	return n, nil
}

// Name returns the topic name.
func (l *Log) Name() string {
	return l.name
}

// IndexedPaths returns the declared index set, sorted.
func (l *Log) IndexedPaths() []string {
	return append([]string(nil), l.indexPaths...)
}

// Indexed reports whether path is answerable from the index layer. "id" is
// always answerable.
func (l *Log) Indexed(path string) bool {
	return l.indexed[path]
}

// Head returns the last committed size and root.
func (l *Log) Head() Head {
	h := l.head.Load()
	return Head{Size: h.seq, Root: h.acc.Root().String()}
}

func (l *Log) close() error {
	return l.db.Close()
}
