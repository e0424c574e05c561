package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/conduit/internal/accumulator"
	"github.com/roach88/conduit/internal/ir"
)

// Append durably records payload and returns the stored event.
//
// Canonicalization and hashing happen before the writer lock is taken. Under
// the lock the next sequence and a fresh id are assigned, the accumulator is
// advanced on a copy, and the event row, its index entries and the new head
// are written in one transaction. The in-memory head is replaced only after
// that transaction commits, so a failed append leaves no trace and does not
// consume a sequence number.
//
// Cancellation is honored until the transaction starts; after that the write
// runs to commit or rollback.
func (l *Log) Append(ctx context.Context, payload ir.IRObject) (ir.Event, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	canonical, err := marshalPayload(payload)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeInvalidPayload, Topic: l.name, Err: err}
	}
	contentHash := ir.HashCanonical([]byte(canonical))
	digest, err := accumulator.ParseDigest(contentHash)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeInvalidPayload, Topic: l.name, Err: err}
	}
	// Index and return the stored form so appends, backfills and Get agree.
	stored, err := unmarshalPayload(canonical)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeInvalidPayload, Topic: l.name, Err: err}
	}
	entries, err := indexEntries(stored, l.indexPaths)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeInvalidPayload, Topic: l.name, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ir.Event{}, err
	}

	cur := l.head.Load()
	acc := cur.acc.Clone()
	acc.Append(digest)

	ev := ir.Event{
		ID:          l.ids.Generate(),
		Topic:       l.name,
		Sequence:    cur.seq + 1,
		ContentHash: contentHash,
		Payload:     stored,
		ReceivedAt:  l.clock.Now().UTC(),
	}

	write := func() error {
		return l.commit(context.WithoutCancel(ctx), ev, canonical, entries, acc)
	}
	if err := l.retry(write); err != nil {
		return ir.Event{}, persistenceError(l.name, fmt.Sprintf("append seq %d", ev.Sequence), err)
	}

	l.head.Store(&head{seq: ev.Sequence, acc: acc})
	return ev, nil
}

// commit writes one event, its index entries and the new accumulator head.
func (l *Log) commit(ctx context.Context, ev ir.Event, canonical string, entries []indexEntry, acc *accumulator.Accumulator) error {
	state := acc.State()
	peaks, err := marshalPeaks(state.Peaks)
	if err != nil {
		return err
	}
	root := acc.Root().String()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (seq, id, content_hash, payload, received_at, acc_root)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Sequence, ev.ID, ev.ContentHash, canonical, marshalTime(ev.ReceivedAt), root); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_entries (field_path, value, seq)
			VALUES (?, ?, ?)
		`, e.path, e.value, ev.Sequence); err != nil {
			return fmt.Errorf("insert index entry %s: %w", e.path, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accumulator (id, size, peaks, root)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET size = excluded.size, peaks = excluded.peaks, root = excluded.root
	`, int64(state.Size), peaks, root); err != nil {
		return fmt.Errorf("update accumulator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// retry runs fn, retrying a bounded number of times while SQLite reports
// the database busy or locked.
func (l *Log) retry(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt >= l.maxRetries {
			return err
		}
		l.logger.Warn("database busy, retrying append", "attempt", attempt+1, "error", err)
		time.Sleep(backoff(attempt + 1))
	}
}

func retryable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
