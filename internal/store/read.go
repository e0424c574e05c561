package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/queryir"
	"github.com/roach88/conduit/internal/querysql"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads the querysql.EventColumns of one row.
func (l *Log) scanEvent(row rowScanner) (ir.Event, error) {
	var (
		ev         ir.Event
		payload    string
		receivedAt string
	)
	if err := row.Scan(&ev.Sequence, &ev.ID, &ev.ContentHash, &payload, &receivedAt); err != nil {
		return ir.Event{}, err
	}
	obj, err := unmarshalPayload(payload)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: fmt.Sprintf("event seq %d", ev.Sequence), Err: err}
	}
	ts, err := unmarshalTime(receivedAt)
	if err != nil {
		return ir.Event{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: fmt.Sprintf("event seq %d", ev.Sequence), Err: err}
	}
	ev.Topic = l.name
	ev.Payload = obj
	ev.ReceivedAt = ts
	return ev, nil
}

// Get returns the event with id, or ErrNotFound.
func (l *Log) Get(ctx context.Context, id string) (ir.Event, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+querysql.EventColumns+`
		FROM events e
		WHERE e.id = ?
	`, id)
	ev, err := l.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Event{}, ErrNotFound
	}
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) {
			return ir.Event{}, err
		}
		return ir.Event{}, persistenceError(l.name, "get event", err)
	}
	return ev, nil
}

// Lookup returns the ids of events whose value at path equals value exactly,
// in ascending sequence order. path must be "id" or an indexed payload path.
func (l *Log) Lookup(ctx context.Context, path string, value ir.IRValue) ([]string, error) {
	events, err := l.Select(ctx, queryir.Select{
		From:   l.name,
		Filter: queryir.Equals{Field: path, Value: value},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids, nil
}

// Select validates sel against the declared index set, compiles it and
// returns the matching events in the requested sequence order. It returns an
// empty slice, not nil, when nothing matches.
func (l *Log) Select(ctx context.Context, sel queryir.Select) ([]ir.Event, error) {
	if sel.From != l.name {
		return nil, &StoreError{Code: ErrCodeUnknownTopic, Topic: sel.From, Message: fmt.Sprintf("select addressed to %s log", l.name)}
	}
	if err := queryir.Validate(sel, l.Indexed); err != nil {
		return nil, &StoreError{Code: ErrCodeInvalidQuery, Topic: l.name, Err: err}
	}
	query, params, err := querysql.Compile(sel)
	if err != nil {
		return nil, &StoreError{Code: ErrCodeInvalidQuery, Topic: l.name, Err: err}
	}

	rows, err := l.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, persistenceError(l.name, "query events", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := l.scanEvent(rows)
		if err != nil {
			var se *StoreError
			if errors.As(err, &se) {
				return nil, err
			}
			return nil, persistenceError(l.name, "scan event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(l.name, "iterate events", err)
	}
	return events, nil
}

// frontier is the committed accumulator row together with the content
// hashes of the events it covers, in sequence order.
type frontier struct {
	size   int64
	root   string
	hashes []string
}

// readFrontier reads the accumulator row and the content hashes it covers in
// a single statement, so both come from the same committed snapshot even
// while an append is publishing its head.
func (l *Log) readFrontier(ctx context.Context) (frontier, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT a.size, a.root, e.content_hash
		FROM accumulator a
		JOIN events e ON e.seq <= a.size
		WHERE a.id = 1
		ORDER BY e.seq ASC
	`)
	if err != nil {
		return frontier{}, persistenceError(l.name, "query frontier", err)
	}
	defer rows.Close()

	var f frontier
	for rows.Next() {
		var h string
		if err := rows.Scan(&f.size, &f.root, &h); err != nil {
			return frontier{}, persistenceError(l.name, "scan content hash", err)
		}
		f.hashes = append(f.hashes, h)
	}
	if err := rows.Err(); err != nil {
		return frontier{}, persistenceError(l.name, "iterate content hashes", err)
	}
	return f, nil
}
