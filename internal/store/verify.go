package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/conduit/internal/accumulator"
	"github.com/roach88/conduit/internal/ir"
)

// IntegrityReport is the outcome of recomputing a topic from its rows.
type IntegrityReport struct {
	Topic string `json:"topic"`

	// Events is the number of event rows examined.
	Events int64 `json:"events"`

	// HeadSize and HeadRoot are the persisted accumulator head.
	HeadSize int64  `json:"head_size"`
	HeadRoot string `json:"head_root"`

	// Root is the root recomputed from the rows.
	Root string `json:"root"`

	OK bool `json:"ok"`

	// FirstDivergence is the first sequence number whose persisted state
	// disagrees with the recomputation. Zero when OK.
	FirstDivergence int64  `json:"first_divergence,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Verify recomputes every content hash and the accumulator from the
// persisted rows and compares them with what was stored: each event's
// content hash and post-append root, the sequence numbering, and the stored
// head. It reports the first divergent sequence and never repairs anything.
//
// Verify holds the topic's writer lock so the rows and the head it compares
// are from the same committed state; reads are unaffected.
func (l *Log) Verify(ctx context.Context) (IntegrityReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := IntegrityReport{Topic: l.name}

	var peaks string
	err := l.db.QueryRowContext(ctx, `SELECT size, peaks, root FROM accumulator WHERE id = 1`).
		Scan(&report.HeadSize, &peaks, &report.HeadRoot)
	if errors.Is(err, sql.ErrNoRows) {
		report.HeadRoot = accumulator.EmptyRoot().String()
	} else if err != nil {
		return report, persistenceError(l.name, "read accumulator", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, content_hash, payload, acc_root
		FROM events
		ORDER BY seq ASC
	`)
	if err != nil {
		return report, persistenceError(l.name, "query events", err)
	}
	defer rows.Close()

	acc := accumulator.New()
	diverge := func(seq int64, reason string) {
		if report.FirstDivergence == 0 {
			report.FirstDivergence = seq
			report.Reason = reason
		}
	}

	for rows.Next() {
		var (
			seq        int64
			storedHash string
			payload    string
			storedRoot string
		)
		if err := rows.Scan(&seq, &storedHash, &payload, &storedRoot); err != nil {
			return report, persistenceError(l.name, "scan event", err)
		}
		report.Events++
		if report.FirstDivergence != 0 {
			continue
		}

		if want := report.Events; seq != want {
			diverge(want, fmt.Sprintf("sequence gap: expected %d, found %d", want, seq))
			continue
		}

		obj, err := unmarshalPayload(payload)
		if err != nil {
			diverge(seq, fmt.Sprintf("payload does not parse: %v", err))
			continue
		}
		recomputed, err := ir.ContentHash(obj)
		if err != nil {
			diverge(seq, fmt.Sprintf("payload does not canonicalize: %v", err))
			continue
		}
		if recomputed != storedHash {
			diverge(seq, "content hash mismatch")
			continue
		}
		digest, err := accumulator.ParseDigest(recomputed)
		if err != nil {
			return report, err
		}
		acc.Append(digest)
		if acc.Root().String() != storedRoot {
			diverge(seq, "accumulator root mismatch")
		}
	}
	if err := rows.Err(); err != nil {
		return report, persistenceError(l.name, "iterate events", err)
	}

	report.Root = acc.Root().String()
	if report.FirstDivergence == 0 {
		switch {
		case report.Events != report.HeadSize:
			diverge(min(report.Events, report.HeadSize)+1,
				fmt.Sprintf("head records %d events, log holds %d", report.HeadSize, report.Events))
		case report.Root != report.HeadRoot:
			diverge(report.HeadSize, "head root mismatch")
		case report.HeadSize != l.head.Load().seq:
			diverge(min(report.HeadSize, l.head.Load().seq)+1, "persisted head differs from the open log")
		}
	}

	report.OK = report.FirstDivergence == 0
	return report, nil
}
