package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/conduit/internal/accumulator"
)

// Prove builds an inclusion proof for the event with id against the latest
// committed root. Proofs are built from the stored content hashes and cost
// O(n) to build; verifying one costs O(log n).
//
// The root and the leaves come from the persisted accumulator row, not the
// in-memory head, which is published only after the append's commit. An
// event a reader can already see is therefore always provable.
func (l *Log) Prove(ctx context.Context, id string) (accumulator.InclusionProof, error) {
	var seq int64
	err := l.db.QueryRowContext(ctx, `SELECT seq FROM events WHERE id = ?`, id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return accumulator.InclusionProof{}, ErrNotFound
	}
	if err != nil {
		return accumulator.InclusionProof{}, persistenceError(l.name, "find event", err)
	}

	f, err := l.readFrontier(ctx)
	if err != nil {
		return accumulator.InclusionProof{}, err
	}
	if seq > f.size {
		// The row and the head commit together; a later snapshot never shrinks.
		return accumulator.InclusionProof{}, ErrNotFound
	}
	if int64(len(f.hashes)) != f.size {
		return accumulator.InclusionProof{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name,
			Message: fmt.Sprintf("head records %d events, log holds %d", f.size, len(f.hashes))}
	}

	digests := make([]accumulator.Digest, len(f.hashes))
	for i, s := range f.hashes {
		d, err := accumulator.ParseDigest(s)
		if err != nil {
			return accumulator.InclusionProof{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Message: fmt.Sprintf("content hash of seq %d", i+1), Err: err}
		}
		digests[i] = d
	}

	proof, err := accumulator.Prove(digests, uint64(seq-1))
	if err != nil {
		return accumulator.InclusionProof{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name, Err: err}
	}
	if proof.Root != f.root {
		return accumulator.InclusionProof{}, &StoreError{Code: ErrCodeCorrupt, Topic: l.name,
			Message: fmt.Sprintf("stored hashes give root %s, head is %s", proof.Root, f.root)}
	}
	return proof, nil
}
