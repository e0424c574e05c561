// Package accumulator implements the per-topic integrity accumulator: an
// incremental Merkle tree over the ordered sequence of event content hashes.
//
// The tree shape and hashing follow RFC 6962 / RFC 9162:
//
//	leaf  = SHA256(0x00 || content_hash)
//	node  = SHA256(0x01 || left || right)
//	empty = SHA256("")
//
// Only the frontier is kept: one peak per set bit of the tree size, largest
// (leftmost) first. Appending folds a leaf into the frontier in O(log n);
// the root bags the peaks right to left. The state after n leaves is a pure
// function of the state after n-1 leaves and the n-th content hash, so
// recomputing from scratch always reproduces the same root.
package accumulator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a SHA-256 output.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes a 64-character hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("parse digest: got %d bytes, want %d", len(b), len(d))
	}
	copy(d[:], b)
	return d, nil
}

// LeafHash hashes one content hash into a tree leaf.
func LeafHash(contentHash Digest) Digest {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(contentHash[:])
	var d Digest
	h.Sum(d[:0])
	return d
}

// NodeHash combines two child hashes.
func NodeHash(left, right Digest) Digest {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left[:])
	h.Write(right[:])
	var d Digest
	h.Sum(d[:0])
	return d
}

// EmptyRoot is the root of a tree with no leaves.
func EmptyRoot() Digest {
	return sha256.Sum256(nil)
}

// Accumulator is the frontier of an append-only Merkle tree.
// It is not safe for concurrent mutation; the store guards it with the
// topic's writer lock and publishes clones to readers.
type Accumulator struct {
	size  uint64
	peaks []Digest
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Size returns the number of leaves folded so far.
func (a *Accumulator) Size() uint64 {
	return a.size
}

// Append folds the next content hash into the frontier.
func (a *Accumulator) Append(contentHash Digest) {
	a.peaks = append(a.peaks, LeafHash(contentHash))
	// Each trailing 1-bit of the old size is a peak of equal height that
	// the new leaf completes.
	for n := a.size; n&1 == 1; n >>= 1 {
		last := len(a.peaks) - 1
		merged := NodeHash(a.peaks[last-1], a.peaks[last])
		a.peaks = append(a.peaks[:last-1], merged)
	}
	a.size++
}

// Root returns the Merkle tree head for the current size.
func (a *Accumulator) Root() Digest {
	if len(a.peaks) == 0 {
		return EmptyRoot()
	}
	root := a.peaks[len(a.peaks)-1]
	for i := len(a.peaks) - 2; i >= 0; i-- {
		root = NodeHash(a.peaks[i], root)
	}
	return root
}

// Clone returns an independent copy.
func (a *Accumulator) Clone() *Accumulator {
	return &Accumulator{
		size:  a.size,
		peaks: append([]Digest(nil), a.peaks...),
	}
}

// State is the persisted form of an accumulator.
type State struct {
	Size  uint64   `json:"size"`
	Peaks []string `json:"peaks"`
}

// State snapshots the frontier for persistence.
func (a *Accumulator) State() State {
	peaks := make([]string, len(a.peaks))
	for i, p := range a.peaks {
		peaks[i] = p.String()
	}
	return State{Size: a.size, Peaks: peaks}
}

// Restore rebuilds an accumulator from a persisted state. The number of
// peaks must equal the population count of the size.
func Restore(s State) (*Accumulator, error) {
	if want := popcount(s.Size); len(s.Peaks) != want {
		return nil, fmt.Errorf("restore accumulator: size %d needs %d peaks, got %d", s.Size, want, len(s.Peaks))
	}
	a := &Accumulator{size: s.Size, peaks: make([]Digest, len(s.Peaks))}
	for i, p := range s.Peaks {
		d, err := ParseDigest(p)
		if err != nil {
			return nil, fmt.Errorf("restore accumulator: peak %d: %w", i, err)
		}
		a.peaks[i] = d
	}
	return a, nil
}

func popcount(n uint64) int {
	c := 0
	for ; n != 0; n &= n - 1 {
		c++
	}
	return c
}
