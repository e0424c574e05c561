package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable event ids: "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with a fresh SequentialIDs produces byte-identical traces.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. If prefix is empty, "event" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "event"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements store.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
