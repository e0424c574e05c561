package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/accumulator"
)

func TestProveEveryEvent(t *testing.T) {
	b, _ := openTestBroker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 11; i++ {
		ids = append(ids, mustAppend(t, b, "advisory_raised", adv("sys-1", "low")).ID)
	}
	head, err := b.Head("advisory_raised")
	require.NoError(t, err)

	for i, id := range ids {
		p, err := b.Prove(ctx, "advisory_raised", id)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), p.LeafIndex)
		assert.Equal(t, uint64(11), p.TreeSize)
		assert.Equal(t, head.Root, p.Root)
		assert.NoError(t, accumulator.VerifyInclusion(p))
	}
}

func TestProveUnknownEvent(t *testing.T) {
	b, _ := openTestBroker(t)
	mustAppend(t, b, "advisory_raised", adv("sys-1", "low"))

	_, err := b.Prove(context.Background(), "advisory_raised", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProofGoesStaleAfterAppend(t *testing.T) {
	b, _ := openTestBroker(t)
	ctx := context.Background()

	first := mustAppend(t, b, "advisory_raised", adv("sys-1", "low"))
	old, err := b.Prove(ctx, "advisory_raised", first.ID)
	require.NoError(t, err)

	mustAppend(t, b, "advisory_raised", adv("sys-2", "low"))
	fresh, err := b.Prove(ctx, "advisory_raised", first.ID)
	require.NoError(t, err)

	assert.NotEqual(t, old.Root, fresh.Root)
	assert.NoError(t, accumulator.VerifyInclusion(old))
	assert.NoError(t, accumulator.VerifyInclusion(fresh))
}
