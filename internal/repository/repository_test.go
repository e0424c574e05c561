package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/store"
	"github.com/roach88/conduit/internal/testutil"
)

func newRepository(t *testing.T, topic string) (*Repository, *store.Broker) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	v, err := schema.New(cat)
	require.NoError(t, err)

	var specs []store.TopicSpec
	for _, tp := range cat.Topics {
		specs = append(specs, store.TopicSpec{Name: tp.Name, IndexPaths: tp.IndexPaths()})
	}
	b, err := store.Open(context.Background(), t.TempDir(), specs,
		store.WithIDGenerator(testutil.NewSequentialIDs("event")),
		store.WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	r, err := New(b, v, topic)
	require.NoError(t, err)
	return r, b
}

func TestAppendAndGet(t *testing.T) {
	r, _ := newRepository(t, "system_registered")
	ctx := context.Background()

	ev, err := r.Append(ctx, ir.IRObject{"name": ir.IRString("billing"), "owner": ir.IRString("team-a")})
	require.NoError(t, err)
	assert.Equal(t, "event-0001", ev.ID)
	assert.Equal(t, int64(1), ev.Sequence)

	got, err := r.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ContentHash, got.ContentHash)

	_, err = r.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidationGate(t *testing.T) {
	r, b := newRepository(t, "system_registered")
	ctx := context.Background()

	_, err := r.Append(ctx, ir.IRObject{"name": ir.IRString("billing")})
	require.Error(t, err)
	assert.True(t, schema.IsValidationError(err))

	head, err := b.Head("system_registered")
	require.NoError(t, err)
	assert.Equal(t, int64(0), head.Size, "a rejected payload must not advance the sequence")

	events, err := r.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	ev, err := r.Append(ctx, ir.IRObject{"name": ir.IRString("billing"), "owner": ir.IRString("team-a")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.Sequence)
}

func TestList(t *testing.T) {
	r, _ := newRepository(t, "annotation_added")
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := r.Append(ctx, ir.IRObject{
			"targetId": ir.IRString("sys-1"),
			"author":   ir.IRString("ops"),
			"body":     ir.IRString(body),
		})
		require.NoError(t, err)
	}

	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ir.IRString("first"), all[0].Payload["body"])

	two, err := r.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestNewRejectsUnknownTopic(t *testing.T) {
	_, b := newRepository(t, "system_registered")
	cat, err := catalog.Default()
	require.NoError(t, err)
	v, err := schema.New(cat)
	require.NoError(t, err)

	_, err = New(b, v, "nope")
	assert.True(t, store.HasCode(err, store.ErrCodeUnknownTopic))
}
