package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/store"
	"github.com/roach88/conduit/internal/testutil"
)

func newSearcher(t *testing.T) (*Searcher, *store.Broker) {
	t.Helper()
	topics := []store.TopicSpec{{
		Name:       "advisory_raised",
		IndexPaths: []string{"payload.targetId", "payload.severity"},
	}}
	b, err := store.Open(context.Background(), t.TempDir(), topics,
		store.WithIDGenerator(testutil.NewSequentialIDs("event")),
		store.WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	s, err := New(b, "advisory_raised")
	require.NoError(t, err)
	return s, b
}

func raise(t *testing.T, b *store.Broker, target, severity string) ir.Event {
	t.Helper()
	ev, err := b.Append(context.Background(), "advisory_raised", ir.IRObject{
		"targetId": ir.IRString(target),
		"severity": ir.IRString(severity),
		"title":    ir.IRString("advisory"),
	})
	require.NoError(t, err)
	return ev
}

func TestVectorKeepsArrivalOrder(t *testing.T) {
	s, b := newSearcher(t)
	a := raise(t, b, "sys-1", "high")
	raise(t, b, "sys-2", "high")
	c := raise(t, b, "sys-1", "low")
	d := raise(t, b, "sys-1", "critical")

	res, err := s.Query(context.Background(), Filter{"payload.targetId": ir.IRString("sys-1")}, ir.Vector)
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, []string{a.ID, c.ID, d.ID}, []string{res.Events[0].ID, res.Events[1].ID, res.Events[2].ID})
	assert.Equal(t, ir.Vector, res.Cardinality)
}

func TestSingletonPicksHighestSequence(t *testing.T) {
	s, b := newSearcher(t)
	raise(t, b, "sys-1", "high")
	second := raise(t, b, "sys-1", "high")
	raise(t, b, "sys-2", "high")

	res, err := s.Query(context.Background(), Filter{"payload.targetId": ir.IRString("sys-1")}, ir.Singleton)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, second.ID, res.Event.ID)
}

func TestSingletonNotFoundIsNotAnError(t *testing.T) {
	s, b := newSearcher(t)
	raise(t, b, "sys-1", "high")

	res, err := s.Query(context.Background(), Filter{"id": ir.IRString("42")}, ir.Singleton)
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestSingletonByID(t *testing.T) {
	s, b := newSearcher(t)
	raise(t, b, "sys-1", "high")
	want := raise(t, b, "sys-2", "low")

	res, err := s.Query(context.Background(), Filter{"id": ir.IRString(want.ID)}, ir.Singleton)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, want.ID, res.Event.ID)
	assert.Equal(t, want.Payload, res.Event.Payload)
}

func TestEmptyFilterListsEverything(t *testing.T) {
	s, b := newSearcher(t)
	for i := 0; i < 4; i++ {
		raise(t, b, "sys-1", "low")
	}

	res, err := s.Query(context.Background(), Filter{}, ir.Vector)
	require.NoError(t, err)
	assert.Len(t, res.Events, 4)

	res, err = s.Query(context.Background(), nil, ir.Vector)
	require.NoError(t, err)
	assert.Len(t, res.Events, 4)
}

func TestConjunction(t *testing.T) {
	s, b := newSearcher(t)
	raise(t, b, "sys-1", "low")
	want := raise(t, b, "sys-1", "high")
	raise(t, b, "sys-2", "high")

	res, err := s.Query(context.Background(), Filter{
		"payload.targetId": ir.IRString("sys-1"),
		"payload.severity": ir.IRString("high"),
	}, ir.Vector)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, want.ID, res.Events[0].ID)
}

func TestQueryErrors(t *testing.T) {
	s, b := newSearcher(t)
	raise(t, b, "sys-1", "low")

	tests := []struct {
		name   string
		filter Filter
		card   ir.Cardinality
		code   SearchErrorCode
	}{
		{"empty key", Filter{"": ir.IRString("x")}, ir.Vector, ErrCodeMalformedFilter},
		{"unrooted path", Filter{"targetId": ir.IRString("x")}, ir.Vector, ErrCodeMalformedFilter},
		{"unindexed path", Filter{"payload.title": ir.IRString("x")}, ir.Vector, ErrCodeUnindexedField},
		{"numeric id", Filter{"id": ir.IRInt(1)}, ir.Singleton, ErrCodeInvalidValue},
		{"bad cardinality", Filter{}, ir.Cardinality(0), ErrCodeInvalidCardinality},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(context.Background(), tt.filter, tt.card)
			require.Error(t, err)
			var se *SearchError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "advisory_raised", se.Topic)
		})
	}
}

func TestNewUnknownTopic(t *testing.T) {
	_, b := newSearcher(t)
	_, err := New(b, "nope")
	assert.True(t, store.HasCode(err, store.ErrCodeUnknownTopic))
}
