package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/store"
	"github.com/roach88/conduit/internal/testutil"
)

// recordingSearcher captures what the engine dispatches.
type recordingSearcher struct {
	filter search.Filter
	card   ir.Cardinality
	calls  int
}

func (r *recordingSearcher) Query(_ context.Context, filter search.Filter, card ir.Cardinality) (search.Result, error) {
	r.filter = filter
	r.card = card
	r.calls++
	return search.Result{Cardinality: card}, nil
}

func recordingEngine(t *testing.T) (*Engine, map[string]*recordingSearcher) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	recs := make(map[string]*recordingSearcher)
	searchers := make(map[string]Searcher)
	for _, name := range cat.TopicNames() {
		r := &recordingSearcher{}
		recs[name] = r
		searchers[name] = r
	}
	e, err := New(cat, searchers)
	require.NoError(t, err)
	return e, recs
}

func TestExecuteDispatchesDeclaredCardinality(t *testing.T) {
	e, recs := recordingEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, "advisory_raised", "getAdvisoryRaised", ir.IRObject{"id": ir.IRString("42")})
	require.NoError(t, err)
	rec := recs["advisory_raised"]
	assert.Equal(t, ir.Singleton, rec.card)
	assert.Equal(t, search.Filter{"id": ir.IRString("42")}, rec.filter)

	_, err = e.Execute(ctx, "advisory_raised", "getAdvisoryRaisedBySeverity", ir.IRObject{"severity": ir.IRString("high")})
	require.NoError(t, err)
	assert.Equal(t, ir.Vector, rec.card)
	assert.Equal(t, search.Filter{"payload.severity": ir.IRString("high")}, rec.filter)

	_, err = e.Execute(ctx, "advisory_raised", "getAdvisoryRaisedEvents", nil)
	require.NoError(t, err)
	assert.Empty(t, rec.filter)
	assert.Equal(t, 3, rec.calls)
}

// Every declared operation resolves when each placeholder has an argument,
// and reaches only its own topic's searcher.
func TestEveryCatalogOperationResolves(t *testing.T) {
	e, recs := recordingEngine(t)
	cat, err := catalog.Default()
	require.NoError(t, err)

	for _, topic := range cat.Topics {
		for _, o := range topic.Operations {
			t.Run(topic.Name+"/"+o.Name, func(t *testing.T) {
				args := ir.IRObject{}
				for _, p := range o.Params {
					args[p] = ir.IRString("v-" + p)
				}
				before := recs[topic.Name].calls
				_, err := e.Execute(context.Background(), topic.Name, o.Name, args)
				require.NoError(t, err)
				assert.Equal(t, before+1, recs[topic.Name].calls)
				assert.Equal(t, o.Cardinality, recs[topic.Name].card)
			})
		}
	}
}

func TestExecuteErrors(t *testing.T) {
	e, recs := recordingEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, "nope", "getX", nil)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnknownTopic, re.Code)

	_, err = e.Execute(ctx, "system_registered", "getNothing", nil)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeUnknownOperation, re.Code)

	_, err = e.Execute(ctx, "system_registered", "getSystemRegisteredByOwner", ir.IRObject{"name": ir.IRString("x")})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeMissingArgument, re.Code)
	assert.Equal(t, "system_registered", re.Topic)
	assert.Equal(t, "getSystemRegisteredByOwner", re.Operation)
	assert.Equal(t, 0, recs["system_registered"].calls, "nothing is dispatched on a resolution failure")
}

func TestNewRequiresSearcherPerTopic(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	_, err = New(cat, map[string]Searcher{})
	assert.Error(t, err)
}

// End to end over a real broker: resolution correctness, singleton
// tie-break and NotFound.
func TestExecuteAgainstStore(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	var specs []store.TopicSpec
	for _, tp := range cat.Topics {
		specs = append(specs, store.TopicSpec{Name: tp.Name, IndexPaths: tp.IndexPaths()})
	}
	b, err := store.Open(context.Background(), t.TempDir(), specs,
		store.WithIDGenerator(testutil.NewSequentialIDs("event")),
		store.WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	defer b.Close()

	searchers := make(map[string]Searcher)
	for _, name := range cat.TopicNames() {
		s, err := search.New(b, name)
		require.NoError(t, err)
		searchers[name] = s
	}
	e, err := New(cat, searchers)
	require.NoError(t, err)

	ctx := context.Background()
	var ids []string
	for _, name := range []string{"billing", "search", "billing"} {
		ev, err := b.Append(ctx, "system_registered", ir.IRObject{"name": ir.IRString(name), "owner": ir.IRString("team-a")})
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}

	res, err := e.Execute(ctx, "system_registered", "getSystemRegistered", ir.IRObject{"id": ir.IRString(ids[1])})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, ids[1], res.Event.ID)

	res, err = e.Execute(ctx, "system_registered", "getSystemRegistered", ir.IRObject{"id": ir.IRString("42")})
	require.NoError(t, err)
	assert.False(t, res.Found())

	res, err = e.Execute(ctx, "system_registered", "getSystemRegisteredByName", ir.IRObject{"name": ir.IRString("billing")})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, ids[0], res.Events[0].ID)
	assert.Equal(t, ids[2], res.Events[1].ID)

	res, err = e.Execute(ctx, "system_registered", "getSystemRegisteredEvents", nil)
	require.NoError(t, err)
	assert.Len(t, res.Events, 3)
}
