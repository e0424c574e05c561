package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/testutil"
)

var testTopics = []TopicSpec{
	{Name: "system_registered", IndexPaths: []string{"payload.name", "payload.owner"}},
	{Name: "advisory_raised", IndexPaths: []string{"payload.targetId", "payload.severity", "payload.cvss"}},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() []Option {
	return []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs("event")),
		WithLogger(discardLogger()),
	}
}

// openTestBroker opens a broker over a fresh temp directory.
func openTestBroker(t *testing.T, topics ...TopicSpec) (*Broker, string) {
	t.Helper()
	if len(topics) == 0 {
		topics = testTopics
	}
	dir := t.TempDir()
	b, err := Open(context.Background(), dir, topics, testOptions()...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, dir
}

func system(name, owner string) ir.IRObject {
	return ir.IRObject{"name": ir.IRString(name), "owner": ir.IRString(owner)}
}

func mustAppend(t *testing.T, b *Broker, topic string, payload ir.IRObject) ir.Event {
	t.Helper()
	ev, err := b.Append(context.Background(), topic, payload)
	require.NoError(t, err)
	return ev
}

func adv(target, severity string) ir.IRObject {
	return ir.IRObject{"targetId": ir.IRString(target), "severity": ir.IRString(severity), "title": ir.IRString("t")}
}
