// Package store is the event broker: a durable, append-only, per-topic event
// log with exact-match secondary indexes and a running integrity accumulator.
//
// Each topic lives in its own SQLite database (<dir>/<topic>.db), so topics
// share no state and no locks. Within a topic:
//
//   - Sequence numbers start at 1, increase by one per append and never have
//     gaps. They are the only ordering; received_at is informational.
//   - An append inserts the event row, its index entries and the new
//     accumulator head in one transaction. Either all of it commits or none
//     of it does, and the in-memory head only advances after commit.
//   - Appends are serialized by a per-topic writer lock. Reads never take it.
//   - Stored events are never updated or deleted (enforced by triggers).
//
// # Database Configuration
//
//   - WAL mode: readers proceed while a writer commits
//   - synchronous=NORMAL
//   - busy_timeout=5000, plus a bounded retry on SQLITE_BUSY/SQLITE_LOCKED
//   - immediate write transactions
//
// Payloads are stored as RFC 8785 canonical JSON; content hashes and index
// values are derived from that same canonical form (see internal/ir).
package store
