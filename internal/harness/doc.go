// Package harness provides conformance testing for conduit topics.
//
// A scenario appends events through the validated write path and runs
// catalog operations through the resolution engine, the same way the HTTP
// endpoint does, against a fresh broker in a temporary directory.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: path/to/catalog   # optional, defaults to the embedded catalog
//	setup:
//	  - append: system_registered
//	    payload: { name: billing, owner: team-a }
//	    bind: billing
//	flow:
//	  - append: advisory_raised
//	    payload: { targetId: "{{billing}}", severity: high, title: "TLS expiry" }
//	    bind: advisory
//	  - query: advisory_raised
//	    operation: getAdvisoryRaisedByTarget
//	    args: { targetId: "{{billing}}" }
//	    expect:
//	      ids: ["{{advisory}}"]
//	  - query: advisory_raised
//	    operation: getAdvisoryRaisedByTarget
//	    args: {}
//	    expect:
//	      error: MISSING_ARGUMENT
//	assertions:
//	  - type: trace_contains
//	    action: advisory_raised.append
//	    args: { severity: high }
//	  - type: final_state
//	    topic: advisory_raised
//	    count: 1
//
// Bound variables hold event ids. "bind" on an append stores the new event's
// id; on a query it stores the first result id.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an action appears in the trace with matching args
//   - trace_order: Verifies actions appear in specified order
//   - trace_count: Verifies an action appears exactly N times
//   - final_state: Verifies a topic's head size and a clean integrity check
//
// Actions are named "<topic>.append" for appends and "<topic>.<operation>"
// for queries.
//
// # Deterministic Testing
//
// All scenarios execute with testutil.DeterministicClock and
// testutil.SequentialIDs, so the same scenario always produces a
// byte-identical trace. RunWithGolden compares it against
// testdata/golden/<name>.golden with goldie.
package harness
