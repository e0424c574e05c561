package harness

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/service"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == "invocation" {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.ActionURI, event.Args)
			}
		}
	}
	return buf.String()
}

// checkExpect compares a step's completion against its expect clause.
// A step without an expect clause must complete with Success.
func checkExpect(step Step, code string, result any, bindings map[string]string) []string {
	want := step.Expect
	if want == nil {
		want = &ExpectClause{}
	}

	if want.Error != "" {
		if code != want.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", want.Error, code)}
		}
		return nil
	}
	if code != OutputSuccess {
		return []string{fmt.Sprintf("unexpected error %s", code)}
	}

	var ids []string
	if m, ok := result.(map[string]any); ok {
		if list, ok := m["ids"].([]any); ok {
			for _, id := range list {
				ids = append(ids, fmt.Sprint(id))
			}
		}
	}

	var errs []string
	if want.Count != nil && len(ids) != *want.Count {
		errs = append(errs, fmt.Sprintf("expected %d results, got %d", *want.Count, len(ids)))
	}
	if want.Found != nil && (len(ids) > 0) != *want.Found {
		errs = append(errs, fmt.Sprintf("expected found=%t, got %d results", *want.Found, len(ids)))
	}
	if want.IDs != nil {
		expected := make([]string, len(want.IDs))
		for i, id := range want.IDs {
			b, err := bindString(id, bindings)
			if err != nil {
				errs = append(errs, fmt.Sprintf("ids[%d]: %v", i, err))
				return errs
			}
			expected[i] = b
		}
		if !slices.Equal(ids, expected) {
			errs = append(errs, fmt.Sprintf("expected ids %v, got %v", expected, ids))
		}
	}
	return errs
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion, bindings map[string]string) error {
	expected, err := bindVars(assertion.Args, bindings)
	if err != nil {
		return fmt.Errorf("trace_contains: %w", err)
	}
	want, _ := expected.(map[string]any)

	for _, event := range trace {
		if event.Type == "invocation" && event.ActionURI == assertion.Action && matchArgs(event.Args, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, want),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed for readability.
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		for _, action := range assertion.Actions {
			if event.ActionURI == action && positions[action] == 0 {
				positions[action] = i + 1
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == "invocation" && event.ActionURI == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the topic's head size and that a full integrity
// verification of the topic passes.
func assertFinalState(ctx context.Context, svc *service.Service, assertion Assertion) error {
	head, err := svc.Broker.Head(assertion.Topic)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("topic %s", assertion.Topic),
			Actual:   err.Error(),
		}
	}
	if head.Size != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d events in %s", assertion.Count, assertion.Topic),
			Actual:   fmt.Sprintf("%d events", head.Size),
		}
	}

	report, err := svc.Broker.Verify(ctx, assertion.Topic)
	if err != nil {
		return fmt.Errorf("final_state: verify %s: %w", assertion.Topic, err)
	}
	if !report.OK {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s verifies clean", assertion.Topic),
			Actual:   fmt.Sprintf("divergence at %d: %s", report.FirstDivergence, report.Reason),
		}
	}
	return nil
}

// matchArgs reports whether every expected key is present in actual with an
// equal value. Extra keys in actual are OK (subset match).
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists || !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two decoded values by their canonical JSON form, so
// integer widths and map ordering do not matter.
func valuesEqual(actual, expected any) bool {
	a, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	b, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// svc provides broker access for final_state assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, svc *service.Service) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, result.Bindings)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if svc == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a service", i)
			} else {
				err = assertFinalState(ctx, svc, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
