package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/engine"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/service"
	"github.com/roach88/conduit/internal/store"
	"github.com/roach88/conduit/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against one service.
type Harness struct {
	svc    *service.Service
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh temporary data directory for isolation.
//
// Execution flow:
// 1. Load the catalog (embedded or the scenario's directory)
// 2. Open a service with deterministic ids and clock
// 3. Execute setup appends
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions and return the result
//
// The returned error covers infrastructure failures and failed setup steps;
// expectation and assertion failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cat, err := loadCatalog(scenario.CatalogDir())
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	dir, err := os.MkdirTemp("", "conduit-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.Open(ctx, dir, cat,
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs("event")),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()

	h := &Harness{svc: svc, logger: logger}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, svc) {
		result.AddError(msg)
	}
	return result, nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

// executeSetup runs all setup appends. Any failure aborts the run.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		code, err := h.executeStep(ctx, step, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if code != OutputSuccess {
			return fmt.Errorf("setup step %d (%s): completed with %s", i, step.Action(), code)
		}
	}
	return nil
}

// executeFlow runs the flow steps and validates each step's expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		code, err := h.executeStep(ctx, step, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		completion := result.Trace[len(result.Trace)-1]
		for _, msg := range checkExpect(step, code, completion.Result, result.Bindings) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action(), msg))
		}
	}
	return nil
}

// executeStep traces one step and returns its completion case. Errors from
// the step itself become the completion case; the returned error is reserved
// for steps the harness cannot even issue (unbound variables, bad values).
func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) (string, error) {
	if step.Append != "" {
		return h.executeAppend(ctx, step, result)
	}
	return h.executeQuery(ctx, step, result)
}

func (h *Harness) executeAppend(ctx context.Context, step Step, result *Result) (string, error) {
	bound, err := bindVars(step.Payload, result.Bindings)
	if err != nil {
		return "", fmt.Errorf("payload: %w", err)
	}
	payload, err := toObject(bound)
	if err != nil {
		return "", fmt.Errorf("payload: %w", err)
	}
	result.AddInvocationTrace(step.Action(), bound)

	repo, ok := h.svc.Repository(step.Append)
	if !ok {
		result.AddCompletionTrace(string(store.ErrCodeUnknownTopic), nil)
		return string(store.ErrCodeUnknownTopic), nil
	}
	ev, err := repo.Append(ctx, payload)
	if err != nil {
		code := ErrorCode(err)
		h.logger.Debug("append failed", "topic", step.Append, "code", code, "error", err)
		result.AddCompletionTrace(code, nil)
		return code, nil
	}

	result.AddCompletionTrace(OutputSuccess, map[string]any{
		"id":       ev.ID,
		"sequence": ev.Sequence,
	})
	if step.Bind != "" {
		result.Bindings[step.Bind] = ev.ID
	}
	return OutputSuccess, nil
}

func (h *Harness) executeQuery(ctx context.Context, step Step, result *Result) (string, error) {
	bound, err := bindVars(step.Args, result.Bindings)
	if err != nil {
		return "", fmt.Errorf("args: %w", err)
	}
	args, err := toObject(bound)
	if err != nil {
		return "", fmt.Errorf("args: %w", err)
	}
	result.AddInvocationTrace(step.Action(), bound)

	res, err := h.svc.Engine.Execute(ctx, step.Query, step.Operation, args)
	if err != nil {
		code := ErrorCode(err)
		result.AddCompletionTrace(code, nil)
		return code, nil
	}

	ids := resultIDs(res)
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	result.AddCompletionTrace(OutputSuccess, map[string]any{"ids": list})
	if step.Bind != "" && len(ids) > 0 {
		result.Bindings[step.Bind] = ids[0]
	}
	return OutputSuccess, nil
}

func resultIDs(res search.Result) []string {
	if res.Cardinality == ir.Singleton {
		if res.Event == nil {
			return []string{}
		}
		return []string{res.Event.ID}
	}
	ids := make([]string, len(res.Events))
	for i, ev := range res.Events {
		ids[i] = ev.ID
	}
	return ids
}

// ErrorCode names err the way the endpoint reports it.
func ErrorCode(err error) string {
	var (
		re *engine.ResolutionError
		se *search.SearchError
		st *store.StoreError
	)
	switch {
	case schema.IsValidationError(err):
		return "VALIDATION_FAILED"
	case errors.As(err, &re):
		return string(re.Code)
	case errors.As(err, &se):
		return string(se.Code)
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	case errors.As(err, &st):
		return string(st.Code)
	default:
		return "INTERNAL"
	}
}

func toObject(v any) (ir.IRObject, error) {
	if v == nil {
		return ir.IRObject{}, nil
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", val)
	}
	return obj, nil
}

// bindVars replaces "{{name}}" references in string leaves with bound
// variable values. Maps and slices are copied; other values pass through.
func bindVars(v any, bindings map[string]string) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return bindString(val, bindings)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			b, err := bindVars(elem, bindings)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = b
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			b, err := bindVars(elem, bindings)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = b
		}
		return out, nil
	default:
		return v, nil
	}
}

func bindString(s string, bindings map[string]string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	segs, err := catalog.ParseTemplate(s)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segs {
		if seg.Param == "" {
			b.WriteString(seg.Text)
			continue
		}
		v, ok := bindings[seg.Param]
		if !ok {
			return "", fmt.Errorf("unbound variable %q", seg.Param)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
