package harness

// TraceEvent is one entry of a scenario trace: the invocation of a step or
// its completion.
type TraceEvent struct {
	Type       string `json:"type"` // "invocation" or "completion"
	ActionURI  string `json:"action_uri,omitempty"`
	Args       any    `json:"args,omitempty"`
	OutputCase string `json:"output_case,omitempty"`
	Result     any    `json:"result,omitempty"`
	Seq        int64  `json:"seq"`
}

// OutputSuccess is the completion case of a step that returned no error.
// Failed steps complete with their error code instead.
const OutputSuccess = "Success"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains all invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Bindings holds the variables bound during the run.
	Bindings map[string]string `json:"bindings,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Bindings: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(actionURI string, args any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      "invocation",
		ActionURI: actionURI,
		Args:      args,
		Seq:       int64(len(r.Trace) + 1),
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(outputCase string, result any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       "completion",
		OutputCase: outputCase,
		Result:     result,
		Seq:        int64(len(r.Trace) + 1),
	})
}
