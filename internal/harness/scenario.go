package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios append events, run catalog operations against them and assert
// on the resulting trace and final topic state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional catalog directory, relative to the scenario
	// file. Empty means the embedded catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// Setup appends events before the main flow.
	// Setup appends are assumed to succeed; a failure aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the main test flow with optional expectations.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// dir is the directory the scenario was loaded from.
	dir string
}

// Step is one append or one query. Exactly one of Append or Query is set.
type Step struct {
	// Append names the topic to append Payload to.
	Append string `yaml:"append,omitempty"`

	// Payload is the event body. String leaves may reference bound
	// variables as "{{name}}".
	Payload map[string]any `yaml:"payload,omitempty"`

	// Query names the topic whose Operation runs with Args.
	Query     string         `yaml:"query,omitempty"`
	Operation string         `yaml:"operation,omitempty"`
	Args      map[string]any `yaml:"args,omitempty"`

	// Bind stores the appended event id, or the first result id of a query,
	// under this variable name.
	Bind string `yaml:"bind,omitempty"`

	// Expect validates the step outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Action names the step in the trace: "<topic>.append" for appends and
// "<topic>.<operation>" for queries.
func (s Step) Action() string {
	if s.Append != "" {
		return s.Append + ".append"
	}
	return s.Query + "." + s.Operation
}

// ExpectClause specifies the expected step outcome.
type ExpectClause struct {
	// Error is the expected error code (e.g. "VALIDATION_FAILED",
	// "MISSING_ARGUMENT"). Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Count is the expected number of query results.
	Count *int `yaml:"count,omitempty"`

	// IDs is the expected ordered list of result ids. Entries may reference
	// bound variables.
	IDs []string `yaml:"ids,omitempty"`

	// Found is the expected presence of a singleton result.
	Found *bool `yaml:"found,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step with Action and matching args appears
	// - "trace_order": Actions appear in order
	// - "trace_count": Action appears exactly Count times
	// - "final_state": Topic holds Count events and verifies clean
	Type string `yaml:"type"`

	Action  string         `yaml:"action,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
	Topic   string         `yaml:"topic,omitempty"`
	Count   int            `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CatalogDir returns the resolved catalog directory, or "" for the
// embedded catalog.
func (s *Scenario) CatalogDir() string {
	if s.Catalog == "" || filepath.IsAbs(s.Catalog) {
		return s.Catalog
	}
	return filepath.Join(s.dir, s.Catalog)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Append == "" || step.Query != "" {
			return fmt.Errorf("setup[%d]: only append steps are allowed", i)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch {
	case step.Append != "" && step.Query != "":
		return fmt.Errorf("append and query are mutually exclusive")
	case step.Append == "" && step.Query == "":
		return fmt.Errorf("one of append or query is required")
	case step.Query != "" && step.Operation == "":
		return fmt.Errorf("operation is required for query")
	case step.Append != "" && (step.Operation != "" || step.Args != nil):
		return fmt.Errorf("operation and args only apply to query")
	case step.Query != "" && step.Payload != nil:
		return fmt.Errorf("payload only applies to append")
	}
	if e := step.Expect; e != nil && e.Error != "" && (e.Count != nil || e.IDs != nil || e.Found != nil) {
		return fmt.Errorf("expect: error excludes count, ids and found")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("actions list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_count")
		}
	case AssertFinalState:
		if a.Topic == "" {
			return fmt.Errorf("topic is required for final_state")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
