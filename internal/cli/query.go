package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/engine"
	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/search"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Args     []string // k=v, value taken as a string
	JSONArgs []string // k=<json>, value parsed as JSON
}

// QueryResult is the JSON output of the query command. Singleton operations
// fill Event (null when nothing matched); vector operations fill Events.
type QueryResult struct {
	Topic       string     `json:"topic"`
	Operation   string     `json:"operation"`
	Cardinality string     `json:"cardinality"`
	Event       *ir.Event  `json:"event"`
	Events      []ir.Event `json:"events"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <topic> <operation>",
		Short: "Run a named catalog operation",
		Long: `Resolve a catalog operation with the given arguments and run it.

--arg values are strings. Use --arg-json for typed values such as integers
or booleans; filters match by type, so 7 and "7" are different values.

Example:
  conduit query system_registered getSystemRegisteredByOwner --arg owner=team-a
  conduit query advisory_raised getAdvisoryRaised --arg id=0190c6b2-...
  conduit query advisory_raised getAdvisoryRaisedByTarget --arg-json targetId='"billing"'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "operation argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.JSONArgs, "arg-json", nil, "operation argument as key=<json> (repeatable)")

	return cmd
}

func runQuery(opts *QueryOptions, topic, operation string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	args, err := parseQueryArgs(opts.Args, opts.JSONArgs)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid arguments", err)
	}

	svc, _, err := openService(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Engine.Execute(cmd.Context(), topic, operation, args)
	if err != nil {
		return formatter.Fail(queryExitCode(err), "query failed", err)
	}

	result := QueryResult{
		Topic:       topic,
		Operation:   operation,
		Cardinality: res.Cardinality.String(),
		Event:       res.Event,
		Events:      res.Events,
	}
	return formatter.Emit(result, func(w io.Writer) {
		writeQueryText(w, res)
	})
}

// parseQueryArgs builds the argument object. A key given twice is an error.
func parseQueryArgs(plain, typed []string) (ir.IRObject, error) {
	args := make(ir.IRObject, len(plain)+len(typed))
	add := func(kv string, parse func(string) (ir.IRValue, error)) error {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("argument %q is not key=value", kv)
		}
		if _, dup := args[k]; dup {
			return fmt.Errorf("argument %q given more than once", k)
		}
		val, err := parse(v)
		if err != nil {
			return fmt.Errorf("argument %q: %w", k, err)
		}
		args[k] = val
		return nil
	}

	for _, kv := range plain {
		if err := add(kv, func(s string) (ir.IRValue, error) { return ir.IRString(s), nil }); err != nil {
			return nil, err
		}
	}
	for _, kv := range typed {
		if err := add(kv, func(s string) (ir.IRValue, error) { return ir.ParseJSON([]byte(s)) }); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// queryExitCode treats naming a topic or operation the catalog lacks as a
// command error and every other rejection as a failure.
func queryExitCode(err error) int {
	var re *engine.ResolutionError
	if errors.As(err, &re) && (re.Code == engine.ErrCodeUnknownTopic || re.Code == engine.ErrCodeUnknownOperation) {
		return ExitCommandError
	}
	return ExitFailure
}

func writeQueryText(w io.Writer, res search.Result) {
	events := res.Events
	if res.Cardinality == ir.Singleton {
		if res.Event == nil {
			fmt.Fprintln(w, "no match")
			return
		}
		events = []ir.Event{*res.Event}
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	for _, ev := range events {
		writeEventLine(w, ev)
	}
}

// writeEventLine prints one event as "#seq id payload".
func writeEventLine(w io.Writer, ev ir.Event) {
	payload, err := ir.MarshalCanonical(ev.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("<%v>", err))
	}
	fmt.Fprintf(w, "#%d %s %s\n", ev.Sequence, ev.ID, payload)
}
