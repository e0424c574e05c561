package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Limit int
}

// TraceResult is a topic's event timeline with its current head.
type TraceResult struct {
	Topic  string     `json:"topic"`
	Head   store.Head `json:"head"`
	Events []ir.Event `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <topic>",
		Short: "Show a topic's event log",
		Long: `Show the events of a topic in sequence order together with the current
accumulator head.

Examples:
  conduit trace system_registered
  conduit trace advisory_raised --limit 20 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")

	return cmd
}

func runTrace(opts *TraceOptions, topic string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, "invalid limit", fmt.Errorf("limit must be non-negative, got %d", opts.Limit))
	}

	svc, _, err := openService(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	repo, ok := svc.Repository(topic)
	if !ok {
		return formatter.Fail(ExitCommandError, "trace failed", unknownTopic(topic))
	}
	head, err := svc.Broker.Head(topic)
	if err != nil {
		return formatter.Fail(ExitFailure, "trace failed", err)
	}
	events, err := repo.List(cmd.Context(), opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, "trace failed", err)
	}

	result := TraceResult{Topic: topic, Head: head, Events: events}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d events, root %s\n", topic, head.Size, head.Root)
		for _, ev := range events {
			writeEventLine(w, ev)
		}
	})
}
