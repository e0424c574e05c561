package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/store"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Payload string
}

// AppendResult is the JSON output of the append command.
type AppendResult struct {
	Topic       string `json:"topic"`
	ID          string `json:"id"`
	Sequence    int64  `json:"sequence"`
	ContentHash string `json:"content_hash"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <topic> [file]",
		Short: "Validate and append one event",
		Long: `Validate a JSON payload against the topic's schema and append it.

The payload is read from --payload, from file, or from stdin when neither
is given ("-" also means stdin).

Example:
  conduit append system_registered --payload '{"name":"billing","owner":"team-a"}'
  conduit append advisory_raised advisory.json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "", "event payload as JSON")

	return cmd
}

func runAppend(opts *AppendOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	topic := args[0]

	raw, err := readPayload(opts, args, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read payload", err)
	}
	payload, err := ir.ParseObject(raw)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid payload JSON", err)
	}

	svc, _, err := openService(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	repo, ok := svc.Repository(topic)
	if !ok {
		return formatter.Fail(ExitCommandError, "append rejected", unknownTopic(topic))
	}
	ev, err := repo.Append(cmd.Context(), payload)
	if err != nil {
		return formatter.Fail(ExitFailure, "append rejected", err)
	}
	formatter.VerboseLog("appended %s at %s", ev.ID, ev.ReceivedAt.Format(time.RFC3339))

	result := AppendResult{Topic: topic, ID: ev.ID, Sequence: ev.Sequence, ContentHash: ev.ContentHash}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s #%d %s\n", result.Topic, result.Sequence, result.ID)
		fmt.Fprintf(w, "  content_hash: %s\n", result.ContentHash)
	})
}

func readPayload(opts *AppendOptions, args []string, cmd *cobra.Command) ([]byte, error) {
	if opts.Payload != "" {
		if len(args) > 1 {
			return nil, fmt.Errorf("--payload and a payload file are mutually exclusive")
		}
		return []byte(opts.Payload), nil
	}
	if len(args) == 1 || args[1] == "-" {
		return io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxPayload))
	}
	return os.ReadFile(args[1])
}

// maxPayload matches the endpoint's request body limit.
const maxPayload = 1 << 20

func unknownTopic(topic string) error {
	return &store.StoreError{Code: store.ErrCodeUnknownTopic, Topic: topic, Message: "topic not in catalog"}
}
