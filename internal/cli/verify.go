package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/store"
)

const (
	markPass = "\u2713"
	markFail = "\u2717"
)

// VerifyResult holds the integrity reports of every checked topic.
type VerifyResult struct {
	Topics      []store.IntegrityReport `json:"topics"`
	TotalTopics int                     `json:"total_topics"`
	AllOK       bool                    `json:"all_ok"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [topic...]",
		Short: "Recompute and check topic integrity",
		Long: `Re-read every event of each topic in sequence order, recompute content
hashes and the accumulator root, and compare them with the persisted head.

With no arguments every catalog topic is verified.

Exit codes:
  0 - All topics verified clean
  1 - Integrity divergence detected
  2 - Command error (unknown topic, unreadable data directory, etc.)

Examples:
  conduit verify
  conduit verify system_registered advisory_raised --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runVerify(opts *RootOptions, topics []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, _, err := openService(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(topics) == 0 {
		topics = svc.Topics()
	}
	for _, t := range topics {
		if _, ok := svc.Repository(t); !ok {
			return formatter.Fail(ExitCommandError, "verify failed", unknownTopic(t))
		}
	}

	result := VerifyResult{
		Topics:      make([]store.IntegrityReport, 0, len(topics)),
		TotalTopics: len(topics),
		AllOK:       true,
	}
	for _, t := range topics {
		formatter.VerboseLog("verifying %s", t)
		report, err := svc.Broker.Verify(cmd.Context(), t)
		if err != nil {
			return formatter.Fail(ExitCommandError, fmt.Sprintf("failed to verify %s", t), err)
		}
		result.Topics = append(result.Topics, report)
		if !report.OK {
			result.AllOK = false
		}
	}

	if opts.Format == "json" {
		return outputVerifyJSON(cmd, result)
	}
	return outputVerifyText(cmd, result, opts.Verbose)
}

// outputVerifyJSON outputs the verify result as JSON.
func outputVerifyJSON(cmd *cobra.Command, result VerifyResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllOK {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "INTEGRITY_FAILED",
			Message: "integrity verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllOK {
		// Divergence = exit code 1
		return reportedFailure("integrity verification failed")
	}
	return nil
}

// outputVerifyText outputs the verify result as text.
func outputVerifyText(cmd *cobra.Command, result VerifyResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Verify Summary: %d topic(s)\n", result.TotalTopics)
	fmt.Fprintln(w)

	for _, r := range result.Topics {
		status := markPass
		if !r.OK {
			status = markFail
		}
		fmt.Fprintf(w, "%s %s: %d events\n", status, r.Topic, r.Events)
		if verbose || !r.OK {
			fmt.Fprintf(w, "  Head: size %d, root %s\n", r.HeadSize, r.HeadRoot)
			fmt.Fprintf(w, "  Recomputed root: %s\n", r.Root)
		}
		if !r.OK {
			fmt.Fprintf(w, "  Divergence at sequence %d: %s\n", r.FirstDivergence, r.Reason)
		}
	}
	fmt.Fprintln(w)

	if result.AllOK {
		fmt.Fprintf(w, "%s All topics verified\n", markPass)
		return nil
	}

	fmt.Fprintf(w, "%s Integrity verification failed\n", markFail)
	return reportedFailure("integrity verification failed")
}

// reportedFailure is an ExitFailure whose details were already printed.
func reportedFailure(message string) error {
	err := NewExitError(ExitFailure, message)
	err.reported = true
	return err
}
