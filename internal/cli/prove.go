package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/accumulator"
	"github.com/roach88/conduit/internal/store"
)

// ProveResult is an inclusion proof together with the local check of it.
type ProveResult struct {
	Topic    string                     `json:"topic"`
	ID       string                     `json:"id"`
	Proof    accumulator.InclusionProof `json:"proof"`
	Verified bool                       `json:"verified"`
}

// NewProveCommand creates the prove command.
func NewProveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove <topic> <id>",
		Short: "Print an inclusion proof for one event",
		Long: `Build the Merkle inclusion proof of an event against the topic's current
head and check it before printing.

Example:
  conduit prove advisory_raised 0190c6b2-7d1e-7b4a-9f0e-2c3d4e5f6a7b --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProve(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runProve(opts *RootOptions, topic, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, _, err := openService(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	proof, err := svc.Broker.Prove(cmd.Context(), topic, id)
	switch {
	case store.HasCode(err, store.ErrCodeUnknownTopic):
		return formatter.Fail(ExitCommandError, "prove failed", err)
	case err != nil:
		return formatter.Fail(ExitFailure, "prove failed", err)
	}

	if err := accumulator.VerifyInclusion(proof); err != nil {
		return formatter.Fail(ExitFailure, "proof does not verify", err)
	}

	result := ProveResult{Topic: topic, ID: id, Proof: proof, Verified: true}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: leaf %d of %d\n", topic, id, proof.LeafIndex, proof.TreeSize)
		fmt.Fprintf(w, "  content_hash: %s\n", proof.ContentHash)
		fmt.Fprintf(w, "  root: %s\n", proof.Root)
		for i, p := range proof.Path {
			fmt.Fprintf(w, "  path[%d]: %s\n", i, p)
		}
		fmt.Fprintf(w, "%s proof verified\n", markPass)
	})
}
