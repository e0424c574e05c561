package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/config"
	"github.com/roach88/conduit/internal/schema"
)

// ValidationResult holds the compiled catalog summary.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Source string         `json:"source"`
	Topics []TopicSummary `json:"topics"`
}

// TopicSummary describes one compiled topic.
type TopicSummary struct {
	Name       string             `json:"name"`
	Schema     string             `json:"schema"`
	IndexPaths []string           `json:"index_paths"`
	Operations []OperationSummary `json:"operations"`
}

// OperationSummary describes one compiled operation.
type OperationSummary struct {
	Name        string   `json:"name"`
	Cardinality string   `json:"cardinality"`
	Params      []string `json:"params"`
}

// ValidationIssue is the error detail of a rejected catalog.
type ValidationIssue struct {
	Field string `json:"field,omitempty"`
	File  string `json:"file,omitempty"`
	Line  int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog-dir]",
		Short: "Validate a topic catalog",
		Long: `Compile a CUE topic catalog and every JSON Schema it references, without
opening any data.

With no argument the catalog from --catalog, $CONDUIT_CATALOG_DIR or the
embedded catalog is validated.

Exit codes:
  0 - Catalog is valid
  1 - Catalog is invalid
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if dir == "" {
		dir = opts.CatalogDir
	}
	if dir == "" {
		dir = os.Getenv(config.EnvCatalogDir)
	}
	source := dir
	if source == "" {
		source = "embedded"
	}
	formatter.VerboseLog("Validating catalog: %s", source)

	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return formatter.Fail(ExitCommandError, "failed to validate catalog", fmt.Errorf("catalog directory not found: %s", dir))
		}
	}

	cat, err := loadCatalog(dir)
	if err != nil {
		return outputValidateError(formatter, err)
	}
	if _, err := schema.New(cat); err != nil {
		return outputValidateError(formatter, err)
	}

	result := ValidationResult{Valid: true, Source: source, Topics: summarize(cat)}
	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s Catalog %s is valid: %d topic(s)\n", markPass, source, len(result.Topics))
		if !opts.Verbose {
			return
		}
		for _, t := range result.Topics {
			fmt.Fprintf(w, "  %s (%s)\n", t.Name, t.Schema)
			fmt.Fprintf(w, "    index: %v\n", t.IndexPaths)
			for _, op := range t.Operations {
				fmt.Fprintf(w, "    %s [%s] %v\n", op.Name, op.Cardinality, op.Params)
			}
		}
	})
}

func summarize(cat *catalog.Catalog) []TopicSummary {
	out := make([]TopicSummary, len(cat.Topics))
	for i := range cat.Topics {
		t := &cat.Topics[i]
		ops := make([]OperationSummary, len(t.Operations))
		for j, op := range t.Operations {
			params := op.Params
			if params == nil {
				params = []string{}
			}
			ops[j] = OperationSummary{Name: op.Name, Cardinality: op.Cardinality.String(), Params: params}
		}
		out[i] = TopicSummary{Name: t.Name, Schema: t.SchemaFile, IndexPaths: t.IndexPaths(), Operations: ops}
	}
	return out
}

// outputValidateError reports a rejected catalog. Configuration errors are
// a validation failure (exit 1); anything else is a command error.
func outputValidateError(formatter *OutputFormatter, err error) error {
	var ce *catalog.ConfigError
	if !errors.As(err, &ce) {
		return formatter.Fail(ExitCommandError, "failed to validate catalog", err)
	}
	return formatter.Fail(ExitFailure, "catalog is invalid", err)
}
