package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/config"
	"github.com/roach88/conduit/internal/harness"
	"github.com/roach88/conduit/internal/schema"
	"github.com/roach88/conduit/internal/service"
	"github.com/roach88/conduit/internal/store"
)

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.DataDir != "" {
		cfg.DataPath = opts.DataDir
	}
	if opts.CatalogDir != "" {
		cfg.CatalogDir = opts.CatalogDir
	}
	if opts.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg, nil
}

// newLogger returns a text handler logger on the command's stderr.
func newLogger(cmd *cobra.Command, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadCatalog compiles the catalog in dir, or the embedded one when dir is
// empty.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

// openService loads configuration and the catalog and opens every topic
// under the data directory. The caller closes the service.
func openService(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*service.Service, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	cat, err := loadCatalog(cfg.CatalogDir)
	if err != nil {
		return nil, cfg, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	logger := newLogger(cmd, cfg.LogLevel)
	svc, err := service.Open(ctx, cfg.DataPath, cat,
		store.WithLogger(logger),
		store.WithMaxRetries(cfg.WriteRetries))
	if err != nil {
		return nil, cfg, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open data directory %s", cfg.DataPath), err)
	}
	logger.Debug("service ready", "data", cfg.DataPath, "topics", len(svc.Topics()))
	return svc, cfg, nil
}

// errorDetails names err with the same codes the HTTP endpoint uses and
// returns any structured detail worth printing.
func errorDetails(err error) (string, any) {
	var (
		ce *catalog.ConfigError
		ve *schema.ValidationError
	)
	switch {
	case errors.As(err, &ce):
		issue := ValidationIssue{Field: ce.Field}
		if ce.Pos.IsValid() {
			issue.File = ce.Pos.Filename()
			issue.Line = ce.Pos.Line()
		}
		return string(ce.Code), issue
	case errors.As(err, &ve):
		return "VALIDATION_FAILED", ve.Violations
	default:
		return harness.ErrorCode(err), nil
	}
}
