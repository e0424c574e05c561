package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conduit/internal/endpoint"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int

	// Ready, when set, receives the bound listener address once the server
	// accepts connections (for testing).
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP endpoint",
		Long: `Open every catalog topic and serve the HTTP endpoint until interrupted.

Configuration comes from the environment (FUNCTIONS_CUSTOMHANDLER_PORT,
CONDUIT_DATA_PATH, CONDUIT_CATALOG_DIR, CONDUIT_RATE_LIMIT, CONDUIT_RATE_BURST,
CONDUIT_LOG_LEVEL); flags override it.

Example:
  conduit serve --data ./data --port 8080
  conduit serve --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (default $FUNCTIONS_CUSTOMHANDLER_PORT or 3000)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	svc, cfg, err := openService(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.LogLevel)
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Error("error closing broker", "error", closeErr)
		}
	}()

	if cmd.Flags().Changed("port") {
		if opts.Port < 0 || opts.Port > 65535 {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid port %d", opts.Port))
		}
		cfg.Port = opts.Port
	}

	handler := endpoint.New(svc,
		endpoint.WithLogger(logger),
		endpoint.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	logger.Info("listening", "addr", ln.Addr().String(), "data", cfg.DataPath, "topics", len(svc.Topics()))
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
