package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/config"
)

func TestServeLifecycle(t *testing.T) {
	for _, env := range []string{config.EnvPort, config.EnvCatalogDir, config.EnvRateLimit, config.EnvRateBurst, config.EnvLogLevel} {
		t.Setenv(env, "")
	}

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", DataDir: t.TempDir()},
		Ready:       ready,
	}
	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&opts.Port, "port", 0, "")
	require.NoError(t, cmd.Flags().Set("port", "0"))
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not become ready")
	}

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	base := "http://127.0.0.1:" + port

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "system_registered")

	resp, err = http.Post(base+"/system_registered/api", "application/json",
		strings.NewReader(`{"name":"billing","owner":"team-a"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeRejectsInvalidPort(t *testing.T) {
	_, err := executeCLI(t, "", "serve", "--port", "70000", "--data", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid port")
}
