package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/accumulator"
)

func TestProveEvent(t *testing.T) {
	dataDir := t.TempDir()
	var ids []string
	for _, name := range []string{"billing", "search", "ledger"} {
		ev := appendEvent(t, dataDir, "system_registered", `{"name":"`+name+`","owner":"team-a"}`)
		ids = append(ids, ev.ID)
	}

	out, err := executeCLI(t, "", "prove", "system_registered", ids[1], "--data", dataDir, "--format", "json")
	require.NoError(t, err, out)

	var result ProveResult
	decodeResponse(t, out, &result)
	assert.True(t, result.Verified)
	assert.Equal(t, ids[1], result.ID)
	assert.Equal(t, uint64(1), result.Proof.LeafIndex)
	assert.Equal(t, uint64(3), result.Proof.TreeSize)
	require.NoError(t, accumulator.VerifyInclusion(result.Proof))

	out, err = executeCLI(t, "", "trace", "system_registered", "--data", dataDir, "--format", "json")
	require.NoError(t, err)
	var trace TraceResult
	decodeResponse(t, out, &trace)
	assert.Equal(t, trace.Head.Root, result.Proof.Root)
}

func TestProveText(t *testing.T) {
	dataDir := t.TempDir()
	ev := appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)

	out, err := executeCLI(t, "", "prove", "system_registered", ev.ID, "--data", dataDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "system_registered "+ev.ID+": leaf 0 of 1\n"))
	assert.Contains(t, out, "content_hash: "+ev.ContentHash)
	assert.Contains(t, out, markPass+" proof verified")
}

func TestProveErrors(t *testing.T) {
	_, err := executeCLI(t, "", "prove", "nope", "some-id", "--data", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := executeCLI(t, "", "prove", "system_registered", "absent", "--data", t.TempDir(), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}
