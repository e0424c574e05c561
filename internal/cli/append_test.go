package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendEvent appends payload to topic under dataDir and returns the result.
func appendEvent(t *testing.T, dataDir, topic, payload string) AppendResult {
	t.Helper()
	out, err := executeCLI(t, "", "append", topic, "--payload", payload, "--data", dataDir, "--format", "json")
	require.NoError(t, err, out)

	var result AppendResult
	resp := decodeResponse(t, out, &result)
	require.Equal(t, "ok", resp.Status)
	return result
}

func TestAppendFromFlag(t *testing.T) {
	dataDir := t.TempDir()

	first := appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)
	assert.Equal(t, "system_registered", first.Topic)
	assert.Equal(t, int64(1), first.Sequence)
	assert.NotEmpty(t, first.ID)
	assert.Len(t, first.ContentHash, 64)

	second := appendEvent(t, dataDir, "system_registered", `{"name":"search","owner":"team-b"}`)
	assert.Equal(t, int64(2), second.Sequence)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAppendFromFileAndStdin(t *testing.T) {
	dataDir := t.TempDir()
	file := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"billing","owner":"team-a"}`), 0o644))

	out, err := executeCLI(t, "", "append", "system_registered", file, "--data", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "system_registered #1 ")
	assert.Contains(t, out, "content_hash: ")

	out, err = executeCLI(t, `{"name":"search","owner":"team-b"}`, "append", "system_registered", "--data", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "system_registered #2 ")

	out, err = executeCLI(t, `{"name":"ledger","owner":"team-c"}`, "append", "system_registered", "-", "--data", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "system_registered #3 ")
}

func TestAppendErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     string
	}{
		{
			name:     "unknown topic",
			args:     []string{"append", "nope", "--payload", `{}`},
			exitCode: ExitCommandError,
			code:     "UNKNOWN_TOPIC",
		},
		{
			name:     "schema violation",
			args:     []string{"append", "system_registered", "--payload", `{"name":"billing"}`},
			exitCode: ExitFailure,
			code:     "VALIDATION_FAILED",
		},
		{
			name:     "malformed json",
			args:     []string{"append", "system_registered", "--payload", `{"name":`},
			exitCode: ExitCommandError,
			code:     "INTERNAL",
		},
		{
			name:     "payload flag and file",
			args:     []string{"append", "system_registered", "payload.json", "--payload", `{}`},
			exitCode: ExitCommandError,
			code:     "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--data", t.TempDir(), "--format", "json")
			out, err := executeCLI(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.True(t, Reported(err))

			resp := decodeResponse(t, out, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestAppendRejectedConsumesNoSequence(t *testing.T) {
	dataDir := t.TempDir()

	_, err := executeCLI(t, "", "append", "system_registered", "--payload", `{"owner":"team-a"}`, "--data", dataDir)
	require.Error(t, err)

	result := appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)
	assert.Equal(t, int64(1), result.Sequence)
}
