package cli

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tamper rewrites a stored payload behind the broker's back.
func tamper(t *testing.T, dataDir, topic string, seq int, payload string) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(dataDir, topic+".db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`DROP TRIGGER IF EXISTS events_no_update`)
	require.NoError(t, err)
	res, err := db.Exec(`UPDATE events SET payload = ? WHERE seq = ?`, payload, seq)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestVerifyAllTopicsClean(t *testing.T) {
	dataDir := t.TempDir()
	appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)

	out, err := executeCLI(t, "", "verify", "--data", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Verify Summary: 11 topic(s)")
	assert.Contains(t, out, markPass+" system_registered: 1 events")
	assert.Contains(t, out, markPass+" All topics verified")
}

func TestVerifyNamedTopicsJSON(t *testing.T) {
	dataDir := t.TempDir()
	appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)
	appendEvent(t, dataDir, "system_registered", `{"name":"search","owner":"team-b"}`)

	out, err := executeCLI(t, "", "verify", "system_registered", "advisory_raised", "--data", dataDir, "--format", "json")
	require.NoError(t, err)

	var result VerifyResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.AllOK)
	assert.Equal(t, 2, result.TotalTopics)
	require.Len(t, result.Topics, 2)
	assert.Equal(t, "system_registered", result.Topics[0].Topic)
	assert.Equal(t, int64(2), result.Topics[0].Events)
	assert.Equal(t, result.Topics[0].HeadRoot, result.Topics[0].Root)
	assert.Equal(t, int64(0), result.Topics[1].Events)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	dataDir := t.TempDir()
	appendEvent(t, dataDir, "system_registered", `{"name":"billing","owner":"team-a"}`)
	appendEvent(t, dataDir, "system_registered", `{"name":"search","owner":"team-b"}`)
	tamper(t, dataDir, "system_registered", 2, `{"name":"evil","owner":"team-b"}`)

	out, err := executeCLI(t, "", "verify", "system_registered", "--data", dataDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Contains(t, out, markFail+" system_registered")
	assert.Contains(t, out, "Divergence at sequence 2")

	out, err = executeCLI(t, "", "verify", "system_registered", "--data", dataDir, "--format", "json")
	require.Error(t, err)

	var result VerifyResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTEGRITY_FAILED", resp.Error.Code)
	assert.False(t, result.AllOK)
	require.Len(t, result.Topics, 1)
	assert.Equal(t, int64(2), result.Topics[0].FirstDivergence)
}

func TestVerifyUnknownTopic(t *testing.T) {
	out, err := executeCLI(t, "", "verify", "nope", "--data", t.TempDir(), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_TOPIC", resp.Error.Code)
}
