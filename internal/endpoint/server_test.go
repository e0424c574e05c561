package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conduit/internal/accumulator"
	"github.com/roach88/conduit/internal/catalog"
	"github.com/roach88/conduit/internal/service"
	"github.com/roach88/conduit/internal/store"
	"github.com/roach88/conduit/internal/testutil"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc, err := service.Open(context.Background(), t.TempDir(), cat,
		store.WithIDGenerator(testutil.NewSequentialIDs("event")),
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	srv := httptest.NewServer(New(svc, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	return e["code"].(string)
}

func graphErrorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "missing errors: %v", body)
	require.NotEmpty(t, errs)
	ext := errs[0].(map[string]any)["extensions"].(map[string]any)
	return ext["code"].(string)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Len(t, body["topics"], 11)
}

func TestRecordPath(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/system_registered/api", `{"name":"billing","owner":"team-a"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "event-0001", body["id"])
	assert.Equal(t, float64(1), body["sequence"])

	status, body = do(t, srv, http.MethodGet, "/system_registered/api/event-0001", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "event-0001", body["id"])
	assert.Equal(t, "system_registered", body["topic"])
	assert.Equal(t, map[string]any{"name": "billing", "owner": "team-a"}, body["payload"])

	status, body = do(t, srv, http.MethodGet, "/system_registered/api/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codeNotFound, errorCode(t, body))
}

func TestRecordPathRejects(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/system_registered/api", `{"name":"billing"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeValidation, errorCode(t, body))
	assert.NotEmpty(t, body["error"].(map[string]any)["details"])

	status, body = do(t, srv, http.MethodPost, "/system_registered/api", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeMalformedRequest, errorCode(t, body))

	status, body = do(t, srv, http.MethodPost, "/advisory_raised/api",
		`{"targetId":"sys-1","severity":"low","title":"t","cvss":7.5}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeMalformedRequest, errorCode(t, body))

	status, body = do(t, srv, http.MethodGet, "/system_registered/api", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"], "rejected writes store nothing")
}

func TestOversizedBodyIsRejected(t *testing.T) {
	srv := newTestServer(t)
	huge := strings.Repeat("x", maxBody)

	status, body := do(t, srv, http.MethodPost, "/system_registered/api", `{"name":"`+huge+`","owner":"team-a"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, codeTooLarge, errorCode(t, body))

	status, body = do(t, srv, http.MethodPost, "/system_registered/graph",
		`{"operationName":"getSystemRegisteredByName","variables":{"name":"`+huge+`"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, codeTooLarge, graphErrorCode(t, body))

	status, body = do(t, srv, http.MethodGet, "/system_registered/api", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["items"])
}

func TestListWithLimit(t *testing.T) {
	srv := newTestServer(t)
	for _, n := range []string{"a", "b", "c"} {
		status, _ := do(t, srv, http.MethodPost, "/system_registered/api", `{"name":"`+n+`","owner":"o"}`)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := do(t, srv, http.MethodGet, "/system_registered/api?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "event-0001", items[0].(map[string]any)["id"])

	status, body = do(t, srv, http.MethodGet, "/system_registered/api?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeMalformedRequest, errorCode(t, body))
}

func TestGraphPath(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{
		`{"name":"billing","owner":"team-a"}`,
		`{"name":"search","owner":"team-b"}`,
		`{"name":"billing","owner":"team-c"}`,
	} {
		status, _ := do(t, srv, http.MethodPost, "/system_registered/api", body)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := do(t, srv, http.MethodPost, "/system_registered/graph",
		`{"operationName":"getSystemRegistered","variables":{"id":"event-0002"}}`)
	require.Equal(t, http.StatusOK, status, body)
	got := body["data"].(map[string]any)["getSystemRegistered"].(map[string]any)
	assert.Equal(t, "event-0002", got["id"])

	status, body = do(t, srv, http.MethodPost, "/system_registered/graph",
		`{"operationName":"getSystemRegistered","variables":{"id":"42"}}`)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Contains(t, data, "getSystemRegistered")
	assert.Nil(t, data["getSystemRegistered"])

	status, body = do(t, srv, http.MethodPost, "/system_registered/graph",
		`{"query":"{ getSystemRegisteredByName(name: $name) { id } }","operationName":"getSystemRegisteredByName","variables":{"name":"billing"}}`)
	require.Equal(t, http.StatusOK, status)
	list := body["data"].(map[string]any)["getSystemRegisteredByName"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "event-0001", list[0].(map[string]any)["id"])
	assert.Equal(t, "event-0003", list[1].(map[string]any)["id"])

	status, body = do(t, srv, http.MethodPost, "/advisory_raised/graph",
		`{"operationName":"getAdvisoryRaisedEvents"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["data"].(map[string]any)["getAdvisoryRaisedEvents"])
}

func TestGraphPathErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing argument", "/system_registered/graph", `{"operationName":"getSystemRegisteredByOwner","variables":{}}`, http.StatusBadRequest, "MISSING_ARGUMENT"},
		{"unknown operation", "/system_registered/graph", `{"operationName":"getAdvisoryRaised","variables":{"id":"x"}}`, http.StatusBadRequest, "UNKNOWN_OPERATION"},
		{"no operation name", "/system_registered/graph", `{"variables":{}}`, http.StatusBadRequest, codeMalformedRequest},
		{"bad json", "/system_registered/graph", `{`, http.StatusBadRequest, codeMalformedRequest},
		{"non-string id", "/system_registered/graph", `{"operationName":"getSystemRegistered","variables":{"id":7}}`, http.StatusUnprocessableEntity, "INVALID_VALUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, graphErrorCode(t, body))
		})
	}
}

func TestProofAndIntegrity(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 5; i++ {
		status, _ := do(t, srv, http.MethodPost, "/annotation_added/api", `{"targetId":"sys-1","author":"ops","body":"note"}`)
		require.Equal(t, http.StatusCreated, status)
	}

	resp, err := srv.Client().Get(srv.URL + "/annotation_added/api/event-0003/proof")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p accumulator.InclusionProof
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, uint64(2), p.LeafIndex)
	assert.Equal(t, uint64(5), p.TreeSize)
	assert.NoError(t, accumulator.VerifyInclusion(p))

	status, body := do(t, srv, http.MethodGet, "/annotation_added/integrity", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, p.Root, body["root"])

	status, _ = do(t, srv, http.MethodGet, "/annotation_added/api/missing/proof", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(1, 1))

	status, _ := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/nope/api")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
