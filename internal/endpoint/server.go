package endpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/roach88/conduit/internal/ir"
	"github.com/roach88/conduit/internal/search"
	"github.com/roach88/conduit/internal/service"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Option configures the handler.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	limiter *RateLimiter
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRateLimit enables per-client rate limiting. rps 0 leaves it off.
func WithRateLimit(rps, burst int) Option {
	return func(c *config) {
		if rps > 0 {
			c.limiter = NewRateLimiter(rps, burst)
		}
	}
}

// New returns the HTTP handler for every topic of svc.
func New(svc *service.Service, opts ...Option) http.Handler {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "topics": svc.Topics()})
	})
	for _, name := range svc.Topics() {
		t := &topicHandler{topic: name, svc: svc, logger: c.logger}
		mux.HandleFunc("POST /"+name+"/graph", t.graph)
		mux.HandleFunc("POST /"+name+"/api", t.create)
		mux.HandleFunc("GET /"+name+"/api", t.list)
		mux.HandleFunc("GET /"+name+"/api/{id}", t.get)
		mux.HandleFunc("GET /"+name+"/api/{id}/proof", t.proof)
		mux.HandleFunc("GET /"+name+"/integrity", t.integrity)
	}

	var h http.Handler = mux
	if c.limiter != nil {
		h = c.limiter.Middleware(h)
	}
	return logRequests(c.logger, h)
}

// topicHandler serves one topic. Every topic uses the same code.
type topicHandler struct {
	topic  string
	svc    *service.Service
	logger *slog.Logger
}

// graphRequest is the GraphQL request envelope.
type graphRequest struct {
	Query         string          `json:"query,omitempty"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables,omitempty"`
}

type graphError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (t *topicHandler) graph(w http.ResponseWriter, r *http.Request) {
	req, args, err := decodeGraphRequest(w, r)
	if err != nil {
		t.graphFail(w, err)
		return
	}

	res, err := t.svc.Engine.Execute(r.Context(), t.topic, req.OperationName, args)
	if err != nil {
		t.graphFail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{req.OperationName: resultValue(res)},
	})
}

func decodeGraphRequest(w http.ResponseWriter, r *http.Request) (graphRequest, ir.IRObject, error) {
	var req graphRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return req, nil, &requestError{msg: "read body", err: err}
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, nil, &requestError{msg: "invalid json", err: err}
	}
	if req.OperationName == "" {
		return req, nil, &requestError{msg: "operationName is required"}
	}
	args := ir.IRObject{}
	if len(req.Variables) > 0 && string(req.Variables) != "null" {
		args, err = ir.ParseObject(req.Variables)
		if err != nil {
			return req, nil, &requestError{msg: "invalid variables", err: err}
		}
	}
	return req, args, nil
}

func (t *topicHandler) graphFail(w http.ResponseWriter, err error) {
	status, d := classify(err)
	t.logFailure(status, err)
	writeJSON(w, status, map[string]any{
		"errors": []graphError{{Message: d.Message, Extensions: map[string]any{"code": d.Code}}},
	})
}

// resultValue renders a singleton as the event or null, a vector as a list.
func resultValue(res search.Result) any {
	if res.Cardinality == ir.Singleton {
		if res.Event == nil {
			return nil
		}
		return res.Event
	}
	if res.Events == nil {
		return []ir.Event{}
	}
	return res.Events
}

func (t *topicHandler) create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		t.fail(w, &requestError{msg: "read body", err: err})
		return
	}
	payload, err := ir.ParseObject(body)
	if err != nil {
		t.fail(w, &requestError{msg: "payload must be a JSON object with integral numbers", err: err})
		return
	}

	repo, _ := t.svc.Repository(t.topic)
	ev, err := repo.Append(r.Context(), payload)
	if err != nil {
		t.fail(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/%s/api/%s", t.topic, ev.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           ev.ID,
		"sequence":     ev.Sequence,
		"content_hash": ev.ContentHash,
	})
}

func (t *topicHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			t.fail(w, &requestError{msg: fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}
	repo, _ := t.svc.Repository(t.topic)
	events, err := repo.List(r.Context(), limit)
	if err != nil {
		t.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

func (t *topicHandler) get(w http.ResponseWriter, r *http.Request) {
	repo, _ := t.svc.Repository(t.topic)
	ev, err := repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		t.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (t *topicHandler) proof(w http.ResponseWriter, r *http.Request) {
	p, err := t.svc.Broker.Prove(r.Context(), t.topic, r.PathValue("id"))
	if err != nil {
		t.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (t *topicHandler) integrity(w http.ResponseWriter, r *http.Request) {
	report, err := t.svc.Broker.Verify(r.Context(), t.topic)
	if err != nil {
		t.fail(w, err)
		return
	}
	status := http.StatusOK
	if !report.OK {
		status = http.StatusConflict
		t.logger.Error("integrity check failed",
			"topic", t.topic,
			"first_divergence", report.FirstDivergence,
			"reason", report.Reason,
		)
	}
	writeJSON(w, status, report)
}

func (t *topicHandler) fail(w http.ResponseWriter, err error) {
	status, d := classify(err)
	t.logFailure(status, err)
	writeJSON(w, status, errorBody{Error: d})
}

func (t *topicHandler) logFailure(status int, err error) {
	if status >= http.StatusInternalServerError {
		t.logger.Error("request failed", "topic", t.topic, "status", status, "error", err)
		return
	}
	t.logger.Debug("request rejected", "topic", t.topic, "status", status, "error", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
