package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/dbenv"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
)

func newTestEnv(t *testing.T) *dbenv.Envelope {
	t.Helper()
	env, err := dbenv.Create(t.TempDir(), dbenv.Config{
		BufferMemory: 1 << 20,
		NumImporters: 1,
		SortWorkers:  1,
		Log:          logx.NewSilentLogger(),
	})
	if err != nil {
		t.Fatalf("dbenv.Create: %v", err)
	}
	t.Cleanup(func() {
		env.Flush()
		env.Close()
	})
	return env
}

func TestHealthzReturnsOK(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(logx.NewSilentLogger(), env)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected RequestID middleware to set X-Request-ID")
	}
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(logx.NewSilentLogger(), env)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString("{not json"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "InvalidRequest" {
		t.Fatalf("error field: got %v want InvalidRequest", body["error"])
	}
}

func TestQueryRejectsUnknownLevel(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(logx.NewSilentLogger(), env)

	wire := WireRequest{
		Token:    "t1",
		Roots:    []WireRootQuery{{FEN: "startpos"}},
		Levels:   []string{"robot"},
		Results:  []string{"white_win"},
		Fetching: map[string]WireFetchOptions{"all": {}},
	}
	buf, _ := json.Marshal(wire)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(buf))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatsReportsZeroedLevels(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(logx.NewSilentLogger(), env)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode stats body: %v", err)
	}
	for _, name := range []string{"human", "engine", "server"} {
		lvl, ok := body[name].(map[string]any)
		if !ok || lvl["Games"] != float64(0) || lvl["Positions"] != float64(0) {
			t.Fatalf("%s stats: got %v want zero games and positions", name, body[name])
		}
	}
}

func TestMergeRejectsGet(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(logx.NewSilentLogger(), env)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/merge", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
