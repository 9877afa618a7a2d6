// Package httpapi serves the query wire format over HTTP and exposes
// operational endpoints (health, stats, merge): a single ServeMux behind
// CORS(RequestID(AccessLog(log, mux))), JSON responses via a writeJSON
// helper, and pprof debug endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/sarona-RD/chess-pos-db/internal/dbenv"
)

// Handler serves requests against one open database envelope.
type Handler struct {
	env *dbenv.Envelope
	log zerolog.Logger
}

// NewRouter wires Handler's endpoints behind the middleware chain.
func NewRouter(log zerolog.Logger, env *dbenv.Envelope) http.Handler {
	h := &Handler{env: env, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/query", http.HandlerFunc(h.query))
	mux.Handle("/v1/stats", http.HandlerFunc(h.stats))
	mux.Handle("/v1/merge", http.HandlerFunc(h.merge))

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Continuation-heavy query responses repeat level/result labels for
	// every child; gzip wins big there and costs nothing on the tiny
	// operational endpoints.
	return CORS(RequestID(AccessLog(log, gzhttp.GzipHandler(mux))))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.env.Stats()
	writeJSON(w, map[string]any{
		"human":  stats[0],
		"engine": stats[1],
		"server": stats[2],
		"path":   h.env.Path(),
	})
}

// query handles POST /v1/query: decode a WireRequest body, run it against
// the envelope's query executor, and return the WireResponse. Request
// errors are returned in-band as {error: "InvalidRequest"}.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wireReq WireRequest
	if err := json.NewDecoder(r.Body).Decode(&wireReq); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "InvalidRequest", "detail": err.Error()})
		return
	}

	req, err := requestFromWire(wireReq)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "InvalidRequest", "detail": err.Error()})
		return
	}

	resp, err := h.env.Query(req)
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("query failed")
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "InvalidRequest", "detail": err.Error()})
		return
	}

	writeJSON(w, responseToWire(resp))
}

// merge triggers a synchronous MergeAll on the envelope's partition. Large
// databases will hold the request open for the whole merge; run it from
// posdb-merge instead when that matters.
func (h *Handler) merge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.env.MergeAll(nil); err != nil {
		h.log.Error().Err(err).Msg("merge failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "merged"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
