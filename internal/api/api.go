// Package api serves the ScribeCat HTTP endpoints: the annotation endpoints
// used by the live pipeline (/lectureContext, /nuggetNotes), full notes and
// Nugget chat, the sessions resource and the realtime transcription token.
//
// Every JSON error reply carries an "error" message and "success": false.
// Missing model configuration answers 500, malformed requests 400 and model
// failures 502.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/session"
	"github.com/MrWong99/scribecat/pkg/store"
)

// maxBodyBytes bounds request bodies. A full transcript of a long lecture is
// well below this.
const maxBodyBytes = 8 << 20

// errNoModel is reported when an endpoint needs an LLM that is not configured.
var errNoModel = errors.New("no LLM provider configured")

// Config holds the collaborators of a [Server]. Nil fields disable the
// endpoints that need them.
type Config struct {
	Extractor *nugget.Extractor
	Writer    *nugget.Writer
	NoteTaker *nugget.NoteTaker
	Chat      *nugget.Chat

	Store store.Store

	// Indexer enables semantic search and re-indexes nugget notes on update.
	Indexer *session.Indexer

	// Tokens mints realtime transcription tokens.
	Tokens TokenMinter

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server implements the HTTP endpoints. It is safe for concurrent use.
type Server struct {
	cfg     Config
	metrics *observe.Metrics
}

// New creates a Server.
func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, metrics: m}
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /lectureContext", s.handleLectureContext)
	mux.HandleFunc("POST /nuggetNotes", s.handleNuggetNotes)
	mux.HandleFunc("POST /generateNotes", s.handleGenerateNotes)
	mux.HandleFunc("POST /nuggetChat", s.handleNuggetChat)
	mux.HandleFunc("GET /realtimeToken", s.handleRealtimeToken)

	if s.cfg.Store == nil {
		return
	}
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/trash", s.handleListTrash)
	mux.HandleFunc("GET /sessions/search", s.handleSearchSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleUpdateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/restore", s.handleRestoreSession)
	mux.HandleFunc("POST /sessions/{id}/segments", s.handleAppendSegment)
	mux.HandleFunc("DELETE /sessions/{id}/permanent", s.handlePermanentDelete)
}

// Handler returns a mux serving all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// CORS wraps next with the cross-origin headers browser clients need and
// answers preflight requests with 204.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorBody is the reply of endpoints without a richer failure shape.
type errorBody struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed","success":false}`, http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
