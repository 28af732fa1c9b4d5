package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/render"
	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

type sessionsResponse struct {
	Sessions []store.Session `json:"sessions"`
}

type matchesResponse struct {
	Matches []store.NoteMatch `json:"matches"`
}

// storeError maps a store failure to an HTTP reply.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	observe.Logger(r.Context()).Error("sessions: store failed", "err", err)
	writeError(w, http.StatusInternalServerError, "session store failed")
}

// userID returns the required userId query parameter or writes a 400.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("userId"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return id, true
}

func nonNil(s []store.Session) []store.Session {
	if s == nil {
		return []store.Session{}
	}
	return s
}

// handleListSessions handles GET /sessions?userId=.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := s.cfg.Store.List(r.Context(), uid)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: nonNil(list)})
}

// handleListTrash handles GET /sessions/trash?userId=.
func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := s.cfg.Store.ListDeleted(r.Context(), uid)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: nonNil(list)})
}

// handleSearchSessions handles GET /sessions/search?userId=&q=&limit=&semantic=.
// Semantic search ranks individual nugget notes and needs an embeddings
// provider; otherwise sessions are matched by full text.
func (s *Server) handleSearchSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := store.DefaultSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if semantic, _ := strconv.ParseBool(q.Get("semantic")); semantic {
		if s.cfg.Indexer == nil {
			writeError(w, http.StatusNotImplemented, "semantic search is not configured")
			return
		}
		matches, err := s.cfg.Indexer.Search(r.Context(), uid, query, limit)
		if err != nil {
			observe.Logger(r.Context()).Error("sessions: semantic search failed", "err", err)
			writeError(w, http.StatusBadGateway, "semantic search failed")
			return
		}
		if matches == nil {
			matches = []store.NoteMatch{}
		}
		writeJSON(w, http.StatusOK, matchesResponse{Matches: matches})
		return
	}

	list, err := s.cfg.Store.Search(r.Context(), uid, query, limit)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: nonNil(list)})
}

// handleCreateSession handles POST /sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in store.NewSession
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	sess, err := s.cfg.Store.Create(r.Context(), in)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleGetSession handles GET /sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleUpdateSession handles PATCH /sessions/{id}. When notes change without
// a plain-text rendering, one is derived for search.
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var p store.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if p.Notes != nil && p.NotesPlainText == nil {
		p.NotesPlainText = store.Ptr(render.PlainText(*p.Notes))
	}

	ctx := r.Context()
	sess, err := s.cfg.Store.Update(ctx, r.PathValue("id"), p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if p.NuggetNotes != nil && s.cfg.Indexer != nil {
		s.cfg.Indexer.AfterSave(ctx, sess)
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleAppendSegment handles POST /sessions/{id}/segments.
func (s *Server) handleAppendSegment(w http.ResponseWriter, r *http.Request) {
	var seg lecture.Segment
	if err := decodeJSON(w, r, &seg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.cfg.Store.AppendSegment(r.Context(), r.PathValue("id"), seg)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession handles DELETE /sessions/{id}, which moves the session
// to the trash.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.SoftDelete(r.Context(), r.PathValue("id")); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreSession handles POST /sessions/{id}/restore.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.cfg.Store.Restore(ctx, id); err != nil {
		storeError(w, r, err)
		return
	}
	sess, err := s.cfg.Store.Get(ctx, id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handlePermanentDelete handles DELETE /sessions/{id}/permanent.
func (s *Server) handlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.PermanentDelete(r.Context(), r.PathValue("id")); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
