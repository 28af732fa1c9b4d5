package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/pkg/lecture"
)

// handleLectureContext handles POST /lectureContext.
func (s *Server) handleLectureContext(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		writeJSON(w, status, lecture.ContextResponse{Context: lecture.EmptyContext(), Error: msg})
	}
	if s.cfg.Extractor == nil {
		fail(http.StatusInternalServerError, errNoModel.Error())
		return
	}

	var req lecture.ContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	previous := lecture.EmptyContext()
	if req.PreviousContext != nil {
		previous = req.PreviousContext.Clamp()
	}

	ctx := r.Context()
	start := time.Now()
	lc, err := s.cfg.Extractor.Extract(ctx, req.Transcript, previous)
	s.metrics.RecordLLMCall(ctx, "context", time.Since(start))
	if err != nil {
		log := observe.Logger(ctx)
		if errors.Is(err, nugget.ErrMalformedContext) {
			log.Warn("lecture context: unusable model reply", "err", err)
		} else {
			log.Error("lecture context: model call failed", "err", err)
		}
		fail(http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lecture.ContextResponse{Context: lc, Success: true})
}

// handleNuggetNotes handles POST /nuggetNotes.
func (s *Server) handleNuggetNotes(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		writeJSON(w, status, lecture.NotesResponse{Notes: []lecture.Note{}, Error: msg})
	}
	if s.cfg.Writer == nil {
		fail(http.StatusInternalServerError, errNoModel.Error())
		return
	}

	var req lecture.NotesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeJSON(w, http.StatusOK, lecture.NotesResponse{Notes: []lecture.Note{}, Success: true})
		return
	}
	lc := lecture.EmptyContext()
	if req.Context != nil {
		lc = req.Context.Clamp()
	}

	ctx := r.Context()
	start := time.Now()
	notes, err := s.cfg.Writer.Write(ctx, req.Transcript, lc, req.RecordingTimeSeconds)
	s.metrics.RecordLLMCall(ctx, "notes", time.Since(start))
	if err != nil {
		observe.Logger(ctx).Error("nugget notes: model call failed", "err", err)
		fail(http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lecture.NotesResponse{Notes: notes, Success: true})
}
