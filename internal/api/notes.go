package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/render"
	"github.com/MrWong99/scribecat/pkg/provider/llm"
)

type generateNotesRequest struct {
	Transcript string `json:"transcript"`
}

type generateNotesResponse struct {
	Notes     string `json:"notes"`
	HTML      string `json:"html"`
	PlainText string `json:"plainText"`
	Success   bool   `json:"success"`
}

// handleGenerateNotes handles POST /generateNotes.
func (s *Server) handleGenerateNotes(w http.ResponseWriter, r *http.Request) {
	if s.cfg.NoteTaker == nil {
		writeError(w, http.StatusInternalServerError, errNoModel.Error())
		return
	}
	var req generateNotesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	start := time.Now()
	md, err := s.cfg.NoteTaker.Take(ctx, req.Transcript)
	s.metrics.RecordLLMCall(ctx, "full_notes", time.Since(start))
	switch {
	case errors.Is(err, nugget.ErrEmptyTranscript):
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	case err != nil:
		observe.Logger(ctx).Error("generate notes: model call failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	out, err := render.Markdown(md)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateNotesResponse{
		Notes:     md,
		HTML:      out.HTML,
		PlainText: out.PlainText,
		Success:   true,
	})
}

type chatRequest struct {
	Message             string            `json:"message"`
	ConversationHistory []nugget.ChatTurn `json:"conversationHistory"`
	Transcript          string            `json:"transcript"`
	Notes               string            `json:"notes"`

	// Stream selects a text/event-stream reply.
	Stream bool `json:"stream"`
}

type chatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

// handleNuggetChat handles POST /nuggetChat. With "stream": true, or an
// Accept header of text/event-stream, the answer is sent as server-sent
// events: one "data" event per fragment, then "done" or "error".
func (s *Server) handleNuggetChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		writeError(w, http.StatusInternalServerError, errNoModel.Error())
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creq := nugget.ChatRequest{
		Message:    req.Message,
		History:    req.ConversationHistory,
		Transcript: req.Transcript,
		Notes:      req.Notes,
	}

	if req.Stream || r.Header.Get("Accept") == "text/event-stream" {
		s.streamChat(w, r, creq)
		return
	}

	ctx := r.Context()
	start := time.Now()
	answer, err := s.cfg.Chat.Ask(ctx, creq)
	s.metrics.RecordLLMCall(ctx, "chat", time.Since(start))
	switch {
	case errors.Is(err, nugget.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		observe.Logger(ctx).Error("nugget chat: model call failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer, Success: true})
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, creq nugget.ChatRequest) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	start := time.Now()
	ch, err := s.cfg.Chat.Stream(ctx, creq)
	switch {
	case errors.Is(err, nugget.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		observe.Logger(ctx).Error("nugget chat: stream failed to start", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() { s.metrics.RecordLLMCall(ctx, "chat", time.Since(start)) }()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for c := range ch {
		if c.FinishReason == llm.FinishReasonError {
			observe.Logger(ctx).Error("nugget chat: stream failed", "err", c.Text)
			writeEvent(w, "error", map[string]string{"error": c.Text})
			flusher.Flush()
			for range ch {
			}
			return
		}
		if c.Text == "" {
			continue
		}
		writeEvent(w, "", map[string]string{"text": c.Text})
		flusher.Flush()
	}
	if ctx.Err() != nil {
		return
	}
	writeEvent(w, "done", map[string]bool{"success": true})
	flusher.Flush()
}

// writeEvent writes one server-sent event. An empty name sends an unnamed
// message event.
func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if name != "" {
		fmt.Fprintf(w, "event: %s\n", name)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
