package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/scribecat/internal/annotate"
	"github.com/MrWong99/scribecat/internal/session"
	"github.com/MrWong99/scribecat/internal/transcript"
	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/provider/stt"
	"github.com/MrWong99/scribecat/pkg/store"
)

// control is an inbound JSON frame.
type control struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Enabled *bool  `json:"enabled"`
}

// Outbound events.
type (
	segmentEvent struct {
		Type        string                  `json:"type"`
		Segment     lecture.Segment         `json:"segment"`
		Corrections []transcript.Correction `json:"corrections,omitempty"`
	}
	contextEvent struct {
		Type    string          `json:"type"`
		Context lecture.Context `json:"context"`
	}
	notesEvent struct {
		Type  string         `json:"type"`
		Notes []lecture.Note `json:"notes"`
	}
	stateEvent struct {
		Type      string `json:"type"`
		State     string `json:"state"`
		Enabled   bool   `json:"enabled"`
		SessionID string `json:"sessionId,omitempty"`
	}
	errorEvent struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
)

// errAnnotationOff is returned by the stand-in annotators of a handler
// without a model.
var errAnnotationOff = errors.New("live: annotation is not configured")

type disabled struct{}

func (disabled) Refresh(context.Context, string, lecture.Context) (lecture.Context, error) {
	return lecture.Context{}, errAnnotationOff
}

func (disabled) Generate(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
	return nil, errAnnotationOff
}

// conn is one client connection. Control frames are handled one at a time
// on the read loop.
type conn struct {
	h         *Handler
	ws        *websocket.Conn
	ctx       context.Context
	log       *slog.Logger
	orch      *annotate.Orchestrator
	annotated bool

	mu        sync.Mutex
	rec       *recording
	lastCtx   lecture.Context
	lastNotes []lecture.Note
}

// recording is the state of one start..stop span.
type recording struct {
	id        string
	startedAt time.Time
	stt       stt.SessionHandle
	audio     *wavFile
	saver     *session.Recorder

	// segments is owned by the consume goroutine until consumed is closed.
	segments []lecture.Segment

	// chunks holds the latest cumulative transcript for the orchestrator.
	chunks    chan string
	consumed  chan struct{}
	processed chan struct{}

	audioFailed bool
}

func (c *conn) run() error {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			c.audio(data)
		case websocket.MessageText:
			c.control(data)
		}
	}
}

func (c *conn) control(data []byte) {
	var msg control
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid control frame: " + err.Error())
		return
	}
	switch msg.Type {
	case "start":
		c.start(msg.UserID, msg.Title)
	case "stop":
		c.stop(c.ctx)
	case "clear":
		c.orch.ClearNotes()
	case "enable":
		if msg.Enabled == nil {
			c.sendError("enable requires enabled")
			return
		}
		if *msg.Enabled && !c.annotated {
			c.sendError(errAnnotationOff.Error())
			return
		}
		c.orch.SetEnabled(*msg.Enabled)
		c.sendState()
	default:
		c.sendError(fmt.Sprintf("unknown control type %q", msg.Type))
	}
}

func (c *conn) current() *recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

func (c *conn) start(userID, title string) {
	if c.current() != nil {
		c.sendError(annotate.ErrAlreadyRecording.Error())
		return
	}
	cfg := &c.h.cfg
	if cfg.STT == nil {
		c.sendError("no transcription provider configured")
		return
	}

	// The transcription session outlives a dropped client so that stop can
	// still collect the last turn.
	sttSess, err := cfg.STT.StartStream(context.WithoutCancel(c.ctx), stt.StreamConfig{
		SampleRate: cfg.SampleRate,
		Language:   cfg.Language,
		Keyterms:   c.orch.Context().Terms(),
	})
	if err != nil {
		c.log.Error("live: start transcription failed", "err", err)
		c.sendError("start transcription: " + err.Error())
		return
	}

	rec := &recording{
		id:        store.NewID(),
		startedAt: time.Now(),
		stt:       sttSess,
		chunks:    make(chan string, 1),
		consumed:  make(chan struct{}),
		processed: make(chan struct{}),
	}
	if cfg.Store != nil {
		sess, err := cfg.Store.Create(c.ctx, store.NewSession{UserID: userID, Title: title})
		if err != nil {
			_ = sttSess.Close()
			c.log.Error("live: create session failed", "err", err)
			c.sendError("create session: " + err.Error())
			return
		}
		rec.id = sess.ID
		rec.saver = session.NewRecorder(session.RecorderConfig{
			Store:     cfg.Store,
			SessionID: sess.ID,
			Delay:     cfg.SaveDelay,
			AfterSave: cfg.AfterSave,
		})
	}
	if cfg.RecordingsDir != "" {
		path := filepath.Join(cfg.RecordingsDir, rec.id+".wav")
		if rec.audio, err = createWAV(path, cfg.SampleRate); err != nil {
			c.log.Warn("live: audio file unavailable", "err", err)
			c.sendError(err.Error())
		} else if rec.saver != nil {
			rec.saver.Record(store.Patch{AudioFilePath: &path})
		}
	}

	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()

	if err := c.orch.Start(); err != nil {
		c.log.Warn("live: orchestrator start", "err", err)
	}
	c.h.metrics.ActiveRecordings.Add(c.ctx, 1)
	c.log.Info("live: recording started", "session_id", rec.id, "user_id", userID)

	go c.consume(rec)
	go c.process(rec)
	c.sendState()
}

// stop ends the running recording, if any: the transcription is drained, the
// last note request runs, and everything is saved.
func (c *conn) stop(ctx context.Context) {
	rec := c.current()
	if rec == nil {
		return
	}

	if err := rec.stt.Close(); err != nil {
		c.log.Warn("live: close transcription", "err", err)
	}
	<-rec.consumed
	close(rec.chunks)

	final := lecture.JoinFinal(rec.segments)
	c.orch.Stop(ctx, final)
	<-rec.processed

	duration := time.Since(rec.startedAt)
	if rec.audio != nil {
		if err := rec.audio.Close(); err != nil {
			c.log.Warn("live: close audio file", "err", err)
		}
		duration = rec.audio.Duration()
	}

	if rec.saver != nil {
		notes := c.orch.Notes()
		if notes == nil {
			notes = []lecture.Note{}
		}
		segs := slices.Clone(rec.segments)
		ms := duration.Milliseconds()
		rec.saver.Record(store.Patch{
			Segments:    &segs,
			Transcript:  &final,
			NuggetNotes: &notes,
			Duration:    &ms,
		})
		if err := rec.saver.Close(ctx); err != nil {
			c.log.Error("live: save session failed", "session_id", rec.id, "err", err)
			c.sendError("save session: " + err.Error())
		}
	}

	c.mu.Lock()
	c.rec = nil
	c.mu.Unlock()

	c.h.metrics.ActiveRecordings.Add(context.WithoutCancel(ctx), -1)
	c.log.Info("live: recording stopped", "session_id", rec.id, "duration", duration)
	c.sendStateFor(rec.id)
}

func (c *conn) audio(pcm []byte) {
	rec := c.current()
	if rec == nil {
		return
	}
	if err := rec.stt.SendAudio(pcm); err != nil && !rec.audioFailed {
		rec.audioFailed = true
		c.log.Warn("live: forward audio failed", "err", err)
		c.sendError("transcription: " + err.Error())
	}
	if rec.audio != nil {
		if _, err := rec.audio.Write(pcm); err != nil {
			c.log.Warn("live: write audio failed", "err", err)
			rec.audio.Close()
			rec.audio = nil
		}
	}
}

// consume turns transcripts into segments until the transcription ends.
func (c *conn) consume(rec *recording) {
	defer close(rec.consumed)

	partials, finals := rec.stt.Partials(), rec.stt.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			c.segment(rec, t.Text, false)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			c.segment(rec, t.Text, true)
		}
	}
	if err := rec.stt.Err(); err != nil {
		c.log.Error("live: transcription failed", "session_id", rec.id, "err", err)
		c.sendError("transcription: " + err.Error())
	}
}

func (c *conn) segment(rec *recording, text string, final bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	var corrections []transcript.Correction
	if final {
		text, corrections = c.h.cfg.Corrector.Correct(text, c.orch.Context().Terms())
		for _, cr := range corrections {
			c.log.Debug("live: corrected term", "original", cr.Original, "corrected", cr.Corrected, "confidence", cr.Confidence)
		}
	}

	seg := lecture.Segment{
		Text:        text,
		TimestampMs: time.Since(rec.startedAt).Milliseconds(),
		IsFinal:     final,
	}
	rec.segments = lecture.AppendSegment(rec.segments, seg)
	c.send(segmentEvent{Type: "segment", Segment: seg, Corrections: corrections})
	if !final {
		return
	}

	cumulative := lecture.JoinFinal(rec.segments)
	if rec.saver != nil {
		segs := slices.Clone(rec.segments)
		rec.saver.Record(store.Patch{Segments: &segs, Transcript: &cumulative})
	}
	rec.offer(cumulative)
}

// offer replaces any pending transcript with s.
func (r *recording) offer(s string) {
	for {
		select {
		case r.chunks <- s:
			return
		default:
		}
		select {
		case <-r.chunks:
		default:
		}
	}
}

// process feeds the orchestrator one cumulative transcript at a time.
func (c *conn) process(rec *recording) {
	defer close(rec.processed)
	for cumulative := range rec.chunks {
		c.orch.ProcessChunk(c.ctx, cumulative, time.Since(rec.startedAt).Seconds())
	}
}

// onSnapshot forwards context and note changes to the client, the
// transcription keyterms and the session.
func (c *conn) onSnapshot(s annotate.Snapshot) {
	c.mu.Lock()
	ctxChanged := !sameContext(c.lastCtx, s.Context)
	notesChanged := !slices.Equal(c.lastNotes, s.Notes)
	c.lastCtx, c.lastNotes = s.Context, s.Notes
	rec := c.rec
	c.mu.Unlock()

	if ctxChanged {
		c.send(contextEvent{Type: "context", Context: s.Context})
		if rec != nil {
			err := rec.stt.SetKeyterms(s.Context.Terms())
			if err != nil && !errors.Is(err, stt.ErrNotSupported) {
				c.log.Warn("live: update keyterms failed", "err", err)
			}
		}
	}
	if notesChanged {
		notes := s.Notes
		if notes == nil {
			notes = []lecture.Note{}
		}
		c.send(notesEvent{Type: "notes", Notes: notes})
		if rec != nil && rec.saver != nil {
			rec.saver.Record(store.Patch{NuggetNotes: &notes})
		}
	}
}

func sameContext(a, b lecture.Context) bool {
	return a.CurrentTopic == b.CurrentTopic && a.StructureHint == b.StructureHint &&
		slices.Equal(a.Themes, b.Themes) && slices.Equal(a.Definitions, b.Definitions)
}

func (c *conn) sendState() {
	id := ""
	if rec := c.current(); rec != nil {
		id = rec.id
	}
	c.sendStateFor(id)
}

func (c *conn) sendStateFor(sessionID string) {
	c.send(stateEvent{
		Type:      "state",
		State:     c.orch.State().String(),
		Enabled:   c.orch.Enabled(),
		SessionID: sessionID,
	})
}

func (c *conn) sendError(msg string) {
	c.send(errorEvent{Type: "error", Error: msg})
}

func (c *conn) send(v any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		c.log.Debug("live: send failed", "err", err)
	}
}
