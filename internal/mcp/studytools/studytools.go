// Package studytools exposes recorded lectures to MCP clients.
//
// Three tools are registered by [NewServer]:
//   - "search_sessions"   full-text or semantic search over a user's sessions.
//   - "get_session_notes" the notes, live nugget notes and title of one session.
//   - "ask_lecture"       answers a question grounded in one session.
//
// [Handler] serves the server over the streamable HTTP transport. All tool
// handlers are safe for concurrent use.
package studytools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/scribecat/internal/nugget"
	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/internal/session"
	"github.com/MrWong99/scribecat/pkg/lecture"
	"github.com/MrWong99/scribecat/pkg/store"
)

// Version is reported to clients during initialisation.
const Version = "1.0.0"

// snippetRunes is the length of the excerpt returned per search hit.
const snippetRunes = 160

// Config supplies the dependencies of the tools.
type Config struct {
	// Store is required.
	Store store.Store

	// Indexer enables semantic search. Optional.
	Indexer *session.Indexer

	// Chat backs ask_lecture. When nil the tool is not registered.
	Chat *nugget.Chat

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewServer returns an MCP server with the study tools registered.
func NewServer(cfg Config) (*mcp.Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("studytools: store is required")
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	t := &tools{cfg: cfg}

	srv := mcp.NewServer(&mcp.Implementation{Name: "scribecat-study", Version: Version}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_sessions",
		Description: "Search a user's recorded lectures by keyword, or by meaning when semantic is true.",
	}, instrument(m, "search_sessions", t.searchSessions))
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_session_notes",
		Description: "Return the title, the user's notes and the live nugget notes of a recorded lecture.",
	}, instrument(m, "get_session_notes", t.getSessionNotes))
	if cfg.Chat != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "ask_lecture",
			Description: "Answer a study question using the transcript and notes of a recorded lecture.",
		}, instrument(m, "ask_lecture", t.askLecture))
	}
	return srv, nil
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// instrument records the latency and outcome of every call to h.
func instrument[In, Out any](m *observe.Metrics, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			observe.Logger(ctx).Warn("studytools: tool failed", "tool", name, "err", err)
		}
		m.RecordToolCall(ctx, name, status, time.Since(start))
		return res, out, err
	}
}

type tools struct {
	cfg Config
}

// ── search_sessions ──────────────────────────────────────────────────────────

type searchArgs struct {
	UserID   string `json:"user_id" jsonschema:"owner of the sessions"`
	Query    string `json:"query" jsonschema:"words or a question to look for"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of hits, default 20"`
	Semantic bool   `json:"semantic,omitempty" jsonschema:"rank nugget notes by meaning instead of keywords"`
}

// SessionHit is one search result.
type SessionHit struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	Snippet   string `json:"snippet"`
	// Distance is the cosine distance of a semantic hit; lower is closer.
	Distance float64 `json:"distance,omitempty"`
}

// SearchResult is the output of search_sessions.
type SearchResult struct {
	Hits []SessionHit `json:"hits"`
}

func (t *tools) searchSessions(ctx context.Context, _ *mcp.CallToolRequest, a searchArgs) (*mcp.CallToolResult, SearchResult, error) {
	if a.UserID == "" {
		return nil, SearchResult{}, errors.New("user_id must not be empty")
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, SearchResult{}, errors.New("query must not be empty")
	}
	limit := a.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	var hits []SessionHit
	if a.Semantic {
		if t.cfg.Indexer == nil {
			return nil, SearchResult{}, errors.New("semantic search is not configured")
		}
		matches, err := t.cfg.Indexer.Search(ctx, a.UserID, a.Query, limit)
		if err != nil {
			return nil, SearchResult{}, fmt.Errorf("semantic search: %w", err)
		}
		titles := make(map[string]store.Session)
		for _, m := range matches {
			sess, ok := titles[m.SessionID]
			if !ok {
				s, err := t.cfg.Store.Get(ctx, m.SessionID)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, SearchResult{}, fmt.Errorf("load session %s: %w", m.SessionID, err)
				}
				sess = s
				titles[m.SessionID] = s
			}
			hits = append(hits, SessionHit{
				SessionID: m.SessionID,
				Title:     sess.Title,
				CreatedAt: sess.CreatedAt.Format(time.RFC3339),
				Snippet:   m.Text,
				Distance:  m.Distance,
			})
		}
	} else {
		sessions, err := t.cfg.Store.Search(ctx, a.UserID, a.Query, limit)
		if err != nil {
			return nil, SearchResult{}, fmt.Errorf("search: %w", err)
		}
		for _, s := range sessions {
			hits = append(hits, SessionHit{
				SessionID: s.ID,
				Title:     s.Title,
				CreatedAt: s.CreatedAt.Format(time.RFC3339),
				Snippet:   snippet(a.Query, s.Transcript, s.NotesPlainText),
			})
		}
	}
	if hits == nil {
		hits = []SessionHit{}
	}

	text := fmt.Sprintf("No sessions match %q.", a.Query)
	if len(hits) > 0 {
		var b strings.Builder
		for _, h := range hits {
			fmt.Fprintf(&b, "- %s (%s): %s\n", h.Title, h.SessionID, h.Snippet)
		}
		text = b.String()
	}
	return textResult(text), SearchResult{Hits: hits}, nil
}

// snippet returns an excerpt of the first source containing query, or the
// start of the first non-empty source.
func snippet(query string, sources ...string) string {
	q := []rune(strings.TrimSpace(query))
	for _, src := range sources {
		r := []rune(src)
		if i := indexFold(r, q); i >= 0 {
			return truncate(string(r[max(0, i-snippetRunes/4):]))
		}
	}
	for _, src := range sources {
		if strings.TrimSpace(src) != "" {
			return truncate(src)
		}
	}
	return ""
}

// indexFold is a case-insensitive rune index of sub in s, or -1.
func indexFold(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j, r := range sub {
			if unicode.ToLower(s[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:snippetRunes])) + "…"
}

// ── get_session_notes ────────────────────────────────────────────────────────

type sessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"id of the recorded session"`
}

// SessionNotes is the output of get_session_notes.
type SessionNotes struct {
	SessionID   string         `json:"session_id"`
	Title       string         `json:"title"`
	Notes       string         `json:"notes"`
	NuggetNotes []lecture.Note `json:"nugget_notes"`
	DurationMs  int64          `json:"duration_ms"`
}

func (t *tools) getSessionNotes(ctx context.Context, _ *mcp.CallToolRequest, a sessionArgs) (*mcp.CallToolResult, SessionNotes, error) {
	sess, err := t.load(ctx, a.SessionID)
	if err != nil {
		return nil, SessionNotes{}, err
	}
	out := SessionNotes{
		SessionID:   sess.ID,
		Title:       sess.Title,
		Notes:       sess.Notes,
		NuggetNotes: sess.NuggetNotes,
		DurationMs:  sess.Duration,
	}
	if out.NuggetNotes == nil {
		out.NuggetNotes = []lecture.Note{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", sess.Title)
	if sess.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", sess.Notes)
	}
	if len(sess.NuggetNotes) > 0 {
		b.WriteString("\n## Nugget notes\n")
		for _, n := range sess.NuggetNotes {
			fmt.Fprintf(&b, "- %s\n", n.Text)
		}
	}
	return textResult(b.String()), out, nil
}

// ── ask_lecture ──────────────────────────────────────────────────────────────

type askArgs struct {
	SessionID string `json:"session_id" jsonschema:"id of the recorded session"`
	Question  string `json:"question" jsonschema:"the study question to answer"`
}

// Answer is the output of ask_lecture.
type Answer struct {
	Answer string `json:"answer"`
}

func (t *tools) askLecture(ctx context.Context, _ *mcp.CallToolRequest, a askArgs) (*mcp.CallToolResult, Answer, error) {
	if strings.TrimSpace(a.Question) == "" {
		return nil, Answer{}, errors.New("question must not be empty")
	}
	sess, err := t.load(ctx, a.SessionID)
	if err != nil {
		return nil, Answer{}, err
	}
	answer, err := t.cfg.Chat.Ask(ctx, nugget.ChatRequest{
		Message:    a.Question,
		Transcript: sess.Transcript,
		Notes:      studyNotes(sess),
	})
	if err != nil {
		return nil, Answer{}, err
	}
	return textResult(answer), Answer{Answer: answer}, nil
}

// studyNotes prefers the user's own notes and falls back to the nugget notes.
func studyNotes(sess store.Session) string {
	if strings.TrimSpace(sess.NotesPlainText) != "" {
		return sess.NotesPlainText
	}
	lines := make([]string, 0, len(sess.NuggetNotes))
	for _, n := range sess.NuggetNotes {
		lines = append(lines, "- "+n.Text)
	}
	return strings.Join(lines, "\n")
}

func (t *tools) load(ctx context.Context, id string) (store.Session, error) {
	if id == "" {
		return store.Session{}, errors.New("session_id must not be empty")
	}
	sess, err := t.cfg.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.IsDeleted) {
		return store.Session{}, fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
