package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/scribecat/internal/api"
	"github.com/MrWong99/scribecat/internal/session"
	"github.com/MrWong99/scribecat/pkg/lecture"
	embmock "github.com/MrWong99/scribecat/pkg/provider/embeddings/mock"
	"github.com/MrWong99/scribecat/pkg/store"
	"github.com/MrWong99/scribecat/pkg/store/memstore"
	storemock "github.com/MrWong99/scribecat/pkg/store/mock"
)

type sessionsClient struct {
	t   *testing.T
	url string
}

func newSessionsServer(t *testing.T, cfg api.Config) *sessionsClient {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = testMetrics(t)
	}
	srv := httptest.NewServer(api.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return &sessionsClient{t: t, url: srv.URL}
}

// do sends a request and decodes a JSON reply into out when out is non-nil.
func (c *sessionsClient) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.url+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type sessionList struct {
	Sessions []store.Session `json:"sessions"`
}

func TestSessions_Lifecycle(t *testing.T) {
	t.Parallel()

	c := newSessionsServer(t, api.Config{Store: memstore.New()})

	var created store.Session
	if code := c.do(http.MethodPost, "/sessions", store.NewSession{UserID: "u1", Title: "Thermo 101"}, &created); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if created.ID == "" || created.Title != "Thermo 101" {
		t.Fatalf("created = %+v", created)
	}
	path := "/sessions/" + created.ID

	var got store.Session
	if code := c.do(http.MethodGet, path, nil, &got); code != http.StatusOK || got.ID != created.ID {
		t.Fatalf("get status = %d, session = %+v", code, got)
	}

	var updated store.Session
	patch := store.Patch{Notes: store.Ptr("# Heat\n\n- **Entropy** rises")}
	if code := c.do(http.MethodPatch, path, patch, &updated); code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}
	if updated.NotesPlainText != "Heat\nEntropy rises" {
		t.Errorf("notesPlainText = %q, want derived plain text", updated.NotesPlainText)
	}

	var withSeg store.Session
	seg := lecture.Segment{Text: "Entropy always increases.", TimestampMs: 1200, IsFinal: true}
	if code := c.do(http.MethodPost, path+"/segments", seg, &withSeg); code != http.StatusOK {
		t.Fatalf("append segment status = %d", code)
	}
	if withSeg.Transcript != "Entropy always increases." {
		t.Errorf("transcript = %q", withSeg.Transcript)
	}

	var list sessionList
	c.do(http.MethodGet, "/sessions?userId=u1", nil, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("list = %d sessions, want 1", len(list.Sessions))
	}

	var found sessionList
	c.do(http.MethodGet, "/sessions/search?userId=u1&q=entropy", nil, &found)
	if len(found.Sessions) != 1 {
		t.Errorf("search found %d sessions, want 1", len(found.Sessions))
	}

	if code := c.do(http.MethodDelete, path, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	var trash sessionList
	c.do(http.MethodGet, "/sessions/trash?userId=u1", nil, &trash)
	if len(trash.Sessions) != 1 || !trash.Sessions[0].IsDeleted {
		t.Fatalf("trash = %+v", trash.Sessions)
	}
	var active sessionList
	c.do(http.MethodGet, "/sessions?userId=u1", nil, &active)
	if len(active.Sessions) != 0 {
		t.Errorf("deleted session still listed")
	}

	var restored store.Session
	if code := c.do(http.MethodPost, path+"/restore", nil, &restored); code != http.StatusOK || restored.IsDeleted {
		t.Fatalf("restore status = %d, session = %+v", code, restored)
	}

	if code := c.do(http.MethodDelete, path+"/permanent", nil, nil); code != http.StatusNoContent {
		t.Fatalf("permanent delete status = %d", code)
	}
	if code := c.do(http.MethodGet, path, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after permanent delete = %d, want 404", code)
	}
}

func TestSessions_BadRequests(t *testing.T) {
	t.Parallel()

	c := newSessionsServer(t, api.Config{Store: memstore.New()})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "list without user", method: http.MethodGet, path: "/sessions", want: http.StatusBadRequest},
		{name: "search without query", method: http.MethodGet, path: "/sessions/search?userId=u1", want: http.StatusBadRequest},
		{name: "search with bad limit", method: http.MethodGet, path: "/sessions/search?userId=u1&q=x&limit=-1", want: http.StatusBadRequest},
		{name: "create without user", method: http.MethodPost, path: "/sessions", body: store.NewSession{Title: "x"}, want: http.StatusBadRequest},
		{name: "empty patch", method: http.MethodPatch, path: "/sessions/abc", body: store.Patch{}, want: http.StatusBadRequest},
		{name: "unknown session", method: http.MethodGet, path: "/sessions/missing", want: http.StatusNotFound},
		{name: "delete unknown", method: http.MethodDelete, path: "/sessions/missing", want: http.StatusNotFound},
		{name: "semantic without indexer", method: http.MethodGet, path: "/sessions/search?userId=u1&q=x&semantic=true", want: http.StatusNotImplemented},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.do(tc.method, tc.path, tc.body, nil); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSessions_StoreFailure(t *testing.T) {
	t.Parallel()

	s := storemock.New()
	s.ListErr = errors.New("database is locked")
	c := newSessionsServer(t, api.Config{Store: s})

	resp, err := http.Get(c.url + "/sessions?userId=u1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var body struct {
		Error   string `json:"error"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "session store failed" || body.Success {
		t.Errorf("body = %+v, want a generic failure without driver details", body)
	}
	if n := s.CallCount("List"); n != 1 {
		t.Errorf("List called %d times", n)
	}
}

func TestSessions_SemanticSearch(t *testing.T) {
	t.Parallel()

	mem := memstore.New()
	emb := &embmock.Provider{}
	c := newSessionsServer(t, api.Config{
		Store:   mem,
		Indexer: session.NewIndexer(emb, mem),
	})

	var sess store.Session
	c.do(http.MethodPost, "/sessions", store.NewSession{UserID: "u1", Title: "Biology"}, &sess)
	notes := []lecture.Note{
		{ID: "n1", Text: "ATP synthase makes ATP"},
		{ID: "n2", Text: "Cells divide by mitosis"},
	}
	if code := c.do(http.MethodPatch, "/sessions/"+sess.ID, store.Patch{NuggetNotes: &notes}, nil); code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}
	if n := emb.BatchCallCount(); n != 1 {
		t.Fatalf("EmbedBatch called %d times, want 1", n)
	}

	var res struct {
		Matches []store.NoteMatch `json:"matches"`
	}
	q := url.Values{"userId": {"u1"}, "q": {"ATP synthase makes ATP"}, "semantic": {"true"}}
	if code := c.do(http.MethodGet, "/sessions/search?"+q.Encode(), nil, &res); code != http.StatusOK {
		t.Fatalf("search status = %d", code)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("matches = %+v", res.Matches)
	}
	if res.Matches[0].NoteID != "n1" || res.Matches[0].SessionID != sess.ID {
		t.Errorf("best match = %+v, want n1", res.Matches[0])
	}
	if res.Matches[0].Distance > 1e-6 {
		t.Errorf("distance = %v, want ~0 for identical text", res.Matches[0].Distance)
	}
}
