package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
)

var (
	_ ContextRefresher = (*Client)(nil)
	_ NoteGenerator    = (*Client)(nil)
)

// Client calls a ScribeCat server's /lectureContext and /nuggetNotes
// endpoints. It holds only a base URL; model credentials stay server-side.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. A nil client keeps the
// default.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithHTTPTimeout bounds every request. It applies to a copy of the HTTP
// client, so a client passed to [WithHTTPClient] is never modified.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("annotate: base URL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// Refresh implements [ContextRefresher].
func (c *Client) Refresh(ctx context.Context, transcript string, previous lecture.Context) (lecture.Context, error) {
	req := lecture.ContextRequest{Transcript: transcript}
	if !previous.IsEmpty() {
		req.PreviousContext = &previous
	}
	var resp lecture.ContextResponse
	if err := c.post(ctx, "/lectureContext", req, &resp); err != nil {
		return lecture.Context{}, fmt.Errorf("annotate: refresh context: %w", err)
	}
	if !resp.Success {
		return lecture.Context{}, fmt.Errorf("annotate: refresh context: server: %s", resp.Error)
	}
	return resp.Context.Clamp(), nil
}

// Generate implements [NoteGenerator].
func (c *Client) Generate(ctx context.Context, transcript string, lc lecture.Context, recordingSeconds float64) ([]lecture.Note, error) {
	req := lecture.NotesRequest{
		Transcript:           transcript,
		RecordingTimeSeconds: recordingSeconds,
	}
	if !lc.IsEmpty() {
		req.Context = &lc
	}
	var resp lecture.NotesResponse
	if err := c.post(ctx, "/nuggetNotes", req, &resp); err != nil {
		return nil, fmt.Errorf("annotate: generate notes: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("annotate: generate notes: server: %s", resp.Error)
	}
	return resp.Notes, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error replies still carry {error, success:false}; surface the message.
		var failure struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, failure.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
