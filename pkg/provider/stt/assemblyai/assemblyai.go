// Package assemblyai provides an STT provider backed by the AssemblyAI v3
// streaming WebSocket API. It implements the stt.Provider interface and can
// also mint short-lived tokens that let browser clients stream directly.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/scribecat/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	streamingEndpoint = "wss://streaming.assemblyai.com/v3/ws"
	tokenEndpoint     = "https://streaming.assemblyai.com/v3/token"
	defaultSampleRate = 16000
	multilingualModel = "universal-streaming-multilingual"

	// closeTimeout bounds how long Close waits for the Termination message.
	closeTimeout = 5 * time.Second
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithSpeechModel sets the streaming speech model. By default the service
// picks its English model, or the multilingual one when a non-English
// language is requested.
func WithSpeechModel(model string) Option {
	return func(p *Provider) {
		p.speechModel = model
	}
}

// WithSampleRate sets the provider-level default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithFormatTurns controls whether finals carry punctuation and casing.
// Default: true.
func WithFormatTurns(enabled bool) Option {
	return func(p *Provider) {
		p.formatTurns = enabled
	}
}

// WithEndpoint overrides the streaming WebSocket URL. Used in tests.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// WithTokenEndpoint overrides the token minting URL. Used in tests.
func WithTokenEndpoint(u string) Option {
	return func(p *Provider) {
		p.tokenEndpoint = u
	}
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by AssemblyAI.
type Provider struct {
	apiKey        string
	speechModel   string
	sampleRate    int
	formatTurns   bool
	endpoint      string
	tokenEndpoint string
	httpClient    *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:        apiKey,
		sampleRate:    defaultSampleRate,
		formatTurns:   true,
		endpoint:      streamingEndpoint,
		tokenEndpoint: tokenEndpoint,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with AssemblyAI.
// The session's background loops stop when ctx is cancelled.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("assemblyai: dial: %w", err)
	}
	// Turn messages with many words can exceed the default 32 KiB limit.
	conn.SetReadLimit(1 << 20)

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		conn:        conn,
		ctx:         sessCtx,
		cancel:      cancel,
		formatTurns: p.formatTurns,
		partials:    make(chan stt.Transcript, 64),
		finals:      make(chan stt.Transcript, 64),
		audio:       make(chan []byte, 256),
		done:        make(chan struct{}),
		readDone:    make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop()
	go sess.writeLoop()

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", strconv.FormatBool(p.formatTurns))

	model := p.speechModel
	if model == "" && cfg.Language != "" && !isEnglish(cfg.Language) {
		model = multilingualModel
	}
	if model != "" {
		q.Set("speech_model", model)
	}

	if terms := cleanKeyterms(cfg.Keyterms); len(terms) > 0 {
		raw, err := json.Marshal(terms)
		if err != nil {
			return "", err
		}
		q.Set("keyterms_prompt", string(raw))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isEnglish(lang string) bool {
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	return base == "en"
}

// cleanKeyterms trims, drops blanks and removes case-insensitive duplicates.
func cleanKeyterms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ---- session ----

// message is the union of the server messages the session consumes.
type message struct {
	Type string `json:"type"`

	// Begin
	ID string `json:"id"`

	// Turn
	Transcript          string  `json:"transcript"`
	EndOfTurn           bool    `json:"end_of_turn"`
	TurnIsFormatted     bool    `json:"turn_is_formatted"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`
	Words               []struct {
		Text       string  `json:"text"`
		Start      int64   `json:"start"`
		End        int64   `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`

	// Error
	Error string `json:"error"`
}

// session is a live AssemblyAI streaming session. It implements stt.SessionHandle.
type session struct {
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	formatTurns bool

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done     chan struct{}
	readDone chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	mu  sync.Mutex
	err error
}

// SendAudio queues a PCM audio chunk for delivery.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	case <-s.ctx.Done():
		return fmt.Errorf("assemblyai: %w", s.ctx.Err())
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeyterms sends an UpdateConfiguration message with the new keyterms.
func (s *session) SetKeyterms(keyterms []string) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	default:
	}
	raw, err := json.Marshal(struct {
		Type     string   `json:"type"`
		Keyterms []string `json:"keyterms_prompt"`
	}{Type: "UpdateConfiguration", Keyterms: cleanKeyterms(keyterms)})
	if err != nil {
		return fmt.Errorf("assemblyai: encode keyterms: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("assemblyai: update keyterms: %w", err)
	}
	return nil
}

// Err returns the error that ended the session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close stops accepting audio, flushes what is queued, asks the service to
// terminate and waits for its Termination message.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.readDone:
		case <-time.After(closeTimeout):
		}
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop sends queued audio as binary messages. After Close it drains the
// queue and sends Terminate.
func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
				s.setErr(fmt.Errorf("assemblyai: write: %w", err))
				return
			}
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(s.ctx, websocket.MessageBinary, chunk)
				default:
					_ = s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"Terminate"}`))
					return
				}
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// readLoop receives JSON messages and dispatches Turn results to the
// partials and finals channels until Termination or a read error.
func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, raw, err := s.conn.Read(s.ctx)
		if err != nil {
			if !s.closing() && s.ctx.Err() == nil {
				s.setErr(fmt.Errorf("assemblyai: read: %w", err))
			}
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch {
		case msg.Error != "":
			s.setErr(fmt.Errorf("assemblyai: server: %s", msg.Error))
			return
		case msg.Type == "Begin":
			slog.Debug("assemblyai: session started", "id", msg.ID)
		case msg.Type == "Termination":
			return
		case msg.Type == "Turn":
			t, ok := parseTurn(msg, s.formatTurns)
			if !ok {
				continue
			}
			ch := s.partials
			if t.IsFinal {
				ch = s.finals
			}
			select {
			case ch <- t:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// parseTurn converts a Turn message. With formatted turns enabled the service
// sends each finished turn twice, first unformatted; only the formatted copy
// is final and the unformatted one is dropped.
func parseTurn(msg message, formatTurns bool) (stt.Transcript, bool) {
	final := msg.EndOfTurn && (msg.TurnIsFormatted || !formatTurns)
	if msg.EndOfTurn && !final {
		return stt.Transcript{}, false
	}
	text := strings.TrimSpace(msg.Transcript)
	if text == "" {
		return stt.Transcript{}, false
	}

	words := make([]stt.WordDetail, 0, len(msg.Words))
	var confSum float64
	for _, w := range msg.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Text,
			Start:      time.Duration(w.Start) * time.Millisecond,
			End:        time.Duration(w.End) * time.Millisecond,
			Confidence: w.Confidence,
		})
		confSum += w.Confidence
	}

	t := stt.Transcript{Text: text, IsFinal: final, Words: words}
	if n := len(words); n > 0 {
		t.Confidence = confSum / float64(n)
		t.Timestamp = words[0].Start
		t.Duration = words[n-1].End - words[0].Start
	}
	return t, true
}
