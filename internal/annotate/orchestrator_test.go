package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/scribecat/pkg/lecture"
)

type refreshFunc func(ctx context.Context, transcript string, previous lecture.Context) (lecture.Context, error)

func (f refreshFunc) Refresh(ctx context.Context, transcript string, previous lecture.Context) (lecture.Context, error) {
	return f(ctx, transcript, previous)
}

type generateFunc func(ctx context.Context, transcript string, lc lecture.Context, secs float64) ([]lecture.Note, error)

func (f generateFunc) Generate(ctx context.Context, transcript string, lc lecture.Context, secs float64) ([]lecture.Note, error) {
	return f(ctx, transcript, lc, secs)
}

// words returns "w0 w1 ... w(n-1)"; shorter results are prefixes of longer ones.
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func noRefresh(t *testing.T) ContextRefresher {
	return refreshFunc(func(context.Context, string, lecture.Context) (lecture.Context, error) {
		t.Error("unexpected context refresh")
		return lecture.Context{}, nil
	})
}

func oneNote(text string) generateFunc {
	return func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		return []lecture.Note{{ID: "server-id", Text: text}}, nil
	}
}

// notesOnly disables the context gate and fires notes on every chunk.
func notesOnly() Config {
	cfg := DefaultConfig()
	cfg.Context = Policy{MinWords: 1 << 30}
	cfg.Notes = Policy{MinWords: 1}
	return cfg
}

func TestOrchestrator_StartTwice(t *testing.T) {
	t.Parallel()

	o := New(noRefresh(t), oneNote("x"), DefaultConfig())
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyRecording", err)
	}
	if o.State() != Recording {
		t.Errorf("State() = %v, want recording", o.State())
	}
}

func TestOrchestrator_IgnoresChunksWhenIdleOrDisabled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		calls.Add(1)
		return nil, nil
	})
	o := New(noRefresh(t), gen, notesOnly())

	o.ProcessChunk(context.Background(), words(50), 1)

	_ = o.Start()
	o.SetEnabled(false)
	o.ProcessChunk(context.Background(), words(50), 1)

	if n := calls.Load(); n != 0 {
		t.Errorf("generator called %d times, want 0", n)
	}
}

func TestOrchestrator_ContextFeedsSameTickNotes(t *testing.T) {
	t.Parallel()

	fresh := lecture.Context{
		Themes:        []string{"thermodynamics"},
		CurrentTopic:  "Entropy",
		Definitions:   []string{},
		StructureHint: "Introduction",
	}
	var refreshTranscript string
	ref := refreshFunc(func(_ context.Context, transcript string, previous lecture.Context) (lecture.Context, error) {
		refreshTranscript = transcript
		if !previous.IsEmpty() {
			t.Errorf("previous context = %+v, want empty", previous)
		}
		return fresh, nil
	})
	var seen lecture.Context
	var seenWindow string
	gen := generateFunc(func(_ context.Context, transcript string, lc lecture.Context, _ float64) ([]lecture.Note, error) {
		seen = lc
		seenWindow = transcript
		return []lecture.Note{{Text: "Entropy always increases"}}, nil
	})

	cfg := DefaultConfig()
	cfg.Context = Policy{MinWords: 200}
	cfg.Notes = Policy{MinWords: 30}
	cfg.RecentWindowWords = 100
	o := New(ref, gen, cfg)
	_ = o.Start()

	transcript := words(250)
	o.ProcessChunk(context.Background(), transcript, 60)

	if refreshTranscript != transcript {
		t.Errorf("refresh transcript has %d words, want 250", lecture.CountWords(refreshTranscript))
	}
	if seen.CurrentTopic != "Entropy" {
		t.Errorf("note context topic = %q, want fresh %q", seen.CurrentTopic, "Entropy")
	}
	if got := lecture.CountWords(seenWindow); got != 100 {
		t.Errorf("note window = %d words, want 100", got)
	}
	if !strings.HasSuffix(seenWindow, "w249") {
		t.Errorf("note window should end with the latest word, got %q", seenWindow[len(seenWindow)-10:])
	}
	if got := o.Context().CurrentTopic; got != "Entropy" {
		t.Errorf("Context().CurrentTopic = %q", got)
	}
	if n := len(o.Notes()); n != 1 {
		t.Fatalf("len(Notes()) = %d, want 1", n)
	}
}

func TestOrchestrator_BelowThresholdDoesNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		calls.Add(1)
		return nil, nil
	})
	o := New(noRefresh(t), gen, DefaultConfig())
	_ = o.Start()
	o.ProcessChunk(context.Background(), words(29), 5)

	if n := calls.Load(); n != 0 {
		t.Errorf("generator called %d times, want 0", n)
	}
}

func TestOrchestrator_RestampsNoteIDs(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var observed []Snapshot
	var mu sync.Mutex
	o := New(noRefresh(t), oneNote("Cells need ATP"), notesOnly(),
		WithClock(clock.Now),
		WithObserver(func(s Snapshot) {
			mu.Lock()
			observed = append(observed, s)
			mu.Unlock()
		}),
	)
	_ = o.Start()
	o.ProcessChunk(context.Background(), words(5), 12.5)
	o.ProcessChunk(context.Background(), words(10), 20)

	notes := o.Notes()
	if len(notes) != 2 {
		t.Fatalf("len(Notes()) = %d, want 2", len(notes))
	}
	ms := clock.Now().UnixMilli()
	for i, n := range notes {
		want := fmt.Sprintf("note-%d-%d", ms, i+1)
		if n.ID != want {
			t.Errorf("notes[%d].ID = %q, want %q", i, n.ID, want)
		}
		if n.Timestamp != ms {
			t.Errorf("notes[%d].Timestamp = %d, want %d", i, n.Timestamp, ms)
		}
	}
	if notes[0].RecordingTime != 12.5 || notes[1].RecordingTime != 20 {
		t.Errorf("recording times = %v, %v", notes[0].RecordingTime, notes[1].RecordingTime)
	}

	mu.Lock()
	defer mu.Unlock()
	last := observed[len(observed)-1]
	if len(last.Notes) != 2 || last.State != Recording {
		t.Errorf("last snapshot = %+v", last)
	}
}

func TestOrchestrator_StaleResultAfterStopIsDropped(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	ref := refreshFunc(func(context.Context, string, lecture.Context) (lecture.Context, error) {
		close(started)
		<-release // ignores cancellation on purpose
		return lecture.Context{CurrentTopic: "Too late"}, nil
	})
	var genCalls atomic.Int32
	gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		genCalls.Add(1)
		return []lecture.Note{{Text: "Too late as well"}}, nil
	})

	cfg := DefaultConfig()
	cfg.Context = Policy{MinWords: 1}
	cfg.Notes = Policy{MinWords: 1}
	o := New(ref, gen, cfg)
	_ = o.Start()

	transcript := words(10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.ProcessChunk(context.Background(), transcript, 3)
	}()

	<-started
	o.Stop(context.Background(), transcript)
	if o.State() != Idle {
		t.Fatalf("State() after Stop = %v, want idle", o.State())
	}
	close(release)
	<-done

	if !o.Context().IsEmpty() {
		t.Errorf("stale context applied: %+v", o.Context())
	}
	if n := len(o.Notes()); n != 0 {
		t.Errorf("len(Notes()) = %d, want 0", n)
	}
	if n := genCalls.Load(); n != 0 {
		t.Errorf("generator called %d times after stop, want 0", n)
	}
}

func TestOrchestrator_PendingResultDroppedAfterStopOrClear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		inflight  kind
		action    func(o *Orchestrator, transcript string)
		wantState State
	}{
		{
			name:      "notes pending at stop",
			inflight:  kindNotes,
			action:    func(o *Orchestrator, transcript string) { o.Stop(context.Background(), transcript) },
			wantState: Idle,
		},
		{
			name:      "notes pending at clear",
			inflight:  kindNotes,
			action:    func(o *Orchestrator, _ string) { o.ClearNotes() },
			wantState: Recording,
		},
		{
			name:      "context pending at clear",
			inflight:  kindContext,
			action:    func(o *Orchestrator, _ string) { o.ClearNotes() },
			wantState: Recording,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			started := make(chan struct{})
			release := make(chan struct{})
			ref := refreshFunc(func(context.Context, string, lecture.Context) (lecture.Context, error) {
				close(started)
				<-release // ignores cancellation on purpose
				return lecture.Context{CurrentTopic: "Too late"}, nil
			})
			gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
				close(started)
				<-release
				return []lecture.Note{{Text: "Too late as well"}}, nil
			})

			cfg := notesOnly()
			if tc.inflight == kindContext {
				cfg.Context = Policy{MinWords: 1}
				cfg.Notes = Policy{MinWords: 1 << 30}
			}
			o := New(ref, gen, cfg)
			_ = o.Start()

			// Stop sees no unseen words, so it issues no final request.
			transcript := words(10)
			done := make(chan struct{})
			go func() {
				defer close(done)
				o.ProcessChunk(context.Background(), transcript, 3)
			}()

			<-started
			tc.action(o, transcript)
			close(release)
			<-done

			if got := o.State(); got != tc.wantState {
				t.Errorf("State() = %v, want %v", got, tc.wantState)
			}
			if !o.Context().IsEmpty() {
				t.Errorf("stale context applied: %+v", o.Context())
			}
			if n := len(o.Notes()); n != 0 {
				t.Errorf("len(Notes()) = %d, want 0", n)
			}
		})
	}
}

func TestOrchestrator_NewRequestCancelsPrevious(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var calls atomic.Int32
	gen := generateFunc(func(ctx context.Context, transcript string, _ lecture.Context, _ float64) ([]lecture.Note, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []lecture.Note{{Text: "Second request wins"}}, nil
	})
	o := New(noRefresh(t), gen, notesOnly())
	_ = o.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.ProcessChunk(context.Background(), words(5), 1)
	}()
	<-started
	o.ProcessChunk(context.Background(), words(10), 2)
	<-done

	notes := o.Notes()
	if len(notes) != 1 || notes[0].Text != "Second request wins" {
		t.Fatalf("Notes() = %+v, want only the second result", notes)
	}
}

func TestOrchestrator_StopRunsFinalNotes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var (
		calls    atomic.Int32
		gotSecs  float64
		gotInput string
	)
	gen := generateFunc(func(_ context.Context, transcript string, _ lecture.Context, secs float64) ([]lecture.Note, error) {
		calls.Add(1)
		gotSecs = secs
		gotInput = transcript
		return []lecture.Note{{Text: "Closing remarks on entropy"}}, nil
	})
	cfg := DefaultConfig()
	cfg.Context = Policy{MinWords: 1 << 30}
	o := New(noRefresh(t), gen, cfg, WithClock(clock.Now))
	_ = o.Start()

	o.ProcessChunk(context.Background(), words(10), 5)
	if calls.Load() != 0 {
		t.Fatal("notes fired below the threshold")
	}

	clock.Advance(90 * time.Second)
	o.Stop(context.Background(), words(15))

	if calls.Load() != 1 {
		t.Fatalf("final generator calls = %d, want 1", calls.Load())
	}
	if gotSecs != 90 {
		t.Errorf("recording seconds = %v, want 90", gotSecs)
	}
	if gotInput != words(15) {
		t.Errorf("final window = %q", gotInput)
	}
	if n := len(o.Notes()); n != 1 {
		t.Errorf("len(Notes()) = %d, want 1", n)
	}
	if o.State() != Idle {
		t.Errorf("State() = %v, want idle", o.State())
	}
}

func TestOrchestrator_StopWithoutNewContentSkipsFinalNotes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		calls.Add(1)
		return nil, nil
	})
	o := New(noRefresh(t), gen, DefaultConfig())
	_ = o.Start()
	o.ProcessChunk(context.Background(), words(10), 5)
	o.Stop(context.Background(), words(10))

	if calls.Load() != 0 {
		t.Errorf("generator called %d times, want 0", calls.Load())
	}
}

func TestOrchestrator_ClearResetsCounters(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	gen := generateFunc(func(context.Context, string, lecture.Context, float64) ([]lecture.Note, error) {
		calls.Add(1)
		return nil, nil
	})
	cfg := DefaultConfig()
	cfg.Context = Policy{MinWords: 1 << 30}
	cfg.Notes = Policy{MinWords: 30}
	o := New(noRefresh(t), gen, cfg)
	_ = o.Start()

	o.ProcessChunk(context.Background(), words(20), 1)
	o.ClearNotes()
	// The buffer restarts too, so all 25 words are new; without the
	// counter reset the gate would hold 45.
	o.ProcessChunk(context.Background(), words(25), 2)

	if calls.Load() != 0 {
		t.Errorf("generator called %d times, want 0", calls.Load())
	}
	if o.State() != Recording {
		t.Errorf("State() = %v, want recording", o.State())
	}
	if !o.Context().IsEmpty() || len(o.Notes()) != 0 {
		t.Error("ClearNotes left notes or context behind")
	}
}

func TestOrchestrator_ResetOnAttemptVersusSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		resetOnSuccess bool
		wantRefreshes  int32
	}{
		{name: "reset on attempt", resetOnSuccess: false, wantRefreshes: 1},
		{name: "reset on success", resetOnSuccess: true, wantRefreshes: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			ref := refreshFunc(func(context.Context, string, lecture.Context) (lecture.Context, error) {
				calls.Add(1)
				return lecture.Context{}, errors.New("upstream unavailable")
			})
			cfg := DefaultConfig()
			cfg.Context = Policy{MinWords: 1, MinInterval: time.Minute}
			cfg.Notes = Policy{MinWords: 1 << 30}
			clock := newFakeClock()
			o := New(ref, oneNote("unused"), cfg, WithClock(clock.Now), WithResetOnSuccess(tt.resetOnSuccess))
			_ = o.Start()

			o.ProcessChunk(context.Background(), words(5), 1)
			clock.Advance(time.Second)
			o.ProcessChunk(context.Background(), words(10), 2)

			if got := calls.Load(); got != tt.wantRefreshes {
				t.Errorf("refresh calls = %d, want %d", got, tt.wantRefreshes)
			}
			if !o.Context().IsEmpty() {
				t.Error("failed refresh changed the context")
			}
		})
	}
}

func TestOrchestrator_StartClearsPreviousRecording(t *testing.T) {
	t.Parallel()

	o := New(noRefresh(t), oneNote("A note from before"), notesOnly())
	_ = o.Start()
	o.ProcessChunk(context.Background(), words(5), 1)
	o.Stop(context.Background(), words(5))
	if len(o.Notes()) != 1 {
		t.Fatalf("len(Notes()) = %d, want 1", len(o.Notes()))
	}

	if err := o.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(o.Notes()) != 0 {
		t.Error("Start kept notes of the previous recording")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{Idle: "idle", Recording: "recording", Stopping: "stopping", State(9): "State(9)"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
