package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/scribecat/internal/resilience"
	"github.com/MrWong99/scribecat/pkg/store/memstore"
	storemock "github.com/MrWong99/scribecat/pkg/store/mock"
)

func get(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func ok(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	t.Parallel()
	failing := Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }}
	code, body := get(t, New(failing), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v, want ok regardless of checkers", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		wantBody result
	}{
		{
			name:     "no checkers",
			wantCode: http.StatusOK,
			wantBody: result{Status: "ok", Checks: map[string]string{}},
		},
		{
			name:     "all pass",
			checkers: []Checker{{Name: "store", Check: ok}, {Name: "llm", Check: ok}},
			wantCode: http.StatusOK,
			wantBody: result{Status: "ok", Checks: map[string]string{"store": "ok", "llm": "ok"}},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "store", Check: ok},
				{Name: "llm", Check: func(context.Context) error { return errors.New("all circuits open") }},
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: result{Status: "fail", Checks: map[string]string{"store": "ok", "llm": "fail: all circuits open"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, New(tc.checkers...), "/readyz")
			if code != tc.wantCode {
				t.Errorf("status = %d, want %d", code, tc.wantCode)
			}
			if body.Status != tc.wantBody.Status {
				t.Errorf("body status = %q, want %q", body.Status, tc.wantBody.Status)
			}
			for name, want := range tc.wantBody.Checks {
				if body.Checks[name] != want {
					t.Errorf("check %q = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_CheckTimeout(t *testing.T) {
	t.Parallel()

	slow := Checker{Name: "slow", Check: func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}
		if time.Until(deadline) > checkTimeout {
			return errors.New("deadline too far")
		}
		return nil
	}}
	if code, body := get(t, New(slow), "/readyz"); code != http.StatusOK {
		t.Errorf("status = %d, body = %+v", code, body)
	}
}

func TestStoreChecker(t *testing.T) {
	t.Parallel()

	if err := StoreChecker(memstore.New()).Check(context.Background()); err != nil {
		t.Errorf("memstore: %v", err)
	}

	broken := storemock.New()
	broken.ListErr = errors.New("disk full")
	if err := StoreChecker(broken).Check(context.Background()); err == nil {
		t.Error("expected failure from a broken store")
	}
}

func TestBreakerChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		states  map[string]resilience.State
		wantErr bool
	}{
		{name: "none", states: nil},
		{name: "primary open, fallback closed", states: map[string]resilience.State{"openai": resilience.StateOpen, "anthropic": resilience.StateClosed}},
		{name: "half-open counts as usable", states: map[string]resilience.State{"openai": resilience.StateHalfOpen}},
		{name: "all open", states: map[string]resilience.State{"openai": resilience.StateOpen, "anthropic": resilience.StateOpen}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := BreakerChecker("llm", func() map[string]resilience.State { return tc.states })
			err := c.Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "openai circuit open") {
				t.Errorf("err = %v, want it to name the provider", err)
			}
		})
	}
}
