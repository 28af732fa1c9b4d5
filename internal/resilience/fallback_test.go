package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/scribecat/internal/observe"
)

func newGroup(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", cfg)
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing []string
		want    string
		wantErr error
	}{
		{name: "primary healthy", want: "primary"},
		{name: "primary down", failing: []string{"primary"}, want: "secondary"},
		{name: "all down", failing: []string{"primary", "secondary"}, wantErr: ErrAllFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fg := newGroup(FallbackConfig{})
			var tried []string
			got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
				tried = append(tried, v)
				if slices.Contains(tc.failing, v) {
					return "", errTest
				}
				return v, nil
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping the last failure", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("result = %q, want %q (tried %v)", got, tc.want, tried)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	fg := newGroup(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	primaryCalls := 0
	call := func(_ context.Context, v string) error {
		if v == "primary" {
			primaryCalls++
			return errTest
		}
		return nil
	}
	for range 3 {
		if err := fg.Execute(context.Background(), call); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if primaryCalls != 1 {
		t.Errorf("primary called %d times, want 1 before its circuit opened", primaryCalls)
	}
	if got := fg.States()["primary"]; got != StateOpen {
		t.Errorf("primary state = %v", got)
	}
}

func TestFallbackGroup_CancelledContext(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before the call", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		err := newGroup(FallbackConfig{}).Execute(ctx, func(context.Context, string) error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) || called {
			t.Errorf("err = %v, called = %v", err, called)
		}
	})

	t.Run("cancelled during the call", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		fg := newGroup(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
		var tried []string
		err := fg.Execute(ctx, func(ctx context.Context, v string) error {
			tried = append(tried, v)
			cancel()
			return ctx.Err()
		})
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
			t.Errorf("err = %v, want plain cancellation", err)
		}
		if !slices.Equal(tried, []string{"primary"}) {
			t.Errorf("tried = %v, want only primary", tried)
		}
		if fg.States()["primary"] != StateClosed {
			t.Error("cancellation opened the circuit")
		}
	})
}

func TestFallbackGroup_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	fg := newGroup(FallbackConfig{Kind: "llm", Metrics: m})
	err = fg.Execute(context.Background(), func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	requests := map[string]int64{}
	var errs int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				provider, _ := dp.Attributes.Value(attribute.Key("provider"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				switch met.Name {
				case "scribecat.provider.requests":
					requests[provider.AsString()+"/"+status.AsString()] += dp.Value
				case "scribecat.provider.errors":
					errs += dp.Value
				}
			}
		}
	}
	if requests["primary/error"] != 1 || requests["secondary/ok"] != 1 {
		t.Errorf("requests = %v", requests)
	}
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	fg := newGroup(FallbackConfig{})
	if got := fg.Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names = %v", got)
	}
	if fg.Primary() != "primary" {
		t.Errorf("Primary = %q", fg.Primary())
	}
}
