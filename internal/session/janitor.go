package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/scribecat/internal/observe"
	"github.com/MrWong99/scribecat/pkg/store"
)

// Retention defaults.
const (
	DefaultDeletedTTL   = 30 * 24 * time.Hour
	DefaultPurgeHourUTC = 2
)

// Janitor permanently removes sessions that sat in the trash longer than
// the retention period. It runs once a day at a fixed UTC hour.
type Janitor struct {
	store   store.Store
	ttl     time.Duration
	hour    int
	now     func() time.Time
	metrics *observe.Metrics
}

// JanitorConfig configures a [Janitor].
type JanitorConfig struct {
	Store store.Store

	// DeletedTTL is how long a trashed session is kept. Defaults to
	// [DefaultDeletedTTL].
	DeletedTTL time.Duration

	// PurgeHourUTC is the hour of day (0-23, UTC) the purge runs. Nil or a
	// value outside that range selects [DefaultPurgeHourUTC]; 0 is midnight.
	PurgeHourUTC *int

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// Metrics, if set, counts purged sessions.
	Metrics *observe.Metrics
}

// NewJanitor creates a Janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	j := &Janitor{
		store:   cfg.Store,
		ttl:     cfg.DeletedTTL,
		hour:    DefaultPurgeHourUTC,
		now:     cfg.Now,
		metrics: cfg.Metrics,
	}
	if j.ttl <= 0 {
		j.ttl = DefaultDeletedTTL
	}
	if h := cfg.PurgeHourUTC; h != nil && *h >= 0 && *h <= 23 {
		j.hour = *h
	}
	if j.now == nil {
		j.now = time.Now
	}
	return j
}

// Run purges once a day until ctx is cancelled. It returns nil on
// cancellation.
func (j *Janitor) Run(ctx context.Context) error {
	for {
		wait := NextRun(j.now(), j.hour).Sub(j.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := j.PurgeOnce(ctx); err != nil {
			slog.Warn("janitor: purge failed", "err", err)
		}
	}
}

// PurgeOnce removes every session trashed before now minus the TTL.
func (j *Janitor) PurgeOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.store.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("janitor: purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		slog.Info("janitor: purged trashed sessions", "count", n, "cutoff", cutoff)
	}
	if j.metrics != nil {
		j.metrics.SessionsPurged.Add(ctx, int64(n))
	}
	return n, nil
}

// NextRun returns the first instant strictly after now at hour:00 UTC.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
