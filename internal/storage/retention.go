package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Policy decides which artifacts of a snapshot must be removed. The snapshot
// is always ordered newest first.
type Policy interface {
	Name() string
	Expired(now time.Time, snapshot []Entry) []Entry
	// SweepAfterWrite reports whether the policy is enforced right after
	// each new artifact lands, in addition to the periodic janitor.
	SweepAfterWrite() bool
}

// TTLPolicy removes every artifact older than MaxAge.
type TTLPolicy struct {
	MaxAge time.Duration
}

func (p TTLPolicy) Name() string { return "ttl" }

func (p TTLPolicy) SweepAfterWrite() bool { return false }

func (p TTLPolicy) Expired(now time.Time, snapshot []Entry) []Entry {
	var out []Entry
	for _, e := range snapshot {
		if now.Sub(e.ModTime) > p.MaxAge {
			out = append(out, e)
		}
	}
	return out
}

// CountPolicy keeps the Keep most recent artifacts.
type CountPolicy struct {
	Keep int
}

func (p CountPolicy) Name() string { return "count" }

func (p CountPolicy) SweepAfterWrite() bool { return true }

func (p CountPolicy) Expired(_ time.Time, snapshot []Entry) []Entry {
	keep := p.Keep
	if keep < 0 {
		keep = 0
	}
	if len(snapshot) <= keep {
		return nil
	}
	return snapshot[keep:]
}

// NewPolicy builds the policy named by kind.
func NewPolicy(kind string, ttl time.Duration, keep int) (Policy, error) {
	switch kind {
	case "ttl":
		return TTLPolicy{MaxAge: ttl}, nil
	case "count":
		return CountPolicy{Keep: keep}, nil
	default:
		return nil, fmt.Errorf("storage: unknown retention policy %q", kind)
	}
}

// Janitor sweeps the store at startup and then on a fixed interval, outside
// the request path.
type Janitor struct {
	store    *ArtifactStore
	interval time.Duration
	logger   zerolog.Logger
}

// NewJanitor returns a janitor for store.
func NewJanitor(store *ArtifactStore, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Janitor{store: store, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A failed pass is logged and skipped.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info().
		Str("policy", j.store.Policy().Name()).
		Dur("interval", j.interval).
		Msg("janitor: started")

	j.RunOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("janitor: stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and logs its outcome.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed, err := j.store.Sweep(ctx)
	if err != nil {
		j.logger.Error().Err(err).Int("removed", removed).Msg("janitor: sweep failed")
		return removed
	}
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("janitor: expired artifacts removed")
	}
	return removed
}
