package oplock

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/store"
)

// ReclaimerConfig holds configuration for the zombie reclaimer.
type ReclaimerConfig struct {
	// CheckInterval defines how often to sweep for stale operations.
	// If zero, defaults to 60 seconds.
	CheckInterval time.Duration

	// DefaultTimeout is how long a running operation may go without a
	// heartbeat before it is considered abandoned. If zero, defaults to
	// 5 minutes.
	DefaultTimeout time.Duration

	// KindTimeouts overrides the timeout per operation kind.
	KindTimeouts map[domain.OperationKind]time.Duration

	// RetentionAge, when positive, enables purging of terminal records
	// older than this during each sweep.
	RetentionAge time.Duration
}

// DefaultReclaimerConfig returns a ReclaimerConfig with reasonable defaults.
func DefaultReclaimerConfig() ReclaimerConfig {
	return ReclaimerConfig{
		CheckInterval:  60 * time.Second,
		DefaultTimeout: 5 * time.Minute,
	}
}

// Reclaimer periodically sweeps the operation store and force-fails running
// records whose heartbeat has gone stale, freeing the single-flight slot for
// the owner. It is the backstop for workers that died without completing
// their record.
type Reclaimer struct {
	ops    store.OperationStore
	config ReclaimerConfig
	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewReclaimer creates a Reclaimer sweeping the given store.
func NewReclaimer(ops store.OperationStore, config ReclaimerConfig, logger *slog.Logger) *Reclaimer {
	if config.CheckInterval == 0 {
		config.CheckInterval = 60 * time.Second
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = 5 * time.Minute
	}

	return &Reclaimer{
		ops:    ops,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
// Intended to be launched once at startup, independent of any caller.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	r.logger.Info("zombie reclaimer started",
		"check_interval", r.config.CheckInterval,
		"default_timeout", r.config.DefaultTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("zombie reclaimer stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass. A failure on a single record is
// logged and skipped rather than aborting the sweep; the next pass will see
// the record again.
func (r *Reclaimer) Sweep(ctx context.Context) {
	// List with the shortest configured timeout, then re-check each record
	// against its kind-specific deadline.
	stale, err := r.ops.ListStale(ctx, r.shortestTimeout())
	if err != nil {
		r.logger.Error("failed to list stale operations", "error", err)
		return
	}

	reclaimed := 0
	for _, op := range stale {
		timeout := r.timeoutFor(op.Kind)
		staleFor := r.now().UTC().Sub(op.UpdatedAt)
		if staleFor <= timeout {
			continue
		}

		// Optimistic: the write is a no-op if the owning worker completed
		// the record between our read and this commit.
		won, err := r.ops.ForceFail(ctx, op.ID, "timeout")
		if err != nil {
			r.logger.Error("failed to reclaim stale operation",
				"operation_id", op.ID,
				"owner_id", op.OwnerID,
				"kind", op.Kind,
				"error", err)
			continue
		}
		if won {
			reclaimed++
			r.logger.Warn("reclaimed zombie operation",
				"operation_id", op.ID,
				"owner_id", op.OwnerID,
				"kind", op.Kind,
				"stale_for", staleFor)
		}
	}

	if reclaimed > 0 {
		r.logger.Info("reclaim sweep finished", "reclaimed", reclaimed)
	}

	if r.config.RetentionAge > 0 {
		purged, err := r.ops.PurgeTerminal(ctx, r.config.RetentionAge)
		if err != nil {
			r.logger.Error("failed to purge aged operation records", "error", err)
		} else if purged > 0 {
			r.logger.Info("purged aged operation records", "count", purged)
		}
	}
}

// timeoutFor resolves the staleness deadline for a kind.
func (r *Reclaimer) timeoutFor(kind domain.OperationKind) time.Duration {
	if t, ok := r.config.KindTimeouts[kind]; ok {
		return t
	}
	return r.config.DefaultTimeout
}

// shortestTimeout returns the smallest configured timeout, so ListStale
// never misses a record some kind considers stale.
func (r *Reclaimer) shortestTimeout() time.Duration {
	shortest := r.config.DefaultTimeout
	for _, t := range r.config.KindTimeouts {
		if t < shortest {
			shortest = t
		}
	}
	return shortest
}
