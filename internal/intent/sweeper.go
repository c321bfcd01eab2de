package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// Sweeper expires stale pending intents in the background so they stop
// appearing as match candidates. It runs independently of notification
// processing and only performs the pending -> expired conditional update.
type Sweeper struct {
	repo     RepositoryAPI
	eventBus *events.EventBus
	logger   *slog.Logger
	ttl      time.Duration
	interval time.Duration
}

func NewSweeper(repo RepositoryAPI, eventBus *events.EventBus, logger *slog.Logger, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
	}
}

// Start blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("intent sweeper started", "ttl", s.ttl, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("intent sweeper stopped")
			return
		}
	}
}

// SweepOnce expires every pending intent older than the TTL and publishes an
// expiry event per intent so the frontend can tell the user to re-register.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	expired, err := s.repo.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("intent sweep failed", "error", err, "cutoff", cutoff)
		return
	}

	if len(expired) == 0 {
		s.logger.Debug("intent sweep found nothing to expire", "cutoff", cutoff)
		return
	}

	s.logger.Info("expired stale intents", "count", len(expired), "cutoff", cutoff)

	if s.eventBus == nil {
		return
	}
	for _, record := range expired {
		event := events.NewIntentExpiredEvent(record.IntentID, record.UserRef, record.AmountCents, record.Currency)
		s.eventBus.Publish(ctx, event)
	}
}
