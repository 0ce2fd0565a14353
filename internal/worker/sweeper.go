package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"travelpay/internal/model"
	"travelpay/internal/service"
)

// staleStatuses are pull-gateway states the payer abandoned before approving.
// APPROVED is excluded: those records may still be captured.
var staleStatuses = []string{
	string(model.PullCreated),
	string(model.PullPayerAction),
	string(model.PullVoided),
}

type Sweeper struct {
	store      service.OrderStore
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(store service.OrderStore, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start blocks until ctx is done. A non-positive interval disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("stale order sweeper disabled")
		return
	}

	slog.Info("starting stale order sweeper", "interval", s.interval, "stale_after", s.staleAfter)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale order sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes abandoned pull-gateway orders older than staleAfter. It never
// contacts the gateway.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteWhere(ctx, service.DeleteCriteria{
		Gateway:       model.GatewayPull,
		Statuses:      staleStatuses,
		CreatedBefore: s.now().Add(-s.staleAfter),
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale orders: %w", err)
	}
	if n > 0 {
		slog.Info("stale orders removed", "count", n)
	}
	return n, nil
}
