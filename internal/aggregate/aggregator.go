package aggregate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"betledger/internal/indexer"
	"betledger/internal/metrics"
	"betledger/internal/model"
)

const defaultConcurrency = 4

// EventSource serves event records from the indexing service.
type EventSource interface {
	Events(ctx context.Context, filter indexer.EventFilter) ([]model.LedgerEvent, error)
}

// Config controls reconciliation behavior.
type Config struct {
	// Concurrency bounds parallel bet reconciliations in Bets.
	Concurrency int
}

// Reconciler turns indexed ledger events into bet aggregates. Every call
// re-fetches the full event set for the bet.
type Reconciler struct {
	cfg     Config
	source  EventSource
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewReconciler(cfg Config, source EventSource, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Reconciler{
		cfg:     cfg,
		source:  source,
		logger:  logger,
		metrics: m,
	}
}

// Bet returns the aggregate for betID. Any query failure yields the empty
// aggregate; use TryBet to observe the error.
func (r *Reconciler) Bet(ctx context.Context, betID string) model.BetAggregate {
	agg, err := r.TryBet(ctx, betID)
	if err != nil {
		r.logger.Warn("reconcile bet failed", zap.String("bet_id", betID), zap.Error(err))
		r.metrics.ObserveReadSource("reconciler", "empty")
		return model.EmptyBet(betID)
	}
	return agg
}

// TryBet reconciles betID and reports query failures.
func (r *Reconciler) TryBet(ctx context.Context, betID string) (model.BetAggregate, error) {
	if r.source == nil {
		return model.EmptyBet(betID), fmt.Errorf("%w: event source is nil", indexer.ErrQueryFailed)
	}

	wagers, err := r.source.Events(ctx, indexer.BetFilter(model.EventWagerPlaced, betID))
	if err != nil {
		return model.EmptyBet(betID), fmt.Errorf("wager events: %w", err)
	}
	resolutions, err := r.source.Events(ctx, indexer.BetFilter(model.EventBetResolved, betID))
	if err != nil {
		return model.EmptyBet(betID), fmt.Errorf("resolution events: %w", err)
	}

	var payouts []model.LedgerEvent
	if len(resolutions) > 0 {
		payouts, err = r.source.Events(ctx, indexer.BetFilter(model.EventPayoutPaid, betID))
		if err != nil {
			return model.EmptyBet(betID), fmt.Errorf("payout events: %w", err)
		}
	}

	agg, skipped := Fold(betID, wagers, resolutions, payouts)
	for _, err := range skipped {
		r.logger.Debug("skip malformed event", zap.String("bet_id", betID), zap.Error(err))
	}
	return agg, nil
}

// Bets reconciles several bets in parallel. Results keep the input order and
// follow the same failure policy as Bet.
func (r *Reconciler) Bets(ctx context.Context, betIDs []string) []model.BetAggregate {
	out := make([]model.BetAggregate, len(betIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, id := range betIDs {
		i, id := i, id
		g.Go(func() error {
			out[i] = r.Bet(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// TryBets reconciles several bets in parallel and stops at the first query
// failure. Results keep the input order and are nil on error.
func (r *Reconciler) TryBets(ctx context.Context, betIDs []string) ([]model.BetAggregate, error) {
	out := make([]model.BetAggregate, len(betIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, id := range betIDs {
		i, id := i, id
		g.Go(func() error {
			agg, err := r.TryBet(gctx, id)
			if err != nil {
				return fmt.Errorf("bet %s: %w", id, err)
			}
			out[i] = agg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
