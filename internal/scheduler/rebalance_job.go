package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/modules/trading"
)

// DefaultRunTimeout bounds one full rebalance sweep.
const DefaultRunTimeout = 10 * time.Minute

// RebalanceJob sweeps every stored allocation target and drives each holding
// toward it. Portfolios run concurrently; within a portfolio targets run in
// order, so one portfolio's orders never race each other.
type RebalanceJob struct {
	targets    domain.TargetProvider
	trading    *trading.Service
	runTimeout time.Duration
	log        zerolog.Logger
}

// NewRebalanceJob creates the periodic rebalance job
func NewRebalanceJob(targets domain.TargetProvider, tradingService *trading.Service, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		targets:    targets,
		trading:    tradingService,
		runTimeout: DefaultRunTimeout,
		log:        log.With().Str("job", "rebalance").Logger(),
	}
}

// Name implements Job
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run implements Job. A failing target is logged and skipped; an open circuit
// breaker abandons the rest of that portfolio's sweep, since every further
// order would fail the same way.
func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.runTimeout)
	defer cancel()

	all, err := j.targets.GetAll()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		j.log.Debug().Msg("No allocation targets, nothing to rebalance")
		return nil
	}

	byPortfolio := make(map[string][]domain.Target)
	for _, t := range all {
		byPortfolio[t.PortfolioID] = append(byPortfolio[t.PortfolioID], t)
	}

	var wg sync.WaitGroup
	for portfolioID, portfolioTargets := range byPortfolio {
		wg.Add(1)
		go func(portfolioID string, portfolioTargets []domain.Target) {
			defer wg.Done()
			j.rebalancePortfolio(ctx, portfolioID, portfolioTargets)
		}(portfolioID, portfolioTargets)
	}
	wg.Wait()

	return nil
}

func (j *RebalanceJob) rebalancePortfolio(ctx context.Context, portfolioID string, portfolioTargets []domain.Target) {
	for _, target := range portfolioTargets {
		outcome, err := j.trading.OrderToPct(ctx, portfolioID, target.Symbol, target.Fraction)
		if err != nil {
			var circuitErr *domain.CircuitOpenError
			if errors.As(err, &circuitErr) {
				j.log.Warn().
					Str("portfolio", portfolioID).
					Time("until", circuitErr.Until).
					Msg("Circuit breaker open, abandoning portfolio sweep")
				return
			}

			j.log.Error().Err(err).
				Str("portfolio", portfolioID).
				Str("symbol", target.Symbol).
				Msg("Rebalance target failed")
			continue
		}

		if outcome.Skipped {
			continue
		}
		j.log.Info().
			Str("portfolio", portfolioID).
			Str("symbol", target.Symbol).
			Str("side", string(outcome.Side)).
			Float64("qty", outcome.Quantity).
			Msg("Rebalance order filled")
	}
}
