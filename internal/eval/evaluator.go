// Package eval implements the auto-feedback evaluator: it scans positions
// that have been open long enough to judge, labels their performance, and
// hands the labeled records to an external feedback sink. The engine itself
// never trains anything.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/book"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/pricing"
	"github.com/papertrade/engine/internal/store"
)

// Label thresholds: a matured position is "good" at or above +5%, "bad"
// at or below -5%, "neutral" in between.
var (
	goodThreshold = decimal.NewFromInt(5)
	badThreshold  = decimal.NewFromInt(-5)
)

// FeedbackSink consumes labeled outcomes. The engine does not require a
// response; a sink failure is logged and the batch continues.
type FeedbackSink interface {
	Record(ctx context.Context, outcome model.Outcome) error
}

// Evaluator converts matured positions into labeled training signals.
type Evaluator struct {
	store    store.Store
	resolver *pricing.Resolver
	sink     FeedbackSink
}

// NewEvaluator creates an evaluator. sink may be nil, in which case
// outcomes are only returned, not delivered.
func NewEvaluator(st store.Store, resolver *pricing.Resolver, sink FeedbackSink) *Evaluator {
	return &Evaluator{store: st, resolver: resolver, sink: sink}
}

// label classifies a percentage P&L.
func label(pnlPct decimal.Decimal) model.OutcomeLabel {
	switch {
	case pnlPct.GreaterThanOrEqual(goodThreshold):
		return model.OutcomeGood
	case pnlPct.LessThanOrEqual(badThreshold):
		return model.OutcomeBad
	default:
		return model.OutcomeNeutral
	}
}

// Evaluate selects positions opened more than evaluationDays ago, marks
// each against the current price, and emits one labeled outcome per
// matured position. Short positions count a price drop as a gain.
func (e *Evaluator) Evaluate(ctx context.Context, evaluationDays int) ([]model.Outcome, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -evaluationDays)

	positions, err := e.store.ListPositionsOpenedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list matured positions: %w", err)
	}

	now := time.Now().UTC()
	outcomes := make([]model.Outcome, 0, len(positions))

	for _, p := range positions {
		price, source := e.resolver.Resolve(ctx, p.Ticker)
		metrics.PriceLookups.WithLabelValues(string(source)).Inc()

		pnlPct := book.PnLPct(p.PositionType, p.AvgPrice, price)
		outcome := model.Outcome{
			PositionID:    p.ID,
			UserID:        p.UserID,
			Ticker:        p.Ticker,
			StrategyID:    p.StrategyID,
			Belief:        p.Belief,
			Label:         label(pnlPct),
			PnLPct:        pnlPct,
			AutoGenerated: true,
			EvaluatedAt:   now,
		}
		outcomes = append(outcomes, outcome)
		metrics.EvaluatorOutcomes.WithLabelValues(string(outcome.Label)).Inc()

		if e.sink != nil {
			if err := e.sink.Record(ctx, outcome); err != nil {
				slog.Warn("feedback sink rejected outcome",
					"position", p.ID, "label", string(outcome.Label), "err", err)
			}
		}
	}

	slog.Info("performance evaluation complete",
		"evaluation_days", evaluationDays,
		"matured", len(positions),
	)
	return outcomes, nil
}

// Run evaluates on a fixed interval until the context is cancelled.
// Started from main as the engine's periodic batch.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration, evaluationDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Evaluate(ctx, evaluationDays); err != nil {
				slog.Error("scheduled evaluation failed", "err", err)
			}
		}
	}
}
