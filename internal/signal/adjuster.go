// Package signal converts a validated prediction record plus the current
// market context into a bounded trade action with an auditable reasoning
// trail.
package signal

import (
	"fmt"
	"math"
	"time"

	"alphapilot/internal/tuning"
	"alphapilot/internal/types"

	"github.com/google/uuid"
)

// TuningSource yields the current tuning snapshot. The adjuster reads one
// snapshot per decision so a hot reload never straddles a computation.
type TuningSource interface {
	Snapshot() tuning.Snapshot
}

// staticTuning satisfies TuningSource with a fixed snapshot.
type staticTuning struct{ snap tuning.Snapshot }

func (s staticTuning) Snapshot() tuning.Snapshot { return s.snap }

// StaticTuning wraps a snapshot for tests and registry-less runs.
func StaticTuning(snap tuning.Snapshot) TuningSource { return staticTuning{snap: snap} }

// Adjuster produces TradeDecisions. Pure request/response, no shared state.
type Adjuster struct {
	tuning TuningSource
	nowFn  func() time.Time
}

func NewAdjuster(src TuningSource) *Adjuster {
	if src == nil {
		src = StaticTuning(tuning.Defaults())
	}
	return &Adjuster{tuning: src, nowFn: time.Now}
}

// Adjust applies the weighted confidence model, the regime gates and the
// consistency guards. Every failed gate lands in the reasoning so rejected
// decisions are explainable in the audit log.
func (a *Adjuster) Adjust(pred types.PredictionRecord, ctx types.MarketContext) types.TradeDecision {
	snap := a.tuning.Snapshot()
	w := snap.Weights

	base := w.BaseFloor +
		pred.TechnicalScore/100*w.Technical +
		pred.RawConfidence*w.Confidence +
		pred.VolumeFactor*w.Volume +
		pred.RiskAdjustment*w.Risk
	adjusted := math.Min(1.0, base*ctx.ConfidenceMultiplier)

	decision := types.TradeDecision{
		TraceID:            uuid.NewString(),
		Symbol:             pred.Symbol,
		Action:             types.ActionHold,
		AdjustedConfidence: adjusted,
		ThresholdUsed:      ctx.BuyThreshold,
		RegimeAtDecision:   ctx.Regime,
		CurrentPrice:       pred.CurrentPrice,
		DecidedAt:          a.nowFn(),
	}
	reason := func(format string, v ...any) {
		decision.Reasoning = append(decision.Reasoning, fmt.Sprintf(format, v...))
	}
	reason("base confidence %.3f adjusted to %.3f (multiplier %.2f, regime %s)",
		base, adjusted, ctx.ConfidenceMultiplier, ctx.Regime)
	if ctx.StressOverride {
		reason("stress override active: volatility %.1f%%", ctx.VolatilityPct)
	}

	bullish := bullishDirection(pred)
	floors := snap.FloorsFor(ctx.Regime)

	if bullish {
		passed := true
		if adjusted <= ctx.BuyThreshold {
			reason("adjusted confidence %.3f below buy threshold %.2f", adjusted, ctx.BuyThreshold)
			passed = false
		}
		if pred.TechnicalScore <= floors.Technical {
			reason("technical score %.1f below %s floor %.1f", pred.TechnicalScore, ctx.Regime, floors.Technical)
			passed = false
		}
		if pred.SentimentScore <= floors.Sentiment {
			reason("sentiment %.3f below %s floor %.3f", pred.SentimentScore, ctx.Regime, floors.Sentiment)
			passed = false
		}
		if passed {
			decision.Action = types.ActionBuy
			if adjusted > snap.EscalationThreshold {
				decision.Action = types.ActionStrongBuy
				reason("confidence %.3f above %.2f, escalating BUY to STRONG_BUY", adjusted, snap.EscalationThreshold)
			}
		}
	} else {
		if adjusted > ctx.BuyThreshold {
			decision.Action = types.ActionSell
			if adjusted > snap.EscalationThreshold {
				decision.Action = types.ActionStrongSell
				reason("confidence %.3f above %.2f, escalating SELL to STRONG_SELL", adjusted, snap.EscalationThreshold)
			}
		} else {
			reason("bearish direction but adjusted confidence %.3f below threshold %.2f", adjusted, ctx.BuyThreshold)
		}
	}

	// Sanity guard against a known model artifact: a longer horizon
	// predicting a smaller move than a shorter one. Demotes one level,
	// never hard-rejects.
	if decision.Action != types.ActionHold {
		if short, long, ok := magnitudeInconsistency(pred); ok {
			demoted := demote(decision.Action)
			reason("magnitude inconsistency: |%s| %.2f%% < |%s| %.2f%%, demoting %s to %s",
				long.horizon, math.Abs(long.value), short.horizon, math.Abs(short.value),
				decision.Action, demoted)
			decision.Action = demoted
		}
	}

	if decision.Action == types.ActionHold && len(decision.Reasoning) == 1 {
		reason("no actionable signal, holding")
	}
	return decision
}

// bullishDirection reports whether the majority of horizons point up.
func bullishDirection(pred types.PredictionRecord) bool {
	up := 0
	for _, h := range types.Horizons {
		if pred.DirectionByHorizon[h] {
			up++
		}
	}
	return up*2 > len(types.Horizons)
}

type horizonMagnitude struct {
	horizon types.Horizon
	value   float64
}

// magnitudeInconsistency finds the first adjacent horizon pair where the
// longer horizon's |magnitude| is smaller than the shorter one's.
func magnitudeInconsistency(pred types.PredictionRecord) (short, long horizonMagnitude, found bool) {
	for i := 1; i < len(types.Horizons); i++ {
		s, l := types.Horizons[i-1], types.Horizons[i]
		sv, sok := pred.MagnitudeByHorizon[s]
		lv, lok := pred.MagnitudeByHorizon[l]
		if !sok || !lok {
			continue
		}
		if math.Abs(lv) < math.Abs(sv) {
			return horizonMagnitude{s, sv}, horizonMagnitude{l, lv}, true
		}
	}
	return horizonMagnitude{}, horizonMagnitude{}, false
}

func demote(action types.TradeAction) types.TradeAction {
	switch action {
	case types.ActionStrongBuy:
		return types.ActionBuy
	case types.ActionBuy:
		return types.ActionHold
	case types.ActionStrongSell:
		return types.ActionSell
	case types.ActionSell:
		return types.ActionHold
	default:
		return types.ActionHold
	}
}
