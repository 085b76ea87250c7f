// Package exit evaluates open positions against the deployment-wide exit
// rules. The rule set is uniform across the book on purpose: per-position
// overrides would make the closed-trade history impossible to audit.
package exit

import (
	"fmt"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/types"
)

// Decision is the outcome of one evaluation: continue holding, or exit for
// the named reason.
type Decision struct {
	Exit   bool
	Reason types.ExitReason
	Detail string
}

// Continue is the zero decision.
var Continue = Decision{}

// Rules are the deployment-wide exit parameters.
type Rules struct {
	ProfitTargetPct float64
	StopLossPct     float64
	MaxHold         time.Duration
	// MaxTickAge bounds how old a price observation may be before it is
	// considered stale and ignored for exit purposes.
	MaxTickAge time.Duration
}

// Engine is stateless: evaluating the same position at the same price twice
// yields the same decision.
type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	if rules.ProfitTargetPct <= 0 {
		rules.ProfitTargetPct = 0.03
	}
	if rules.StopLossPct <= 0 {
		rules.StopLossPct = 0.02
	}
	if rules.MaxHold <= 0 {
		rules.MaxHold = 24 * time.Hour
	}
	if rules.MaxTickAge <= 0 {
		rules.MaxTickAge = 15 * time.Minute
	}
	return &Engine{rules: rules}
}

// TargetsFor derives the stop-loss and profit-target prices for a new
// position at entry.
func (e *Engine) TargetsFor(entryPrice float64) (stopLoss, profitTarget float64) {
	return entryPrice * (1 - e.rules.StopLossPct), entryPrice * (1 + e.rules.ProfitTargetPct)
}

// Evaluate applies the rules in order, first match wins: profit target,
// stop loss, max hold time. A missing or stale price never triggers an
// exit; the engine degrades to CONTINUE and logs a data-quality warning.
func (e *Engine) Evaluate(pos types.Position, tick types.PriceTick, now time.Time) Decision {
	if pos.Status != types.PositionOpen {
		return Continue
	}

	priceUsable := tick.Price > 0
	if priceUsable && !tick.Timestamp.IsZero() && now.Sub(tick.Timestamp) > e.rules.MaxTickAge {
		logger.Warnf("exit: stale price for %s (age=%s), skipping price rules",
			pos.Symbol, now.Sub(tick.Timestamp).Truncate(time.Second))
		priceUsable = false
	}
	if !priceUsable && tick.Price <= 0 {
		logger.Warnf("exit: missing price for %s, skipping price rules", pos.Symbol)
	}

	if priceUsable {
		if tick.Price >= pos.ProfitTargetPrice {
			return Decision{Exit: true, Reason: types.ExitProfitTarget,
				Detail: fmt.Sprintf("price %.2f reached target %.2f", tick.Price, pos.ProfitTargetPrice)}
		}
		if tick.Price <= pos.StopLossPrice {
			return Decision{Exit: true, Reason: types.ExitStopLoss,
				Detail: fmt.Sprintf("price %.2f breached stop %.2f", tick.Price, pos.StopLossPrice)}
		}
	}

	if held := now.Sub(pos.OpenedAt); held >= e.rules.MaxHold {
		return Decision{Exit: true, Reason: types.ExitMaxHoldTime,
			Detail: fmt.Sprintf("held %s, limit %s", held.Truncate(time.Minute), e.rules.MaxHold)}
	}
	return Continue
}
