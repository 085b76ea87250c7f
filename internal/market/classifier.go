// Package market classifies the benchmark-index trend into a discrete
// regime and publishes the resulting context to all decision consumers.
package market

import (
	"time"

	"alphapilot/internal/types"
)

// Regime thresholds on the signed 5-day benchmark change.
const (
	bearishTrendPct = -2.0
	bullishTrendPct = 2.0

	bearishMultiplier = 0.7
	neutralMultiplier = 1.0
	bullishMultiplier = 1.1

	bearishBuyThreshold = 0.80
	neutralBuyThreshold = 0.70
	bullishBuyThreshold = 0.65

	// stressMultiplier composes with any regime when the volatility proxy
	// runs hot; it is an adjustment, not a fourth regime.
	stressMultiplier = 0.8
)

// Classifier turns a trend reading plus a volatility proxy into a
// MarketContext. Pure computation, no side effects.
type Classifier struct {
	stressVolatilityPct float64
}

func NewClassifier(stressVolatilityPct float64) *Classifier {
	if stressVolatilityPct <= 0 {
		stressVolatilityPct = 40
	}
	return &Classifier{stressVolatilityPct: stressVolatilityPct}
}

// Classify maps the trend into BEARISH/NEUTRAL/BULLISH and applies the
// stress override on top when volatilityPct exceeds the extreme threshold.
func (c *Classifier) Classify(reading types.TrendReading, volatilityPct float64, now time.Time) types.MarketContext {
	ctx := types.MarketContext{
		Level:         reading.Level,
		TrendPct:      reading.TrendPct,
		VolatilityPct: volatilityPct,
		ComputedAt:    now,
	}
	switch {
	case reading.TrendPct < bearishTrendPct:
		ctx.Regime = types.RegimeBearish
		ctx.ConfidenceMultiplier = bearishMultiplier
		ctx.BuyThreshold = bearishBuyThreshold
	case reading.TrendPct > bullishTrendPct:
		ctx.Regime = types.RegimeBullish
		ctx.ConfidenceMultiplier = bullishMultiplier
		ctx.BuyThreshold = bullishBuyThreshold
	default:
		ctx.Regime = types.RegimeNeutral
		ctx.ConfidenceMultiplier = neutralMultiplier
		ctx.BuyThreshold = neutralBuyThreshold
	}
	if volatilityPct > c.stressVolatilityPct {
		ctx.ConfidenceMultiplier *= stressMultiplier
		ctx.StressOverride = true
	}
	return ctx
}
