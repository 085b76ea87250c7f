package market

import (
	"testing"
	"time"

	"alphapilot/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRegimes(t *testing.T) {
	c := NewClassifier(40)
	now := time.Now()

	tests := []struct {
		name       string
		trendPct   float64
		regime     types.Regime
		multiplier float64
		threshold  float64
	}{
		{"deep decline is bearish", -3.5, types.RegimeBearish, 0.7, 0.80},
		{"exactly -2 stays neutral", -2.0, types.RegimeNeutral, 1.0, 0.70},
		{"flat is neutral", 0.4, types.RegimeNeutral, 1.0, 0.70},
		{"exactly +2 stays neutral", 2.0, types.RegimeNeutral, 1.0, 0.70},
		{"strong rally is bullish", 2.1, types.RegimeBullish, 1.1, 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := c.Classify(types.TrendReading{Level: 5000, TrendPct: tt.trendPct}, 18, now)
			assert.Equal(t, tt.regime, ctx.Regime)
			assert.InDelta(t, tt.multiplier, ctx.ConfidenceMultiplier, 1e-9)
			assert.InDelta(t, tt.threshold, ctx.BuyThreshold, 1e-9)
			assert.False(t, ctx.StressOverride)
			assert.Equal(t, now, ctx.ComputedAt)
		})
	}
}

func TestClassifyStressOverride(t *testing.T) {
	c := NewClassifier(40)
	now := time.Now()

	ctx := c.Classify(types.TrendReading{Level: 5000, TrendPct: 3.0}, 45, now)
	assert.Equal(t, types.RegimeBullish, ctx.Regime)
	assert.True(t, ctx.StressOverride)
	assert.InDelta(t, 1.1*0.8, ctx.ConfidenceMultiplier, 1e-9)
	// Threshold is untouched: stress dampens confidence, not admission.
	assert.InDelta(t, 0.65, ctx.BuyThreshold, 1e-9)

	ctx = c.Classify(types.TrendReading{TrendPct: -5.0}, 60, now)
	assert.Equal(t, types.RegimeBearish, ctx.Regime)
	assert.InDelta(t, 0.7*0.8, ctx.ConfidenceMultiplier, 1e-9)

	// At exactly the threshold the override stays off.
	ctx = c.Classify(types.TrendReading{TrendPct: 0}, 40, now)
	assert.False(t, ctx.StressOverride)
}

// Walking the trend upward never lowers the multiplier and never raises
// the buy threshold.
func TestClassifyMonotonic(t *testing.T) {
	c := NewClassifier(40)
	now := time.Now()

	prevMult, prevThresh := 0.0, 1.0
	for trend := -6.0; trend <= 6.0; trend += 0.25 {
		ctx := c.Classify(types.TrendReading{TrendPct: trend}, 10, now)
		assert.GreaterOrEqual(t, ctx.ConfidenceMultiplier, prevMult, "trend %.2f", trend)
		assert.LessOrEqual(t, ctx.BuyThreshold, prevThresh, "trend %.2f", trend)
		prevMult, prevThresh = ctx.ConfidenceMultiplier, ctx.BuyThreshold
	}
}
