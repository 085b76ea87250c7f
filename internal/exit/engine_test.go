package exit

import (
	"testing"
	"time"

	"alphapilot/internal/types"

	"github.com/stretchr/testify/assert"
)

func testEngine() *Engine {
	return NewEngine(Rules{
		ProfitTargetPct: 0.03,
		StopLossPct:     0.02,
		MaxHold:         24 * time.Hour,
		MaxTickAge:      15 * time.Minute,
	})
}

func openPosition(entry float64, openedAt time.Time) types.Position {
	return types.Position{
		ID:                "pos-1",
		Symbol:            "AAPL",
		Status:            types.PositionOpen,
		EntryPrice:        entry,
		Shares:            50,
		StopLossPrice:     entry * 0.98,
		ProfitTargetPrice: entry * 1.03,
		OpenedAt:          openedAt,
	}
}

func tick(price float64, at time.Time) types.PriceTick {
	return types.PriceTick{Symbol: "AAPL", Price: price, Timestamp: at}
}

func TestTargetsFor(t *testing.T) {
	stop, target := testEngine().TargetsFor(100)
	assert.InDelta(t, 98, stop, 1e-9)
	assert.InDelta(t, 103, target, 1e-9)
}

func TestEvaluateProfitTarget(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))

	d := e.Evaluate(pos, tick(103.00, now), now)
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitProfitTarget, d.Reason)

	d = e.Evaluate(pos, tick(102.99, now), now)
	assert.False(t, d.Exit)
}

func TestEvaluateStopLoss(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))

	d := e.Evaluate(pos, tick(98.00, now), now)
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitStopLoss, d.Reason)

	d = e.Evaluate(pos, tick(98.01, now), now)
	assert.False(t, d.Exit)
}

func TestEvaluateProfitTargetWinsOverMaxHold(t *testing.T) {
	e := testEngine()
	now := time.Now()
	// Both the profit target and the hold limit are breached; the price rule
	// is checked first.
	pos := openPosition(100, now.Add(-25*time.Hour))
	d := e.Evaluate(pos, tick(104, now), now)
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitProfitTarget, d.Reason)
}

func TestEvaluateMaxHold(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-24*time.Hour))

	d := e.Evaluate(pos, tick(100.5, now), now)
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitMaxHoldTime, d.Reason)

	fresh := openPosition(100, now.Add(-23*time.Hour))
	d = e.Evaluate(fresh, tick(100.5, now), now)
	assert.False(t, d.Exit)
}

func TestEvaluateMissingPriceContinues(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))

	d := e.Evaluate(pos, types.PriceTick{Symbol: "AAPL"}, now)
	assert.False(t, d.Exit)
}

func TestEvaluateStalePriceSkipsPriceRules(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))

	// Price would trigger the stop, but the observation is 20 minutes old.
	d := e.Evaluate(pos, tick(90, now.Add(-20*time.Minute)), now)
	assert.False(t, d.Exit)

	// The hold-time rule still applies with a stale price.
	old := openPosition(100, now.Add(-30*time.Hour))
	d = e.Evaluate(old, tick(90, now.Add(-20*time.Minute)), now)
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitMaxHoldTime, d.Reason)
}

func TestEvaluateClosedPositionIsInert(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))
	pos.Status = types.PositionClosed

	d := e.Evaluate(pos, tick(200, now), now)
	assert.False(t, d.Exit)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := testEngine()
	now := time.Now()
	pos := openPosition(100, now.Add(-time.Hour))
	tk := tick(103.5, now)

	first := e.Evaluate(pos, tk, now)
	second := e.Evaluate(pos, tk, now)
	assert.Equal(t, first, second)
}
