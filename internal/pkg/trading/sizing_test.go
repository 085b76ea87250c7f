package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceScaledSize(t *testing.T) {
	assert.InDelta(t, 10650, ConfidenceScaledSize(0.71, 5000, 15000), 1e-9)
	assert.InDelta(t, 5000, ConfidenceScaledSize(0.10, 5000, 15000), 1e-9, "clamped to min")
	assert.InDelta(t, 15000, ConfidenceScaledSize(1.5, 5000, 15000), 1e-9, "clamped to max")
	assert.Zero(t, ConfidenceScaledSize(0.5, -1, 15000))
	assert.Zero(t, ConfidenceScaledSize(0.5, 20000, 15000))
}

func TestSharesFor(t *testing.T) {
	assert.Equal(t, int64(59), SharesFor(10650, 180.50))
	assert.Equal(t, int64(0), SharesFor(5000, 700000))
	assert.Equal(t, int64(0), SharesFor(0, 100))
	assert.Equal(t, int64(0), SharesFor(5000, 0))
}

func TestMoneyArithmeticStaysOnCents(t *testing.T) {
	// Classic float trap: 0.1 + 0.2.
	assert.InDelta(t, 0.3, AddMoney(0.1, 0.2), 1e-12)
	assert.InDelta(t, 0.1, SubMoney(0.3, 0.2), 1e-12)

	cash := 100000.0
	for i := 0; i < 1000; i++ {
		cash = SubMoney(cash, 33.33)
		cash = AddMoney(cash, 33.33)
	}
	assert.InDelta(t, 100000.0, cash, 1e-12)
}

func TestInvestmentAndRealizedPnl(t *testing.T) {
	assert.InDelta(t, 9025.00, Investment(50, 180.50), 1e-9)
	assert.InDelta(t, 125.00, RealizedPnl(180.50, 183.00, 50), 1e-9)
	assert.InDelta(t, -125.00, RealizedPnl(183.00, 180.50, 50), 1e-9)
	assert.Zero(t, Investment(0, 180.50))
}
