// Package trading provides position sizing arithmetic. Dollar math goes
// through decimal so repeated open/close cycles do not accumulate float
// drift in the account.
package trading

import (
	"github.com/shopspring/decimal"
)

// ConfidenceScaledSize scales the maximum position size by confidence and
// clamps the result into [minSize, maxSize]. A zero-confidence signal still
// yields minSize; callers gate on action before sizing.
func ConfidenceScaledSize(confidence, minSize, maxSize float64) float64 {
	if maxSize <= 0 || minSize < 0 || minSize > maxSize {
		return 0
	}
	size := decimal.NewFromFloat(maxSize).Mul(decimal.NewFromFloat(confidence))
	lo := decimal.NewFromFloat(minSize)
	hi := decimal.NewFromFloat(maxSize)
	if size.LessThan(lo) {
		size = lo
	}
	if size.GreaterThan(hi) {
		size = hi
	}
	f, _ := size.Round(2).Float64()
	return f
}

// SharesFor returns floor(sizeUSD / price). Zero when either input is not
// positive.
func SharesFor(sizeUSD, price float64) int64 {
	if sizeUSD <= 0 || price <= 0 {
		return 0
	}
	return decimal.NewFromFloat(sizeUSD).Div(decimal.NewFromFloat(price)).IntPart()
}

// Investment returns shares * price rounded to cents.
func Investment(shares int64, price float64) float64 {
	if shares <= 0 || price <= 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(shares).Mul(decimal.NewFromFloat(price)).Round(2).Float64()
	return f
}

// RealizedPnl returns (exit - entry) * shares rounded to cents.
func RealizedPnl(entry, exit float64, shares int64) float64 {
	f, _ := decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(shares)).
		Round(2).Float64()
	return f
}

// AddMoney adds two dollar amounts with cent precision.
func AddMoney(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// SubMoney subtracts b from a with cent precision.
func SubMoney(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}
