// Package risk admits or rejects proposed trades against position-size
// bounds, per-trade risk and aggregate account risk.
package risk

import (
	"fmt"

	"alphapilot/internal/pkg/trading"
	"alphapilot/internal/types"
)

// Rule names the ordered admission checks. The first failing rule wins.
type Rule string

const (
	RuleDuplicateSymbol     Rule = "DUPLICATE_SYMBOL"
	RuleNotActionable       Rule = "NOT_ACTIONABLE"
	RuleInsufficientFunds   Rule = "INSUFFICIENT_FUNDS"
	RuleRiskPerTrade        Rule = "RISK_PER_TRADE_EXCEEDED"
	RuleAccountRiskExceeded Rule = "ACCOUNT_RISK_EXCEEDED"
)

// Rejection is an expected, frequent outcome; it is logged at INFO by the
// caller and never treated as a system error.
type Rejection struct {
	Rule   Rule
	Symbol string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("trade rejected (%s) for %s: %s", r.Rule, r.Symbol, r.Detail)
}

// ApprovedSize carries the admitted dollar size and derived share count.
type ApprovedSize struct {
	SizeUSD float64
	Shares  int64
}

// BookView is the read surface of the position manager the validator needs:
// duplicate detection and the aggregate open risk.
type BookView interface {
	HasOpen(symbol string) bool
	OpenRiskUSD() float64
}

// Limits holds the deployment-wide risk parameters.
type Limits struct {
	MinPositionUSD   float64
	MaxPositionUSD   float64
	MaxRiskPerTrade  float64
	MaxAccountRisk   float64
	StopLossFraction float64
}

// Validator applies the admission rules in order, short-circuiting on the
// first failure.
type Validator struct {
	limits Limits
	book   BookView
}

func NewValidator(limits Limits, book BookView) *Validator {
	return &Validator{limits: limits, book: book}
}

// Validate sizes the candidate trade and checks it against the account.
// SELL-class actions are not sized here; they only reduce existing
// positions and are handled by the position manager directly.
func (v *Validator) Validate(decision types.TradeDecision, account types.AccountSnapshot) (ApprovedSize, error) {
	if v.book.HasOpen(decision.Symbol) {
		return ApprovedSize{}, &Rejection{Rule: RuleDuplicateSymbol, Symbol: decision.Symbol,
			Detail: "an open position already exists"}
	}
	if !decision.Action.IsBuy() {
		return ApprovedSize{}, &Rejection{Rule: RuleNotActionable, Symbol: decision.Symbol,
			Detail: fmt.Sprintf("action %s does not open positions", decision.Action)}
	}

	size := trading.ConfidenceScaledSize(decision.AdjustedConfidence, v.limits.MinPositionUSD, v.limits.MaxPositionUSD)
	shares := trading.SharesFor(size, decision.CurrentPrice)
	if shares <= 0 {
		return ApprovedSize{}, &Rejection{Rule: RuleNotActionable, Symbol: decision.Symbol,
			Detail: fmt.Sprintf("size %.2f buys zero shares at price %.2f", size, decision.CurrentPrice)}
	}

	if size > account.CashAvailable {
		return ApprovedSize{}, &Rejection{Rule: RuleInsufficientFunds, Symbol: decision.Symbol,
			Detail: fmt.Sprintf("size %.2f exceeds available cash %.2f", size, account.CashAvailable)}
	}

	equity := account.Equity
	if equity <= 0 {
		equity = account.CashAvailable + account.InvestedAmount
	}
	tradeRisk := size * v.limits.StopLossFraction
	if tradeRisk > v.limits.MaxRiskPerTrade*equity {
		return ApprovedSize{}, &Rejection{Rule: RuleRiskPerTrade, Symbol: decision.Symbol,
			Detail: fmt.Sprintf("trade risk %.2f exceeds %.0f%% of equity %.2f",
				tradeRisk, v.limits.MaxRiskPerTrade*100, equity)}
	}
	if v.book.OpenRiskUSD()+tradeRisk > v.limits.MaxAccountRisk*equity {
		return ApprovedSize{}, &Rejection{Rule: RuleAccountRiskExceeded, Symbol: decision.Symbol,
			Detail: fmt.Sprintf("open risk %.2f plus trade risk %.2f exceeds %.0f%% of equity %.2f",
				v.book.OpenRiskUSD(), tradeRisk, v.limits.MaxAccountRisk*100, equity)}
	}

	return ApprovedSize{SizeUSD: size, Shares: shares}, nil
}
