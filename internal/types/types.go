package types

import (
	"time"
)

// Regime is the discrete market condition derived from the benchmark trend.
type Regime string

const (
	RegimeBearish Regime = "BEARISH"
	RegimeNeutral Regime = "NEUTRAL"
	RegimeBullish Regime = "BULLISH"
)

// TradeAction is the bounded action set produced by the signal adjuster.
type TradeAction string

const (
	ActionStrongBuy  TradeAction = "STRONG_BUY"
	ActionBuy        TradeAction = "BUY"
	ActionHold       TradeAction = "HOLD"
	ActionSell       TradeAction = "SELL"
	ActionStrongSell TradeAction = "STRONG_SELL"
)

// IsBuy reports whether the action admits a new long position.
func (a TradeAction) IsBuy() bool {
	return a == ActionBuy || a == ActionStrongBuy
}

// IsSell reports whether the action reduces or closes an existing position.
func (a TradeAction) IsSell() bool {
	return a == ActionSell || a == ActionStrongSell
}

// ExitReason names the rule that terminated a position.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitMaxHoldTime  ExitReason = "MAX_HOLD_TIME"
	ExitManual       ExitReason = "MANUAL"
)

// PositionStatus is OPEN or CLOSED. Positions are never deleted.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Horizon identifies a prediction horizon.
type Horizon string

const (
	Horizon1h Horizon = "1h"
	Horizon4h Horizon = "4h"
	Horizon1d Horizon = "1d"
)

// Horizons lists the supported horizons from shortest to longest.
var Horizons = []Horizon{Horizon1h, Horizon4h, Horizon1d}

// MarketContext is an immutable snapshot of the classified benchmark state.
// Consumers must treat it as read-only within one decision cycle.
type MarketContext struct {
	Level                float64   `json:"level"`
	TrendPct             float64   `json:"trend_pct"`
	Regime               Regime    `json:"regime"`
	ConfidenceMultiplier float64   `json:"confidence_multiplier"`
	BuyThreshold         float64   `json:"buy_threshold"`
	VolatilityPct        float64   `json:"volatility_pct"`
	StressOverride       bool      `json:"stress_override"`
	Stale                bool      `json:"stale"`
	ComputedAt           time.Time `json:"computed_at"`
}

// Expired reports whether the context is older than ttl.
func (c MarketContext) Expired(ttl time.Duration, now time.Time) bool {
	if c.ComputedAt.IsZero() {
		return true
	}
	return now.Sub(c.ComputedAt) >= ttl
}

// PredictionRecord is the validated input from the external ML pipeline.
// All ranges are checked at ingestion; out-of-range payloads never reach
// the adjuster.
type PredictionRecord struct {
	Symbol             string              `json:"symbol"`
	Timestamp          time.Time           `json:"timestamp"`
	DirectionByHorizon map[Horizon]bool    `json:"direction_by_horizon"`
	MagnitudeByHorizon map[Horizon]float64 `json:"magnitude_by_horizon"`
	RawConfidence      float64             `json:"raw_confidence"`
	SentimentScore     float64             `json:"sentiment_score"`
	TechnicalScore     float64             `json:"technical_score"`
	VolumeFactor       float64             `json:"volume_factor"`
	RiskAdjustment     float64             `json:"risk_adjustment"`
	CurrentPrice       float64             `json:"current_price"`
}

// TradeDecision is the immutable output of one admission attempt. It is
// persisted even when rejected so the audit trail stays complete.
type TradeDecision struct {
	TraceID            string      `json:"trace_id"`
	Symbol             string      `json:"symbol"`
	Action             TradeAction `json:"action"`
	AdjustedConfidence float64     `json:"adjusted_confidence"`
	ThresholdUsed      float64     `json:"threshold_used"`
	RegimeAtDecision   Regime      `json:"regime_at_decision"`
	CurrentPrice       float64     `json:"current_price"`
	Reasoning          []string    `json:"reasoning"`
	DecidedAt          time.Time   `json:"decided_at"`
}

// Position is one open-to-close trade lifecycle record for a single symbol.
// It is owned exclusively by the position manager.
type Position struct {
	ID                string         `json:"id"`
	Symbol            string         `json:"symbol"`
	Status            PositionStatus `json:"status"`
	EntryPrice        float64        `json:"entry_price"`
	Shares            int64          `json:"shares"`
	Investment        float64        `json:"investment"`
	StopLossPrice     float64        `json:"stop_loss_price"`
	ProfitTargetPrice float64        `json:"profit_target_price"`
	OpenedAt          time.Time      `json:"opened_at"`
	ClosedAt          *time.Time     `json:"closed_at,omitempty"`
	ExitPrice         float64        `json:"exit_price,omitempty"`
	ExitReason        *ExitReason    `json:"exit_reason,omitempty"`
	RealizedPnl       *float64       `json:"realized_pnl,omitempty"`
}

// UnrealizedPnl returns the mark-to-market P&L at price. Zero for closed
// positions.
func (p Position) UnrealizedPnl(price float64) float64 {
	if p.Status != PositionOpen || price <= 0 {
		return 0
	}
	return (price - p.EntryPrice) * float64(p.Shares)
}

// AccountSnapshot is a read-only copy of the aggregate account state.
type AccountSnapshot struct {
	CashAvailable  float64   `json:"cash_available"`
	InvestedAmount float64   `json:"invested_amount"`
	RealizedPnl    float64   `json:"realized_pnl"`
	UnrealizedPnl  float64   `json:"unrealized_pnl"`
	Equity         float64   `json:"equity"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PriceTick is one price observation from the market data collaborator.
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendReading is one benchmark-index observation used to classify the
// regime: current level plus the signed 5-day percent change.
type TrendReading struct {
	Level     float64   `json:"level"`
	TrendPct  float64   `json:"trend_pct"`
	Timestamp time.Time `json:"timestamp"`
}

// LifecycleEventType tags entries in the append-only lifecycle log.
type LifecycleEventType string

const (
	EventOpened LifecycleEventType = "OPENED"
	EventClosed LifecycleEventType = "CLOSED"
)

// LifecycleEvent is one entry in the append-only position event log consumed
// by dashboards and reporting.
type LifecycleEvent struct {
	PositionID string             `json:"position_id"`
	Symbol     string             `json:"symbol"`
	Event      LifecycleEventType `json:"event"`
	Reason     string             `json:"reason,omitempty"`
	Price      float64            `json:"price"`
	Shares     int64              `json:"shares"`
	Timestamp  time.Time          `json:"timestamp"`
}
