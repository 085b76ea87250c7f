package model

import (
	"gorm.io/datatypes"
)

// PositionModel maps the position lifecycle record. Rows are never deleted;
// closing a position only flips status and fills the exit columns.
type PositionModel struct {
	ID                string  `gorm:"column:id;primaryKey"`
	Symbol            string  `gorm:"column:symbol;index"`
	Status            string  `gorm:"column:status;index"`
	EntryPrice        float64 `gorm:"column:entry_price"`
	Shares            int64   `gorm:"column:shares"`
	Investment        float64 `gorm:"column:investment"`
	StopLossPrice     float64 `gorm:"column:stop_loss_price"`
	ProfitTargetPrice float64 `gorm:"column:profit_target_price"`
	OpenedAtUnix      int64   `gorm:"column:opened_at"`
	ClosedAtUnix      *int64  `gorm:"column:closed_at"`
	ExitPrice         float64 `gorm:"column:exit_price"`
	ExitReason        string  `gorm:"column:exit_reason"`
	RealizedPnl       *float64 `gorm:"column:realized_pnl"`
}

func (PositionModel) TableName() string { return "positions" }

// AccountModel is the singleton account aggregate, keyed to a fixed row so
// upserts stay trivial.
type AccountModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	CashAvailable  float64 `gorm:"column:cash_available"`
	InvestedAmount float64 `gorm:"column:invested_amount"`
	RealizedPnl    float64 `gorm:"column:realized_pnl"`
	UpdatedAtUnix  int64   `gorm:"column:updated_at"`
}

func (AccountModel) TableName() string { return "account" }

// DecisionModel is one admission attempt, kept even when rejected so the
// decision trail can be audited and replayed in regression tests.
type DecisionModel struct {
	ID                 int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TraceID            string         `gorm:"column:trace_id;uniqueIndex"`
	Symbol             string         `gorm:"column:symbol;index"`
	Action             string         `gorm:"column:action"`
	AdjustedConfidence float64        `gorm:"column:adjusted_confidence"`
	ThresholdUsed      float64        `gorm:"column:threshold_used"`
	Regime             string         `gorm:"column:regime"`
	CurrentPrice       float64        `gorm:"column:current_price"`
	Outcome            string         `gorm:"column:outcome"`
	ReasoningJSON      datatypes.JSON `gorm:"column:reasoning_json;type:TEXT"`
	DecidedAtUnix      int64          `gorm:"column:decided_at;index"`
}

func (DecisionModel) TableName() string { return "trade_decisions" }
