package store

import (
	"context"

	"alphapilot/internal/types"
)

// PositionStore persists positions, the account aggregate and the decision
// audit trail. Open and Close are single transactions: the position row and
// the account row change together or not at all.
type PositionStore interface {
	// OpenPosition inserts the position and debits the account in one
	// transaction.
	OpenPosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error
	// ClosePosition updates the position row and credits the account in one
	// transaction.
	ClosePosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error

	// OpenPositions returns every position still marked OPEN, for restart
	// recovery.
	OpenPositions(ctx context.Context) ([]types.Position, error)
	// RecentPositions returns the newest positions regardless of status.
	RecentPositions(ctx context.Context, limit int) ([]types.Position, error)

	// LoadAccount returns the persisted account row; ok is false when no row
	// exists yet (first run).
	LoadAccount(ctx context.Context) (snap types.AccountSnapshot, ok bool, err error)
	// SaveAccount upserts the account row outside a position transaction
	// (initial seeding, mark-to-market refresh).
	SaveAccount(ctx context.Context, snap types.AccountSnapshot) error

	// SaveDecision appends one admission attempt to the audit trail,
	// approved or rejected.
	SaveDecision(ctx context.Context, decision types.TradeDecision, outcome string) error
	// RecentDecisions returns the newest decisions.
	RecentDecisions(ctx context.Context, limit int) ([]types.TradeDecision, error)

	Close() error
}

// EventStore is the append-only lifecycle event log consumed by dashboards
// and reporting.
type EventStore interface {
	Append(ctx context.Context, evt types.LifecycleEvent) error
	Recent(ctx context.Context, limit int) ([]types.LifecycleEvent, error)
	Close() error
}
