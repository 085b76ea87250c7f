// Package position owns the set of open positions and the account
// aggregate. Every open and close rewrites the singleton account row, so
// all mutations flow through the Manager under one write lock held across
// the persist, with position and account stored in one transaction.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/pkg/trading"
	"alphapilot/internal/store"
	"alphapilot/internal/types"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateSymbol is the concurrency-conflict re-check inside Open:
	// the validator already screened duplicates, but a racing tick can slip
	// between validation and open. Treated as a no-op by callers.
	ErrDuplicateSymbol = errors.New("symbol already has an open position")
	ErrNotFound        = errors.New("position not found")
	ErrAlreadyClosed   = errors.New("position already closed")
)

// PersistenceError wraps a failed position/account write. It is fatal: the
// controller must halt new decisions rather than run with state it cannot
// track.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Manager is the only writer of positions and the account.
type Manager struct {
	store  store.PositionStore
	events store.EventStore

	// writeMu serializes the whole read-mutate-persist-swap sequence of
	// Open and Close. Each of them bases its new account on the current
	// snapshot; overlapping writers would erase each other's debits.
	writeMu sync.Mutex

	mu         sync.RWMutex
	open       map[string]*types.Position // keyed by symbol
	byID       map[string]string          // position id -> symbol
	account    types.AccountSnapshot
	unrealized float64

	nowFn func() time.Time
}

func NewManager(posStore store.PositionStore, events store.EventStore) *Manager {
	return &Manager{
		store:  posStore,
		events: events,
		open:   make(map[string]*types.Position),
		byID:   make(map[string]string),
		nowFn:  time.Now,
	}
}

// Recover reloads the account row and every OPEN position from the store so
// a restart resumes monitoring exactly where the previous run stopped. No
// new decisions are derived for recovered positions.
func (m *Manager) Recover(ctx context.Context, initialCash float64) error {
	snap, ok, err := m.store.LoadAccount(ctx)
	if err != nil {
		return &PersistenceError{Op: "account load", Err: err}
	}
	if !ok {
		snap = types.AccountSnapshot{CashAvailable: initialCash, UpdatedAt: m.nowFn()}
		if err := m.store.SaveAccount(ctx, snap); err != nil {
			return &PersistenceError{Op: "account seed", Err: err}
		}
		logger.Infof("position manager: seeded new account with cash=%.2f", initialCash)
	}

	positions, err := m.store.OpenPositions(ctx)
	if err != nil {
		return &PersistenceError{Op: "open position load", Err: err}
	}

	m.mu.Lock()
	m.account = snap
	m.open = make(map[string]*types.Position, len(positions))
	m.byID = make(map[string]string, len(positions))
	for i := range positions {
		p := positions[i]
		m.open[p.Symbol] = &p
		m.byID[p.ID] = p.Symbol
	}
	m.mu.Unlock()

	logger.Infof("position manager: recovered %d open positions, cash=%.2f invested=%.2f",
		len(positions), snap.CashAvailable, snap.InvestedAmount)
	return nil
}

// Open creates a position after risk approval. The duplicate check is
// re-run under the write lock to close the race window between validation
// and open under concurrent ticks.
func (m *Manager) Open(ctx context.Context, symbol string, price float64, shares int64, stopLoss, profitTarget float64) (types.Position, error) {
	if shares <= 0 {
		return types.Position{}, fmt.Errorf("open %s: shares must be positive", symbol)
	}
	if !(stopLoss > 0 && stopLoss < price && price < profitTarget) {
		return types.Position{}, fmt.Errorf("open %s: require 0 < stop %.2f < entry %.2f < target %.2f",
			symbol, stopLoss, price, profitTarget)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	_, exists := m.open[symbol]
	account := m.account
	m.mu.RUnlock()
	if exists {
		return types.Position{}, ErrDuplicateSymbol
	}

	investment := trading.Investment(shares, price)
	if investment > account.CashAvailable {
		return types.Position{}, fmt.Errorf("open %s: investment %.2f exceeds cash %.2f", symbol, investment, account.CashAvailable)
	}

	now := m.nowFn()
	pos := types.Position{
		ID:                uuid.NewString(),
		Symbol:            symbol,
		Status:            types.PositionOpen,
		EntryPrice:        price,
		Shares:            shares,
		Investment:        investment,
		StopLossPrice:     stopLoss,
		ProfitTargetPrice: profitTarget,
		OpenedAt:          now,
	}
	newAccount := account
	newAccount.CashAvailable = trading.SubMoney(account.CashAvailable, investment)
	newAccount.InvestedAmount = trading.AddMoney(account.InvestedAmount, investment)
	newAccount.UpdatedAt = now

	if err := m.store.OpenPosition(ctx, &pos, newAccount); err != nil {
		return types.Position{}, &PersistenceError{Op: "open " + symbol, Err: err}
	}

	m.mu.Lock()
	m.open[symbol] = &pos
	m.byID[pos.ID] = symbol
	m.account = newAccount
	m.mu.Unlock()

	m.appendEvent(ctx, types.LifecycleEvent{
		PositionID: pos.ID,
		Symbol:     symbol,
		Event:      types.EventOpened,
		Price:      price,
		Shares:     shares,
		Timestamp:  now,
	})
	logger.Infof("position opened: %s shares=%d entry=%.2f stop=%.2f target=%.2f investment=%.2f",
		symbol, shares, price, stopLoss, profitTarget, investment)
	return pos, nil
}

// Close terminates the position and settles the account in one transaction.
func (m *Manager) Close(ctx context.Context, positionID string, exitPrice float64, reason types.ExitReason) (types.Position, error) {
	if exitPrice <= 0 {
		return types.Position{}, fmt.Errorf("close %s: exit price must be positive", positionID)
	}

	m.mu.RLock()
	symbol, ok := m.byID[positionID]
	m.mu.RUnlock()
	if !ok {
		return types.Position{}, ErrNotFound
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	cur, exists := m.open[symbol]
	account := m.account
	m.mu.RUnlock()
	if !exists || cur.ID != positionID {
		return types.Position{}, ErrAlreadyClosed
	}

	now := m.nowFn()
	pnl := trading.RealizedPnl(cur.EntryPrice, exitPrice, cur.Shares)
	closed := *cur
	closed.Status = types.PositionClosed
	closed.ClosedAt = &now
	closed.ExitPrice = exitPrice
	closed.ExitReason = &reason
	closed.RealizedPnl = &pnl

	newAccount := account
	newAccount.InvestedAmount = trading.SubMoney(account.InvestedAmount, cur.Investment)
	newAccount.CashAvailable = trading.AddMoney(account.CashAvailable, trading.AddMoney(cur.Investment, pnl))
	newAccount.RealizedPnl = trading.AddMoney(account.RealizedPnl, pnl)
	newAccount.UpdatedAt = now

	if err := m.store.ClosePosition(ctx, &closed, newAccount); err != nil {
		return types.Position{}, &PersistenceError{Op: "close " + symbol, Err: err}
	}

	m.mu.Lock()
	delete(m.open, symbol)
	delete(m.byID, positionID)
	m.account = newAccount
	m.mu.Unlock()

	m.appendEvent(ctx, types.LifecycleEvent{
		PositionID: closed.ID,
		Symbol:     symbol,
		Event:      types.EventClosed,
		Reason:     string(reason),
		Price:      exitPrice,
		Shares:     closed.Shares,
		Timestamp:  now,
	})
	logger.Infof("position closed: %s reason=%s exit=%.2f pnl=%.2f", symbol, reason, exitPrice, pnl)
	return closed, nil
}

// MarkToMarket returns the unrealized P&L of the symbol's open position at
// the given price. Pure read.
func (m *Manager) MarkToMarket(symbol string, currentPrice float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.open[symbol]
	if !ok {
		return 0
	}
	return p.UnrealizedPnl(currentPrice)
}

// RefreshUnrealized recomputes the account-level unrealized P&L from the
// supplied prices. Symbols without a quote keep contributing zero.
func (m *Manager) RefreshUnrealized(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for symbol, p := range m.open {
		if price, ok := prices[symbol]; ok {
			total += p.UnrealizedPnl(price)
		}
	}
	m.unrealized = total
}

// HasOpen reports whether symbol currently has an OPEN position.
func (m *Manager) HasOpen(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.open[symbol]
	return ok
}

// OpenRiskUSD sums the loss each open position would realize at its stop.
func (m *Manager) OpenRiskUSD() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.open {
		total += (p.EntryPrice - p.StopLossPrice) * float64(p.Shares)
	}
	return total
}

// OpenPositionsSnapshot returns copies of every open position.
func (m *Manager) OpenPositionsSnapshot() []types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// Account returns the current account snapshot including derived fields.
func (m *Manager) Account() types.AccountSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.account
	snap.UnrealizedPnl = m.unrealized
	snap.Equity = snap.CashAvailable + snap.InvestedAmount
	return snap
}

// appendEvent writes to the lifecycle log. The log is an output stream, not
// tracked state, so a failed append degrades to a warning instead of
// halting the engine.
func (m *Manager) appendEvent(ctx context.Context, evt types.LifecycleEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Append(ctx, evt); err != nil {
		logger.Warnf("lifecycle event append failed (%s %s): %v", evt.Event, evt.Symbol, err)
	}
}
