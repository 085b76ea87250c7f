// Package gormstore implements the position, account and decision stores on
// Gorm + SQLite (WAL mode).
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "alphapilot/internal/store/model"
	"alphapilot/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const accountRowID = 1

// Store implements store.PositionStore.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and migrates) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.PositionModel{},
		&storemodel.AccountModel{},
		&storemodel.DecisionModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for concurrent HTTP reads while
	// keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenPosition writes the new position row and the debited account row in
// one transaction so a crash can never leave an untracked position.
func (s *Store) OpenPosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toPositionModel(pos)).Error; err != nil {
			return fmt.Errorf("insert position %s: %w", pos.Symbol, err)
		}
		if err := upsertAccount(tx, account); err != nil {
			return err
		}
		return nil
	})
}

// ClosePosition updates the position row and the credited account row in
// one transaction.
func (s *Store) ClosePosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&storemodel.PositionModel{}).
			Where("id = ? AND status = ?", pos.ID, string(types.PositionOpen)).
			Updates(map[string]any{
				"status":       string(pos.Status),
				"closed_at":    unixPtr(pos.ClosedAt),
				"exit_price":   pos.ExitPrice,
				"exit_reason":  exitReasonString(pos.ExitReason),
				"realized_pnl": pos.RealizedPnl,
			})
		if res.Error != nil {
			return fmt.Errorf("close position %s: %w", pos.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("close position %s: no open row matched", pos.ID)
		}
		return upsertAccount(tx, account)
	})
}

func upsertAccount(tx *gorm.DB, snap types.AccountSnapshot) error {
	m := storemodel.AccountModel{
		ID:             accountRowID,
		CashAvailable:  snap.CashAvailable,
		InvestedAmount: snap.InvestedAmount,
		RealizedPnl:    snap.RealizedPnl,
		UpdatedAtUnix:  time.Now().Unix(),
	}
	if err := tx.Save(&m).Error; err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) OpenPositions(ctx context.Context) ([]types.Position, error) {
	var rows []storemodel.PositionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(types.PositionOpen)).
		Order("opened_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromPositionModels(rows), nil
}

func (s *Store) RecentPositions(ctx context.Context, limit int) ([]types.Position, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.PositionModel
	err := s.db.WithContext(ctx).
		Order("opened_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromPositionModels(rows), nil
}

func (s *Store) LoadAccount(ctx context.Context) (types.AccountSnapshot, bool, error) {
	var m storemodel.AccountModel
	err := s.db.WithContext(ctx).First(&m, accountRowID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.AccountSnapshot{}, false, nil
		}
		return types.AccountSnapshot{}, false, err
	}
	return types.AccountSnapshot{
		CashAvailable:  m.CashAvailable,
		InvestedAmount: m.InvestedAmount,
		RealizedPnl:    m.RealizedPnl,
		Equity:         m.CashAvailable + m.InvestedAmount,
		UpdatedAt:      time.Unix(m.UpdatedAtUnix, 0),
	}, true, nil
}

func (s *Store) SaveAccount(ctx context.Context, snap types.AccountSnapshot) error {
	return upsertAccount(s.db.WithContext(ctx), snap)
}

func (s *Store) SaveDecision(ctx context.Context, decision types.TradeDecision, outcome string) error {
	reasoning, err := json.Marshal(decision.Reasoning)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}
	m := storemodel.DecisionModel{
		TraceID:            decision.TraceID,
		Symbol:             decision.Symbol,
		Action:             string(decision.Action),
		AdjustedConfidence: decision.AdjustedConfidence,
		ThresholdUsed:      decision.ThresholdUsed,
		Regime:             string(decision.RegimeAtDecision),
		CurrentPrice:       decision.CurrentPrice,
		Outcome:            outcome,
		ReasoningJSON:      datatypes.JSON(reasoning),
		DecidedAtUnix:      decision.DecidedAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert decision %s: %w", decision.TraceID, err)
	}
	return nil
}

func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]types.TradeDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.DecisionModel
	err := s.db.WithContext(ctx).
		Order("decided_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.TradeDecision, 0, len(rows))
	for _, m := range rows {
		var reasoning []string
		_ = json.Unmarshal(m.ReasoningJSON, &reasoning)
		out = append(out, types.TradeDecision{
			TraceID:            m.TraceID,
			Symbol:             m.Symbol,
			Action:             types.TradeAction(m.Action),
			AdjustedConfidence: m.AdjustedConfidence,
			ThresholdUsed:      m.ThresholdUsed,
			RegimeAtDecision:   types.Regime(m.Regime),
			CurrentPrice:       m.CurrentPrice,
			Reasoning:          reasoning,
			DecidedAt:          time.Unix(m.DecidedAtUnix, 0),
		})
	}
	return out, nil
}

func toPositionModel(p *types.Position) *storemodel.PositionModel {
	return &storemodel.PositionModel{
		ID:                p.ID,
		Symbol:            p.Symbol,
		Status:            string(p.Status),
		EntryPrice:        p.EntryPrice,
		Shares:            p.Shares,
		Investment:        p.Investment,
		StopLossPrice:     p.StopLossPrice,
		ProfitTargetPrice: p.ProfitTargetPrice,
		OpenedAtUnix:      p.OpenedAt.Unix(),
		ClosedAtUnix:      unixPtr(p.ClosedAt),
		ExitPrice:         p.ExitPrice,
		ExitReason:        exitReasonString(p.ExitReason),
		RealizedPnl:       p.RealizedPnl,
	}
}

func fromPositionModels(rows []storemodel.PositionModel) []types.Position {
	out := make([]types.Position, 0, len(rows))
	for _, m := range rows {
		p := types.Position{
			ID:                m.ID,
			Symbol:            m.Symbol,
			Status:            types.PositionStatus(m.Status),
			EntryPrice:        m.EntryPrice,
			Shares:            m.Shares,
			Investment:        m.Investment,
			StopLossPrice:     m.StopLossPrice,
			ProfitTargetPrice: m.ProfitTargetPrice,
			OpenedAt:          time.Unix(m.OpenedAtUnix, 0),
			ExitPrice:         m.ExitPrice,
			RealizedPnl:       m.RealizedPnl,
		}
		if m.ClosedAtUnix != nil {
			t := time.Unix(*m.ClosedAtUnix, 0)
			p.ClosedAt = &t
		}
		if m.ExitReason != "" {
			r := types.ExitReason(m.ExitReason)
			p.ExitReason = &r
		}
		out = append(out, p)
	}
	return out
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func exitReasonString(r *types.ExitReason) string {
	if r == nil {
		return ""
	}
	return string(*r)
}
