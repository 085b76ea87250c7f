package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alphapilot/internal/exit"
	"alphapilot/internal/market"
	"alphapilot/internal/position"
	"alphapilot/internal/risk"
	"alphapilot/internal/signal"
	"alphapilot/internal/store"
	"alphapilot/internal/tuning"
	"alphapilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore backs the manager and the decision audit trail in memory.
type fakeStore struct {
	mu           sync.Mutex
	positions    map[string]types.Position
	account      *types.AccountSnapshot
	decisions    []string
	failOpenOnce bool

	// When set, OpenPosition signals openEntered and then blocks until
	// openRelease closes or the write context is canceled, so tests can
	// time a stop against an in-flight store write.
	openEntered chan struct{}
	openRelease chan struct{}
}

var _ store.PositionStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{positions: make(map[string]types.Position)}
}

func (s *fakeStore) OpenPosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error {
	if s.openEntered != nil {
		s.openEntered <- struct{}{}
		select {
		case <-s.openRelease:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpenOnce {
		s.failOpenOnce = false
		return errors.New("database is locked")
	}
	s.positions[pos.ID] = *pos
	s.account = &account
	return nil
}

func (s *fakeStore) ClosePosition(ctx context.Context, pos *types.Position, account types.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ID] = *pos
	s.account = &account
	return nil
}

func (s *fakeStore) OpenPositions(ctx context.Context) ([]types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Position
	for _, p := range s.positions {
		if p.Status == types.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) RecentPositions(ctx context.Context, limit int) ([]types.Position, error) {
	return nil, nil
}

func (s *fakeStore) LoadAccount(ctx context.Context) (types.AccountSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return types.AccountSnapshot{}, false, nil
	}
	return *s.account, true, nil
}

func (s *fakeStore) SaveAccount(ctx context.Context, snap types.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = &snap
	return nil
}

func (s *fakeStore) SaveDecision(ctx context.Context, decision types.TradeDecision, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, outcome)
	return nil
}

func (s *fakeStore) RecentDecisions(ctx context.Context, limit int) ([]types.TradeDecision, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) outcomes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.decisions...)
}

type fakeTrend struct{ trendPct float64 }

func (f *fakeTrend) Reading(ctx context.Context) (types.TrendReading, float64, error) {
	return types.TrendReading{Level: 5000, TrendPct: f.trendPct}, 18, nil
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	nowFn  func() time.Time
}

func (f *fakePrices) Latest(ctx context.Context, symbol string) (types.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	if !ok {
		return types.PriceTick{}, errors.New("no quote")
	}
	return types.PriceTick{Symbol: symbol, Price: price, Timestamp: f.nowFn()}, nil
}

func (f *fakePrices) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

type fakePredictions struct {
	mu        sync.Mutex
	pending   []types.PredictionRecord
	delay     time.Duration // simulated round-trip latency
	sinceSeen []time.Time
	repliedAt []time.Time
}

func (f *fakePredictions) Since(ctx context.Context, since time.Time) ([]types.PredictionRecord, error) {
	f.mu.Lock()
	f.sinceSeen = append(f.sinceSeen, since)
	out := f.pending
	f.pending = nil
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.repliedAt = append(f.repliedAt, time.Now())
	f.mu.Unlock()
	return out, nil
}

func (f *fakePredictions) polls() (sinceSeen, repliedAt []time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.sinceSeen...), append([]time.Time(nil), f.repliedAt...)
}

func (f *fakePredictions) push(rec types.PredictionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, rec)
}

func strongPrediction(symbol string, price float64) types.PredictionRecord {
	return types.PredictionRecord{
		Symbol:    symbol,
		Timestamp: time.Now(),
		DirectionByHorizon: map[types.Horizon]bool{
			types.Horizon1h: true, types.Horizon4h: true, types.Horizon1d: true,
		},
		MagnitudeByHorizon: map[types.Horizon]float64{
			types.Horizon1h: 0.5, types.Horizon4h: 1.0, types.Horizon1d: 1.5,
		},
		RawConfidence:  0.85,
		SentimentScore: 0.4,
		TechnicalScore: 75,
		VolumeFactor:   0.6,
		RiskAdjustment: 0.5,
		CurrentPrice:   price,
	}
}

type harness struct {
	controller  *Controller
	manager     *position.Manager
	store       *fakeStore
	prices      *fakePrices
	predictions *fakePredictions
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	st := newFakeStore()
	manager := position.NewManager(st, nil)
	holder := market.NewHolder(&fakeTrend{trendPct: 3.0}, market.NewClassifier(40), 30*time.Minute)
	adjuster := signal.NewAdjuster(signal.StaticTuning(tuning.Defaults()))
	validator := risk.NewValidator(risk.Limits{
		MinPositionUSD:   5000,
		MaxPositionUSD:   15000,
		MaxRiskPerTrade:  0.15,
		MaxAccountRisk:   0.30,
		StopLossFraction: 0.02,
	}, manager)
	engine := exit.NewEngine(exit.Rules{
		ProfitTargetPct: 0.03,
		StopLossPct:     0.02,
		MaxHold:         24 * time.Hour,
		MaxTickAge:      15 * time.Minute,
	})
	prices := &fakePrices{prices: make(map[string]float64), nowFn: time.Now}
	predictions := &fakePredictions{}

	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	if opts.InitialCashUSD == 0 {
		opts.InitialCashUSD = 100000
	}
	controller := NewController(opts, holder, adjuster, validator, manager, engine, prices, predictions, st)
	return &harness{
		controller:  controller,
		manager:     manager,
		store:       st,
		prices:      prices,
		predictions: predictions,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRunAdmitsPredictionAndStopsCleanly(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true})
	h.predictions.push(strongPrediction("AAPL", 180.50))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return h.manager.HasOpen("AAPL") })
	cancel()
	require.NoError(t, <-errCh)

	outcomes := h.store.outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "opened", outcomes[0])

	acct := h.manager.Account()
	assert.Less(t, acct.CashAvailable, 100000.0)
}

func TestUntrackedSymbolIsIgnored(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true})
	h.predictions.push(strongPrediction("TSLA", 250))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.False(t, h.manager.HasOpen("TSLA"))
	assert.Empty(t, h.store.outcomes(), "untracked symbols never reach the adjuster")
}

func TestExitSupervisionClosesOnTarget(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true, TickInterval: 10 * time.Millisecond})
	h.predictions.push(strongPrediction("AAPL", 100))
	h.prices.set("AAPL", 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return h.manager.HasOpen("AAPL") })

	// Price runs through the 3% target; the next tick closes.
	h.prices.set("AAPL", 104)
	waitFor(t, 2*time.Second, func() bool { return !h.manager.HasOpen("AAPL") })

	cancel()
	require.NoError(t, <-errCh)

	acct := h.manager.Account()
	assert.Greater(t, acct.RealizedPnl, 0.0)
	assert.InDelta(t, 100000+acct.RealizedPnl, acct.CashAvailable, 0.01)
}

func TestPersistenceFailureHaltsRun(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true, TickInterval: 10 * time.Millisecond})
	h.store.failOpenOnce = true
	h.predictions.push(strongPrediction("AAPL", 180.50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := h.controller.Run(ctx)
	var perr *position.PersistenceError
	require.True(t, errors.As(err, &perr), "expected PersistenceError, got %v", err)
	assert.False(t, h.manager.HasOpen("AAPL"))
}

func TestStopMidTickFinishesInFlightOpen(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true})
	h.store.openEntered = make(chan struct{}, 1)
	h.store.openRelease = make(chan struct{})
	h.predictions.push(strongPrediction("AAPL", 180.50))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	// Stop arrives while the open's store write is in flight.
	<-h.store.openEntered
	cancel()
	close(h.store.openRelease)

	require.NoError(t, <-errCh, "a graceful stop must not surface as a persistence failure")
	assert.True(t, h.manager.HasOpen("AAPL"), "the decided open must complete before Run returns")

	outcomes := h.store.outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "opened", outcomes[0])
}

func TestPredictionWatermarkPredatesFetch(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true, TickInterval: 10 * time.Millisecond})
	h.predictions.delay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		sinceSeen, _ := h.predictions.polls()
		return len(sinceSeen) >= 2
	})
	cancel()
	require.NoError(t, <-errCh)

	// The second poll's watermark must predate the first poll's reply: a
	// record published while the request was in flight still matches the
	// next since filter instead of being skipped for good.
	sinceSeen, repliedAt := h.predictions.polls()
	assert.True(t, sinceSeen[1].Before(repliedAt[0]),
		"watermark %v is not before first reply %v", sinceSeen[1], repliedAt[0])
}

func TestDuplicateSignalRejectedNextTick(t *testing.T) {
	h := newHarness(t, Options{Symbols: []string{"AAPL"}, RunImmediately: true, TickInterval: 10 * time.Millisecond})
	h.predictions.push(strongPrediction("AAPL", 100))
	h.prices.set("AAPL", 100.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- h.controller.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return h.manager.HasOpen("AAPL") })

	// A second strong signal for the same symbol is a risk rejection.
	h.predictions.push(strongPrediction("AAPL", 101))
	waitFor(t, 2*time.Second, func() bool { return len(h.store.outcomes()) >= 2 })

	cancel()
	require.NoError(t, <-errCh)

	outcomes := h.store.outcomes()
	assert.Equal(t, "opened", outcomes[0])
	assert.Equal(t, "rejected: DUPLICATE_SYMBOL", outcomes[1])
}

func TestLatestPerSymbolKeepsNewest(t *testing.T) {
	old := strongPrediction("AAPL", 100)
	old.Timestamp = time.Now().Add(-time.Hour)
	newer := strongPrediction("AAPL", 102)
	other := strongPrediction("MSFT", 400)

	out := latestPerSymbol([]types.PredictionRecord{old, newer, other})
	require.Len(t, out, 2)
	for _, p := range out {
		if p.Symbol == "AAPL" {
			assert.InDelta(t, 102, p.CurrentPrice, 1e-9)
		}
	}
}
