// Package lifecycle hosts the scheduling loop that ties the engine
// together: refresh market context, supervise open positions, admit new
// signals. One coordinator, one worker per symbol per tick.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"alphapilot/internal/exit"
	"alphapilot/internal/logger"
	"alphapilot/internal/market"
	"alphapilot/internal/position"
	"alphapilot/internal/risk"
	"alphapilot/internal/scheduler"
	"alphapilot/internal/signal"
	"alphapilot/internal/store"
	"alphapilot/internal/types"

	"golang.org/x/sync/errgroup"
)

// PriceSource delivers the latest tick for one symbol.
type PriceSource interface {
	Latest(ctx context.Context, symbol string) (types.PriceTick, error)
}

// PredictionSource delivers prediction records newer than a watermark.
type PredictionSource interface {
	Since(ctx context.Context, since time.Time) ([]types.PredictionRecord, error)
}

// Options configure the controller loop.
type Options struct {
	Symbols        []string
	TickInterval   time.Duration
	FeedTimeout    time.Duration
	InitialCashUSD float64
	RunImmediately bool
}

// Controller owns the periodic tick. All decision components are pure
// request/response; the position manager is the only side-effecting
// dependency and carries its own locking.
type Controller struct {
	opts        Options
	holder      *market.Holder
	adjuster    *signal.Adjuster
	validator   *risk.Validator
	manager     *position.Manager
	engine      *exit.Engine
	prices      PriceSource
	predictions PredictionSource
	decisions   store.PositionStore

	symbols  map[string]bool
	lastPoll time.Time
	nowFn    func() time.Time

	fatalMu  sync.Mutex
	fatalErr error
	halt     context.CancelFunc
}

func NewController(
	opts Options,
	holder *market.Holder,
	adjuster *signal.Adjuster,
	validator *risk.Validator,
	manager *position.Manager,
	engine *exit.Engine,
	prices PriceSource,
	predictions PredictionSource,
	decisions store.PositionStore,
) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = 10 * time.Second
	}
	symbols := make(map[string]bool, len(opts.Symbols))
	for _, s := range opts.Symbols {
		symbols[s] = true
	}
	return &Controller{
		opts:        opts,
		holder:      holder,
		adjuster:    adjuster,
		validator:   validator,
		manager:     manager,
		engine:      engine,
		prices:      prices,
		predictions: predictions,
		decisions:   decisions,
		symbols:     symbols,
		nowFn:       time.Now,
	}
}

// Run recovers persisted state, then blocks driving ticks until the context
// is canceled or a persistence failure halts the loop. The in-flight tick
// always finishes before Run returns, so no open/close is left half done.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.manager.Recover(ctx, c.opts.InitialCashUSD); err != nil {
		return err
	}
	c.lastPoll = c.nowFn().Add(-c.opts.TickInterval)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.fatalMu.Lock()
	c.halt = cancel
	c.fatalMu.Unlock()

	sched := scheduler.NewIntervalScheduler(loopCtx, c.opts.TickInterval)
	sched.RunImmediately = c.opts.RunImmediately
	// The tick body is detached from the stop signal: cancellation is
	// observed between ticks by the scheduler, never mid-mutation. A stop
	// arriving while a store write is in flight would otherwise surface as
	// a spurious persistence failure and drop the decided open/close.
	tickCtx := context.WithoutCancel(ctx)
	sched.Start(func() { c.tick(tickCtx) })

	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	if c.fatalErr != nil {
		return c.fatalErr
	}
	return nil
}

// fail records the first fatal error and stops the loop after the current
// tick. Later decisions must not run against state the store rejected.
func (c *Controller) fail(err error) {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	if c.fatalErr == nil {
		c.fatalErr = err
		logger.Errorf("lifecycle halting: %v", err)
		if c.halt != nil {
			c.halt()
		}
	}
}

func (c *Controller) halted() bool {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr != nil
}

func (c *Controller) tick(ctx context.Context) {
	if c.halted() {
		return
	}
	started := c.nowFn()
	mktCtx := c.holder.EnsureFresh(ctx)

	prices := c.superviseOpenPositions(ctx)
	if !c.halted() {
		c.admitNewSignals(ctx, mktCtx, prices)
	}

	c.manager.RefreshUnrealized(prices)
	open := c.manager.OpenPositionsSnapshot()
	if len(open) > 0 {
		logger.InfoBlock(position.RenderBook(open, c.manager.Account(), prices))
	}
	logger.Infof("tick done in %s: open=%d regime=%s stale=%v",
		c.nowFn().Sub(started).Truncate(time.Millisecond), len(open), mktCtx.Regime, mktCtx.Stale)
}

// superviseOpenPositions fetches a price per open symbol and runs the exit
// rules, closing on the first match. Symbols are independent and evaluated
// concurrently; a timed-out fetch skips the symbol until the next cycle.
func (c *Controller) superviseOpenPositions(ctx context.Context) map[string]float64 {
	open := c.manager.OpenPositionsSnapshot()
	prices := make(map[string]float64, len(open))
	var pricesMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, pos := range open {
		pos := pos
		g.Go(func() error {
			tick, err := c.fetchPrice(gctx, pos.Symbol)
			if err != nil {
				logger.Infof("tick skipped for %s: price fetch failed (%v), retrying next cycle", pos.Symbol, err)
				return nil
			}
			pricesMu.Lock()
			prices[pos.Symbol] = tick.Price
			pricesMu.Unlock()

			decision := c.engine.Evaluate(pos, tick, c.nowFn())
			if !decision.Exit {
				return nil
			}
			logger.Infof("exit triggered for %s: %s (%s)", pos.Symbol, decision.Reason, decision.Detail)
			if _, err := c.manager.Close(gctx, pos.ID, tick.Price, decision.Reason); err != nil {
				c.handleMutationError("close", pos.Symbol, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return prices
}

// admitNewSignals pulls fresh predictions and runs each through the
// adjust -> validate -> open pipeline, one worker per symbol.
func (c *Controller) admitNewSignals(ctx context.Context, mktCtx types.MarketContext, prices map[string]float64) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FeedTimeout)
	defer cancel()
	// Capture the watermark before the fetch: a record published while the
	// request is in flight must still match the next poll's since filter.
	// The worst case is a re-fetch, which latestPerSymbol and the duplicate
	// check absorb; a skip would lose the record for good.
	polledAt := c.nowFn()
	preds, err := c.predictions.Since(fetchCtx, c.lastPoll)
	if err != nil {
		logger.Infof("prediction poll skipped (%v), retrying next cycle", err)
		return
	}
	c.lastPoll = polledAt
	preds = latestPerSymbol(preds)

	var pricesMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, pred := range preds {
		pred := pred
		if !c.symbols[pred.Symbol] {
			logger.Debugf("ignoring prediction for untracked symbol %s", pred.Symbol)
			continue
		}
		g.Go(func() error {
			c.processPrediction(gctx, pred, mktCtx)
			pricesMu.Lock()
			if _, ok := prices[pred.Symbol]; !ok && pred.CurrentPrice > 0 {
				prices[pred.Symbol] = pred.CurrentPrice
			}
			pricesMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Controller) processPrediction(ctx context.Context, pred types.PredictionRecord, mktCtx types.MarketContext) {
	decision := c.adjuster.Adjust(pred, mktCtx)
	outcome := c.applyDecision(ctx, decision)
	if err := c.decisions.SaveDecision(ctx, decision, outcome); err != nil {
		// The audit trail is valuable but not tracked state; a lost row is
		// not a reason to halt trading.
		logger.Warnf("decision audit write failed for %s: %v", decision.Symbol, err)
	}
}

func (c *Controller) applyDecision(ctx context.Context, decision types.TradeDecision) string {
	switch {
	case decision.Action.IsBuy():
		return c.applyBuy(ctx, decision)
	case decision.Action.IsSell():
		return c.applySell(ctx, decision)
	default:
		return "hold"
	}
}

func (c *Controller) applyBuy(ctx context.Context, decision types.TradeDecision) string {
	if !c.holder.Usable(c.holder.Current()) {
		logger.Infof("refusing BUY %s: market context is stale beyond TTL", decision.Symbol)
		return "rejected: stale market context"
	}
	approved, err := c.validator.Validate(decision, c.manager.Account())
	if err != nil {
		var rej *risk.Rejection
		if errors.As(err, &rej) {
			logger.Infof("%v", rej)
			return "rejected: " + string(rej.Rule)
		}
		logger.Warnf("risk validation error for %s: %v", decision.Symbol, err)
		return "rejected: validation error"
	}

	stop, target := c.engine.TargetsFor(decision.CurrentPrice)
	if _, err := c.manager.Open(ctx, decision.Symbol, decision.CurrentPrice, approved.Shares, stop, target); err != nil {
		if errors.Is(err, position.ErrDuplicateSymbol) {
			// Lost the race to a concurrent open; by design a no-op.
			logger.Infof("concurrent open for %s resolved to no-op", decision.Symbol)
			return "rejected: DUPLICATE_SYMBOL"
		}
		c.handleMutationError("open", decision.Symbol, err)
		return "failed: persistence"
	}
	return "opened"
}

// applySell closes an existing position on a SELL-class signal. Ignored
// when no position is open; sizing never happens on the sell side.
func (c *Controller) applySell(ctx context.Context, decision types.TradeDecision) string {
	open := c.manager.OpenPositionsSnapshot()
	for _, pos := range open {
		if pos.Symbol != decision.Symbol {
			continue
		}
		if _, err := c.manager.Close(ctx, pos.ID, decision.CurrentPrice, types.ExitManual); err != nil {
			if errors.Is(err, position.ErrAlreadyClosed) || errors.Is(err, position.ErrNotFound) {
				return "sell: already closed"
			}
			c.handleMutationError("close", decision.Symbol, err)
			return "failed: persistence"
		}
		return "closed on signal"
	}
	return "sell: no open position"
}

func (c *Controller) handleMutationError(op, symbol string, err error) {
	var perr *position.PersistenceError
	if errors.As(err, &perr) {
		c.fail(perr)
		return
	}
	logger.Warnf("%s %s failed: %v", op, symbol, err)
}

func (c *Controller) fetchPrice(ctx context.Context, symbol string) (types.PriceTick, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FeedTimeout)
	defer cancel()
	return c.prices.Latest(fetchCtx, symbol)
}

// latestPerSymbol keeps only the newest record per symbol from a batch.
func latestPerSymbol(preds []types.PredictionRecord) []types.PredictionRecord {
	latest := make(map[string]types.PredictionRecord, len(preds))
	for _, p := range preds {
		if cur, ok := latest[p.Symbol]; !ok || p.Timestamp.After(cur.Timestamp) {
			latest[p.Symbol] = p
		}
	}
	out := make([]types.PredictionRecord, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	return out
}
