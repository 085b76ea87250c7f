package market

import (
	"context"
	"sync/atomic"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/types"
)

// TrendSource delivers the current benchmark reading plus the volatility
// proxy (annualized percent).
type TrendSource interface {
	Reading(ctx context.Context) (types.TrendReading, float64, error)
}

// Holder owns the current MarketContext. Refresh swaps in a fresh copy;
// readers always see a complete snapshot (copy-on-refresh, single writer).
type Holder struct {
	source     TrendSource
	classifier *Classifier
	ttl        time.Duration

	current atomic.Value // types.MarketContext
	nowFn   func() time.Time
}

func NewHolder(source TrendSource, classifier *Classifier, ttl time.Duration) *Holder {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	h := &Holder{
		source:     source,
		classifier: classifier,
		ttl:        ttl,
		nowFn:      time.Now,
	}
	h.current.Store(types.MarketContext{Stale: true})
	return h
}

// Current returns the last computed context without refreshing.
func (h *Holder) Current() types.MarketContext {
	return h.current.Load().(types.MarketContext)
}

// EnsureFresh refreshes the context when the TTL has expired. When the trend
// source fails, the last-known context is kept with Stale=true; admission
// paths must refuse BUYs on a stale, expired context.
func (h *Holder) EnsureFresh(ctx context.Context) types.MarketContext {
	now := h.nowFn()
	cur := h.Current()
	if !cur.Expired(h.ttl, now) && !cur.Stale {
		return cur
	}

	reading, volatility, err := h.source.Reading(ctx)
	if err != nil {
		stale := cur
		stale.Stale = true
		h.current.Store(stale)
		logger.Warnf("market context refresh failed, serving stale regime=%s age=%s: %v",
			stale.Regime, now.Sub(stale.ComputedAt).Truncate(time.Second), err)
		return stale
	}

	fresh := h.classifier.Classify(reading, volatility, now)
	h.current.Store(fresh)
	logger.Infof("market context refreshed: regime=%s trend=%.2f%% vol=%.1f%% multiplier=%.2f threshold=%.2f stress=%v",
		fresh.Regime, fresh.TrendPct, fresh.VolatilityPct, fresh.ConfidenceMultiplier, fresh.BuyThreshold, fresh.StressOverride)
	return fresh
}

// Usable reports whether ctx may admit BUY decisions: a stale context past
// its TTL must not open new positions.
func (h *Holder) Usable(ctx types.MarketContext) bool {
	if !ctx.Stale {
		return true
	}
	return !ctx.Expired(h.ttl, h.nowFn())
}
