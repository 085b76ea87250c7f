// Package feed holds the collaborator clients: live quotes, the benchmark
// trend series and the external prediction pipeline. All calls are bounded
// by the caller's context and wrapped in a circuit breaker so a flapping
// upstream degrades to skipped ticks instead of repeated hammering.
package feed

import (
	"context"
	"fmt"
	"math"
	"time"

	"alphapilot/internal/pkg/circuit"
	"alphapilot/internal/types"

	"github.com/markcheno/go-talib"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// YahooSource serves both per-symbol price ticks and the benchmark trend
// reading from Yahoo Finance.
type YahooSource struct {
	benchmark     string
	trendLookback int
	volLookback   int
	breaker       *circuit.Breaker
}

func NewYahooSource(benchmark string, trendLookbackDays, volLookbackDays int, breaker *circuit.Breaker) *YahooSource {
	if trendLookbackDays < 2 {
		trendLookbackDays = 5
	}
	if volLookbackDays < 2 {
		volLookbackDays = 21
	}
	return &YahooSource{
		benchmark:     benchmark,
		trendLookback: trendLookbackDays,
		volLookback:   volLookbackDays,
		breaker:       breaker,
	}
}

// Latest returns the most recent quote for symbol. The finance-go client has
// no context plumbing, so the call runs in a goroutine and the caller's
// deadline is honored by abandoning the result.
func (y *YahooSource) Latest(ctx context.Context, symbol string) (types.PriceTick, error) {
	var tick types.PriceTick
	err := y.guarded(ctx, func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("quote %s: %w", symbol, err)
		}
		if q == nil || q.RegularMarketPrice <= 0 {
			return fmt.Errorf("quote %s: empty or non-positive price", symbol)
		}
		tick = types.PriceTick{
			Symbol:    symbol,
			Price:     q.RegularMarketPrice,
			Timestamp: time.Unix(int64(q.RegularMarketTime), 0),
		}
		return nil
	})
	return tick, err
}

// Reading computes the signed trend percent over the trend lookback window
// and the annualized volatility proxy over the volatility window, both from
// benchmark daily closes.
func (y *YahooSource) Reading(ctx context.Context) (types.TrendReading, float64, error) {
	var reading types.TrendReading
	var volatility float64
	err := y.guarded(ctx, func() error {
		closes, err := y.dailyCloses(y.volLookback + y.trendLookback + 5)
		if err != nil {
			return err
		}
		if len(closes) < y.trendLookback+1 {
			return fmt.Errorf("benchmark %s: only %d closes, need %d", y.benchmark, len(closes), y.trendLookback+1)
		}
		last := closes[len(closes)-1]
		ref := closes[len(closes)-1-y.trendLookback]
		if ref <= 0 {
			return fmt.Errorf("benchmark %s: non-positive reference close", y.benchmark)
		}
		reading = types.TrendReading{
			Level:     last,
			TrendPct:  (last - ref) / ref * 100,
			Timestamp: time.Now(),
		}
		volatility = annualizedVolatilityPct(closes, y.volLookback)
		return nil
	})
	return reading, volatility, err
}

func (y *YahooSource) dailyCloses(days int) ([]float64, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -(days*2 + 7)) // weekends and holidays thin the series
	params := &chart.Params{
		Symbol:   y.benchmark,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)
	var closes []float64
	for iter.Next() {
		bar := iter.Bar()
		c, _ := bar.Close.Float64()
		if c > 0 {
			closes = append(closes, c)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("benchmark chart %s: %w", y.benchmark, err)
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// annualizedVolatilityPct is the stddev of daily log returns over the
// lookback window, annualized over 252 trading days, in percent.
func annualizedVolatilityPct(closes []float64, lookback int) float64 {
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if lookback >= len(returns) {
		lookback = len(returns) - 1
	}
	if lookback < 2 {
		return 0
	}
	std := talib.StdDev(returns, lookback, 1.0)
	latest := std[len(std)-1]
	return latest * math.Sqrt(252) * 100
}

// guarded runs fn through the circuit breaker on a worker goroutine, bailing
// out when the caller's context expires first.
func (y *YahooSource) guarded(ctx context.Context, fn func() error) error {
	if y.breaker != nil && !y.breaker.Allow() {
		return circuit.ErrOpen
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if y.breaker != nil {
			if err != nil {
				y.breaker.RecordFailure()
			} else {
				y.breaker.RecordSuccess()
			}
		}
		return err
	}
}
