package feed

import (
	"context"
	"testing"
	"time"

	"alphapilot/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnualizedVolatilityPct(t *testing.T) {
	// A perfectly flat series has zero volatility.
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	assert.InDelta(t, 0, annualizedVolatilityPct(flat, 20), 1e-9)

	// Alternating ±1% moves produce a clearly positive reading.
	choppy := make([]float64, 30)
	choppy[0] = 100
	for i := 1; i < len(choppy); i++ {
		if i%2 == 0 {
			choppy[i] = choppy[i-1] * 1.01
		} else {
			choppy[i] = choppy[i-1] * 0.99
		}
	}
	vol := annualizedVolatilityPct(choppy, 20)
	assert.Greater(t, vol, 10.0)

	// Too little data degrades to zero instead of panicking.
	assert.Zero(t, annualizedVolatilityPct([]float64{100, 101}, 20))
	assert.Zero(t, annualizedVolatilityPct(nil, 20))
}

func TestGuardedHonorsContextDeadline(t *testing.T) {
	y := NewYahooSource("^GSPC", 5, 20, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := y.guarded(ctx, func() error {
		time.Sleep(time.Second)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardedRespectsOpenBreaker(t *testing.T) {
	br := circuit.NewBreaker("yahoo", 1, time.Minute)
	br.RecordFailure()
	y := NewYahooSource("^GSPC", 5, 20, br)

	called := false
	err := y.guarded(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.False(t, called)
}

func TestGuardedFeedsBreakerOutcomes(t *testing.T) {
	br := circuit.NewBreaker("yahoo", 2, time.Minute)
	y := NewYahooSource("^GSPC", 5, 20, br)

	boom := assert.AnError
	require.Error(t, y.guarded(context.Background(), func() error { return boom }))
	require.Error(t, y.guarded(context.Background(), func() error { return boom }))
	assert.Equal(t, circuit.StateOpen, br.State())
}
