package position

import (
	"strings"
	"testing"
	"time"

	"alphapilot/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestRenderBook(t *testing.T) {
	positions := []types.Position{
		{
			Symbol: "MSFT", Status: types.PositionOpen, EntryPrice: 400, Shares: 10,
			StopLossPrice: 392, ProfitTargetPrice: 412, OpenedAt: time.Now(),
		},
		{
			Symbol: "AAPL", Status: types.PositionOpen, EntryPrice: 180.50, Shares: 59,
			StopLossPrice: 176.89, ProfitTargetPrice: 185.92, OpenedAt: time.Now(),
		},
	}
	account := types.AccountSnapshot{CashAvailable: 85000, InvestedAmount: 15000, RealizedPnl: 120}
	prices := map[string]float64{"AAPL": 182.00}

	out := RenderBook(positions, account, prices)

	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "MSFT")
	assert.Contains(t, out, "182.00")
	assert.Contains(t, out, "+88.50", "unrealized pnl for AAPL at 182")
	assert.Contains(t, out, "85000.00")
	// No quote for MSFT: last and upnl render as dashes.
	msftLine := ""
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "MSFT") {
			msftLine = line
		}
	}
	assert.Contains(t, msftLine, "-")
	assert.Less(t, strings.Index(out, "AAPL"), strings.Index(out, "MSFT"), "sorted by symbol")
}
