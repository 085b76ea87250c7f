package position

import (
	"fmt"
	"sort"

	"alphapilot/internal/types"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderBook formats the open book plus the account line as a text table
// for the tick log.
func RenderBook(positions []types.Position, account types.AccountSnapshot, prices map[string]float64) string {
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"SYMBOL", "SHARES", "ENTRY", "STOP", "TARGET", "LAST", "UPNL", "OPENED"})
	for _, p := range positions {
		last := "-"
		upnl := "-"
		if price, ok := prices[p.Symbol]; ok && price > 0 {
			last = fmt.Sprintf("%.2f", price)
			upnl = fmt.Sprintf("%+.2f", p.UnrealizedPnl(price))
		}
		t.AppendRow(table.Row{
			p.Symbol, p.Shares,
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", p.StopLossPrice),
			fmt.Sprintf("%.2f", p.ProfitTargetPrice),
			last, upnl,
			p.OpenedAt.Format("01-02 15:04"),
		})
	}
	t.AppendFooter(table.Row{"CASH", fmt.Sprintf("%.2f", account.CashAvailable),
		"INVESTED", fmt.Sprintf("%.2f", account.InvestedAmount),
		"REALIZED", fmt.Sprintf("%+.2f", account.RealizedPnl),
		"UNREALIZED", fmt.Sprintf("%+.2f", account.UnrealizedPnl)})
	return t.Render()
}
