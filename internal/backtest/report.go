package backtest

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Summary renders a human-readable report: the metrics block plus a
// trade-by-trade table, in the teacher's Results.Summary() style but
// backed by tablewriter instead of hand-aligned fmt.Sprintf columns.
func (r *Result) Summary() string {
	var b strings.Builder
	m := r.Metrics

	fmt.Fprintf(&b, "Backtest Results for %s\n", r.Config.Symbol)
	fmt.Fprintf(&b, "=======================\n")
	fmt.Fprintf(&b, "Starting Balance: $%.2f\n", r.Config.StartingBalance)
	if len(r.EquityCurve) > 0 {
		fmt.Fprintf(&b, "Ending Balance:   $%.2f\n", r.EquityCurve[len(r.EquityCurve)-1])
	}
	fmt.Fprintf(&b, "Total P&L:        $%.2f\n\n", m.TotalPnL)

	fmt.Fprintf(&b, "Trade Statistics:\n")
	fmt.Fprintf(&b, "- Total Trades: %d (%d win / %d loss)\n", m.TotalTrades, m.Wins, m.Losses)
	fmt.Fprintf(&b, "- Win Rate: %.1f%% (long %.1f%% / short %.1f%%)\n", m.WinRate, m.WinRateLong, m.WinRateShort)
	fmt.Fprintf(&b, "- Avg Win: $%.2f  Avg Loss: $%.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Fprintf(&b, "- Largest Win: $%.2f  Largest Loss: $%.2f\n", m.LargestWin, m.LargestLoss)
	fmt.Fprintf(&b, "- Profit Factor: %.2f  Expectancy: $%.2f\n\n", m.ProfitFactor, m.Expectancy)

	fmt.Fprintf(&b, "Risk Metrics:\n")
	fmt.Fprintf(&b, "- Sharpe: %.2f  Sortino: %.2f  Calmar: %.2f\n", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	fmt.Fprintf(&b, "- Max Drawdown: %.2f%% ($%.2f)  Ulcer Index: %.2f\n", m.MaxDrawdownPct, m.MaxDrawdown, m.UlcerIndex)
	fmt.Fprintf(&b, "- CAGR: %.2f%%  Recovery Factor: %.2f\n", m.CAGR, m.RecoveryFactor)
	fmt.Fprintf(&b, "- Skew: %.2f  Kurtosis: %.2f\n\n", m.Skewness, m.Kurtosis)

	b.WriteString(r.tradeTable())
	return b.String()
}

// WriteTradeTable writes just the trade table to w.
func (r *Result) WriteTradeTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Open", "Close", "Dir", "Lot", "Open$", "Close$", "PnL", "Pips", "R:R", "Reason")
	for i, t := range r.Trades {
		rr := "-"
		if t.RRAchieved != nil {
			rr = fmt.Sprintf("%.2f", *t.RRAchieved)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.OpenTime.Format("2006-01-02 15:04"),
			t.CloseTime.Format("2006-01-02 15:04"),
			t.Direction,
			fmt.Sprintf("%.2f", t.Lot),
			fmt.Sprintf("%.5f", t.OpenPrice),
			fmt.Sprintf("%.5f", t.ClosePrice),
			fmt.Sprintf("%.2f", t.PnL),
			fmt.Sprintf("%.1f", t.PnLPips),
			rr,
			t.ExitReason,
		)
	}
	table.Render()
}

func (r *Result) tradeTable() string {
	var b strings.Builder
	if len(r.Trades) == 0 {
		b.WriteString("No trades executed.\n")
		return b.String()
	}
	r.WriteTradeTable(&b)
	return b.String()
}
