package fetcher

import (
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/STTM-NSU/account-bridge/internal/tools"
)

// ComputeStats summarizes closed deals. Deals entering a position are
// ignored; a deal with zero profit counts as neither win nor loss.
func ComputeStats(deals []model.Deal) model.TradeStats {
	var (
		stats  model.TradeStats
		values []float64
	)
	for _, d := range deals {
		if !d.EntryType.IsClosing() {
			continue
		}
		stats.TotalClosedTrades++
		switch {
		case d.Profit > 0:
			stats.WinningTrades++
		case d.Profit < 0:
			stats.LosingTrades++
		}
		values = append(values, d.Profit, d.Commission, d.Swap)
	}

	stats.WinRate = tools.Percent(stats.WinningTrades, stats.TotalClosedTrades)
	stats.TotalProfit = tools.Sum(values...).Round(2).InexactFloat64()
	return stats
}
