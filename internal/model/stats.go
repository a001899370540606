package model

type TradeStats struct {
	TotalClosedTrades int     `json:"total_closed_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRate           float64 `json:"win_rate"`
	TotalProfit       float64 `json:"total_profit"`
}
