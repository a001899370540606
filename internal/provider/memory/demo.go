package memory

import (
	"time"

	"github.com/STTM-NSU/account-bridge/internal/model"
)

const DemoAccountID = "demo-account"

func ptr(v float64) *float64 {
	return &v
}

// NewDemo returns a provider holding one deployed account with a few
// positions and a week of deals relative to now.
func NewDemo(now time.Time) *Provider {
	p := New()
	day := 24 * time.Hour

	p.AddAccount(model.Account{
		ID:               DemoAccountID,
		Name:             "Demo",
		Login:            "50123456",
		Server:           "Demo-Server",
		State:            model.StateDeployed,
		ConnectionStatus: model.Connected,
	}, AccountData{
		SyncDelay: 200 * time.Millisecond,
		Snapshot: model.AccountSnapshot{
			Login:      "50123456",
			Name:       "Demo",
			Platform:   "mt5",
			Broker:     "Demo Broker Ltd",
			Server:     "Demo-Server",
			Currency:   "USD",
			Balance:    ptr(10000),
			Equity:     ptr(10125.4),
			Margin:     ptr(230.5),
			FreeMargin: ptr(9894.9),
			Leverage:   ptr(100),
		},
		Positions: []model.Position{
			{
				ID: "1001", Symbol: "EURUSD", Type: "BUY", Volume: 0.1,
				OpenPrice: 1.0842, CurrentPrice: 1.0871, Profit: 29, Swap: -0.4,
				StopLoss: ptr(1.0790), OpenTime: now.Add(-2 * day),
			},
			{
				ID: "1002", Symbol: "XAUUSD", Type: "SELL", Volume: 0.05,
				OpenPrice: 2391.2, CurrentPrice: 2372.3, Profit: 96.4, Commission: -0.35,
				TakeProfit: ptr(2350), OpenTime: now.Add(-6 * time.Hour),
			},
		},
		Deals: []model.Deal{
			{ID: "5001", Type: "BUY", Symbol: "GBPUSD", Volume: 0.2, Price: 1.2710, EntryType: model.EntryIn, Time: now.Add(-6 * day)},
			{ID: "5002", Type: "SELL", Symbol: "GBPUSD", Volume: 0.2, Price: 1.2745, Profit: 70, Commission: -1.4, EntryType: model.EntryOut, Time: now.Add(-5 * day)},
			{ID: "5003", Type: "SELL", Symbol: "USDJPY", Volume: 0.1, Price: 151.20, EntryType: model.EntryIn, Time: now.Add(-4 * day)},
			{ID: "5004", Type: "BUY", Symbol: "USDJPY", Volume: 0.1, Price: 151.65, Profit: -29.7, Swap: -0.2, EntryType: model.EntryOut, Time: now.Add(-3 * day)},
			{ID: "5005", Type: "BUY", Symbol: "EURUSD", Volume: 0.1, Price: 1.0842, EntryType: model.EntryIn, Time: now.Add(-2 * day)},
		},
	})

	return p
}
