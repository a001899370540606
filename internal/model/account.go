package model

import (
	"strings"
	"time"
)

type AccountState string

const (
	StateUndeployed  AccountState = "UNDEPLOYED"
	StateDeploying   AccountState = "DEPLOYING"
	StateDeployed    AccountState = "DEPLOYED"
	StateUndeploying AccountState = "UNDEPLOYING"
	StateDeleting    AccountState = "DELETING"
)

type ConnectionStatus string

const (
	Connected              ConnectionStatus = "CONNECTED"
	Disconnected           ConnectionStatus = "DISCONNECTED"
	DisconnectedFromBroker ConnectionStatus = "DISCONNECTED_FROM_BROKER"
)

// Account is the provider's view of a remote trading account. The bridge
// never mutates it.
type Account struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Login            string           `json:"login"`
	Server           string           `json:"server"`
	Region           string           `json:"region,omitempty"`
	State            AccountState     `json:"state"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

func (a Account) IsDeployed() bool {
	return a.State == StateDeployed
}

// AccountSnapshot is read fresh on every request. Nil numbers are rendered
// as null.
type AccountSnapshot struct {
	Login      string   `json:"login"`
	Name       string   `json:"name"`
	Platform   string   `json:"platform"`
	Broker     string   `json:"broker"`
	Server     string   `json:"server"`
	Currency   string   `json:"currency"`
	Balance    *float64 `json:"balance"`
	Equity     *float64 `json:"equity"`
	Margin     *float64 `json:"margin"`
	FreeMargin *float64 `json:"freeMargin"`
	Leverage   *float64 `json:"leverage"`
	Profit     *float64 `json:"profit"`
}

// FloatingProfit returns Profit, or equity - balance when the provider
// did not report one.
func (s AccountSnapshot) FloatingProfit() *float64 {
	if s.Profit != nil {
		return s.Profit
	}
	if s.Balance == nil || s.Equity == nil {
		return nil
	}
	p := *s.Equity - *s.Balance
	return &p
}

type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Type         string    `json:"type"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"openPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Profit       float64   `json:"profit"`
	Swap         float64   `json:"swap"`
	Commission   float64   `json:"commission"`
	StopLoss     *float64  `json:"stopLoss"`
	TakeProfit   *float64  `json:"takeProfit"`
	OpenTime     time.Time `json:"openTime"`
}

type DealEntry string

const (
	EntryIn    DealEntry = "IN"
	EntryOut   DealEntry = "OUT"
	EntryInOut DealEntry = "INOUT"
	EntryOutBy DealEntry = "OUT_BY"
)

// IsClosing reports whether the deal closes (part of) a position.
func (e DealEntry) IsClosing() bool {
	return e == EntryOut || e == EntryOutBy
}

type Deal struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Symbol     string    `json:"symbol"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission"`
	Swap       float64   `json:"swap"`
	Time       time.Time `json:"time"`
	EntryType  DealEntry `json:"entryType"`
}

// TrimEnum strips a provider enum prefix: "DEAL_ENTRY_OUT" -> "OUT".
func TrimEnum(v, prefix string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), prefix)
}
