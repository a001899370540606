package metaapi

import (
	"bytes"
	"strconv"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/model"
)

// flexString accepts both "123" and 123; MetaApi reports login as a string
// in provisioning and as a number in the client api.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		v, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type accountDTO struct {
	ID               string     `json:"_id"`
	Name             string     `json:"name"`
	Login            flexString `json:"login"`
	Server           string     `json:"server"`
	Region           string     `json:"region"`
	State            string     `json:"state"`
	ConnectionStatus string     `json:"connectionStatus"`
}

func (a accountDTO) toModel() model.Account {
	return model.Account{
		ID:               a.ID,
		Name:             a.Name,
		Login:            string(a.Login),
		Server:           a.Server,
		Region:           a.Region,
		State:            model.AccountState(a.State),
		ConnectionStatus: model.ConnectionStatus(a.ConnectionStatus),
	}
}

type accountInformationDTO struct {
	Platform   string     `json:"platform"`
	Broker     string     `json:"broker"`
	Currency   string     `json:"currency"`
	Server     string     `json:"server"`
	Name       string     `json:"name"`
	Login      flexString `json:"login"`
	Balance    *float64   `json:"balance"`
	Equity     *float64   `json:"equity"`
	Margin     *float64   `json:"margin"`
	FreeMargin *float64   `json:"freeMargin"`
	Leverage   *float64   `json:"leverage"`
}

func (a accountInformationDTO) toModel() model.AccountSnapshot {
	return model.AccountSnapshot{
		Login:      string(a.Login),
		Name:       a.Name,
		Platform:   a.Platform,
		Broker:     a.Broker,
		Server:     a.Server,
		Currency:   a.Currency,
		Balance:    a.Balance,
		Equity:     a.Equity,
		Margin:     a.Margin,
		FreeMargin: a.FreeMargin,
		Leverage:   a.Leverage,
	}
}

type positionDTO struct {
	ID           flexString `json:"id"`
	Type         string     `json:"type"`
	Symbol       string     `json:"symbol"`
	Time         time.Time  `json:"time"`
	OpenPrice    float64    `json:"openPrice"`
	CurrentPrice float64    `json:"currentPrice"`
	Volume       float64    `json:"volume"`
	Swap         float64    `json:"swap"`
	Commission   float64    `json:"commission"`
	Profit       float64    `json:"profit"`
	StopLoss     *float64   `json:"stopLoss"`
	TakeProfit   *float64   `json:"takeProfit"`
}

func (p positionDTO) toModel() model.Position {
	return model.Position{
		ID:           string(p.ID),
		Symbol:       p.Symbol,
		Type:         model.TrimEnum(p.Type, "POSITION_TYPE_"),
		Volume:       p.Volume,
		OpenPrice:    p.OpenPrice,
		CurrentPrice: p.CurrentPrice,
		Profit:       p.Profit,
		Swap:         p.Swap,
		Commission:   p.Commission,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		OpenTime:     p.Time.UTC(),
	}
}

type dealDTO struct {
	ID         flexString `json:"id"`
	Type       string     `json:"type"`
	EntryType  string     `json:"entryType"`
	Symbol     string     `json:"symbol"`
	Time       time.Time  `json:"time"`
	Volume     float64    `json:"volume"`
	Price      float64    `json:"price"`
	Commission float64    `json:"commission"`
	Swap       float64    `json:"swap"`
	Profit     float64    `json:"profit"`
}

func (d dealDTO) toModel() model.Deal {
	return model.Deal{
		ID:         string(d.ID),
		Type:       model.TrimEnum(d.Type, "DEAL_TYPE_"),
		Symbol:     d.Symbol,
		Volume:     d.Volume,
		Price:      d.Price,
		Profit:     d.Profit,
		Commission: d.Commission,
		Swap:       d.Swap,
		Time:       d.Time.UTC(),
		EntryType:  model.DealEntry(model.TrimEnum(d.EntryType, "DEAL_ENTRY_")),
	}
}

type errorDTO struct {
	ID      int    `json:"id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
