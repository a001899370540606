package tinvest

import (
	"math"
	"strings"

	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/STTM-NSU/account-bridge/internal/tools"
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
)

const _serverName = "T-Invest"

// unitsNano is satisfied by both Quotation and MoneyValue; the generated
// getters are nil safe.
type unitsNano interface {
	GetUnits() int64
	GetNano() int32
}

func toFloat(v unitsNano) float64 {
	return tools.UnitsNanoToFloat(v.GetUnits(), v.GetNano())
}

func toFloatPtr(v unitsNano) *float64 {
	f := toFloat(v)
	return &f
}

func accountFromProto(a *investapi.Account) model.Account {
	state, status := model.StateUndeployed, model.Disconnected
	switch a.GetStatus() {
	case investapi.AccountStatus_ACCOUNT_STATUS_OPEN:
		state, status = model.StateDeployed, model.Connected
	case investapi.AccountStatus_ACCOUNT_STATUS_NEW:
		state = model.StateDeploying
	}
	return model.Account{
		ID:               a.GetId(),
		Name:             a.GetName(),
		Login:            a.GetId(),
		Server:           _serverName,
		State:            state,
		ConnectionStatus: status,
	}
}

// snapshotFromPortfolio maps the portfolio valuation onto the MetaTrader
// shaped snapshot: equity is the whole portfolio, balance the cash part.
// money narrows FreeMargin to the cash available in the portfolio currency.
func snapshotFromPortfolio(accountID string, p *investapi.PortfolioResponse, money []*investapi.MoneyValue) model.AccountSnapshot {
	total := p.GetTotalAmountPortfolio()
	s := model.AccountSnapshot{
		Login:    accountID,
		Platform: "tinvest",
		Broker:   _serverName,
		Server:   _serverName,
		Currency: strings.ToUpper(total.GetCurrency()),
		Balance:  toFloatPtr(p.GetTotalAmountCurrencies()),
		Equity:   toFloatPtr(total),
	}

	yields := make([]float64, 0, len(p.GetPositions()))
	for _, pos := range p.GetPositions() {
		yields = append(yields, toFloat(pos.GetExpectedYield()))
	}
	profit := tools.Sum(yields...).InexactFloat64()
	s.Profit = &profit

	for _, m := range money {
		if strings.EqualFold(m.GetCurrency(), total.GetCurrency()) {
			s.FreeMargin = toFloatPtr(m)
			break
		}
	}
	return s
}

func positionFromProto(p *investapi.PortfolioPosition) model.Position {
	qty := toFloat(p.GetQuantity())
	side := "BUY"
	if qty < 0 {
		side = "SELL"
	}
	id := p.GetPositionUid()
	if id == "" {
		id = p.GetFigi()
	}
	return model.Position{
		ID:           id,
		Symbol:       p.GetFigi(),
		Type:         side,
		Volume:       math.Abs(qty),
		OpenPrice:    toFloat(p.GetAveragePositionPrice()),
		CurrentPrice: toFloat(p.GetCurrentPrice()),
		Profit:       toFloat(p.GetExpectedYield()),
	}
}

// dealFromOperation maps an executed operation. Buys open and sells close;
// everything else (fees, dividends, transfers) has no entry type and carries
// its payment as profit, like MetaTrader balance deals.
func dealFromOperation(op *investapi.Operation) model.Deal {
	d := model.Deal{
		ID:     op.GetId(),
		Type:   model.TrimEnum(op.GetOperationType().String(), "OPERATION_TYPE_"),
		Symbol: op.GetFigi(),
		Volume: float64(op.GetQuantity()),
		Price:  toFloat(op.GetPrice()),
		Time:   op.GetDate().AsTime().UTC(),
	}
	switch op.GetOperationType() {
	case investapi.OperationType_OPERATION_TYPE_BUY:
		d.EntryType = model.EntryIn
	case investapi.OperationType_OPERATION_TYPE_SELL:
		// operations carry no realized result, so a sell is not a closed trade
	case investapi.OperationType_OPERATION_TYPE_BROKER_FEE:
		d.Commission = toFloat(op.GetPayment())
	default:
		d.Profit = toFloat(op.GetPayment())
	}
	return d
}
