// Package tinvest serves brokerage accounts of the T-Invest api through the
// same fetcher flow as MetaApi accounts.
package tinvest

import (
	"context"
	"fmt"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
	"go.uber.org/ratelimit"
)

const ProviderName = "tinvest"

type Provider struct {
	usersClient *investgo.UsersServiceClient
	opsClient   *investgo.OperationsServiceClient
	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

var _ fetcher.Provider = (*Provider)(nil)

func NewProvider(c *investgo.Client, cfg config.InvestConfig, logger logger.Logger) *Provider {
	return &Provider{
		usersClient: c.NewUsersServiceClient(),
		opsClient:   c.NewOperationsServiceClient(),
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

// take blocks on the limiter unless ctx is already done; the sdk calls are
// bound to the client context, not the request one.
func (p *Provider) take(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.rateLimiter.Take()
	return nil
}

func (p *Provider) Accounts(ctx context.Context) ([]model.Account, error) {
	if err := p.take(ctx); err != nil {
		return nil, err
	}
	resp, err := p.usersClient.GetAccounts(nil)
	if err != nil {
		return nil, fmt.Errorf("GetAccounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(resp.GetAccounts()))
	for _, a := range resp.GetAccounts() {
		accounts = append(accounts, accountFromProto(a))
	}
	return accounts, nil
}

func (p *Provider) Account(ctx context.Context, id string) (model.Account, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return model.Account{}, err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("%w: account %q", fetcher.ErrNotFound, id)
}

func (p *Provider) Connect(ctx context.Context, account model.Account) (fetcher.Connection, error) {
	return &connection{p: p, accountID: account.ID}, nil
}

type connection struct {
	p         *Provider
	accountID string
}

// WaitSynchronized succeeds once the api answers an authenticated call;
// T-Invest has no terminal that needs to catch up.
func (c *connection) WaitSynchronized(ctx context.Context) error {
	if err := c.p.take(ctx); err != nil {
		return err
	}
	info, err := c.p.usersClient.GetInfo()
	if err != nil {
		return fmt.Errorf("GetInfo: %w", err)
	}
	c.p.logger.Debugf("t-invest user tariff %s, qualified %t", info.GetTariff(), info.GetQualStatus())
	return nil
}

func (c *connection) portfolio(ctx context.Context) (*investgo.PortfolioResponse, error) {
	if err := c.p.take(ctx); err != nil {
		return nil, err
	}
	resp, err := c.p.opsClient.GetPortfolio(c.accountID, investapi.PortfolioRequest_RUB)
	if err != nil {
		return nil, fmt.Errorf("GetPortfolio: %w", err)
	}
	return resp, nil
}

func (c *connection) AccountInformation(ctx context.Context) (model.AccountSnapshot, error) {
	portfolio, err := c.portfolio(ctx)
	if err != nil {
		return model.AccountSnapshot{}, err
	}

	if err := c.p.take(ctx); err != nil {
		return model.AccountSnapshot{}, err
	}
	positions, err := c.p.opsClient.GetPositions(c.accountID)
	if err != nil {
		return model.AccountSnapshot{}, fmt.Errorf("GetPositions: %w", err)
	}

	return snapshotFromPortfolio(c.accountID, portfolio.PortfolioResponse, positions.GetMoney()), nil
}

func (c *connection) Positions(ctx context.Context) ([]model.Position, error) {
	portfolio, err := c.portfolio(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(portfolio.GetPositions()))
	for _, pos := range portfolio.GetPositions() {
		if pos.GetInstrumentType() == "currency" {
			continue
		}
		positions = append(positions, positionFromProto(pos))
	}
	return positions, nil
}

func (c *connection) Deals(ctx context.Context, from, to time.Time) ([]model.Deal, error) {
	if err := c.p.take(ctx); err != nil {
		return nil, err
	}
	resp, err := c.p.opsClient.GetOperations(&investgo.GetOperationsRequest{
		AccountId: c.accountID,
		State:     investapi.OperationState_OPERATION_STATE_EXECUTED,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, fmt.Errorf("GetOperations: %w", err)
	}

	deals := make([]model.Deal, 0, len(resp.GetOperations()))
	for _, op := range resp.GetOperations() {
		deals = append(deals, dealFromOperation(op))
	}
	return deals, nil
}

func (c *connection) Close() error {
	return nil
}
