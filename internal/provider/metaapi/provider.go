package metaapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/STTM-NSU/account-bridge/internal/tools"
)

type Provider struct {
	client       *Client
	pollInterval time.Duration
}

var _ fetcher.Provider = (*Provider)(nil)

func NewProvider(client *Client) *Provider {
	return &Provider{
		client:       client,
		pollInterval: client.cfg.SyncPollInterval,
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Accounts(ctx context.Context) ([]model.Account, error) {
	dtos, err := p.client.listAccounts(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]model.Account, 0, len(dtos))
	for _, a := range dtos {
		accounts = append(accounts, a.toModel())
	}
	return accounts, nil
}

func (p *Provider) Account(ctx context.Context, id string) (model.Account, error) {
	dto, err := p.client.getAccount(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return dto.toModel(), nil
}

// Connect is local: the REST api is stateless, readiness is observed through
// the account's connection status.
func (p *Provider) Connect(ctx context.Context, account model.Account) (fetcher.Connection, error) {
	return &connection{
		client:  p.client,
		account: account,
		poll:    p.pollInterval,
	}, nil
}

type connection struct {
	client  *Client
	account model.Account
	poll    time.Duration
}

// WaitSynchronized polls the provisioning api until the terminal reports
// CONNECTED or ctx is done.
func (c *connection) WaitSynchronized(ctx context.Context) error {
	if c.account.ConnectionStatus == model.Connected {
		return nil
	}

	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		dto, err := c.client.getAccount(ctx, c.account.ID)
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("%w: can't poll connection status", err)
		}
		if model.ConnectionStatus(dto.ConnectionStatus) == model.Connected {
			return nil
		}
		c.client.logger.Debugf("account %s connection status %s, waiting", c.account.ID, dto.ConnectionStatus)
	}
}

func (c *connection) AccountInformation(ctx context.Context) (model.AccountSnapshot, error) {
	dto, err := c.client.getAccountInformation(ctx, c.account.Region, c.account.ID)
	if err != nil {
		return model.AccountSnapshot{}, err
	}
	return dto.toModel(), nil
}

func (c *connection) Positions(ctx context.Context) ([]model.Position, error) {
	dtos, err := c.client.getPositions(ctx, c.account.Region, c.account.ID)
	if err != nil {
		return nil, err
	}
	positions := make([]model.Position, 0, len(dtos))
	for _, p := range dtos {
		positions = append(positions, p.toModel())
	}
	return positions, nil
}

// Deals requests long ranges chunk by chunk; a deal is kept once even if
// two chunks return it.
func (c *connection) Deals(ctx context.Context, from, to time.Time) ([]model.Deal, error) {
	var (
		deals []model.Deal
		seen  = make(map[string]struct{})
	)
	for _, chunk := range tools.SplitInterval(from, to, c.client.cfg.HistoryChunk) {
		dtos, err := c.client.getDealsByTime(ctx, c.account.Region, c.account.ID, chunk.Start, chunk.End)
		if err != nil {
			return nil, err
		}
		for _, d := range dtos {
			deal := d.toModel()
			if _, ok := seen[deal.ID]; ok && deal.ID != "" {
				continue
			}
			seen[deal.ID] = struct{}{}
			deals = append(deals, deal)
		}
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	return deals, nil
}

func (c *connection) Close() error {
	return nil
}
