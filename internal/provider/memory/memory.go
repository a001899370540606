// Package memory is an in-process provider. It backs the "memory" provider
// mode used for local front-end work and the test suites.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/model"
)

const ProviderName = "memory"

type AccountData struct {
	Snapshot  model.AccountSnapshot
	Positions []model.Position
	Deals     []model.Deal

	SyncDelay time.Duration
	// IgnoreContext makes WaitSynchronized sleep the full SyncDelay.
	IgnoreContext bool

	ConnectErr error
	SyncErr    error
	ReadErr    error
}

type Provider struct {
	mu       sync.RWMutex
	accounts []model.Account
	data     map[string]*AccountData

	connects atomic.Int32
	reads    atomic.Int32
}

var _ fetcher.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{data: make(map[string]*AccountData)}
}

func (p *Provider) AddAccount(a model.Account, d AccountData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.data[a.ID]; !ok {
		p.accounts = append(p.accounts, a)
	}
	p.data[a.ID] = &d
}

// Connects counts Connect calls.
func (p *Provider) Connects() int {
	return int(p.connects.Load())
}

// Reads counts view reads across all connections.
func (p *Provider) Reads() int {
	return int(p.reads.Load())
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Accounts(ctx context.Context) ([]model.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	accounts := make([]model.Account, len(p.accounts))
	copy(accounts, p.accounts)
	return accounts, nil
}

func (p *Provider) Account(ctx context.Context, id string) (model.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, a := range p.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("%w: %s", fetcher.ErrNotFound, id)
}

func (p *Provider) Connect(ctx context.Context, account model.Account) (fetcher.Connection, error) {
	p.connects.Add(1)

	p.mu.RLock()
	d, ok := p.data[account.ID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", fetcher.ErrNotFound, account.ID)
	}
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	return &connection{p: p, data: d}, nil
}

type connection struct {
	p    *Provider
	data *AccountData
}

func (c *connection) WaitSynchronized(ctx context.Context) error {
	if c.data.SyncErr != nil {
		return c.data.SyncErr
	}
	if c.data.IgnoreContext {
		time.Sleep(c.data.SyncDelay)
		return nil
	}

	t := time.NewTimer(c.data.SyncDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *connection) AccountInformation(ctx context.Context) (model.AccountSnapshot, error) {
	c.p.reads.Add(1)
	if c.data.ReadErr != nil {
		return model.AccountSnapshot{}, c.data.ReadErr
	}
	return c.data.Snapshot, nil
}

func (c *connection) Positions(ctx context.Context) ([]model.Position, error) {
	c.p.reads.Add(1)
	if c.data.ReadErr != nil {
		return nil, c.data.ReadErr
	}
	positions := make([]model.Position, len(c.data.Positions))
	copy(positions, c.data.Positions)
	return positions, nil
}

func (c *connection) Deals(ctx context.Context, from, to time.Time) ([]model.Deal, error) {
	c.p.reads.Add(1)
	if c.data.ReadErr != nil {
		return nil, c.data.ReadErr
	}
	// range filtering is left to the fetcher
	deals := make([]model.Deal, len(c.data.Deals))
	copy(deals, c.data.Deals)
	return deals, nil
}

func (c *connection) Close() error {
	return nil
}
