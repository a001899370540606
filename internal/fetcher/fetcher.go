// Package fetcher implements the synchronized account read flow:
// resolve -> check deployment -> connect -> bounded wait -> read view.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"golang.org/x/sync/singleflight"
)

// Provider resolves accounts and opens per-request connections.
// Account must return an error matching ErrNotFound for unknown ids.
type Provider interface {
	Name() string
	Accounts(ctx context.Context) ([]model.Account, error)
	Account(ctx context.Context, id string) (model.Account, error)
	Connect(ctx context.Context, account model.Account) (Connection, error)
}

// Connection is bound to one account. Reads are only valid after
// WaitSynchronized returned or its deadline passed.
type Connection interface {
	WaitSynchronized(ctx context.Context) error
	AccountInformation(ctx context.Context) (model.AccountSnapshot, error)
	Positions(ctx context.Context) ([]model.Position, error)
	Deals(ctx context.Context, from, to time.Time) ([]model.Deal, error)
	Close() error
}

type Config struct {
	WaitBudget      time.Duration
	CheckDeployment bool
	Coalesce        bool
}

const DefaultWaitBudget = 45 * time.Second

type Result struct {
	AccountID    string
	View         model.View
	Snapshot     *model.AccountSnapshot
	Positions    []model.Position
	Deals        []model.Deal
	Synchronized bool
	Degraded     bool
	SyncElapsed  time.Duration
}

type Fetcher struct {
	provider Provider
	cfg      Config
	logger   logger.Logger

	group singleflight.Group
}

func NewFetcher(provider Provider, cfg Config, logger logger.Logger) *Fetcher {
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = DefaultWaitBudget
	}
	return &Fetcher{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

func (f *Fetcher) ProviderName() string {
	return f.provider.Name()
}

func (f *Fetcher) WaitBudget() time.Duration {
	return f.cfg.WaitBudget
}

// Accounts lists every account the provider knows about.
func (f *Fetcher) Accounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := f.provider.Accounts(ctx)
	if err != nil {
		return nil, wrapProvider("list accounts", err)
	}
	return accounts, nil
}

// Fetch reads view for accountID. An empty accountID selects the first
// account the provider lists. Concurrent identical fetches share one
// execution when coalescing is on; the shared Result must not be mutated.
func (f *Fetcher) Fetch(ctx context.Context, accountID string, view model.View) (*Result, error) {
	if !f.cfg.Coalesce {
		return f.fetch(ctx, accountID, view)
	}

	key := accountID + "|" + view.Key()
	ch := f.group.DoChan(key, func() (interface{}, error) {
		// the shared run must outlive the first caller; it is still bounded
		// by the wait budget and the provider's own timeouts
		return f.fetch(context.WithoutCancel(ctx), accountID, view)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.logger.Debugf("coalesced %s fetch for account %q", view.Kind, accountID)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, accountID string, view model.View) (*Result, error) {
	if err := validateView(view); err != nil {
		return nil, err
	}

	account, err := f.resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	log := f.logger.With("account", account.ID, "view", string(view.Kind))

	if f.cfg.CheckDeployment && !account.IsDeployed() {
		return nil, fmt.Errorf("%w: state %s", ErrNotReady, account.State)
	}

	conn, err := f.provider.Connect(ctx, account)
	if err != nil {
		return nil, wrapProvider("connect", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warnf("%s: can't close connection", err)
		}
	}()

	res := &Result{AccountID: account.ID, View: view}

	start := time.Now()
	err = f.waitSynchronized(ctx, conn)
	res.SyncElapsed = time.Since(start)
	switch {
	case err == nil:
		res.Synchronized = true
	case errors.Is(err, ErrSyncTimeout):
		res.Degraded = true
		log.Warnf("not synchronized after %s, reading possibly stale data", res.SyncElapsed)
	default:
		return nil, err
	}

	if err := f.read(ctx, conn, view, res); err != nil {
		return nil, err
	}

	log.Debugf("fetched in %s (synchronized=%t)", time.Since(start), res.Synchronized)
	return res, nil
}

func (f *Fetcher) resolve(ctx context.Context, accountID string) (model.Account, error) {
	if accountID != "" {
		account, err := f.provider.Account(ctx, accountID)
		if err != nil {
			return model.Account{}, wrapProvider("get account", err)
		}
		return account, nil
	}

	accounts, err := f.provider.Accounts(ctx)
	if err != nil {
		return model.Account{}, wrapProvider("list accounts", err)
	}
	if len(accounts) == 0 {
		return model.Account{}, fmt.Errorf("%w: provider has no accounts", ErrNotFound)
	}
	return accounts[0], nil
}

// waitSynchronized never blocks past the budget, even when the connection
// ignores its context.
func (f *Fetcher) waitSynchronized(ctx context.Context, conn Connection) error {
	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.WaitBudget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- conn.WaitSynchronized(waitCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-waitCtx.Done():
		err = waitCtx.Err()
	}

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%w: request cancelled while waiting for synchronization", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrSyncTimeout):
		return ErrSyncTimeout
	default:
		return wrapProvider("wait synchronized", err)
	}
}

func (f *Fetcher) read(ctx context.Context, conn Connection, view model.View, res *Result) error {
	switch view.Kind {
	case model.ViewAccountInfo:
		snapshot, err := conn.AccountInformation(ctx)
		if err != nil {
			return wrapProvider("get account information", err)
		}
		res.Snapshot = &snapshot
	case model.ViewPositions:
		positions, err := conn.Positions(ctx)
		if err != nil {
			return wrapProvider("get positions", err)
		}
		if positions == nil {
			positions = []model.Position{}
		}
		res.Positions = positions
	case model.ViewDeals:
		deals, err := conn.Deals(ctx, view.From, view.To)
		if err != nil {
			return wrapProvider("get deals", err)
		}
		res.Deals = FilterDeals(deals, view.From, view.To)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidView, view.Kind)
	}
	return nil
}

func validateView(view model.View) error {
	switch view.Kind {
	case model.ViewAccountInfo, model.ViewPositions:
		return nil
	case model.ViewDeals:
		if view.From.After(view.To) {
			return fmt.Errorf("%w: interval start %s after end %s", ErrInvalidView, view.From, view.To)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidView, view.Kind)
	}
}

// FilterDeals keeps deals with time in [from, to], ordered by time.
func FilterDeals(deals []model.Deal, from, to time.Time) []model.Deal {
	filtered := make([]model.Deal, 0, len(deals))
	for _, d := range deals {
		if d.Time.Before(from) || d.Time.After(to) {
			continue
		}
		filtered = append(filtered, d)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Time.Before(filtered[j].Time)
	})
	return filtered
}
