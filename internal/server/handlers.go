package server

import (
	"context"
	"net/http"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/journal"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/STTM-NSU/account-bridge/internal/server/middleware"
)

const (
	_journalLimitDefault = 50
	_journalLimitMax     = 500
)

type Fetcher interface {
	Fetch(ctx context.Context, accountID string, view model.View) (*fetcher.Result, error)
	Accounts(ctx context.Context) ([]model.Account, error)
	ProviderName() string
}

type Journal interface {
	Record(e journal.Entry)
	Recent(ctx context.Context, accountID string, limit int) ([]journal.Entry, error)
}

type Handlers struct {
	fetcher Fetcher
	journal Journal
	account config.AccountConfig
	fetch   config.FetchConfig
	version string
	now     func() time.Time

	logger logger.Logger
}

// NewHandlers wires the route handlers. j may be nil when the journal is
// disabled.
func NewHandlers(f Fetcher, j Journal, cfg config.BridgeConfig, version string, logger logger.Logger) *Handlers {
	return &Handlers{
		fetcher: f,
		journal: j,
		account: cfg.Account,
		fetch:   cfg.Fetch,
		version: version,
		now:     time.Now,
		logger:  logger,
	}
}

// accountID picks the account a request reads. An empty id lets the
// fetcher fall back to the first listed account.
func (h *Handlers) accountID(r *http.Request) string {
	switch h.account.Selection {
	case config.First:
		return ""
	case config.Query:
		if id := r.URL.Query().Get("account_id"); id != "" {
			return id
		}
		return h.account.ID
	default:
		return h.account.ID
	}
}

func (h *Handlers) doFetch(r *http.Request, view model.View) (*fetcher.Result, error) {
	accountID := h.accountID(r)
	res, err := h.fetcher.Fetch(r.Context(), accountID, view)
	if h.journal != nil {
		h.journal.Record(journal.NewEntry(
			h.fetcher.ProviderName(), middleware.RequestIDFrom(r.Context()), accountID, view, res, err,
		))
	}
	if err != nil {
		h.logger.With("request_id", middleware.RequestIDFrom(r.Context())).
			Warnf("%s: can't fetch %s for account %q", err, view.Kind, accountID)
	}
	return res, err
}

func (h *Handlers) daysRange(r *http.Request) (int, model.View, error) {
	days, err := parseIntParam(r, "days", h.fetch.DefaultHistoryDays, 1, h.fetch.MaxHistoryDays)
	if err != nil {
		return 0, model.View{}, err
	}
	// whole seconds keep concurrent identical requests coalescable
	to := h.now().UTC().Truncate(time.Second)
	return days, model.DealsInRange(to.AddDate(0, 0, -days), to), nil
}

type rootResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
}

// Root is the liveness payload.
// GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Success:  true,
		Message:  "account bridge is running",
		Provider: h.fetcher.ProviderName(),
		Version:  h.version,
	})
}

// Health answers without touching the provider.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

type accountInfoResponse struct {
	Success      bool     `json:"success"`
	AccountLogin string   `json:"account_login"`
	Name         string   `json:"name"`
	Balance      *float64 `json:"balance"`
	Equity       *float64 `json:"equity"`
	Margin       *float64 `json:"margin"`
	FreeMargin   *float64 `json:"freeMargin"`
	Leverage     *float64 `json:"leverage"`
	Profit       *float64 `json:"profit"`
	Currency     string   `json:"currency"`
	Server       string   `json:"server"`
	Broker       string   `json:"broker"`
	Platform     string   `json:"platform"`
	Synchronized bool     `json:"synchronized"`
}

// AccountInfo returns the account snapshot.
// GET /account-info
func (h *Handlers) AccountInfo(w http.ResponseWriter, r *http.Request) {
	res, err := h.doFetch(r, model.AccountInfoView())
	if err != nil {
		writeError(w, err)
		return
	}
	s := res.Snapshot
	writeJSON(w, http.StatusOK, accountInfoResponse{
		Success:      true,
		AccountLogin: s.Login,
		Name:         s.Name,
		Balance:      s.Balance,
		Equity:       s.Equity,
		Margin:       s.Margin,
		FreeMargin:   s.FreeMargin,
		Leverage:     s.Leverage,
		Profit:       s.FloatingProfit(),
		Currency:     s.Currency,
		Server:       s.Server,
		Broker:       s.Broker,
		Platform:     s.Platform,
		Synchronized: res.Synchronized,
	})
}

type positionsResponse struct {
	Success        bool             `json:"success"`
	TotalPositions int              `json:"total_positions"`
	Positions      []model.Position `json:"positions"`
	Synchronized   bool             `json:"synchronized"`
}

// Positions lists open positions.
// GET /positions
func (h *Handlers) Positions(w http.ResponseWriter, r *http.Request) {
	res, err := h.doFetch(r, model.PositionsView())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		Success:        true,
		TotalPositions: len(res.Positions),
		Positions:      res.Positions,
		Synchronized:   res.Synchronized,
	})
}

type historyResponse struct {
	Success      bool         `json:"success"`
	PeriodDays   int          `json:"period_days"`
	TotalDeals   int          `json:"total_deals"`
	Deals        []model.Deal `json:"deals"`
	Synchronized bool         `json:"synchronized"`
}

// History lists deals of the last N days.
// GET /history?days=30
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	days, view, err := h.daysRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.doFetch(r, view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Success:      true,
		PeriodDays:   days,
		TotalDeals:   len(res.Deals),
		Deals:        res.Deals,
		Synchronized: res.Synchronized,
	})
}

type statsResponse struct {
	Success    bool `json:"success"`
	PeriodDays int  `json:"period_days"`
	model.TradeStats
	Synchronized bool `json:"synchronized"`
}

// Stats summarizes closed trades of the last N days.
// GET /stats?days=30
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	days, view, err := h.daysRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.doFetch(r, view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Success:      true,
		PeriodDays:   days,
		TradeStats:   fetcher.ComputeStats(res.Deals),
		Synchronized: res.Synchronized,
	})
}

type accountsResponse struct {
	Success       bool            `json:"success"`
	TotalAccounts int             `json:"total_accounts"`
	Accounts      []model.Account `json:"accounts"`
}

// Accounts lists the accounts visible to the configured credential.
// GET /accounts
func (h *Handlers) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.fetcher.Accounts(r.Context())
	if err != nil {
		h.logger.Warnf("%s: can't list accounts", err)
		writeError(w, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accountsResponse{
		Success:       true,
		TotalAccounts: len(accounts),
		Accounts:      accounts,
	})
}

type journalResponse struct {
	Success      bool            `json:"success"`
	TotalEntries int             `json:"total_entries"`
	Entries      []journal.Entry `json:"entries"`
}

// Journal returns the latest fetch outcomes, newest first.
// GET /journal?account_id=...&limit=50
func (h *Handlers) Journal(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", _journalLimitDefault, 1, _journalLimitMax)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.journal.Recent(r.Context(), r.URL.Query().Get("account_id"), limit)
	if err != nil {
		h.logger.Errorf("%s: can't read journal", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, journalResponse{
		Success:      true,
		TotalEntries: len(entries),
		Entries:      entries,
	})
}
