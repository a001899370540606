package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/journal"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/STTM-NSU/account-bridge/internal/provider/memory"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func f64(v float64) *float64 {
	return &v
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *recordingJournal) Record(e journal.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *recordingJournal) Recent(ctx context.Context, accountID string, limit int) ([]journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Entry
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if accountID == "" || j.entries[i].AccountID == accountID {
			out = append(out, j.entries[i])
		}
	}
	return out, nil
}

func testProvider() *memory.Provider {
	p := memory.New()
	day := 24 * time.Hour

	p.AddAccount(model.Account{ID: "main", Login: "5001", State: model.StateDeployed, ConnectionStatus: model.Connected}, memory.AccountData{
		Snapshot: model.AccountSnapshot{
			Login: "5001", Currency: "USD", Server: "Demo", Broker: "Broker Ltd",
			Balance: f64(1000), Equity: f64(1012.5), Leverage: f64(100),
		},
		Positions: []model.Position{
			{ID: "1", Symbol: "EURUSD", Type: "BUY", Volume: 0.1, Profit: 12.5},
		},
		Deals: []model.Deal{
			{ID: "old", EntryType: model.EntryOut, Profit: 500, Time: testNow.Add(-40 * day)},
			{ID: "d1", EntryType: model.EntryIn, Time: testNow.Add(-3 * day)},
			{ID: "d2", EntryType: model.EntryOut, Profit: 30, Commission: -1, Time: testNow.Add(-2 * day)},
			{ID: "d3", EntryType: model.EntryOut, Profit: -10, Swap: -0.5, Time: testNow.Add(-1 * day)},
			{ID: "d4", EntryType: model.EntryOut, Profit: 20, Time: testNow.Add(-12 * time.Hour)},
		},
	})
	p.AddAccount(model.Account{ID: "empty", State: model.StateDeployed}, memory.AccountData{})
	p.AddAccount(model.Account{ID: "parked", State: model.StateUndeployed}, memory.AccountData{})
	p.AddAccount(model.Account{ID: "broken", State: model.StateDeployed}, memory.AccountData{
		ReadErr: errors.New("terminal unreachable"),
	})
	p.AddAccount(model.Account{ID: "slow", State: model.StateDeployed}, memory.AccountData{
		SyncDelay: time.Hour,
	})
	return p
}

func newTestRouter(t *testing.T, selection config.AccountSelection, j Journal) http.Handler {
	t.Helper()
	cfg := config.BridgeConfig{
		Provider: config.Memory,
		Account:  config.AccountConfig{ID: "main", Selection: selection},
	}
	require.NoError(t, cfg.ValidateAndSetup())

	f := fetcher.NewFetcher(testProvider(), fetcher.Config{
		WaitBudget:      50 * time.Millisecond,
		CheckDeployment: true,
	}, logger.NewNopLogger())

	h := NewHandlers(f, j, cfg, "test", logger.NewNopLogger())
	h.now = func() time.Time { return testNow }
	return NewRouter(h, nil, logger.NewNopLogger())
}

func get(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

func TestRootAndHealth(t *testing.T) {
	h := newTestRouter(t, config.Fixed, nil)

	code, body := get(t, h, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "memory", body["provider"])
	assert.Equal(t, "test", body["version"])

	code, body = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2024-06-30T12:00:00Z", body["timestamp"])
}

func TestAccountInfo(t *testing.T) {
	h := newTestRouter(t, config.Fixed, nil)

	code, body := get(t, h, "/account-info")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "5001", body["account_login"])
	assert.Equal(t, 1000.0, body["balance"])
	assert.Equal(t, 1012.5, body["equity"])
	assert.Equal(t, 12.5, body["profit"])
	assert.Equal(t, true, body["synchronized"])

	for _, key := range []string{"margin", "freeMargin"} {
		v, ok := body[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
}

func TestPositions(t *testing.T) {
	h := newTestRouter(t, config.Query, nil)

	code, body := get(t, h, "/positions")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total_positions"])
	positions := body["positions"].([]any)
	require.Len(t, positions, 1)
	assert.Equal(t, "EURUSD", positions[0].(map[string]any)["symbol"])

	code, body = get(t, h, "/positions?account_id=empty")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 0, body["total_positions"])
	assert.Equal(t, []any{}, body["positions"])
}

func TestHistory(t *testing.T) {
	h := newTestRouter(t, config.Fixed, nil)

	code, body := get(t, h, "/history")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 30, body["period_days"])
	assert.EqualValues(t, 4, body["total_deals"])

	code, body = get(t, h, "/history?days=2")
	require.Equal(t, http.StatusOK, code)
	deals := body["deals"].([]any)
	require.Len(t, deals, 3)
	assert.Equal(t, "d2", deals[0].(map[string]any)["id"])
	assert.Equal(t, "d4", deals[2].(map[string]any)["id"])
	assert.Equal(t, "OUT", deals[0].(map[string]any)["entryType"])

	for _, days := range []string{"0", "366", "abc", "-1"} {
		code, body = get(t, h, "/history?days="+days)
		assert.Equal(t, http.StatusBadRequest, code, days)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "BadRequest", body["kind"])
		assert.Contains(t, body["error"], "days")
	}
}

func TestStats(t *testing.T) {
	h := newTestRouter(t, config.Fixed, nil)

	code, body := get(t, h, "/stats?days=7")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 7, body["period_days"])
	assert.EqualValues(t, 3, body["total_closed_trades"])
	assert.EqualValues(t, 2, body["winning_trades"])
	assert.EqualValues(t, 1, body["losing_trades"])
	assert.Equal(t, 66.67, body["win_rate"])
	assert.Equal(t, 38.5, body["total_profit"])
}

func TestAccounts(t *testing.T) {
	h := newTestRouter(t, config.First, nil)

	code, body := get(t, h, "/accounts")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, body["total_accounts"])
	first := body["accounts"].([]any)[0].(map[string]any)
	assert.Equal(t, "main", first["id"])
	assert.Equal(t, "DEPLOYED", first["state"])
}

func TestErrorStatuses(t *testing.T) {
	h := newTestRouter(t, config.Query, nil)

	cases := []struct {
		account string
		status  int
		kind    string
	}{
		{"missing", http.StatusNotFound, "NotFound"},
		{"parked", http.StatusServiceUnavailable, "NotReady"},
		{"broken", http.StatusBadGateway, "ProviderError"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			code, body := get(t, h, "/positions?account_id="+tc.account)
			assert.Equal(t, tc.status, code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDegradedStillAnswers(t *testing.T) {
	h := newTestRouter(t, config.Query, nil)

	start := time.Now()
	code, body := get(t, h, "/account-info?account_id=slow")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["synchronized"])
	_, ok := body["balance"]
	assert.True(t, ok)
}

func TestJournalRecordsFetches(t *testing.T) {
	j := &recordingJournal{}
	h := newTestRouter(t, config.Query, j)

	get(t, h, "/positions")
	get(t, h, "/positions?account_id=parked")

	require.Len(t, j.entries, 2)
	assert.Equal(t, "main", j.entries[0].AccountID)
	assert.True(t, j.entries[0].Synchronized)
	assert.Empty(t, j.entries[0].ErrorKind)
	assert.NotEmpty(t, j.entries[0].RequestID)
	assert.Equal(t, "NotReady", j.entries[1].ErrorKind)

	code, body := get(t, h, "/journal?account_id=parked")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total_entries"])

	code, _ = get(t, h, "/journal?limit=1000")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestJournalRouteAbsentWithoutJournal(t *testing.T) {
	h := newTestRouter(t, config.Fixed, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/journal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
