package metaapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetaApi struct {
	t         *testing.T
	server    *httptest.Server
	polls     atomic.Int32
	statuses  []string // connectionStatus answered per poll, last one repeats
	dealPath  atomic.Value
	dealCalls atomic.Int32
}

func newFakeMetaApi(t *testing.T, statuses ...string) *fakeMetaApi {
	f := &fakeMetaApi{t: t, statuses: statuses}
	mux := http.NewServeMux()

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("auth-token") != "secret" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"id":1,"error":"UnauthorizedError","message":"bad token"}`))
				return
			}
			next(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc("GET /users/current/accounts", auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[
			{"_id":"acc-1","name":"Main","login":"5001","server":"ICMarkets-Demo","region":"london","state":"DEPLOYED","connectionStatus":"CONNECTED"},
			{"_id":"acc-2","name":"Idle","login":5002,"server":"ICMarkets-Demo","state":"UNDEPLOYED","connectionStatus":"DISCONNECTED"}
		]`)
	}))
	mux.HandleFunc("GET /users/current/accounts/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "acc-1":
			writeJSON(w, http.StatusOK, `{"_id":"acc-1","name":"Main","login":"5001","server":"ICMarkets-Demo","state":"DEPLOYED","connectionStatus":"CONNECTED"}`)
		case "acc-sync":
			n := int(f.polls.Add(1)) - 1
			status := f.statuses[min(n, len(f.statuses)-1)]
			writeJSON(w, http.StatusOK, `{"_id":"acc-sync","state":"DEPLOYED","connectionStatus":"`+status+`"}`)
		case "acc-broken":
			writeJSON(w, http.StatusInternalServerError, `{"id":5,"error":"InternalError","message":"terminal crashed"}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"id":4,"error":"NotFoundError","message":"Trading account not found"}`)
		}
	}))
	mux.HandleFunc("GET /users/current/accounts/{id}/account-information", auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"platform":"mt5","broker":"Raw Trading Ltd","currency":"USD","server":"ICMarkets-Demo",
			"balance":1000.5,"equity":1010.25,"margin":12.3,"freeMargin":997.95,"leverage":500,"name":"Main","login":5001}`)
	}))
	mux.HandleFunc("GET /users/current/accounts/{id}/positions", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "acc-empty" {
			writeJSON(w, http.StatusOK, `[]`)
			return
		}
		writeJSON(w, http.StatusOK, `[{"id":"46214692","type":"POSITION_TYPE_BUY","symbol":"GBPUSD","time":"2024-04-15T02:45:06.521Z",
			"openPrice":1.26101,"currentPrice":1.24883,"volume":0.07,"swap":0,"profit":-85.26,"commission":-0.25,"stopLoss":1.17721}]`)
	}))
	mux.HandleFunc("GET /users/current/accounts/{id}/history-deals/time/{start}/{end}", auth(func(w http.ResponseWriter, r *http.Request) {
		f.dealCalls.Add(1)
		f.dealPath.Store(r.PathValue("start") + "|" + r.PathValue("end"))
		writeJSON(w, http.StatusOK, `[
			{"id":"33230099","type":"DEAL_TYPE_BALANCE","time":"2024-04-01T00:00:00.000Z","volume":0,"price":0,"profit":10000},
			{"id":"33230100","type":"DEAL_TYPE_SELL","entryType":"DEAL_ENTRY_OUT","symbol":"EURUSD","time":"2024-04-02T10:00:00.000Z",
			 "volume":0.1,"price":1.0712,"profit":12.5,"commission":-0.7,"swap":-0.1}
		]`)
	}))

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeMetaApi) provider(token string) *Provider {
	return f.providerWithChunk(token, 0)
}

func (f *fakeMetaApi) providerWithChunk(token string, chunk time.Duration) *Provider {
	cfg := config.MetaApiConfig{
		Token:           token,
		ProvisioningURL: f.server.URL,
		ClientURL:       f.server.URL,
		HistoryChunk:    chunk,
	}
	require.NoError(f.t, cfg.Setup())
	cfg.RequestsPerMinute = 60000
	cfg.SyncPollInterval = 10 * time.Millisecond

	client := NewClient(cfg, logger.NewNopLogger())
	f.t.Cleanup(func() { _ = client.Close() })
	return NewProvider(client)
}

func TestAccounts(t *testing.T) {
	p := newFakeMetaApi(t).provider("secret")

	accounts, err := p.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, model.Account{
		ID: "acc-1", Name: "Main", Login: "5001", Server: "ICMarkets-Demo", Region: "london",
		State: model.StateDeployed, ConnectionStatus: model.Connected,
	}, accounts[0])
	assert.Equal(t, "5002", accounts[1].Login)
	assert.False(t, accounts[1].IsDeployed())
}

func TestAccountErrors(t *testing.T) {
	fake := newFakeMetaApi(t)

	_, err := fake.provider("secret").Account(context.Background(), "nope")
	require.ErrorIs(t, err, fetcher.ErrNotFound)
	assert.Contains(t, err.Error(), "Trading account not found")

	_, err = fake.provider("secret").Account(context.Background(), "acc-broken")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.Code)
	assert.Equal(t, "terminal crashed", serr.Message)

	_, err = fake.provider("wrong").Account(context.Background(), "acc-1")
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.Code)
}

func TestConnectionReads(t *testing.T) {
	fake := newFakeMetaApi(t)
	p := fake.provider("secret")

	account, err := p.Account(context.Background(), "acc-1")
	require.NoError(t, err)
	conn, err := p.Connect(context.Background(), account)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WaitSynchronized(context.Background()))

	info, err := conn.AccountInformation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5001", info.Login)
	assert.Equal(t, "Raw Trading Ltd", info.Broker)
	assert.Equal(t, 1010.25, *info.Equity)
	assert.Equal(t, 500.0, *info.Leverage)
	assert.InDelta(t, 9.75, *info.FloatingProfit(), 1e-9)

	positions, err := conn.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BUY", positions[0].Type)
	assert.Equal(t, "46214692", positions[0].ID)
	assert.Equal(t, 1.17721, *positions[0].StopLoss)
	assert.Nil(t, positions[0].TakeProfit)
	assert.Equal(t, time.Date(2024, 4, 15, 2, 45, 6, 521000000, time.UTC), positions[0].OpenTime)

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 30, 12, 30, 0, 0, time.UTC)
	deals, err := conn.Deals(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "BALANCE", deals[0].Type)
	assert.Equal(t, model.DealEntry(""), deals[0].EntryType)
	assert.Equal(t, model.EntryOut, deals[1].EntryType)
	assert.Equal(t, "SELL", deals[1].Type)
	assert.Equal(t, "2024-04-01T00:00:00.000Z|2024-04-30T12:30:00.000Z", fake.dealPath.Load())
}

func TestDealsChunkedRange(t *testing.T) {
	fake := newFakeMetaApi(t)
	p := fake.providerWithChunk("secret", 10*24*time.Hour)

	conn, err := p.Connect(context.Background(), model.Account{ID: "acc-1", State: model.StateDeployed})
	require.NoError(t, err)

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	deals, err := conn.Deals(context.Background(), from, from.Add(25*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, fake.dealCalls.Load())
	assert.Len(t, deals, 2)
	assert.Equal(t, "2024-04-21T00:00:00.000Z|2024-04-26T00:00:00.000Z", fake.dealPath.Load())
}

func TestWaitSynchronizedPolls(t *testing.T) {
	fake := newFakeMetaApi(t, "DISCONNECTED", "DISCONNECTED_FROM_BROKER", "CONNECTED")
	p := fake.provider("secret")

	conn, err := p.Connect(context.Background(), model.Account{ID: "acc-sync", State: model.StateDeployed})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.WaitSynchronized(ctx))
	assert.EqualValues(t, 3, fake.polls.Load())
}

func TestWaitSynchronizedHonoursDeadline(t *testing.T) {
	fake := newFakeMetaApi(t, "DISCONNECTED")
	p := fake.provider("secret")

	conn, err := p.Connect(context.Background(), model.Account{ID: "acc-sync", State: model.StateDeployed})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, conn.WaitSynchronized(ctx), context.DeadlineExceeded)
}

func TestFetcherDegradesWithMetaApi(t *testing.T) {
	fake := newFakeMetaApi(t, "DISCONNECTED")
	f := fetcher.NewFetcher(fake.provider("secret"), fetcher.Config{
		WaitBudget:      150 * time.Millisecond,
		CheckDeployment: true,
	}, logger.NewNopLogger())

	res, err := f.Fetch(context.Background(), "acc-sync", model.PositionsView())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Positions, 1)

	_, err = f.Fetch(context.Background(), "missing", model.PositionsView())
	assert.ErrorIs(t, err, fetcher.ErrNotFound)

	_, err = f.Fetch(context.Background(), "acc-broken", model.PositionsView())
	assert.ErrorIs(t, err, fetcher.ErrProvider)
}
