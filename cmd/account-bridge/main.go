package main

import (
	"cmp"
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/STTM-NSU/account-bridge/internal/config"
	"github.com/STTM-NSU/account-bridge/internal/fetcher"
	"github.com/STTM-NSU/account-bridge/internal/journal"
	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/provider/memory"
	"github.com/STTM-NSU/account-bridge/internal/provider/metaapi"
	"github.com/STTM-NSU/account-bridge/internal/provider/tinvest"
	"github.com/STTM-NSU/account-bridge/internal/server"
	"github.com/joho/godotenv"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const (
	_bridgeCfgFilePath = "./configs/bridge.yaml"
)

var version = "dev"

func main() {
	envErr := godotenv.Load()
	cfg, cfgErr := config.LoadBridgeConfig(cmp.Or(os.Getenv("BRIDGE_CONFIG"), _bridgeCfgFilePath))

	zapLogger, loggerSync, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if envErr != nil {
		zapLogger.Warnf("can't detect .env file")
	}
	if cfgErr != nil {
		zapLogger.Fatalf("%s: can't load bridge cfg", cfgErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, closeProvider, err := newProvider(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatalf("%s: can't init %s provider", err, cfg.Provider)
	}
	defer closeProvider()

	f := fetcher.NewFetcher(provider, fetcher.Config{
		WaitBudget:      cfg.Fetch.WaitBudget,
		CheckDeployment: *cfg.Fetch.CheckDeployment,
		Coalesce:        *cfg.Fetch.Coalesce,
	}, zapLogger.With("component", "fetcher"))

	var (
		wg sync.WaitGroup
		j  server.Journal
	)
	if cfg.Journal.Enabled {
		db, err := journal.Open(ctx, cfg.Journal)
		if err != nil {
			zapLogger.Fatalf("%s: can't open journal", err)
		}
		defer db.Close()
		if err := journal.Migrate(ctx, db); err != nil {
			zapLogger.Fatalf("%s: can't migrate journal", err)
		}

		fetchJournal := journal.New(db, cfg.Journal.FlushInterval, zapLogger.With("component", "journal"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetchJournal.Run(ctx)
		}()
		j = fetchJournal
		zapLogger.Infof("fetch journal enabled (%s)", cfg.Journal.Driver)
	}

	handlers := server.NewHandlers(f, j, cfg, version, zapLogger.With("component", "handlers"))
	router := server.NewRouter(handlers, cfg.Server.CORSOrigins, zapLogger.With("component", "http"))
	httpServer := server.NewHTTPServer(ctx, cfg.Server, router, zapLogger)

	zapLogger.Infof("account bridge %s: provider %s, account selection %s, wait budget %s",
		version, provider.Name(), cfg.Account.Selection, cfg.Fetch.WaitBudget)

	if err := httpServer.Run(ctx); err != nil {
		zapLogger.Errorf("%s: http server stopped", err)
	}

	cancel()
	wg.Wait()
	zapLogger.Infof("account bridge stopped")
}

func newProvider(ctx context.Context, cfg config.BridgeConfig, zapLogger logger.Logger) (fetcher.Provider, func(), error) {
	switch cfg.Provider {
	case config.MetaApi:
		client := metaapi.NewClient(cfg.MetaApi, zapLogger.With("component", "metaapi"))
		return metaapi.NewProvider(client), func() {
			if err := client.Close(); err != nil {
				zapLogger.Warnf("%s: can't close metaapi client", err)
			}
		}, nil
	case config.TInvest:
		investCfg, err := config.LoadInvestConfig(cfg.Invest.ConfigPath, cfg.Account.ID)
		if err != nil {
			return nil, nil, err
		}
		investClient, err := investgo.NewClient(ctx, investCfg, zapLogger)
		if err != nil {
			return nil, nil, err
		}
		return tinvest.NewProvider(investClient, cfg.Invest, zapLogger.With("component", "tinvest")), func() {
			if err := investClient.Stop(); err != nil {
				zapLogger.Warnf("%s: can't stop invest client", err)
			}
		}, nil
	default:
		zapLogger.Warnf("serving built-in demo data, account %q", memory.DemoAccountID)
		return memory.NewDemo(time.Now().UTC()), func() {}, nil
	}
}
