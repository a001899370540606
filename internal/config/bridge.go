package config

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("invalid configuration")

type ProviderKind string

const (
	MetaApi ProviderKind = "metaapi"
	TInvest ProviderKind = "tinvest"
	Memory  ProviderKind = "memory"
)

type AccountSelection string

const (
	Fixed AccountSelection = "fixed" // configured id only
	First AccountSelection = "first" // first account the provider lists
	Query AccountSelection = "query" // ?account_id=, falling back to the configured id
)

type ServerConfig struct {
	Port            string        `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"` // empty = any origin
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type FetchConfig struct {
	WaitBudget         time.Duration `yaml:"wait_budget"`
	CheckDeployment    *bool         `yaml:"check_deployment"`
	Coalesce           *bool         `yaml:"coalesce"`
	DefaultHistoryDays int           `yaml:"default_history_days"`
	MaxHistoryDays     int           `yaml:"max_history_days"`
}

type AccountConfig struct {
	ID        string           `yaml:"id"`
	Selection AccountSelection `yaml:"selection"`
}

type MetaApiConfig struct {
	Token             string        `yaml:"-"`
	ProvisioningURL   string        `yaml:"provisioning_url"`
	ClientURL         string        `yaml:"client_url"` // overrides the per-region client url
	Region            string        `yaml:"region"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	SyncPollInterval  time.Duration `yaml:"sync_poll_interval"`
	HistoryChunk      time.Duration `yaml:"history_chunk"` // max time range of one history request
}

type InvestConfig struct {
	ConfigPath        string `yaml:"config_path"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type JournalDriver string

const (
	Postgres JournalDriver = "postgres"
	SQLite   JournalDriver = "sqlite"
)

type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Driver        JournalDriver `yaml:"driver"`
	SQLitePath    string        `yaml:"sqlite_path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type BridgeConfig struct {
	Provider ProviderKind  `yaml:"provider"`
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Account  AccountConfig `yaml:"account"`
	MetaApi  MetaApiConfig `yaml:"metaapi"`
	Invest   InvestConfig  `yaml:"invest"`
	Journal  JournalConfig `yaml:"journal"`
}

const (
	_providerDefault         = MetaApi
	_portDefault             = "8000"
	_shutdownTimeoutDefault  = 10 * time.Second
	_waitBudgetDefault       = 45 * time.Second
	_waitBudgetMin           = time.Second
	_waitBudgetMax           = 5 * time.Minute
	_defaultHistoryDays      = 30
	_maxHistoryDays          = 365
	_selectionDefault        = Fixed
	_provisioningURLDefault  = "https://mt-provisioning-api-v1.agiliumtrade.agiliumtrade.ai"
	_regionDefault           = "new-york"
	_metaApiTimeoutDefault   = 60 * time.Second
	_metaApiRPMDefault       = 300
	_syncPollIntervalDefault = time.Second
	_historyChunkDefault     = 30 * 24 * time.Hour
	_investConfigPathDefault = "./configs/invest.yaml"
	_investRPMDefault        = 200
	_clientURLTemplate       = "https://mt-client-api-v1.%s.agiliumtrade.ai"
	_journalDriverDefault    = Postgres
	_sqlitePathDefault       = "./data/journal.db"
	_flushIntervalDefault    = 5 * time.Second
)

func (c *FetchConfig) Setup() error {
	if c.WaitBudget <= 0 {
		c.WaitBudget = _waitBudgetDefault
	}
	if c.WaitBudget < _waitBudgetMin || c.WaitBudget > _waitBudgetMax {
		return fmt.Errorf("%w: wait budget %s out of [%s, %s]", ErrConfig, c.WaitBudget, _waitBudgetMin, _waitBudgetMax)
	}
	if c.CheckDeployment == nil {
		c.CheckDeployment = ptr(true)
	}
	if c.Coalesce == nil {
		c.Coalesce = ptr(true)
	}
	if c.MaxHistoryDays <= 0 {
		c.MaxHistoryDays = _maxHistoryDays
	}
	if c.DefaultHistoryDays <= 0 {
		c.DefaultHistoryDays = _defaultHistoryDays
	}
	if c.DefaultHistoryDays > c.MaxHistoryDays {
		c.DefaultHistoryDays = c.MaxHistoryDays
	}
	return nil
}

func (c *MetaApiConfig) Setup() error {
	if c.Token == "" {
		return fmt.Errorf("%w: empty metaapi token", ErrConfig)
	}
	c.ProvisioningURL = cmp.Or(c.ProvisioningURL, _provisioningURLDefault)
	c.Region = cmp.Or(c.Region, _regionDefault)
	for _, u := range []string{c.ProvisioningURL, c.ClientURL} {
		if u == "" {
			continue
		}
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("%w: %s", ErrConfig, err)
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = _metaApiTimeoutDefault
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = _metaApiRPMDefault
	}
	if c.SyncPollInterval <= 0 {
		c.SyncPollInterval = _syncPollIntervalDefault
	}
	if c.HistoryChunk <= 0 {
		c.HistoryChunk = _historyChunkDefault
	}
	return nil
}

func (c *JournalConfig) Setup() error {
	c.Driver = cmp.Or(c.Driver, _journalDriverDefault)
	switch c.Driver {
	case Postgres:
	case SQLite:
		c.SQLitePath = cmp.Or(c.SQLitePath, _sqlitePathDefault)
	default:
		return fmt.Errorf("%w: unknown journal driver %q", ErrConfig, c.Driver)
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = _flushIntervalDefault
	}
	return nil
}

// ClientURLFor returns the client api base url for an account region.
func (c MetaApiConfig) ClientURLFor(region string) string {
	if c.ClientURL != "" {
		return c.ClientURL
	}
	return fmt.Sprintf(_clientURLTemplate, cmp.Or(region, c.Region, _regionDefault))
}

func (c *BridgeConfig) ValidateAndSetup() error {
	c.Provider = ProviderKind(strings.ToLower(string(cmp.Or(c.Provider, _providerDefault))))
	c.Server.Port = cmp.Or(c.Server.Port, _portDefault)
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("%w: port %q", ErrConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = _shutdownTimeoutDefault
	}

	if err := c.Fetch.Setup(); err != nil {
		return err
	}

	c.Account.Selection = cmp.Or(c.Account.Selection, _selectionDefault)
	switch c.Account.Selection {
	case Fixed:
		if c.Account.ID == "" {
			return fmt.Errorf("%w: account id is required for %q selection", ErrConfig, Fixed)
		}
	case First, Query:
	default:
		return fmt.Errorf("%w: unknown account selection %q", ErrConfig, c.Account.Selection)
	}

	switch c.Provider {
	case MetaApi:
		if err := c.MetaApi.Setup(); err != nil {
			return err
		}
	case TInvest:
		c.Invest.ConfigPath = cmp.Or(c.Invest.ConfigPath, _investConfigPathDefault)
		if c.Invest.RequestsPerMinute <= 0 {
			c.Invest.RequestsPerMinute = _investRPMDefault
		}
	case Memory:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrConfig, c.Provider)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Setup(); err != nil {
			return err
		}
	}

	return nil
}

// applyEnv lets deploys inject secrets and the account id without touching
// the yaml file.
func (c *BridgeConfig) applyEnv() error {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	var provider, selection string
	setStr(&provider, "BRIDGE_PROVIDER")
	if provider != "" {
		c.Provider = ProviderKind(provider)
	}
	setStr(&selection, "BRIDGE_ACCOUNT_SELECTION")
	if selection != "" {
		c.Account.Selection = AccountSelection(selection)
	}
	setStr(&c.Server.Port, "BRIDGE_PORT")
	setStr(&c.LogLevel, "BRIDGE_LOG_LEVEL")
	setStr(&c.MetaApi.Token, "METAAPI_TOKEN")
	if c.MetaApi.Token == "" {
		setStr(&c.MetaApi.Token, "METAAPI_KEY")
	}
	setStr(&c.Account.ID, "METAAPI_ACCOUNT_ID")
	setStr(&c.Account.ID, "BRIDGE_ACCOUNT_ID")

	if v := os.Getenv("BRIDGE_WAIT_BUDGET"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: BRIDGE_WAIT_BUDGET %q", ErrConfig, v)
		}
		c.Fetch.WaitBudget = d
	}
	if v := os.Getenv("BRIDGE_JOURNAL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: BRIDGE_JOURNAL_ENABLED %q", ErrConfig, v)
		}
		c.Journal.Enabled = b
	}
	var driver string
	setStr(&driver, "BRIDGE_JOURNAL_DRIVER")
	if driver != "" {
		c.Journal.Driver = JournalDriver(driver)
	}
	return nil
}

// LoadBridgeConfig reads filename (a missing file means all defaults),
// applies env overrides and validates the result.
func LoadBridgeConfig(filename string) (BridgeConfig, error) {
	var cfg BridgeConfig
	input, err := os.ReadFile(filename)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("%w: can't read file", err)
	default:
		if err := yaml.Unmarshal(input, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: can't unmarshal config", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}

func ptr[T any](v T) *T {
	return &v
}
