package config

import (
	"cmp"
	"fmt"
	"os"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const _investAppName = "STTM-NSU.account-bridge"

// LoadInvestConfig reads the investgo yaml. The token only ever comes from
// the environment.
func LoadInvestConfig(filename, accountID string) (investgo.Config, error) {
	cfg, err := investgo.LoadConfig(filename)
	if err != nil {
		return investgo.Config{}, fmt.Errorf("%w: can't load config", err)
	}

	cfg.Token = os.Getenv("T_INVEST_API_TOKEN")
	if cfg.Token == "" {
		return investgo.Config{}, fmt.Errorf("%w: empty t-invest api token", ErrConfig)
	}
	cfg.AppName = cmp.Or(cfg.AppName, _investAppName)
	cfg.AccountId = cmp.Or(accountID, cfg.AccountId)

	return cfg, nil
}
