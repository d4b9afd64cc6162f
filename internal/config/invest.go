package config

import (
	"cmp"
	"fmt"
	"os"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
)

const (
	_investAppName = "STTM-NSU.paper-trading"
)

// LoadInvestConfig reads the T-Invest SDK config used by the invest quote provider.
// The token is never stored in the file.
func LoadInvestConfig(c InvestConfig) (investgo.Config, error) {
	cfg, err := investgo.LoadConfig(c.ConfigPath)
	if err != nil {
		return investgo.Config{}, fmt.Errorf("%w: can't load config", err)
	}

	cfg.Token = os.Getenv("T_INVEST_API_TOKEN")
	if cfg.Token == "" {
		return investgo.Config{}, fmt.Errorf("empty t-invest api token")
	}
	cfg.AppName = cmp.Or(cfg.AppName, _investAppName)

	return cfg, nil
}
