package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Market  MarketConfig  `mapstructure:"market"`
	Journal JournalConfig `mapstructure:"journal"`
	RPC     RPCConfig     `mapstructure:"rpc"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type MarketConfig struct {
	ChainID         int64  `mapstructure:"chain_id"`
	ContractAddr    string `mapstructure:"contract_addr"`
	AdminAddr       string `mapstructure:"admin_addr"`
	FeeRateBps      uint64 `mapstructure:"fee_rate_bps"`
	MintFee         string `mapstructure:"mint_fee"`
	DiscountMintFee string `mapstructure:"discount_mint_fee"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// RPCConfig binds the collaborators to a deployed chain. With an empty URL
// the service runs on in-process backends.
type RPCConfig struct {
	URL           string `mapstructure:"url"`
	PrivateKeyHex string `mapstructure:"private_key_hex"`
	RegistryAddr  string `mapstructure:"registry_addr"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("market.chain_id", 1)
	v.SetDefault("market.fee_rate_bps", 250)
	v.SetDefault("market.mint_fee", "0")
	v.SetDefault("market.discount_mint_fee", "0")
	v.SetDefault("journal.path", "imarket.db")
	v.SetDefault("rpc.url", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
