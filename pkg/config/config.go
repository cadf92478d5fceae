// Package config loads sn77-server's configuration from an optional .env
// file, an optional YAML file, and environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/CreativeBuilds/sn77-server/pkg/utils"
)

// Config is the unified configuration for the incentive service.
type Config struct {
	Port int `mapstructure:"port" json:"port"`

	SQLitePath string `mapstructure:"sqlite_path" json:"sqlite_path"`

	RPCURL          string `mapstructure:"rpc_url" json:"rpc_url"`
	FactoryAddr     string `mapstructure:"factory_address" json:"factory_address"`
	SubstrateRPCURL string `mapstructure:"substrate_rpc_url" json:"substrate_rpc_url"`
	SubnetID        int    `mapstructure:"subnet_id" json:"subnet_id"`
	SubgraphURL     string `mapstructure:"subgraph_url" json:"subgraph_url"`
	SubgraphAPIKey  string `mapstructure:"subgraph_api_key" json:"subgraph_api_key"`
	OracleURL       string `mapstructure:"oracle_url" json:"oracle_url"`

	VersionFile string `mapstructure:"version_file" json:"version_file"`

	LogCSV bool   `mapstructure:"log_csv" json:"log_csv"`
	LogDir string `mapstructure:"log_dir" json:"log_dir"`

	HSTTL time.Duration `mapstructure:"hs_ttl" json:"hs_ttl"`
	SRTTL time.Duration `mapstructure:"sr_ttl" json:"sr_ttl"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

func defaults() Config {
	return Config{
		Port:            3000,
		SQLitePath:      "sn77.db",
		RPCURL:          "http://localhost:8545",
		SubstrateRPCURL: "http://localhost:9944",
		SubnetID:        77,
		VersionFile:     "VERSION",
		LogDir:          "logs",
		HSTTL:           60 * time.Second,
		SRTTL:           5 * time.Minute,
		RequestTimeout:  10 * time.Second,
	}
}

// Load loads an optional ".env" file into the process environment, reads an
// optional "sn77.yaml" config file (if present under the current directory
// or ./config), and merges environment-variable overrides on top. The
// resulting configuration is stored in AppConfig and returned.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, utils.Wrap(err, "load .env file")
	}

	cfg := defaults()

	viper.SetConfigName("sn77")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("sqlite_path", cfg.SQLitePath)
	viper.SetDefault("rpc_url", cfg.RPCURL)
	viper.SetDefault("substrate_rpc_url", cfg.SubstrateRPCURL)
	viper.SetDefault("subnet_id", cfg.SubnetID)
	viper.SetDefault("version_file", cfg.VersionFile)
	viper.SetDefault("log_dir", cfg.LogDir)
	viper.SetDefault("hs_ttl", cfg.HSTTL)
	viper.SetDefault("sr_ttl", cfg.SRTTL)
	viper.SetDefault("request_timeout", cfg.RequestTimeout)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "read config file")
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}

	// spec.md §6 names these environment variables directly rather than
	// through viper's generic prefix, so they are applied explicitly.
	cfg.Port = utils.EnvOrDefaultInt("PORT", cfg.Port)
	cfg.SQLitePath = utils.EnvOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.RPCURL = utils.EnvOrDefault("RPC_URL", cfg.RPCURL)
	cfg.SubstrateRPCURL = utils.EnvOrDefault("SUBSTRATE_RPC_URL", cfg.SubstrateRPCURL)
	cfg.FactoryAddr = utils.EnvOrDefault("UNISWAP_V3_FACTORY", cfg.FactoryAddr)
	cfg.SubgraphURL = utils.EnvOrDefault("SUBGRAPH_URL", cfg.SubgraphURL)
	cfg.SubgraphAPIKey = utils.EnvOrDefault("SUBGRAPH_API_KEY", cfg.SubgraphAPIKey)
	cfg.OracleURL = utils.EnvOrDefault("PRICE_ORACLE_URL", cfg.OracleURL)
	cfg.LogCSV = utils.EnvOrDefault("LOG_CSV", boolString(cfg.LogCSV)) == "true"

	AppConfig = cfg
	return &AppConfig, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
