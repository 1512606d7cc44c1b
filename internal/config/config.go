package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Limits  LimitsConfig  `yaml:"limits" mapstructure:"limits"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig holds the upstream open-data endpoints and shared
// fetch settings.
type SourcesConfig struct {
	AppToken       string `yaml:"app_token" mapstructure:"app_token"`
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
	ParcelURL      string `yaml:"parcel_url" mapstructure:"parcel_url"`
	ValuationURL   string `yaml:"valuation_url" mapstructure:"valuation_url"`
	TransactionURL string `yaml:"transaction_url" mapstructure:"transaction_url"`
	ComplianceURL  string `yaml:"compliance_url" mapstructure:"compliance_url"`
}

// LimitsConfig caps per-source download volume for a run.
type LimitsConfig struct {
	Parcels      int `yaml:"parcels" mapstructure:"parcels"`
	Valuations   int `yaml:"valuations" mapstructure:"valuations"`
	Transactions int `yaml:"transactions" mapstructure:"transactions"`
	Compliance   int `yaml:"compliance" mapstructure:"compliance"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields the given command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "migrate", "status", "catalog":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "run":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Sources.ParcelURL == "" || c.Sources.ValuationURL == "" ||
			c.Sources.TransactionURL == "" || c.Sources.ComplianceURL == "" {
			problems = append(problems, "all four sources.*_url values are required")
		}
		if c.Sources.PageSize < 1 || c.Sources.PageSize > 50000 {
			problems = append(problems, "sources.page_size must be between 1 and 50000")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sources.page_size", 50000)
	v.SetDefault("sources.parcel_url", "https://data.cityofnewyork.us/resource/64uk-42ks.json")
	v.SetDefault("sources.valuation_url", "https://data.cityofnewyork.us/resource/yjxr-fw8i.json")
	v.SetDefault("sources.transaction_url", "https://data.cityofnewyork.us/resource/bnx9-e6tj.json")
	v.SetDefault("sources.compliance_url", "https://data.cityofnewyork.us/resource/kj4p-ruqc.json")
	v.SetDefault("limits.parcels", 900000)
	v.SetDefault("limits.valuations", 500000)
	v.SetDefault("limits.transactions", 500000)
	v.SetDefault("limits.compliance", 500000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
