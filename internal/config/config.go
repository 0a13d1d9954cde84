package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pricewatch/wishlist-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Steam  SteamConfig  `yaml:"steam" mapstructure:"steam"`
	ITAD   ITADConfig   `yaml:"itad" mapstructure:"itad"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SteamConfig holds Steam Web API credentials and storefront settings.
type SteamConfig struct {
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	SteamID      string `yaml:"steam_id" mapstructure:"steam_id"`
	Country      string `yaml:"country" mapstructure:"country"`
	APIBaseURL   string `yaml:"api_base_url" mapstructure:"api_base_url"`
	StoreBaseURL string `yaml:"store_base_url" mapstructure:"store_base_url"`
}

// ITADConfig holds IsThereAnyDeal API settings.
type ITADConfig struct {
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Country   string  `yaml:"country" mapstructure:"country"`
	ShopID    int     `yaml:"shop_id" mapstructure:"shop_id"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SyncConfig tunes fetch cycles.
type SyncConfig struct {
	HistoryMonths    int `yaml:"history_months" mapstructure:"history_months"`
	HistoryDelaySecs int `yaml:"history_delay_secs" mapstructure:"history_delay_secs"`
}

// ServerConfig configures the JSON API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WISHLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "wishlist.db")
	v.SetDefault("steam.country", "BR")
	v.SetDefault("steam.api_base_url", "https://api.steampowered.com")
	v.SetDefault("steam.store_base_url", "https://store.steampowered.com")
	v.SetDefault("itad.base_url", "https://api.isthereanydeal.com")
	v.SetDefault("itad.country", "BR")
	v.SetDefault("itad.shop_id", 61)
	v.SetDefault("itad.rate_limit", 1.0)
	v.SetDefault("sync.history_months", 12)
	v.SetDefault("sync.history_delay_secs", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Default returns the built-in configuration, used by `config init` to
// write a starter file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
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
