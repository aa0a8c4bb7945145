// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

const envPrefix = "TOKEN_BALANCE"

type Config struct {
	RPCList                   []string `mapstructure:"rpc_list"`
	TokenMints                []string `mapstructure:"token_mints"`
	TokenDecimals             int      `mapstructure:"token_decimals"`
	TokenSymbol               string   `mapstructure:"token_symbol"`
	RequestTimeoutMs          int      `mapstructure:"request_timeout_ms"`
	BalanceRetries            int      `mapstructure:"balance_retries"`
	LookupRetries             int      `mapstructure:"lookup_retries"`
	BackoffInitialMs          int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs              int      `mapstructure:"backoff_max_ms"`
	RateLimitBackoffInitialMs int      `mapstructure:"rate_limit_backoff_initial_ms"`
	RateLimitBackoffMaxMs     int      `mapstructure:"rate_limit_backoff_max_ms"`
	CacheTTLSec               int      `mapstructure:"cache_ttl_sec"`
	CacheMaxEntries           int      `mapstructure:"cache_max_entries"`
	StaleRetentionSec         int      `mapstructure:"stale_retention_sec"`
	EndpointResetSec          int      `mapstructure:"endpoint_reset_sec"`
	RateLimitRPS              float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst            int      `mapstructure:"rate_limit_burst"`
	DebugLogging              bool     `mapstructure:"debug_logging"`
	LogFile                   string   `mapstructure:"log_file"`
	MetricsAddr               string   `mapstructure:"metrics_addr"`
}

const (
	DefaultTokenDecimals             = 6
	DefaultTokenSymbol               = "TOKEN"
	DefaultRequestTimeoutMs          = 8000
	DefaultBalanceRetries            = 3
	DefaultLookupRetries             = 2
	DefaultBackoffInitialMs          = 200
	DefaultBackoffMaxMs              = 2000
	DefaultRateLimitBackoffInitialMs = 1000
	DefaultRateLimitBackoffMaxMs     = 10000
	DefaultCacheTTLSec               = 300
	DefaultCacheMaxEntries           = 10000
	DefaultStaleRetentionSec         = 86400
	DefaultEndpointResetSec          = 300
	DefaultRateLimitBurst            = 1
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"token_decimals":                DefaultTokenDecimals,
		"token_symbol":                  DefaultTokenSymbol,
		"request_timeout_ms":            DefaultRequestTimeoutMs,
		"balance_retries":               DefaultBalanceRetries,
		"lookup_retries":                DefaultLookupRetries,
		"backoff_initial_ms":            DefaultBackoffInitialMs,
		"backoff_max_ms":                DefaultBackoffMaxMs,
		"rate_limit_backoff_initial_ms": DefaultRateLimitBackoffInitialMs,
		"rate_limit_backoff_max_ms":     DefaultRateLimitBackoffMaxMs,
		"cache_ttl_sec":                 DefaultCacheTTLSec,
		"cache_max_entries":             DefaultCacheMaxEntries,
		"stale_retention_sec":           DefaultStaleRetentionSec,
		"endpoint_reset_sec":            DefaultEndpointResetSec,
		"rate_limit_rps":                0,
		"rate_limit_burst":              DefaultRateLimitBurst,
		"debug_logging":                 false,
		"log_file":                      "",
		"metrics_addr":                  "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if len(cfg.TokenMints) == 0 {
		return errors.New("token_mints is empty")
	}
	if _, err := cfg.Mints(); err != nil {
		return err
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	positive := []struct {
		name  string
		value int
	}{
		{"request_timeout_ms", cfg.RequestTimeoutMs},
		{"balance_retries", cfg.BalanceRetries},
		{"lookup_retries", cfg.LookupRetries},
		{"backoff_initial_ms", cfg.BackoffInitialMs},
		{"backoff_max_ms", cfg.BackoffMaxMs},
		{"rate_limit_backoff_initial_ms", cfg.RateLimitBackoffInitialMs},
		{"rate_limit_backoff_max_ms", cfg.RateLimitBackoffMaxMs},
		{"cache_ttl_sec", cfg.CacheTTLSec},
		{"cache_max_entries", cfg.CacheMaxEntries},
		{"stale_retention_sec", cfg.StaleRetentionSec},
		{"endpoint_reset_sec", cfg.EndpointResetSec},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid %s", p.name)
		}
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 18 {
		return errors.New("invalid token_decimals")
	}
	if cfg.RateLimitRPS < 0 {
		return errors.New("invalid rate_limit_rps")
	}
	if cfg.RateLimitBurst < 0 {
		return errors.New("invalid rate_limit_burst")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	if list := splitList(v.GetString("RPC_LIST")); len(list) > 0 {
		cfg.RPCList = list
	}
	if list := splitList(v.GetString("TOKEN_MINTS")); len(list) > 0 {
		cfg.TokenMints = list
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var clean []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			clean = append(clean, item)
		}
	}
	return clean
}

// Mints разбирает token_mints; первый минт основной, остальные устаревшие
func (c *Config) Mints() ([]solana.PublicKey, error) {
	mints := make([]solana.PublicKey, 0, len(c.TokenMints))
	for _, raw := range c.TokenMints {
		mint, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid token mint %q: %w", raw, err)
		}
		mints = append(mints, mint)
	}
	return mints, nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

func (c *Config) StaleRetention() time.Duration {
	return time.Duration(c.StaleRetentionSec) * time.Second
}

func (c *Config) EndpointResetWindow() time.Duration {
	return time.Duration(c.EndpointResetSec) * time.Second
}
