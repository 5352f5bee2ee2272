package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env string `mapstructure:"EXPLORER_ENV"`

	RPC      RPCConfig      `mapstructure:",squash"`
	HTTP     HTTPConfig     `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Feed     FeedConfig     `mapstructure:",squash"`
	Display  DisplayConfig  `mapstructure:",squash"`
	Sessions SessionsConfig `mapstructure:",squash"`
	History  HistoryConfig  `mapstructure:",squash"`
}

type RPCConfig struct {
	URL       string        `mapstructure:"EXPLORER_RPC_URL"`
	User      string        `mapstructure:"EXPLORER_RPC_USER"`
	Password  string        `mapstructure:"EXPLORER_RPC_PASSWORD"`
	Wallet    string        `mapstructure:"EXPLORER_RPC_WALLET"`
	Timeout   time.Duration `mapstructure:"EXPLORER_RPC_TIMEOUT"`
	RateLimit int           `mapstructure:"EXPLORER_RPC_RATE_LIMIT"` // Requests per minute, 0 disables
	Network   string        `mapstructure:"EXPLORER_NETWORK"`        // "mainnet", "testnet3", "regtest", "signet"
}

type HTTPConfig struct {
	Host               string   `mapstructure:"EXPLORER_HTTP_HOST"`
	Port               int      `mapstructure:"EXPLORER_HTTP_PORT"`
	CORSAllowedOrigins []string `mapstructure:"EXPLORER_CORS_ALLOWED_ORIGINS"`
}

type DBConfig struct {
	Path     string `mapstructure:"EXPLORER_DB_PATH"`
	MockMode bool   `mapstructure:"EXPLORER_DB_MOCK"`
}

type FeedConfig struct {
	Interval time.Duration `mapstructure:"EXPLORER_FEED_INTERVAL"`
	Size     int           `mapstructure:"EXPLORER_FEED_SIZE"`
}

type DisplayConfig struct {
	TimeLayout string `mapstructure:"EXPLORER_TIME_LAYOUT"`
	TimeZone   string `mapstructure:"EXPLORER_TIME_ZONE"`
}

type SessionsConfig struct {
	TTL              time.Duration `mapstructure:"EXPLORER_SESSION_TTL"`
	LastResolvedWins bool          `mapstructure:"EXPLORER_LAST_RESOLVED_WINS"` // Legacy ordering of concurrent lookups
}

// HistoryConfig bounds the search history table. A zero Retention keeps
// every entry.
type HistoryConfig struct {
	Retention     time.Duration `mapstructure:"EXPLORER_HISTORY_RETENTION"`
	PruneInterval time.Duration `mapstructure:"EXPLORER_HISTORY_PRUNE_INTERVAL"`
}

// Read loads .env (if present) and the environment without validating, so
// callers can apply flag overrides before calling Validate.
func Read() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return read(viper.New())
}

// loadDotEnv loads path when it exists. Vars already set take precedence.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func read(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("EXPLORER_ENV", "dev")
	v.SetDefault("EXPLORER_RPC_URL", "http://127.0.0.1:8332")
	v.SetDefault("EXPLORER_RPC_USER", "")
	v.SetDefault("EXPLORER_RPC_PASSWORD", "")
	v.SetDefault("EXPLORER_RPC_WALLET", "watchonly")
	v.SetDefault("EXPLORER_RPC_TIMEOUT", "30s")
	v.SetDefault("EXPLORER_RPC_RATE_LIMIT", 600)
	v.SetDefault("EXPLORER_NETWORK", "mainnet")
	v.SetDefault("EXPLORER_HTTP_HOST", "localhost")
	v.SetDefault("EXPLORER_HTTP_PORT", 8090)
	v.SetDefault("EXPLORER_CORS_ALLOWED_ORIGINS", "http://localhost:8090")
	v.SetDefault("EXPLORER_DB_PATH", "data/explorer.db")
	v.SetDefault("EXPLORER_DB_MOCK", false)
	v.SetDefault("EXPLORER_FEED_INTERVAL", "1m")
	v.SetDefault("EXPLORER_FEED_SIZE", 6)
	v.SetDefault("EXPLORER_TIME_LAYOUT", "2006-01-02 15:04:05")
	v.SetDefault("EXPLORER_TIME_ZONE", "UTC")
	v.SetDefault("EXPLORER_SESSION_TTL", "30m")
	v.SetDefault("EXPLORER_LAST_RESOLVED_WINS", false)
	v.SetDefault("EXPLORER_HISTORY_RETENTION", "720h")
	v.SetDefault("EXPLORER_HISTORY_PRUNE_INTERVAL", "1h")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("EXPLORER_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("EXPLORER_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.RPC.Network = strings.ToLower(strings.TrimSpace(cfg.RPC.Network))
	cfg.RPC.Wallet = strings.TrimSpace(cfg.RPC.Wallet)

	return &cfg, nil
}

// Validate checks the loaded values and the ones derived from them.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("EXPLORER_RPC_URL is required")
	}
	if c.RPC.Wallet == "" {
		return fmt.Errorf("EXPLORER_RPC_WALLET is required")
	}
	if _, err := c.ChainParams(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid EXPLORER_TIME_ZONE %q: %w", c.Display.TimeZone, err)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid EXPLORER_HTTP_PORT %d", c.HTTP.Port)
	}
	if c.Feed.Size <= 0 {
		return fmt.Errorf("EXPLORER_FEED_SIZE must be positive")
	}
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("EXPLORER_FEED_INTERVAL must be positive")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("EXPLORER_HISTORY_RETENTION must not be negative")
	}
	if c.History.Retention > 0 && c.History.PruneInterval <= 0 {
		return fmt.Errorf("EXPLORER_HISTORY_PRUNE_INTERVAL must be positive")
	}
	return nil
}

// ChainParams maps the configured network name to btcd's parameters.
func (c *Config) ChainParams() (*chaincfg.Params, error) {
	switch c.RPC.Network {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("invalid EXPLORER_NETWORK %q (must be mainnet, testnet3, regtest, or signet)", c.RPC.Network)
	}
}

// Location resolves the display time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Display.TimeZone)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
