package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/price"
)

// Store backends.
const (
	BackendGoLevelDB = "goleveldb"
	BackendMemDB     = "memdb"
)

// DefaultDecimals is the output precision used when engine.decimals is unset.
const DefaultDecimals uint8 = 18

// Load loads configuration from a YAML file. Environment variables, including those
// from a .env file, are expanded before parsing.
func Load(path string) (*Config, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// LoadDotenv loads ENV_FILE, or ./.env when present. Variables already set in the
// environment win. NO_DOTENV=1 disables loading.
func LoadDotenv() error {
	if os.Getenv("NO_DOTENV") == "1" {
		return nil
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.Decimals == nil {
		d := DefaultDecimals
		cfg.Engine.Decimals = &d
	}
	if cfg.Engine.ObservationFrequency == 0 {
		cfg.Engine.ObservationFrequency = Duration(time.Hour)
	}

	// Store defaults
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendGoLevelDB
	}
	if cfg.Store.Dir == "" && cfg.Store.Backend != BackendMemDB {
		cfg.Store.Dir = "./data"
	}
	if cfg.Store.Name == "" {
		cfg.Store.Name = "price-engine"
	}

	// Chain defaults
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = Duration(10 * time.Second)
	}

	// Keeper defaults
	if cfg.Keeper.Address == "" && len(cfg.Permissions.Keepers) > 0 {
		cfg.Keeper.Address = cfg.Permissions.Keepers[0]
	}
	if cfg.Keeper.Timeout == 0 {
		cfg.Keeper.Timeout = Duration(time.Minute)
	}
	if cfg.Keeper.MaxRetries == 0 {
		cfg.Keeper.MaxRetries = 3
	}
	if cfg.Keeper.RetryInterval == 0 {
		cfg.Keeper.RetryInterval = Duration(5 * time.Second)
	}

	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.QueryTimeout == 0 {
		cfg.Server.QueryTimeout = Duration(10 * time.Second)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// Decimals returns the configured output decimals.
func (c *Config) Decimals() uint8 {
	if c.Engine.Decimals == nil {
		return DefaultDecimals
	}
	return *c.Engine.Decimals
}

// Admins returns the parsed admin addresses.
func (c *Config) Admins() ([]common.Address, error) {
	return parseAddresses("permissions.admins", c.Permissions.Admins)
}

// Keepers returns the parsed keeper addresses.
func (c *Config) Keepers() ([]common.Address, error) {
	return parseAddresses("permissions.keepers", c.Permissions.Keepers)
}

// StaticContracts returns the addresses treated as contracts when no RPC is configured.
func (c *Config) StaticContracts() ([]common.Address, error) {
	return parseAddresses("chain.contracts", c.Chain.Contracts)
}

func parseAddresses(field string, values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for i, v := range values {
		addr, err := ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// ParseAddress parses a 0x-prefixed or bare 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Component converts the reference into an engine component. Params are encoded as JSON.
func (cc ComponentConfig) Component() (price.Component, error) {
	if cc.Target == "" || cc.Selector == "" {
		return price.Component{}, ErrComponentIncomplete
	}
	c := price.Component{Target: adapter.Keycode(cc.Target), Selector: cc.Selector}
	if len(cc.Params) > 0 {
		params, err := json.Marshal(cc.Params)
		if err != nil {
			return price.Component{}, fmt.Errorf("params of %s.%s: %w", cc.Target, cc.Selector, err)
		}
		c.Params = params
	}
	return c, nil
}

// AddAssetParams converts the bootstrap entry into engine registration parameters.
func (ac AssetConfig) AddAssetParams() (price.AddAssetParams, error) {
	addr, err := ParseAddress(ac.Address)
	if err != nil {
		return price.AddAssetParams{}, err
	}
	if len(ac.Feeds) == 0 {
		return price.AddAssetParams{}, ErrAssetFeedsRequired
	}

	p := price.AddAssetParams{Asset: addr, UseMovingAverage: ac.UseMovingAverage}
	for i, f := range ac.Feeds {
		c, err := f.Component()
		if err != nil {
			return price.AddAssetParams{}, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		p.Feeds = append(p.Feeds, c)
	}
	if ac.Strategy != nil {
		c, err := ac.Strategy.Component()
		if err != nil {
			return price.AddAssetParams{}, fmt.Errorf("strategy: %w", err)
		}
		p.Strategy = &c
	}

	duration, err := ac.MovingAverage.Duration.Seconds()
	if err != nil {
		return price.AddAssetParams{}, fmt.Errorf("moving_average.duration: %w", err)
	}
	observations := make([]math.Uint, len(ac.MovingAverage.Observations))
	for i, o := range ac.MovingAverage.Observations {
		v, err := math.ParseUint(o)
		if err != nil {
			return price.AddAssetParams{}, fmt.Errorf("%w: moving_average.observations[%d]: %v", ErrInvalidObservation, i, err)
		}
		observations[i] = v
	}
	p.MovingAverage = price.MovingAverageConfig{
		StoreMovingAverage:    ac.MovingAverage.Store,
		MovingAverageDuration: duration,
		LastObservationTime:   ac.MovingAverage.LastObservationTime,
		Observations:          observations,
	}
	return p, nil
}
