package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Store       StoreConfig       `yaml:"store"`
	Chain       ChainConfig       `yaml:"chain"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Keeper      KeeperConfig      `yaml:"keeper"`
	Submodules  []SubmoduleConfig `yaml:"submodules"`
	Assets      []AssetConfig     `yaml:"assets"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EngineConfig holds the engine parameters fixed at first start.
type EngineConfig struct {
	Decimals             *uint8   `yaml:"decimals"`              // Output decimals (default: 18)
	ObservationFrequency Duration `yaml:"observation_frequency"` // Whole seconds (default: 1h)
}

// StoreConfig selects the state database.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "goleveldb" or "memdb"
	Dir     string `yaml:"dir"`
	Name    string `yaml:"name"`
}

// ChainConfig configures the Ethereum JSON-RPC connection used for contract checks
// and on-chain feeds. Without an RPC URL, Contracts lists the addresses treated as contracts.
type ChainConfig struct {
	RPCURL    string   `yaml:"rpc_url"`
	Timeout   Duration `yaml:"timeout"`
	Contracts []string `yaml:"contracts"`
}

// PermissionsConfig lists the addresses allowed to call mutating operations. Admins
// configure assets and store observations; keepers only store observations.
type PermissionsConfig struct {
	Admins  []string `yaml:"admins"`
	Keepers []string `yaml:"keepers"`
}

// KeeperConfig configures the periodic observation store.
type KeeperConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Address       string   `yaml:"address"` // Caller identity (default: first keeper)
	Timeout       Duration `yaml:"timeout"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryInterval Duration `yaml:"retry_interval"`
}

// SubmoduleConfig installs one feed or strategy submodule.
type SubmoduleConfig struct {
	Keycode string                 `yaml:"keycode"`
	Config  map[string]interface{} `yaml:"config"`
}

// ComponentConfig references a submodule operation.
type ComponentConfig struct {
	Target   string                 `yaml:"target"`
	Selector string                 `yaml:"selector"`
	Params   map[string]interface{} `yaml:"params"`
}

// MovingAverageSettings configures the observation buffer of a bootstrap asset.
type MovingAverageSettings struct {
	Store               bool     `yaml:"store"`
	Duration            Duration `yaml:"duration"`
	LastObservationTime uint64   `yaml:"last_observation_time"`
	Observations        []string `yaml:"observations"`
}

// AssetConfig is an asset registered at startup when not already approved.
type AssetConfig struct {
	Address          string                `yaml:"address"`
	UseMovingAverage bool                  `yaml:"use_moving_average"`
	MovingAverage    MovingAverageSettings `yaml:"moving_average"`
	Strategy         *ComponentConfig      `yaml:"strategy"`
	Feeds            []ComponentConfig     `yaml:"feeds"`
}

// ServerConfig configures the API server
type ServerConfig struct {
	HTTP         HTTPConfig `yaml:"http"`
	WebSocket    WSConfig   `yaml:"websocket"`
	QueryTimeout Duration   `yaml:"query_timeout"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Enabled bool      `yaml:"enabled"`
	Addr    string    `yaml:"addr"`
	TLS     TLSConfig `yaml:"tls"`
}

// WSConfig enables the event stream at /ws on the HTTP server.
type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// Seconds returns d in whole seconds. It fails when d is negative, has a fractional
// second, or does not fit in 32 bits.
func (d Duration) Seconds() (uint32, error) {
	td := time.Duration(d)
	if td < 0 || td%time.Second != 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotWholeSeconds, td)
	}
	secs := uint64(td / time.Second)
	if secs > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s", ErrNotWholeSeconds, td)
	}
	return uint32(secs), nil
}
