package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-engine/pkg/adapter/feeds/fixed"
	"github.com/StrathCole/price-engine/pkg/adapter/strategy"
)

const sampleConfig = `
engine:
  decimals: 18
  observation_frequency: 8h
store:
  backend: memdb
chain:
  rpc_url: ${TEST_RPC_URL}
permissions:
  admins: ["0x00000000000000000000000000000000000000a1"]
  keepers: ["0x00000000000000000000000000000000000000b2"]
keeper:
  enabled: true
submodules:
  - keycode: PRICE.FIXED
  - keycode: PRICE.SIMPLESTRATEGY
  - keycode: PRICE.HTTPJSON
    config:
      timeout: 3000
      rate_limit: 2
assets:
  - address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"
    use_moving_average: true
    moving_average:
      store: true
      duration: 24h
      last_observation_time: 1700000000
      observations: ["1000000000000000000", "1000000000000000000", "1000000000000000000"]
    strategy:
      target: PRICE.SIMPLESTRATEGY
      selector: getAveragePrice
    feeds:
      - target: PRICE.FIXED
        selector: getPrice
        params:
          price: "1000000000000000000"
server:
  http:
    enabled: true
  websocket:
    enabled: true
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "http://localhost:8545")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, uint8(18), cfg.Decimals())
	assert.Equal(t, 8*time.Hour, cfg.Engine.ObservationFrequency.ToDuration())
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, BackendMemDB, cfg.Store.Backend)

	// Defaults
	assert.Equal(t, "0x00000000000000000000000000000000000000b2", cfg.Keeper.Address)
	assert.Equal(t, 3, cfg.Keeper.MaxRetries)
	assert.Equal(t, ":8080", cfg.Server.HTTP.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Len(t, cfg.Submodules, 3)
	assert.Equal(t, 3000, cfg.Submodules[2].Config["timeout"])

	require.Len(t, cfg.Assets, 1)
	p, err := cfg.Assets[0].AddAssetParams()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), p.Asset)
	assert.True(t, p.UseMovingAverage)
	assert.Equal(t, uint32(86400), p.MovingAverage.MovingAverageDuration)
	assert.Len(t, p.MovingAverage.Observations, 3)
	require.NotNil(t, p.Strategy)
	assert.Equal(t, strategy.Keycode, p.Strategy.Target)
	require.Len(t, p.Feeds, 1)
	assert.Equal(t, fixed.Keycode, p.Feeds[0].Target)
	assert.JSONEq(t, `{"price":"1000000000000000000"}`, string(p.Feeds[0].Params))
}

func TestParse_ZeroDecimalsIsKept(t *testing.T) {
	cfg, err := Parse([]byte("engine:\n  decimals: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), cfg.Decimals())

	cfg, err = Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDecimals, cfg.Decimals())
	assert.Equal(t, time.Hour, cfg.Engine.ObservationFrequency.ToDuration())
	assert.Equal(t, BackendGoLevelDB, cfg.Store.Backend)
	assert.Equal(t, "./data", cfg.Store.Dir)
}

func TestLoad_Dotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PRICE_ENGINE_TEST_ADMIN=0x00000000000000000000000000000000000000a1\n"), 0o600))
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("permissions:\n  admins: [\"${PRICE_ENGINE_TEST_ADMIN}\"]\n"), 0o600))

	t.Setenv("ENV_FILE", envFile)
	t.Setenv("PRICE_ENGINE_TEST_ADMIN", "")
	require.NoError(t, os.Unsetenv("PRICE_ENGINE_TEST_ADMIN"))

	cfg, err := Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000a1"}, cfg.Permissions.Admins)

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	_, err = Load(cfgFile)
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Parse([]byte(`
store:
  backend: memdb
permissions:
  admins: ["0x00000000000000000000000000000000000000a1"]
  keepers: ["0x00000000000000000000000000000000000000b2"]
`))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name: "decimals too large",
			mutate: func(c *Config) {
				d := uint8(39)
				c.Engine.Decimals = &d
			},
			wantErr: ErrInvalidDecimals,
		},
		{
			name:    "fractional frequency",
			mutate:  func(c *Config) { c.Engine.ObservationFrequency = Duration(1500 * time.Millisecond) },
			wantErr: ErrNotWholeSeconds,
		},
		{
			name:    "sub-second frequency",
			mutate:  func(c *Config) { c.Engine.ObservationFrequency = Duration(-time.Second) },
			wantErr: ErrNotWholeSeconds,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "rocksdb" },
			wantErr: ErrInvalidStoreBackend,
		},
		{
			name: "leveldb without dir",
			mutate: func(c *Config) {
				c.Store.Backend = BackendGoLevelDB
				c.Store.Dir = ""
			},
			wantErr: ErrStoreDirRequired,
		},
		{
			name:    "no admins",
			mutate:  func(c *Config) { c.Permissions.Admins = nil },
			wantErr: ErrNoAdmins,
		},
		{
			name:    "bad keeper address",
			mutate:  func(c *Config) { c.Permissions.Keepers = []string{"0xnope"} },
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "bad static contract",
			mutate:  func(c *Config) { c.Chain.Contracts = []string{"abc"} },
			wantErr: ErrInvalidAddress,
		},
		{
			name: "keeper not permitted",
			mutate: func(c *Config) {
				c.Keeper.Enabled = true
				c.Keeper.Address = "0x00000000000000000000000000000000000000c3"
			},
			wantErr: ErrKeeperNotPermitted,
		},
		{
			name: "keeper without address",
			mutate: func(c *Config) {
				c.Keeper.Enabled = true
				c.Keeper.Address = ""
			},
			wantErr: ErrKeeperAddressRequired,
		},
		{
			name:    "duplicate submodule",
			mutate:  func(c *Config) { c.Submodules = []SubmoduleConfig{{Keycode: "PRICE.FIXED"}, {Keycode: "PRICE.FIXED"}} },
			wantErr: ErrDuplicateSubmodule,
		},
		{
			name:    "submodule without keycode",
			mutate:  func(c *Config) { c.Submodules = []SubmoduleConfig{{}} },
			wantErr: ErrSubmoduleKeycodeRequired,
		},
		{
			name:    "asset without feeds",
			mutate:  func(c *Config) { c.Assets = []AssetConfig{{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"}} },
			wantErr: ErrAssetFeedsRequired,
		},
		{
			name: "asset feed without selector",
			mutate: func(c *Config) {
				c.Assets = []AssetConfig{{
					Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F",
					Feeds:   []ComponentConfig{{Target: "PRICE.FIXED"}},
				}}
			},
			wantErr: ErrComponentIncomplete,
		},
		{
			name: "asset with bad observation",
			mutate: func(c *Config) {
				c.Assets = []AssetConfig{{
					Address:       "0x6B175474E89094C44Da98b954EedeAC495271d0F",
					Feeds:         []ComponentConfig{{Target: "PRICE.FIXED", Selector: "getPrice"}},
					MovingAverage: MovingAverageSettings{Observations: []string{"-1"}},
				}}
			},
			wantErr: ErrInvalidObservation,
		},
		{
			name:    "websocket without http",
			mutate:  func(c *Config) { c.Server.WebSocket.Enabled = true },
			wantErr: ErrWebSocketRequiresHTTP,
		},
		{
			name: "tls without files",
			mutate: func(c *Config) {
				c.Server.HTTP.Enabled = true
				c.Server.HTTP.TLS.Enabled = true
			},
			wantErr: ErrTLSConfigIncomplete,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}
}
