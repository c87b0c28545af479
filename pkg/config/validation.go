package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/price"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateEngineConfig(cfg); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := validateStoreConfig(&cfg.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if _, err := cfg.StaticContracts(); err != nil {
		return fmt.Errorf("chain config: %w", err)
	}

	if err := validatePermissions(cfg); err != nil {
		return fmt.Errorf("permissions config: %w", err)
	}

	if err := validateKeeperConfig(cfg); err != nil {
		return fmt.Errorf("keeper config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Submodules))
	for i, sub := range cfg.Submodules {
		if err := validateSubmoduleConfig(&sub, seen); err != nil {
			return fmt.Errorf("submodule %d (%s): %w", i, sub.Keycode, err)
		}
	}

	for i, asset := range cfg.Assets {
		if _, err := asset.AddAssetParams(); err != nil {
			return fmt.Errorf("asset %d (%s): %w", i, asset.Address, err)
		}
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	// Validate logging config
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateEngineConfig(cfg *Config) error {
	if d := cfg.Decimals(); d > price.MaxDecimals {
		return fmt.Errorf("%w: %d (must be at most %d)", ErrInvalidDecimals, d, price.MaxDecimals)
	}
	freq, err := cfg.Engine.ObservationFrequency.Seconds()
	if err != nil {
		return fmt.Errorf("observation_frequency: %w", err)
	}
	if freq == 0 {
		return ErrInvalidObservationFrequency
	}
	return nil
}

func validateStoreConfig(cfg *StoreConfig) error {
	switch cfg.Backend {
	case BackendMemDB:
		return nil
	case BackendGoLevelDB:
		if cfg.Dir == "" {
			return ErrStoreDirRequired
		}
		return nil
	}
	return fmt.Errorf("%w: %s (must be '%s' or '%s')", ErrInvalidStoreBackend, cfg.Backend, BackendGoLevelDB, BackendMemDB)
}

func validatePermissions(cfg *Config) error {
	admins, err := cfg.Admins()
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		return ErrNoAdmins
	}
	_, err = cfg.Keepers()
	return err
}

func validateKeeperConfig(cfg *Config) error {
	if !cfg.Keeper.Enabled {
		return nil
	}
	if cfg.Keeper.Address == "" {
		return ErrKeeperAddressRequired
	}
	addr, err := ParseAddress(cfg.Keeper.Address)
	if err != nil {
		return err
	}

	// Permissions are validated first, so these parse.
	admins, _ := cfg.Admins()
	keepers, _ := cfg.Keepers()
	permitted := false
	for _, a := range append(admins, keepers...) {
		if a == addr {
			permitted = true
			break
		}
	}
	if !permitted {
		return fmt.Errorf("%w: %s", ErrKeeperNotPermitted, cfg.Keeper.Address)
	}
	return nil
}

func validateSubmoduleConfig(cfg *SubmoduleConfig, seen map[string]bool) error {
	if cfg.Keycode == "" {
		return ErrSubmoduleKeycodeRequired
	}
	if err := adapter.ValidateKeycode(adapter.Keycode(cfg.Keycode)); err != nil {
		return err
	}
	if seen[cfg.Keycode] {
		return ErrDuplicateSubmodule
	}
	seen[cfg.Keycode] = true
	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.WebSocket.Enabled && !cfg.HTTP.Enabled {
		return ErrWebSocketRequiresHTTP
	}
	if !cfg.HTTP.Enabled {
		return nil
	}
	if cfg.HTTP.Addr == "" {
		return ErrHTTPAddrRequired
	}

	// Validate TLS config
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	// Validate level
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	// Validate format
	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
