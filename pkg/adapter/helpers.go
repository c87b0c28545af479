package adapter

import (
	"github.com/StrathCole/price-engine/pkg/logging"
)

// LoggerFromConfig extracts the "logger" entry injected by the daemon, falling back to
// the global logger.
func LoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.Global()
}

// IntFromConfig reads an integer option that may have been decoded from YAML or JSON.
func IntFromConfig(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// FloatFromConfig reads a numeric option that may have been decoded from YAML or JSON.
func FloatFromConfig(config map[string]interface{}, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
