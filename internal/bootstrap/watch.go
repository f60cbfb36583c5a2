package bootstrap

import (
	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// WatchConfig follows configPath and applies the log level of every valid
// change. Other sections are only read at startup. An empty path is a no-op.
func WatchConfig(configPath string, logger logging.Logger) error {
	if configPath == "" {
		return nil
	}
	return config.Watch(configPath, onConfigChange(logger), func(err error) {
		logger.Warn("Ignoring invalid configuration change", logging.Err(err))
	})
}

func onConfigChange(logger logging.Logger) func(*config.Config) {
	return func(cfg *config.Config) {
		if ls, ok := logger.(logging.LevelSetter); ok && ls.SetLevel(cfg.Log.Level) {
			logger.Info("Log level reloaded", logging.String("level", cfg.Log.Level))
		}
		logger.Info("Configuration changed, restart to apply other sections")
	}
}
