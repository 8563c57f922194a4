package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oac1771/iot-sdk/config"
)

// loadConfig loads the YAML config named by --config, or the defaults when
// the flag is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// configureLogger creates a logger from the loaded config, with --log-level
// taking precedence over the config file. Without an explicit config file or
// level flag, commands default to a quiet logger.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logger := cfg.NewLogger()
	if path, _ := cmd.Flags().GetString("config"); path == "" {
		logger.SetLevel(logrus.PanicLevel)
	}

	levelStr, _ := cmd.Flags().GetString("log-level")
	if levelStr == "" {
		return logger, nil
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}
	logger.SetLevel(level)
	return logger, nil
}
