package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cleanhouse123/orderflow/extension"
)

// fileConfig is the CLI configuration: the extension config plus the
// process-level settings only the binary cares about.
type fileConfig struct {
	Orderflow extension.Config `mapstructure:"orderflow"`
	Addr      string           `mapstructure:"addr"`
	LogLevel  string           `mapstructure:"log_level"`
}

// loadConfig reads orderflow.yaml (or path) and ORDERFLOW_* environment
// variables. A missing file is not an error.
func loadConfig(path string) (*fileConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orderflow")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/orderflow")
	}

	v.SetEnvPrefix("ORDERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key so AutomaticEnv can override it.
	defaults := extension.DefaultConfig()
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("orderflow.base_path", defaults.BasePath)
	v.SetDefault("orderflow.driver", defaults.Driver)
	v.SetDefault("orderflow.schedule_interval", defaults.ScheduleInterval)
	v.SetDefault("orderflow.overdue_grace", defaults.OverdueGrace)
	v.SetDefault("orderflow.default_scheduled_delay", defaults.DefaultScheduledDelay)
	v.SetDefault("orderflow.notification_timeout", defaults.NotificationTimeout)
	v.SetDefault("orderflow.disable_routes", false)
	v.SetDefault("orderflow.disable_migrate", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Orderflow = extension.MergeWithDefaults(cfg.Orderflow)
	return &cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
