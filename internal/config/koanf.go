// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"vaultrun.yaml",
	"vaultrun.yml",
	"/etc/vaultrun/config.yaml",
	"/etc/vaultrun/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "VAULTRUN_CONFIG"

// envPrefix namespaces Vaultrun's environment variables.
const envPrefix = "VAULTRUN_"

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, highest priority last. An explicit path overrides
// the file search; pass "" to search DefaultConfigPaths.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := configPath
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing default config path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps VAULTRUN_* variable names (sans prefix, lowercased) to
// koanf config paths. Variables outside this table are ignored.
var envMappings = map[string]string{
	"source_dir": "source.dir",

	"dest_dir":    "dest.dir",
	"dest_prefix": "dest.prefix",
	"dest_ext":    "dest.ext",

	"lock_path":  "lock.path",
	"state_path": "state.path",

	"retention_daily_days":       "retention.daily_days",
	"retention_weekly_weeks":     "retention.weekly_weeks",
	"retention_monthly_months":   "retention.monthly_months",
	"retention_week_anchor":      "retention.week_anchor",
	"retention_month_anchor_day": "retention.month_anchor_day",

	"compression_level": "archive.compression_level",

	"webhook_url":    "notify.webhook_url",
	"notify_timeout": "notify.timeout",
	"smtp_host":      "notify.smtp.host",
	"smtp_port":      "notify.smtp.port",
	"smtp_from":      "notify.smtp.from",
	"smtp_to":        "notify.smtp.to",
	"smtp_user":      "notify.smtp.user",
	"smtp_password":  "notify.smtp.password",
	"smtp_starttls":  "notify.smtp.starttls",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its config path.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}
