// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package config loads Vaultrun's layered configuration.
//
// Sources, lowest to highest priority:
//
//  1. Built-in defaults (struct provider)
//  2. Optional YAML config file (VAULTRUN_CONFIG or default search paths)
//  3. Environment variables (VAULTRUN_SOURCE_DIR, VAULTRUN_DEST_DIR, ...)
//
// The merged result is unmarshaled into Config and validated. Everything
// is read once at startup; the configuration is immutable for the process
// lifetime.
package config

import (
	"compress/gzip"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmorrow/vaultrun/internal/retention"
	"github.com/go-playground/validator/v10"
)

// Config is the complete runtime configuration for one backup job.
type Config struct {
	Source    SourceConfig    `koanf:"source"`
	Dest      DestConfig      `koanf:"dest"`
	Lock      LockConfig      `koanf:"lock"`
	State     StateConfig     `koanf:"state"`
	Retention RetentionConfig `koanf:"retention"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Notify    NotifyConfig    `koanf:"notify"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// SourceConfig describes the data source to back up.
type SourceConfig struct {
	// Dir is the directory tree to archive.
	Dir string `koanf:"dir" validate:"required"`
}

// DestConfig describes where artifacts are placed and how they are named.
type DestConfig struct {
	// Dir is the artifact directory. Must be absolute.
	Dir string `koanf:"dir" validate:"required"`

	// Prefix is the artifact filename prefix.
	Prefix string `koanf:"prefix" validate:"required"`

	// Ext is the artifact filename extension (without leading dot).
	Ext string `koanf:"ext" validate:"required"`
}

// LockConfig locates the job's lock file.
type LockConfig struct {
	// Path is the lock file. Empty defaults to {dest.dir}/.vaultrun.lock.
	Path string `koanf:"path"`
}

// StateConfig locates the persisted run state.
type StateConfig struct {
	// Path is the state file. Empty defaults to {dest.dir}/state.json.
	Path string `koanf:"path"`
}

// RetentionConfig holds the tiered retention parameters.
type RetentionConfig struct {
	DailyDays      int    `koanf:"daily_days" validate:"gte=0"`
	WeeklyWeeks    int    `koanf:"weekly_weeks" validate:"gte=0"`
	MonthlyMonths  int    `koanf:"monthly_months" validate:"gte=0"`
	WeekAnchor     string `koanf:"week_anchor"`
	MonthAnchorDay int    `koanf:"month_anchor_day" validate:"gte=1,lte=28"`
}

// ArchiveConfig holds archiver settings.
type ArchiveConfig struct {
	// CompressionLevel is the gzip level, 1-9.
	CompressionLevel int `koanf:"compression_level" validate:"gte=1,lte=9"`
}

// NotifyConfig holds notification channel settings. A channel whose
// configuration is absent is silently disabled.
type NotifyConfig struct {
	// WebhookURL enables the webhook channel when non-empty.
	WebhookURL string `koanf:"webhook_url"`

	// Timeout bounds each channel send.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// SMTP enables the email channel when Host is non-empty.
	SMTP SMTPSettings `koanf:"smtp"`
}

// SMTPSettings configures the email channel.
type SMTPSettings struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	To       string `koanf:"to"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// StartTLS upgrades the connection before authenticating.
	StartTLS bool `koanf:"starttls"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Source and
// destination directories have no default: the operator must set them.
func defaultConfig() *Config {
	return &Config{
		Dest: DestConfig{
			Prefix: "backup",
			Ext:    "tar.gz",
		},
		Retention: RetentionConfig{
			DailyDays:      30,
			WeeklyWeeks:    8,
			MonthlyMonths:  12,
			WeekAnchor:     "sunday",
			MonthAnchorDay: 1,
		},
		Archive: ArchiveConfig{
			CompressionLevel: gzip.DefaultCompression,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
			SMTP: SMTPSettings{
				StartTLS: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the merged configuration, applying path defaults first.
func (c *Config) Validate() error {
	c.applyPathDefaults()

	// gzip.DefaultCompression is -1, which the struct tag range would
	// reject; normalize before validation.
	if c.Archive.CompressionLevel == gzip.DefaultCompression {
		c.Archive.CompressionLevel = 6
	}

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !filepath.IsAbs(c.Dest.Dir) {
		return fmt.Errorf("dest.dir must be an absolute path, got: %s", c.Dest.Dir)
	}

	if _, err := retention.ParseWeekday(c.Retention.WeekAnchor); err != nil {
		return fmt.Errorf("invalid retention.week_anchor: %w", err)
	}

	if c.Notify.SMTP.Host != "" {
		if c.Notify.SMTP.Port <= 0 || c.Notify.SMTP.Port > 65535 {
			return fmt.Errorf("invalid notify.smtp.port: %d", c.Notify.SMTP.Port)
		}
		if c.Notify.SMTP.From == "" || c.Notify.SMTP.To == "" {
			return fmt.Errorf("notify.smtp.from and notify.smtp.to are required when SMTP is configured")
		}
	}

	return nil
}

// applyPathDefaults derives the lock and state paths from the destination
// directory when not explicitly configured.
func (c *Config) applyPathDefaults() {
	if c.Lock.Path == "" && c.Dest.Dir != "" {
		c.Lock.Path = filepath.Join(c.Dest.Dir, ".vaultrun.lock")
	}
	if c.State.Path == "" && c.Dest.Dir != "" {
		c.State.Path = filepath.Join(c.Dest.Dir, "state.json")
	}
}

// RetentionPolicy converts the retention section into a planner policy.
// Call only after Validate.
func (c *Config) RetentionPolicy() retention.Policy {
	anchor, _ := retention.ParseWeekday(c.Retention.WeekAnchor) //nolint:errcheck // Validated in Validate
	return retention.Policy{
		DailyDays:      c.Retention.DailyDays,
		WeeklyWeeks:    c.Retention.WeeklyWeeks,
		MonthlyMonths:  c.Retention.MonthlyMonths,
		WeekAnchor:     anchor,
		MonthAnchorDay: c.Retention.MonthAnchorDay,
	}
}
