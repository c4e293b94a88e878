// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setRequiredEnv provides the two settings that have no defaults.
func setRequiredEnv(t *testing.T) (source, dest string) {
	t.Helper()
	source = t.TempDir()
	dest = t.TempDir()
	t.Setenv("VAULTRUN_SOURCE_DIR", source)
	t.Setenv("VAULTRUN_DEST_DIR", dest)
	return source, dest
}

func TestLoadDefaults(t *testing.T) {
	_, dest := setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Dest.Prefix != "backup" {
		t.Errorf("Dest.Prefix = %q, want backup", cfg.Dest.Prefix)
	}
	if cfg.Dest.Ext != "tar.gz" {
		t.Errorf("Dest.Ext = %q, want tar.gz", cfg.Dest.Ext)
	}
	if cfg.Retention.DailyDays != 30 || cfg.Retention.WeeklyWeeks != 8 || cfg.Retention.MonthlyMonths != 12 {
		t.Errorf("retention defaults = %+v, want 30/8/12", cfg.Retention)
	}
	if cfg.Retention.WeekAnchor != "sunday" || cfg.Retention.MonthAnchorDay != 1 {
		t.Errorf("anchor defaults = %q/%d, want sunday/1", cfg.Retention.WeekAnchor, cfg.Retention.MonthAnchorDay)
	}
	if cfg.Notify.Timeout != 10*time.Second {
		t.Errorf("Notify.Timeout = %v, want 10s", cfg.Notify.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if !cfg.Notify.SMTP.StartTLS {
		t.Error("Notify.SMTP.StartTLS should default to true")
	}

	// Lock and state paths derive from the destination directory.
	if want := filepath.Join(dest, ".vaultrun.lock"); cfg.Lock.Path != want {
		t.Errorf("Lock.Path = %q, want %q", cfg.Lock.Path, want)
	}
	if want := filepath.Join(dest, "state.json"); cfg.State.Path != want {
		t.Errorf("State.Path = %q, want %q", cfg.State.Path, want)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VAULTRUN_DEST_PREFIX", "vault-db")
	t.Setenv("VAULTRUN_RETENTION_DAILY_DAYS", "45")
	t.Setenv("VAULTRUN_RETENTION_WEEK_ANCHOR", "monday")
	t.Setenv("VAULTRUN_LOG_LEVEL", "debug")
	t.Setenv("VAULTRUN_WEBHOOK_URL", "https://hooks.example.com/backup")
	t.Setenv("VAULTRUN_SMTP_STARTTLS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Dest.Prefix != "vault-db" {
		t.Errorf("Dest.Prefix = %q, want vault-db", cfg.Dest.Prefix)
	}
	if cfg.Retention.DailyDays != 45 {
		t.Errorf("Retention.DailyDays = %d, want 45", cfg.Retention.DailyDays)
	}
	if cfg.Retention.WeekAnchor != "monday" {
		t.Errorf("Retention.WeekAnchor = %q, want monday", cfg.Retention.WeekAnchor)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/backup" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Notify.SMTP.StartTLS {
		t.Error("Notify.SMTP.StartTLS should be disabled by the env override")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	yamlBody := `
source:
  dir: ` + source + `
dest:
  dir: ` + dest + `
  prefix: nightly
retention:
  daily_days: 14
  week_anchor: saturday
logging:
  level: warn
  format: console
`
	path := filepath.Join(t.TempDir(), "vaultrun.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o640); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Source.Dir != source {
		t.Errorf("Source.Dir = %q, want %q", cfg.Source.Dir, source)
	}
	if cfg.Dest.Prefix != "nightly" {
		t.Errorf("Dest.Prefix = %q, want nightly", cfg.Dest.Prefix)
	}
	if cfg.Retention.DailyDays != 14 {
		t.Errorf("Retention.DailyDays = %d, want 14", cfg.Retention.DailyDays)
	}
	if cfg.Retention.WeekAnchor != "saturday" {
		t.Errorf("Retention.WeekAnchor = %q, want saturday", cfg.Retention.WeekAnchor)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v, want warn/console", cfg.Logging)
	}
	// Unset keys keep their defaults.
	if cfg.Retention.MonthlyMonths != 12 {
		t.Errorf("Retention.MonthlyMonths = %d, want default 12", cfg.Retention.MonthlyMonths)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	yamlBody := `
source:
  dir: ` + source + `
dest:
  dir: ` + dest + `
  prefix: from-file
`
	path := filepath.Join(t.TempDir(), "vaultrun.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o640); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VAULTRUN_DEST_PREFIX", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dest.Prefix != "from-env" {
		t.Errorf("Dest.Prefix = %q, environment should win over the file", cfg.Dest.Prefix)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing source dir",
			env:  map[string]string{"VAULTRUN_DEST_DIR": "/var/backups"},
		},
		{
			name: "missing dest dir",
			env:  map[string]string{"VAULTRUN_SOURCE_DIR": "/srv/data"},
		},
		{
			name: "relative dest dir",
			env: map[string]string{
				"VAULTRUN_SOURCE_DIR": "/srv/data",
				"VAULTRUN_DEST_DIR":   "relative/backups",
			},
		},
		{
			name: "unknown week anchor",
			env: map[string]string{
				"VAULTRUN_SOURCE_DIR":           "/srv/data",
				"VAULTRUN_DEST_DIR":             "/var/backups",
				"VAULTRUN_RETENTION_WEEK_ANCHOR": "caturday",
			},
		},
		{
			name: "compression level out of range",
			env: map[string]string{
				"VAULTRUN_SOURCE_DIR":        "/srv/data",
				"VAULTRUN_DEST_DIR":          "/var/backups",
				"VAULTRUN_COMPRESSION_LEVEL": "15",
			},
		},
		{
			name: "month anchor day past 28",
			env: map[string]string{
				"VAULTRUN_SOURCE_DIR":                "/srv/data",
				"VAULTRUN_DEST_DIR":                  "/var/backups",
				"VAULTRUN_RETENTION_MONTH_ANCHOR_DAY": "31",
			},
		},
		{
			name: "smtp host without addresses",
			env: map[string]string{
				"VAULTRUN_SOURCE_DIR": "/srv/data",
				"VAULTRUN_DEST_DIR":   "/var/backups",
				"VAULTRUN_SMTP_HOST":  "smtp.example.com",
				"VAULTRUN_SMTP_PORT":  "587",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			if _, err := Load(""); err == nil {
				t.Error("Load should reject this configuration")
			}
		})
	}
}

func TestRetentionPolicyConversion(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VAULTRUN_RETENTION_WEEK_ANCHOR", "wednesday")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	policy := cfg.RetentionPolicy()
	if policy.WeekAnchor.String() != "Wednesday" {
		t.Errorf("WeekAnchor = %v, want Wednesday", policy.WeekAnchor)
	}
	if policy.DailyDays != 30 || policy.MonthAnchorDay != 1 {
		t.Errorf("policy = %+v", policy)
	}
}
