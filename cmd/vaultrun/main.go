// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

/*
Vaultrun is a one-shot backup runner meant to be invoked by cron or a
systemd timer. Each invocation archives the configured source directory
into a timestamped tar.gz artifact, verifies it structurally, applies
tiered retention to older artifacts, records the outcome, and exits.

Exit codes:

	0   run (or dry run) completed
	1   source invalid, creation failed, or verification failed
	75  another run holds the lock (EX_TEMPFAIL, scheduler should retry later)
	130 interrupted by SIGINT or SIGTERM
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmorrow/vaultrun/internal/config"
	"github.com/dmorrow/vaultrun/internal/lock"
	"github.com/dmorrow/vaultrun/internal/logging"
	"github.com/dmorrow/vaultrun/internal/orchestrator"
)

// Build metadata, injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Process exit codes. Contention uses sysexits EX_TEMPFAIL so schedulers
// treat a skipped run differently from a failed one.
const (
	exitOK          = 0
	exitFailure     = 1
	exitContention  = 75
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return exitOK
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:     "vaultrun",
		Short:   "Run one backup cycle: archive, verify, rotate, notify",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackup(cmd.Context(), configPath, dryRun, debug)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: search "+config.DefaultConfigPaths[0]+")")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the run without creating or deleting anything")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd.SetContext(ctx)
	cobra.OnFinalize(stop)

	return cmd
}

func runBackup(ctx context.Context, configPath string, dryRun, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultrun: %v\n", err)
		return err
	}

	if debug {
		cfg.Logging.Level = "debug"
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	orch, err := orchestrator.New(cfg, orchestrator.Options{
		DryRun:  dryRun,
		Version: version,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize")
		return err
	}

	if _, err := orch.Run(ctx); err != nil {
		return err
	}
	return nil
}

// exitCodeFor maps a terminal error to the process exit code. This is
// the only place errors become exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, lock.ErrContention):
		return exitContention
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}
