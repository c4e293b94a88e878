// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmorrow/vaultrun/internal/artifact"
	"github.com/dmorrow/vaultrun/internal/lock"
	"github.com/dmorrow/vaultrun/internal/logging"
	"github.com/dmorrow/vaultrun/internal/notify"
	"github.com/dmorrow/vaultrun/internal/retention"
	"github.com/dmorrow/vaultrun/internal/state"
)

// Run executes one backup run to completion. It returns a Result
// describing how far the run progressed alongside any terminal error.
// The caller owns exit-code mapping; Run only classifies failures
// through its sentinel errors.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now().UTC()
	res := &Result{
		RunID:  uuid.New().String(),
		Stage:  StageIdle,
		DryRun: o.dryRun,
	}

	logging.Info().
		Str("run_id", res.RunID).
		Str("source", o.cfg.Source.Dir).
		Str("dest", o.cfg.Dest.Dir).
		Bool("dry_run", o.dryRun).
		Msg("Backup run starting")

	o.transition(res, StageLocking)
	handle, err := lock.Acquire(o.cfg.Lock.Path)
	if err != nil {
		// Contention is not a failure of this run's data, so no run
		// state is written and no notification is sent.
		res.Stage = StageAborted
		return res, err
	}
	defer handle.Release()

	// The source precondition is part of the archiving stage, so a
	// SourceInvalid abort reports the stage it actually belongs to.
	o.transition(res, StageArchiving)
	if err := artifact.CheckSource(o.cfg.Source.Dir); err != nil {
		return o.abort(ctx, res, start, state.VerificationNotRun, err)
	}

	if o.dryRun {
		return o.runDry(ctx, res, start)
	}

	a, err := o.archive(ctx, res)
	if err != nil {
		if ctx.Err() != nil {
			res.Stage = StageAborted
			return res, ctx.Err()
		}
		return o.abort(ctx, res, start, state.VerificationNotRun, err)
	}
	res.Artifact = &a

	if err := o.verify(res, &a); err != nil {
		return o.abort(ctx, res, start, state.VerificationFailed, err)
	}

	// State is recorded before rotation: once the artifact is verified,
	// monitoring must see the successful run even if the process dies
	// mid-rotation.
	o.persistSuccess(res, start, a)

	o.rotate(res, start)

	o.transition(res, StageNotifying)
	o.dispatcher.Notify(ctx, o.successMessage(res, start, a))

	o.transition(res, StageDone)
	res.Duration = time.Since(start)

	logging.Info().
		Str("run_id", res.RunID).
		Str("artifact", a.Path).
		Int64("size_bytes", a.SizeBytes).
		Int("deleted", res.DeletedCount).
		Dur("duration", res.Duration).
		Msg("Backup run completed")
	return res, nil
}

// transition advances the run to the next stage. One log line per
// transition is part of the observable contract.
func (o *Orchestrator) transition(res *Result, next Stage) {
	logging.Info().
		Str("run_id", res.RunID).
		Str("from", string(res.Stage)).
		Str("to", string(next)).
		Msg("Stage transition")
	res.Stage = next
}

// archive creates the run's artifact. The run is already in the
// archiving stage when this is called.
func (o *Orchestrator) archive(ctx context.Context, res *Result) (artifact.Artifact, error) {
	a, err := o.store.Create(ctx, o.cfg.Source.Dir)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("%w: %w", ErrCreation, err)
	}
	return a, nil
}

// verify runs the structural readback check on a fresh artifact. A
// failed artifact is removed so a later run cannot mistake it for a
// restorable backup.
func (o *Orchestrator) verify(res *Result, a *artifact.Artifact) error {
	o.transition(res, StageVerifying)
	vr := o.store.Verify(*a)
	if !vr.OK {
		logging.Error().
			Str("run_id", res.RunID).
			Str("artifact", a.Path).
			Err(vr.Err).
			Msg("Artifact failed verification, removing")
		if err := o.store.Delete(*a); err != nil {
			logging.Warn().Err(err).Str("artifact", a.Path).Msg("Failed to remove unverifiable artifact")
		}
		if vr.Err != nil {
			return fmt.Errorf("%w: %w", ErrVerification, vr.Err)
		}
		return ErrVerification
	}
	a.Verified = true
	logging.Info().
		Str("run_id", res.RunID).
		Str("artifact", a.Path).
		Int("entries", vr.Entries).
		Msg("Artifact verified")
	return nil
}

// rotate applies the retention policy to the artifact set. Rotation
// problems are logged but never fail a run that already produced a
// verified artifact.
func (o *Orchestrator) rotate(res *Result, now time.Time) {
	o.transition(res, StageRotating)

	artifacts, err := o.store.List()
	if err != nil {
		logging.Warn().Err(err).Msg("Skipping rotation, artifact listing failed")
		return
	}

	plan := retention.Compute(artifacts, now, o.policy)
	res.Plan = &plan
	res.DeletedCount = o.store.DeleteAll(plan.Delete)

	logging.Info().
		Str("run_id", res.RunID).
		Int("kept", len(plan.Keep)).
		Int("planned", len(plan.Delete)).
		Int("deleted", res.DeletedCount).
		Msg("Retention applied")
}

// runDry walks the remaining stages without touching the filesystem:
// creation, deletion, and state persistence are logged as "would" steps,
// and verification of the uncreated artifact is reported as skipped. The
// retention plan covers only artifacts that already exist. The run is
// already in the archiving stage when this is called.
func (o *Orchestrator) runDry(ctx context.Context, res *Result, start time.Time) (*Result, error) {
	logging.Info().
		Str("run_id", res.RunID).
		Str("would_create", artifact.Filename(o.cfg.Dest.Prefix, start, o.cfg.Dest.Ext)).
		Msg("Dry run: skipping artifact creation")

	o.transition(res, StageVerifying)
	logging.Info().
		Str("run_id", res.RunID).
		Msg("Dry run: no artifact created, verification skipped")

	o.transition(res, StageRotating)

	artifacts, err := o.store.List()
	if err != nil {
		res.Stage = StageAborted
		return res, fmt.Errorf("failed to list artifacts: %w", err)
	}

	plan := retention.Compute(artifacts, start, o.policy)
	res.Plan = &plan
	for _, d := range plan.Decisions {
		logging.Info().
			Str("artifact", d.Artifact.Path).
			Bool("keep", d.Keep).
			Str("tier", string(d.Tier)).
			Str("reason", d.Reason).
			Msg("Dry-run retention decision")
	}
	logging.Info().
		Str("run_id", res.RunID).
		Str("path", o.stateStore.Path()).
		Msg("Dry run: skipping state save")

	o.transition(res, StageNotifying)
	o.dispatcher.Notify(ctx, o.dryRunMessage(res, start, &plan))

	o.transition(res, StageDone)
	res.Duration = time.Since(start)
	logging.Info().
		Str("run_id", res.RunID).
		Int("kept", len(plan.Keep)).
		Int("would_delete", len(plan.Delete)).
		Msg("Dry run completed, no changes made")
	return res, nil
}

// abort records a failed run, notifies, and returns the terminal error.
func (o *Orchestrator) abort(ctx context.Context, res *Result, start time.Time, vs state.VerificationStatus, runErr error) (*Result, error) {
	failedAt := res.Stage
	o.transition(res, StageAborted)
	res.Duration = time.Since(start)

	if o.dryRun {
		logging.Info().
			Str("run_id", res.RunID).
			Str("path", o.stateStore.Path()).
			Msg("Dry run: skipping state save")
	} else {
		rs := state.RunState{
			RunID:              res.RunID,
			LastRunAt:          start,
			DurationSeconds:    res.Duration.Seconds(),
			VerificationStatus: vs,
			Error:              runErr.Error(),
			AppVersion:         o.version,
		}
		if err := o.stateStore.Save(rs); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist failed run state")
		}
	}

	o.transition(res, StageNotifying)
	o.dispatcher.Notify(ctx, o.failureMessage(res, failedAt, start, runErr))
	res.Stage = StageAborted

	logging.Error().
		Str("run_id", res.RunID).
		Str("stage", string(failedAt)).
		Err(runErr).
		Msg("Backup run aborted")
	return res, runErr
}

// persistSuccess writes the successful run's state record.
func (o *Orchestrator) persistSuccess(res *Result, start time.Time, a artifact.Artifact) {
	rs := state.RunState{
		RunID:              res.RunID,
		LastRunAt:          start,
		ArtifactPath:       a.Path,
		ArtifactSizeBytes:  a.SizeBytes,
		DurationSeconds:    time.Since(start).Seconds(),
		VerificationStatus: state.VerificationSuccess,
		AppVersion:         o.version,
	}
	if err := o.stateStore.Save(rs); err != nil {
		logging.Warn().Err(err).Msg("Failed to persist run state")
	}
}

// successMessage composes the notification for a completed run.
func (o *Orchestrator) successMessage(res *Result, start time.Time, a artifact.Artifact) notify.Message {
	body := fmt.Sprintf("Backup completed.\n\nArtifact: %s\nSize: %d bytes\nRotated out: %d artifact(s)\nDuration: %s",
		a.Path, a.SizeBytes, res.DeletedCount, time.Since(start).Round(time.Millisecond))
	return notify.Message{
		RunID:     res.RunID,
		Severity:  notify.SeverityInfo,
		Subject:   "Backup succeeded",
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// dryRunMessage composes the notification for a completed dry run.
func (o *Orchestrator) dryRunMessage(res *Result, start time.Time, plan *retention.Plan) notify.Message {
	body := fmt.Sprintf("Dry run completed, nothing was changed.\n\nWould keep: %d artifact(s)\nWould delete: %d artifact(s)\nElapsed: %s",
		len(plan.Keep), len(plan.Delete), time.Since(start).Round(time.Millisecond))
	return notify.Message{
		RunID:     res.RunID,
		Severity:  notify.SeverityInfo,
		Subject:   "Backup dry run completed",
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// failureMessage composes the notification for an aborted run.
func (o *Orchestrator) failureMessage(res *Result, failedAt Stage, start time.Time, runErr error) notify.Message {
	body := fmt.Sprintf("Backup failed at stage %s.\n\nError: %v\nElapsed: %s",
		failedAt, runErr, time.Since(start).Round(time.Millisecond))
	return notify.Message{
		RunID:     res.RunID,
		Severity:  notify.SeverityError,
		Subject:   "Backup failed",
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}
