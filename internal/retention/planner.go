// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package retention implements the tiered keep/delete planner for backup
// artifacts.
//
// The planner is a pure function over artifact timestamps: given the current
// listing, the current time, and a policy, it partitions artifacts into a
// keep set and a delete set. It never touches the filesystem; executing the
// deletions is the orchestrator's job, and only after the current run's
// artifact has been verified.
//
// Tiers, in precedence order:
//
//	Daily:   age <= DailyDays, regardless of which day the artifact was taken
//	Weekly:  taken on the weekly anchor day (default Sunday) and
//	         age <= WeeklyWeeks * 7 days
//	Monthly: taken on the monthly anchor day-of-month (default 1) and
//	         age <= MonthlyMonths * 30 days (flat 30-day months)
//
// An artifact qualifying for several tiers is kept exactly once; keep and
// delete are always a strict partition of the input.
package retention

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmorrow/vaultrun/internal/artifact"
)

const hoursPerDay = 24

// Policy holds the tiered retention parameters. Immutable for the process
// lifetime.
type Policy struct {
	// DailyDays keeps every artifact not older than this many days.
	DailyDays int

	// WeeklyWeeks keeps anchor-day artifacts for this many weeks.
	WeeklyWeeks int

	// MonthlyMonths keeps month-anchor artifacts for this many months,
	// with a month counted as a flat 30 days.
	MonthlyMonths int

	// WeekAnchor is the weekday on which weekly-tier artifacts are taken.
	// Default: time.Sunday (ISO weekday 7).
	WeekAnchor time.Weekday

	// MonthAnchorDay is the day-of-month on which monthly-tier artifacts
	// are taken. Default: 1.
	MonthAnchorDay int
}

// DefaultPolicy returns the default tiered retention policy.
func DefaultPolicy() Policy {
	return Policy{
		DailyDays:      30,
		WeeklyWeeks:    8,
		MonthlyMonths:  12,
		WeekAnchor:     time.Sunday,
		MonthAnchorDay: 1,
	}
}

// Validate checks that the policy parameters are usable.
func (p Policy) Validate() error {
	if p.DailyDays < 0 || p.WeeklyWeeks < 0 || p.MonthlyMonths < 0 {
		return fmt.Errorf("retention tier lengths must not be negative")
	}
	if p.MonthAnchorDay < 1 || p.MonthAnchorDay > 28 {
		return fmt.Errorf("retention month anchor day must be between 1 and 28, got %d", p.MonthAnchorDay)
	}
	return nil
}

// ParseWeekday maps a lowercase weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(name) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return time.Sunday, fmt.Errorf("unknown weekday: %q", name)
	}
}

// Tier identifies which retention rule kept an artifact.
type Tier string

const (
	// TierDaily marks artifacts inside the daily retention window.
	TierDaily Tier = "daily"

	// TierWeekly marks anchor-day artifacts inside the weekly window.
	TierWeekly Tier = "weekly"

	// TierMonthly marks month-anchor artifacts inside the monthly window.
	TierMonthly Tier = "monthly"

	// TierNone marks artifacts matched by no keep rule.
	TierNone Tier = "none"
)

// Decision records why one artifact was kept or scheduled for deletion.
// The reason strings feed dry-run and debug logging.
type Decision struct {
	Artifact artifact.Artifact
	Keep     bool
	Tier     Tier
	Reason   string
}

// Plan is the strict partition of a listing into keep and delete sets.
type Plan struct {
	Keep   []artifact.Artifact
	Delete []artifact.Artifact

	// Decisions holds one entry per input artifact, in input order.
	Decisions []Decision
}

// Compute partitions artifacts into keep and delete sets against now.
// It is deterministic and side-effect free: calling it twice with the same
// inputs yields the same partition, and re-planning after executing the
// deletions yields an empty delete set.
func Compute(artifacts []artifact.Artifact, now time.Time, policy Policy) Plan {
	plan := Plan{
		Keep:      make([]artifact.Artifact, 0, len(artifacts)),
		Delete:    make([]artifact.Artifact, 0),
		Decisions: make([]Decision, 0, len(artifacts)),
	}

	for _, a := range artifacts {
		d := decide(a, now, policy)
		plan.Decisions = append(plan.Decisions, d)
		if d.Keep {
			plan.Keep = append(plan.Keep, a)
		} else {
			plan.Delete = append(plan.Delete, a)
		}
	}

	return plan
}

// decide classifies a single artifact against the tier rules in precedence
// order. The first matching tier wins, so keep/delete stay a strict
// partition even when an artifact qualifies for several tiers.
func decide(a artifact.Artifact, now time.Time, policy Policy) Decision {
	age := ageDays(a.CreatedAt, now)

	if inDailyTier(age, policy) {
		return Decision{
			Artifact: a,
			Keep:     true,
			Tier:     TierDaily,
			Reason:   fmt.Sprintf("within daily window (%.1f of %d days)", age, policy.DailyDays),
		}
	}

	if inWeeklyTier(a.CreatedAt, age, policy) {
		return Decision{
			Artifact: a,
			Keep:     true,
			Tier:     TierWeekly,
			Reason:   fmt.Sprintf("%s artifact within weekly window (%d weeks)", policy.WeekAnchor, policy.WeeklyWeeks),
		}
	}

	if inMonthlyTier(a.CreatedAt, age, policy) {
		return Decision{
			Artifact: a,
			Keep:     true,
			Tier:     TierMonthly,
			Reason:   fmt.Sprintf("day-%d artifact within monthly window (%d months)", policy.MonthAnchorDay, policy.MonthlyMonths),
		}
	}

	return Decision{
		Artifact: a,
		Keep:     false,
		Tier:     TierNone,
		Reason:   fmt.Sprintf("no retention rule matched at age %.1f days", age),
	}
}

// ageDays returns the artifact age in fractional days.
func ageDays(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours() / hoursPerDay
}

// inDailyTier reports whether the artifact is inside the daily window.
func inDailyTier(age float64, policy Policy) bool {
	return policy.DailyDays > 0 && age <= float64(policy.DailyDays)
}

// inWeeklyTier reports whether the artifact was taken on the weekly anchor
// day and is inside the weekly window.
func inWeeklyTier(createdAt time.Time, age float64, policy Policy) bool {
	if policy.WeeklyWeeks <= 0 {
		return false
	}
	if createdAt.Weekday() != policy.WeekAnchor {
		return false
	}
	return age <= float64(policy.WeeklyWeeks*7)
}

// inMonthlyTier reports whether the artifact was taken on the monthly anchor
// day-of-month and is inside the monthly window, using flat 30-day months.
func inMonthlyTier(createdAt time.Time, age float64, policy Policy) bool {
	if policy.MonthlyMonths <= 0 {
		return false
	}
	if createdAt.Day() != policy.MonthAnchorDay {
		return false
	}
	return age <= float64(policy.MonthlyMonths*30)
}
