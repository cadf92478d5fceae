// Package cooldown implements the cooldown engine (CE) of spec.md §4.4: a
// pure function over the voter's latest vote-change row deciding whether a
// vote change is currently permitted and what the next cooldown duration
// would be.
package cooldown

import (
	"fmt"
	"time"
)

const (
	// Base is the minimum cooldown duration.
	Base = 72 * time.Minute
	// Multiplier is applied per change beyond Threshold within ResetWindow.
	Multiplier = 2
	// Cap is the maximum cooldown duration.
	Cap = 8 * time.Hour
	// ResetWindow is how long a voter's change streak remains "hot".
	ResetWindow = 24 * time.Hour
	// Threshold is the number of changes within ResetWindow before the
	// multiplier starts escalating (spec.md §9 resolves the two source
	// variants, 2 and 3, in favor of 2).
	Threshold = 2
)

// Latest mirrors the fields of the voter's latest vote-change row that CE
// needs; it is satisfied by *store.VoteChange without this package
// depending on internal/store.
type Latest struct {
	ChangeTimestamp time.Time
	CooldownUntil   time.Time
	ChangeCount     int
}

// Decision is the result of Evaluate.
type Decision struct {
	Admit bool
	// NextCooldown is the duration that would be (or was) applied to this
	// change, valid whether Admit is true or false (spec.md §4.4 step 3's
	// contract is uniform).
	NextCooldown time.Duration
	// RemainingMessage is set when Admit is false and the voter is still
	// within an active cooldown; it is a human-readable message containing
	// the remaining duration, per spec.md §4.4 step 3 and the end-to-end
	// scenario in §8.
	RemainingMessage string
	// ResumesAt is the time at which voting resumes, set alongside
	// RemainingMessage.
	ResumesAt time.Time
}

// effectiveCount implements spec.md §4.4 step 4.
func effectiveCount(latest *Latest, now time.Time) int {
	if latest == nil {
		return 0
	}
	if now.Sub(latest.ChangeTimestamp) > ResetWindow {
		return 0
	}
	return latest.ChangeCount
}

// nextDuration implements spec.md §4.4 step 5. The literal step 5 formula
// takes effective_count directly; spec.md §9 resolves the two source
// variants ("effective_count" vs "effective_count+1" inside the exponent) in
// favor of the +1 form, which is what makes the worked example in spec.md §8
// (change_count=1 -> 72m, change_count=2 -> 144m) come out right. That shows
// up here as the exponent using effCount+2-Threshold rather than the naive
// effCount+1-Threshold.
func nextDuration(effCount int) time.Duration {
	exp := effCount + 2 - Threshold
	if exp < 0 {
		exp = 0
	}
	d := Base
	for i := 0; i < exp; i++ {
		d *= Multiplier
		if d >= Cap {
			return Cap
		}
	}
	if d > Cap {
		return Cap
	}
	return d
}

// NextChangeCount is the change_count a new VC row should carry if a
// change is admitted right now, per recordVoteChange's increment rule in
// spec.md §4.4.
func NextChangeCount(latest *Latest, now time.Time) int {
	return effectiveCount(latest, now) + 1
}

// Evaluate decides whether a vote change from hasCurrentVote to newPools is
// permitted right now, per spec.md §4.4 steps 1-5. latest is the voter's
// latest vote-change row, or nil if none exists. samePools reports whether
// newPools equals the voter's current pools (step 2 is the caller's
// responsibility to detect via store.HasPoolsChanged; Evaluate is only
// invoked when a change is being considered, but samePools is accepted here
// so the single-call contract from spec.md §9 holds even when called
// speculatively).
func Evaluate(hasCurrentVote bool, samePools bool, latest *Latest, now time.Time) Decision {
	if !hasCurrentVote {
		return Decision{Admit: true, NextCooldown: Base}
	}
	if samePools {
		return Decision{Admit: true, NextCooldown: Base}
	}
	if latest != nil && latest.CooldownUntil.After(now) {
		remaining := latest.CooldownUntil.Sub(now)
		return Decision{
			Admit:            false,
			NextCooldown:     nextDuration(effectiveCount(latest, now)),
			RemainingMessage: remainingMessage(remaining),
			ResumesAt:        latest.CooldownUntil,
		}
	}
	eff := effectiveCount(latest, now)
	return Decision{Admit: true, NextCooldown: nextDuration(eff)}
}

func remainingMessage(remaining time.Duration) string {
	minutes := int(remaining / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Vote is on cooldown, %d more minutes until you can change your vote", minutes)
}

// Status is the result of StatusFor (spec.md §4.4 statusFor).
type Status struct {
	Active       bool
	Remaining    time.Duration
	ChangeCount  int
	NextDuration time.Duration
}

// StatusFor computes the current cooldown status for a voter given their
// latest vote-change row, per spec.md §4.4. NextDuration previews the
// duration a change submitted right now would receive, i.e. the same
// nextDuration the engine would compute via Evaluate at this instant.
func StatusFor(latest *Latest, now time.Time) Status {
	eff := effectiveCount(latest, now)
	next := nextDuration(eff)
	if latest == nil || !latest.CooldownUntil.After(now) {
		return Status{Active: false, ChangeCount: eff, NextDuration: next}
	}
	return Status{
		Active:       true,
		Remaining:    latest.CooldownUntil.Sub(now),
		ChangeCount:  latest.ChangeCount,
		NextDuration: next,
	}
}
