package cooldown

import (
	"testing"
	"time"
)

func TestEvaluateNoCurrentVoteAdmitsAtBase(t *testing.T) {
	now := time.Now()
	d := Evaluate(false, false, nil, now)
	if !d.Admit || d.NextCooldown != Base {
		t.Fatalf("expected admit at base cooldown, got %+v", d)
	}
}

func TestEvaluateSamePoolsAdmitsAtBase(t *testing.T) {
	now := time.Now()
	latest := &Latest{ChangeTimestamp: now.Add(-time.Hour), CooldownUntil: now.Add(time.Hour), ChangeCount: 3}
	d := Evaluate(true, true, latest, now)
	if !d.Admit || d.NextCooldown != Base {
		t.Fatalf("expected same-pools resubmission to admit at base, got %+v", d)
	}
}

// TestProgressiveCooldownScenario walks through the end-to-end scenario from
// spec.md §8: first change at base duration, an immediate retry rejected
// with ~71 minutes remaining, then a second change after the cooldown
// expires landing at double the base duration.
func TestProgressiveCooldownScenario(t *testing.T) {
	t1 := time.Now()

	// First change: no prior vote-change row.
	first := Evaluate(true, false, nil, t1)
	if !first.Admit || first.NextCooldown != Base {
		t.Fatalf("expected first change admitted at base, got %+v", first)
	}
	latest := &Latest{ChangeTimestamp: t1, CooldownUntil: t1.Add(first.NextCooldown), ChangeCount: 1}

	// Immediate retry, 1 second later: rejected.
	retry := Evaluate(true, false, latest, t1.Add(time.Second))
	if retry.Admit {
		t.Fatalf("expected immediate retry to be rejected")
	}
	if retry.RemainingMessage != "Vote is on cooldown, 71 more minutes until you can change your vote" {
		t.Fatalf("unexpected remaining message: %q", retry.RemainingMessage)
	}
	if !retry.ResumesAt.Equal(latest.CooldownUntil) {
		t.Fatalf("expected ResumesAt to equal cooldown_until")
	}

	// At T1+73m the first cooldown has expired: second change admitted at
	// double the base duration (144m), per spec.md §8 scenario 2.
	t2 := t1.Add(73 * time.Minute)
	second := Evaluate(true, false, latest, t2)
	if !second.Admit {
		t.Fatalf("expected second change to be admitted once cooldown expired")
	}
	if second.NextCooldown != 144*time.Minute {
		t.Fatalf("expected 144m cooldown for second change, got %s", second.NextCooldown)
	}
}

func TestNextDurationClampedBetweenBaseAndCap(t *testing.T) {
	for eff := 0; eff < 50; eff++ {
		d := nextDuration(eff)
		if d < Base || d > Cap {
			t.Fatalf("nextDuration(%d) = %s out of [%s, %s]", eff, d, Base, Cap)
		}
	}
}

func TestNextDurationReachesCapAndStaysThere(t *testing.T) {
	d := nextDuration(10)
	if d != Cap {
		t.Fatalf("expected cap to be reached by effCount=10, got %s", d)
	}
}

func TestEffectiveCountResetsAfterWindow(t *testing.T) {
	now := time.Now()
	latest := &Latest{ChangeTimestamp: now.Add(-(ResetWindow + time.Second)), ChangeCount: 5}
	if eff := effectiveCount(latest, now); eff != 0 {
		t.Fatalf("expected effective_count=0 just past the reset window, got %d", eff)
	}

	withinWindow := &Latest{ChangeTimestamp: now.Add(-(ResetWindow - time.Second)), ChangeCount: 5}
	if eff := effectiveCount(withinWindow, now); eff != 5 {
		t.Fatalf("expected effective_count=5 just inside the reset window, got %d", eff)
	}
}

func TestEvaluateAfterResetWindowBackToBase(t *testing.T) {
	now := time.Now()
	// Cooldown long expired and the change streak is outside the reset
	// window: back to base duration.
	latest := &Latest{
		ChangeTimestamp: now.Add(-(ResetWindow + time.Hour)),
		CooldownUntil:   now.Add(-(ResetWindow)),
		ChangeCount:     6,
	}
	d := Evaluate(true, false, latest, now)
	if !d.Admit || d.NextCooldown != Base {
		t.Fatalf("expected reset streak to admit at base, got %+v", d)
	}
}

func TestStatusForActiveAndInactive(t *testing.T) {
	now := time.Now()

	if s := StatusFor(nil, now); s.Active {
		t.Fatalf("expected inactive status with no history")
	}

	active := &Latest{ChangeTimestamp: now.Add(-time.Minute), CooldownUntil: now.Add(time.Hour), ChangeCount: 1}
	s := StatusFor(active, now)
	if !s.Active || s.Remaining <= 0 {
		t.Fatalf("expected active status, got %+v", s)
	}
	if s.NextDuration != nextDuration(1) {
		t.Fatalf("expected NextDuration to match nextDuration(effective_count)")
	}

	expired := &Latest{ChangeTimestamp: now.Add(-2 * time.Hour), CooldownUntil: now.Add(-time.Hour), ChangeCount: 1}
	s2 := StatusFor(expired, now)
	if s2.Active {
		t.Fatalf("expected inactive status once cooldown_until has passed")
	}
}
