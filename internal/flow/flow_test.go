package flow

import (
	"testing"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

func TestAccountingVolumeConversion(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	acct.StartRun()

	counter.Inject(450) // exactly one litre
	if got := acct.VolumeML(); got != 1000 {
		t.Fatalf("volume = %d ml, want 1000", got)
	}
}

func TestMonitorDetectsNoFlowAfterGrace(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	acct.StartRun()
	mon := NewMonitor(acct)

	mon.BeginTask(types.TaskModeDuration, 0)

	// Within the grace period: no anomaly even with zero flow.
	if a := mon.CheckRunning(500); a != AnomalyNone {
		t.Fatalf("expected no anomaly within grace, got %v", a)
	}

	// First call past the grace period only arms the no-flow timer.
	if a := mon.CheckRunning(DurationNoFlowGraceMS + 100); a != AnomalyNone {
		t.Fatalf("expected no anomaly on the arming call, got %v", a)
	}

	// MaxNoFlowAttempts requires 3 consecutive failed checks, each
	// separated by FlowCheckThreshold of wall time, before raising
	// AnomalyNoFlow — a single stray no-flow window is not enough.
	elapsed := DurationNoFlowGraceMS + 200
	for i := 1; i < MaxNoFlowAttempts; i++ {
		time.Sleep(FlowCheckThreshold + 10*time.Millisecond)
		if a := mon.CheckRunning(elapsed); a != AnomalyNone {
			t.Fatalf("attempt %d: expected no anomaly before MaxNoFlowAttempts, got %v", i, a)
		}
		elapsed += 100
	}

	time.Sleep(FlowCheckThreshold + 10*time.Millisecond)
	if a := mon.CheckRunning(elapsed); a != AnomalyNoFlow {
		t.Fatalf("expected AnomalyNoFlow after %d consecutive failed checks, got %v", MaxNoFlowAttempts, a)
	}
}

func TestMonitorReportsNoAnomalyWhileFlowing(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	acct.StartRun()
	mon := NewMonitor(acct)
	mon.BeginTask(types.TaskModeVolume, 0)

	counter.Inject(10)
	if a := mon.CheckRunning(100); a != AnomalyNone {
		t.Fatalf("expected no anomaly while flowing, got %v", a)
	}
}

func TestMonitorIgnoresStrayPulsesBelowThreshold(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	mon := NewMonitor(acct)
	mon.BeginIdle()

	// UnexpectedFlowThreshold requires at least 10 pulses; a single
	// stray pulse (a cross-talk blip, a meter bounce) must not fire.
	counter.Inject(UnexpectedFlowThreshold - 1)
	if a := mon.CheckIdle(); a != AnomalyNone {
		t.Fatalf("expected no anomaly below UnexpectedFlowThreshold, got %v", a)
	}
}

func TestMonitorDetectsUnexpectedFlowWhileIdle(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	mon := NewMonitor(acct)
	mon.BeginIdle()

	counter.Inject(UnexpectedFlowThreshold)
	if a := mon.CheckIdle(); a != AnomalyUnexpectedFlow {
		t.Fatalf("expected AnomalyUnexpectedFlow, got %v", a)
	}
	if a := mon.CheckIdle(); a != AnomalyNone {
		t.Fatalf("expected no repeat anomaly once baseline catches up, got %v", a)
	}
}

func TestMonitorStallCapFiresAfterWallClockCeiling(t *testing.T) {
	counter := hal.NewSimulatedPulseCounter()
	acct := NewAccounting(counter, 450)
	acct.StartRun()
	mon := NewMonitor(acct)

	mon.ArmStallClock(0)
	if a := mon.CheckStall(uint64(StallCap.Milliseconds()) - 1); a != AnomalyNone {
		t.Fatalf("expected no anomaly just under the stall cap, got %v", a)
	}
	if a := mon.CheckStall(uint64(StallCap.Milliseconds())); a != AnomalyStall {
		t.Fatalf("expected AnomalyStall at the stall cap, got %v", a)
	}
}
