package flow

import (
	"time"

	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// FlowCheckThreshold is the base interval the monitor samples the
// pulse counter at while a task is running.
const FlowCheckThreshold = time.Second

// DurationNoFlowGraceMS is the no-flow grace period applied to
// Duration-mode tasks: long enough to absorb a valve's opening
// transient, short enough that a genuinely dry run starts counting
// toward MaxNoFlowAttempts within a few seconds of the valve opening.
const DurationNoFlowGraceMS = uint64(2 * FlowCheckThreshold / time.Millisecond)

// MaxNoFlowAttempts is the number of consecutive FlowCheckThreshold
// windows with zero flow required before CheckRunning raises
// AnomalyNoFlow. A single dry window is tolerated (transients, a
// meter hiccup); three in a row is a dry run.
const MaxNoFlowAttempts = 3

// UnexpectedFlowThreshold is the number of stray pulses, accumulated
// while every valve on the shared meter is closed, required before
// CheckIdle raises AnomalyUnexpectedFlow. A single pulse is within the
// meter's own noise floor.
const UnexpectedFlowThreshold = 10

// StallCap is the hard wall-clock ceiling on a task run: if a task has
// been running this long without reaching its target, it is aborted
// as stalled regardless of what the pulse stream looks like (a meter
// reporting plausible-but-wrong flow forever).
const StallCap = 30 * time.Minute

// Anomaly classifies a flow-monitor finding.
type Anomaly int

const (
	AnomalyNone Anomaly = iota
	AnomalyNoFlow
	AnomalyUnexpectedFlow
	AnomalyStall
)

// Monitor watches an Accounting's pulse stream against the expected
// valve state for a channel and classifies anomalies.
type Monitor struct {
	acct *Accounting

	lastPulses     uint64
	lastCheckedAt  time.Time
	graceUntilMS   uint64
	noFlowAttempts int

	idleBaseline  uint64
	idleOverPulse uint64

	startedAtMonoMS uint64
	stallArmed      bool
}

// NewMonitor wraps an Accounting for anomaly detection.
func NewMonitor(acct *Accounting) *Monitor {
	return &Monitor{acct: acct}
}

// BeginTask resets the no-flow consecutive-attempt counter at the
// start of a task run (or the start of a fresh cycle-and-soak
// watering phase) and, for Duration-mode tasks, arms the no-flow
// grace period; Volume-mode tasks get no grace period. nowMonoMS is
// not used in either mode: the grace is compared against the
// phase-relative elapsedMS passed to CheckRunning.
func (m *Monitor) BeginTask(mode types.TaskMode, nowMonoMS uint64) {
	m.lastPulses = m.acct.PulsesSinceStart()
	m.lastCheckedAt = time.Time{}
	m.noFlowAttempts = 0
	if mode == types.TaskModeDuration {
		m.graceUntilMS = DurationNoFlowGraceMS
	} else {
		m.graceUntilMS = 0
	}
}

// ArmStallClock starts the task-level (not per-phase) 30-minute stall
// cap. Unlike BeginTask, it must be called exactly once per task —
// at Executor.Start, never at a cycle-and-soak phase resume — since
// the cap bounds the whole task's wall-clock run, cumulative across
// phases.
func (m *Monitor) ArmStallClock(nowMonoMS uint64) {
	m.startedAtMonoMS = nowMonoMS
	m.stallArmed = true
}

// CheckStall reports AnomalyStall once a task has run past StallCap
// since ArmStallClock, independent of the flow reading.
func (m *Monitor) CheckStall(nowMonoMS uint64) Anomaly {
	if !m.stallArmed {
		return AnomalyNone
	}
	if nowMonoMS-m.startedAtMonoMS >= uint64(StallCap.Milliseconds()) {
		return AnomalyStall
	}
	return AnomalyNone
}

// CheckRunning should be called periodically (at FlowCheckThreshold
// cadence) while a channel's valve is open. elapsedMS is the current
// watering phase's elapsed time since it started (or since it resumed
// from a soak). AnomalyNoFlow is only raised after MaxNoFlowAttempts
// consecutive FlowCheckThreshold windows see zero pulses, per spec.
func (m *Monitor) CheckRunning(elapsedMS uint64) Anomaly {
	current := m.acct.PulsesSinceStart()
	flowing := current > m.lastPulses
	m.lastPulses = current

	if flowing {
		m.noFlowAttempts = 0
		return AnomalyNone
	}
	if elapsedMS < m.graceUntilMS {
		return AnomalyNone
	}
	if m.lastCheckedAt.IsZero() {
		m.lastCheckedAt = time.Now()
		return AnomalyNone
	}
	if time.Since(m.lastCheckedAt) < FlowCheckThreshold {
		return AnomalyNone
	}

	m.lastCheckedAt = time.Now()
	m.noFlowAttempts++
	if m.noFlowAttempts >= MaxNoFlowAttempts {
		return AnomalyNoFlow
	}
	return AnomalyNone
}

// BeginIdle should be called once every channel valve closes, to
// establish the baseline CheckIdle compares against.
func (m *Monitor) BeginIdle() {
	m.idleBaseline = m.acct.counter.Pulses()
	m.idleOverPulse = 0
	m.stallArmed = false
}

// CheckIdle should be called while every valve on the shared meter is
// closed; pulses accumulating past UnexpectedFlowThreshold indicate a
// stuck-open valve or a wiring fault elsewhere on the main line. Fewer
// stray pulses than that are tolerated as meter noise.
func (m *Monitor) CheckIdle() Anomaly {
	current := m.acct.counter.Pulses()
	if current < m.idleBaseline {
		// Counter reset (e.g. firmware restart): re-baseline rather
		// than underflow the comparison below.
		m.idleBaseline = current
		return AnomalyNone
	}
	delta := current - m.idleBaseline
	if delta >= UnexpectedFlowThreshold {
		m.idleBaseline = current
		return AnomalyUnexpectedFlow
	}
	return AnomalyNone
}
