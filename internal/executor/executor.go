// Package executor drives a single channel's active task through its
// phases: running, optional cycle-and-soak pauses, and completion. It
// owns the valve driver and flow accounting for its channel and is the
// single writer of that channel's ActiveTaskState.
package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/flow"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/internal/valve"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// CycleSoak configures interval (cycle-and-soak) watering: run for
// CycleOn, pause for SoakFor, repeat until the task's cumulative
// target — tracked across every phase, not reset at each resume — is
// reached.
type CycleSoak struct {
	Enabled bool
	CycleOn time.Duration
	SoakFor time.Duration
}

// CycleSoakFromConfig derives the cycle-and-soak setting an executor
// should run with from a channel's persisted IntervalConfig.
func CycleSoakFromConfig(cfg types.IntervalConfig) CycleSoak {
	if !cfg.Configured || cfg.WateringS == 0 {
		return CycleSoak{}
	}
	return CycleSoak{
		Enabled: true,
		CycleOn: time.Duration(cfg.WateringS) * time.Second,
		SoakFor: time.Duration(cfg.PauseS) * time.Second,
	}
}

// Executor runs tasks for exactly one channel.
type Executor struct {
	mu      sync.Mutex
	channel types.ChannelID
	driver  *valve.Driver
	acct    *flow.Accounting
	mon     *flow.Monitor
	clock   hal.Clock
	bus     *events.Bus
	cycle   CycleSoak

	active  types.ActiveTaskState
	running bool
}

// New constructs an Executor for one channel.
func New(channel types.ChannelID, driver *valve.Driver, acct *flow.Accounting, mon *flow.Monitor, clock hal.Clock, bus *events.Bus, cycle CycleSoak) *Executor {
	return &Executor{channel: channel, driver: driver, acct: acct, mon: mon, clock: clock, bus: bus, cycle: cycle}
}

// SetCycle updates the cycle-and-soak configuration this executor
// runs with (ChannelConfig / IntervalConfig wireless writes). Tick
// reads the setting on every call, so it also applies to a task
// already in flight from its next Tick on.
func (e *Executor) SetCycle(cycle CycleSoak) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycle = cycle
}

// IsBusy reports whether a task is currently active on this channel.
func (e *Executor) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Snapshot returns a copy of the current active task state.
func (e *Executor) Snapshot() types.ActiveTaskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Start begins running a task. It returns ErrBusy if a task is
// already active on this channel (invariant: one active task per
// channel).
func (e *Executor) Start(task types.Task) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return types.ErrBusy
	}
	e.running = true
	now := e.nowMS()
	e.active = types.ActiveTaskState{Task: task, Phase: types.PhaseRunning, StartedAtMonoMS: now}
	e.mu.Unlock()

	if err := e.driver.Open(); err != nil {
		e.finish(types.PhaseFailed, err)
		return err
	}
	// StartRun is called exactly once per task, here, so
	// Accounting.VolumeML keeps accumulating across every
	// cycle-and-soak phase instead of resetting each time the valve
	// reopens.
	e.acct.StartRun()
	e.mon.BeginTask(task.Mode, now)
	e.mon.ArmStallClock(now)
	if e.bus != nil {
		e.bus.Publish(events.TaskStarted, e.Snapshot())
	}
	return nil
}

func (e *Executor) nowMS() uint64 {
	return uint64(e.clock.Now().UnixMilli())
}

// Tick advances the running task by one task-loop step. It
// should be called at FlowCheckThreshold cadence while IsBusy is
// true. It returns the flow anomaly observed, if any, and whether the
// task has just completed.
func (e *Executor) Tick() (anomaly flow.Anomaly, completed bool) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return flow.AnomalyNone, false
	}
	task := e.active.Task
	phase := e.active.Phase
	started := e.active.StartedAtMonoMS
	priorElapsedMS := e.active.ElapsedMS
	e.mu.Unlock()

	now := e.nowMS()
	phaseElapsedMS := now - started

	if anomaly := e.mon.CheckStall(now); anomaly != flow.AnomalyNone {
		return anomaly, false
	}

	if phase == types.PhaseSoaking {
		if phaseElapsedMS >= uint64(e.cycle.SoakFor.Milliseconds()) {
			e.resumeCycle(priorElapsedMS)
		}
		return flow.AnomalyNone, false
	}

	anomaly = e.mon.CheckRunning(phaseElapsedMS)
	if anomaly != flow.AnomalyNone {
		return anomaly, false
	}

	cumulativeMS := priorElapsedMS + phaseElapsedMS
	e.mu.Lock()
	e.active.ElapsedMS = cumulativeMS
	e.active.VolumeSoFarML = e.acct.VolumeML()
	e.mu.Unlock()

	if !e.targetReached(task, cumulativeMS) {
		if e.cycle.Enabled && phaseElapsedMS >= uint64(e.cycle.CycleOn.Milliseconds()) {
			e.beginSoak(cumulativeMS)
		}
		return flow.AnomalyNone, false
	}

	e.completeTask()
	return flow.AnomalyNone, true
}

// targetReached compares the task's cumulative watering progress —
// elapsed watering time for Duration tasks, accumulated volume for
// Volume tasks — against its target. elapsedMS is cumulative across
// every cycle-and-soak phase, never reset at a resume.
func (e *Executor) targetReached(task types.Task, elapsedMS uint64) bool {
	switch task.Mode {
	case types.TaskModeDuration:
		target := uint64(task.DurationS) * 1000
		if task.EffectiveTarget > 0 {
			target = uint64(task.EffectiveTarget) * 1000
		}
		return elapsedMS >= target
	case types.TaskModeVolume:
		target := task.VolumeML
		if task.EffectiveTarget > 0 {
			target = uint32(task.EffectiveTarget)
		}
		return e.acct.VolumeML() >= target
	default:
		return true
	}
}

func (e *Executor) beginSoak(cumulativeMS uint64) {
	if err := e.driver.Close(); err != nil {
		e.finish(types.PhaseFailed, err)
		return
	}
	e.mu.Lock()
	e.active.Phase = types.PhaseSoaking
	e.active.StartedAtMonoMS = e.nowMS()
	e.active.ElapsedMS = cumulativeMS
	e.active.CyclesDone++
	e.mu.Unlock()
}

// resumeCycle reopens the valve for the next watering phase. It does
// not call Accounting.StartRun again — a fresh baseline there would
// zero out the volume already accumulated in prior phases — and it
// carries priorElapsedMS forward into the new phase's StartedAtMonoMS
// bookkeeping so Duration-mode accumulation keeps counting cumulative
// watering time across the soak.
func (e *Executor) resumeCycle(priorElapsedMS uint64) {
	if err := e.driver.Open(); err != nil {
		e.finish(types.PhaseFailed, err)
		return
	}
	now := e.nowMS()
	e.mu.Lock()
	e.active.Phase = types.PhaseRunning
	e.active.StartedAtMonoMS = now
	e.active.ElapsedMS = priorElapsedMS
	e.mu.Unlock()
	e.mon.BeginTask(e.active.Task.Mode, now)
}

func (e *Executor) completeTask() {
	e.driver.Close()
	e.finish(types.PhaseCompleted, nil)
}

func (e *Executor) finish(phase types.TaskPhase, err error) {
	e.mu.Lock()
	e.active.Phase = phase
	e.active.LastError = err
	e.active.VolumeSoFarML = e.acct.VolumeML()
	snapshot := e.active
	e.running = false
	e.mu.Unlock()

	e.mon.BeginIdle()

	if e.bus != nil {
		e.bus.Publish(events.TaskCompleted, snapshot)
	}
}

// CheckIdle delegates to the flow monitor's idle-flow check, for
// channels with no active task — any pulses arriving indicate a
// stuck-open valve or a cross-wired meter.
func (e *Executor) CheckIdle() flow.Anomaly {
	return e.mon.CheckIdle()
}

// Abort immediately stops the active task (used by Core when it
// handles a no-flow or stall anomaly).
func (e *Executor) Abort(reason error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.driver.Close()
	e.finish(types.PhaseFailed, fmt.Errorf("task aborted: %w", reason))
}
