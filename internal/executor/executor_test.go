package executor

import (
	"testing"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/flow"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/internal/valve"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

func newTestExecutor(t *testing.T) (*Executor, *hal.SimulatedPulseCounter, *hal.SimulatedClock) {
	t.Helper()
	gpio := hal.NewSimulatedGPIO()
	masterGPIO := hal.NewSimulatedGPIO()
	bus := events.New()
	mv := valve.NewMasterValve(masterGPIO, valve.MasterValveConfig{}, hal.WallClock{}, bus)
	driver := valve.NewDriver(1, gpio, mv, bus)
	counter := hal.NewSimulatedPulseCounter()
	acct := flow.NewAccounting(counter, 450)
	mon := flow.NewMonitor(acct)
	clock := hal.NewSimulatedClock(time.Unix(1000, 0))

	return New(1, driver, acct, mon, clock, bus, CycleSoak{}), counter, clock
}

func TestStartRejectsSecondTaskWhileBusy(t *testing.T) {
	ex, counter, _ := newTestExecutor(t)
	counter.Inject(1000)

	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 10}); err != nil {
		t.Fatal(err)
	}
	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 10}); err != types.ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestDurationTaskCompletesAfterTarget(t *testing.T) {
	ex, counter, clock := newTestExecutor(t)
	counter.Inject(450)

	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 2}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(3 * time.Second)
	_, completed := ex.Tick()
	if !completed {
		t.Fatal("expected task to complete once duration target is reached")
	}
	if ex.IsBusy() {
		t.Fatal("executor should be idle after completion")
	}
}

func TestVolumeTaskCompletesAfterTarget(t *testing.T) {
	ex, counter, clock := newTestExecutor(t)

	if err := ex.Start(types.Task{Mode: types.TaskModeVolume, VolumeML: 1000}); err != nil {
		t.Fatal(err)
	}
	counter.Inject(450) // 1000ml at 450 pulses/litre
	clock.Advance(time.Second)

	_, completed := ex.Tick()
	if !completed {
		t.Fatal("expected volume task to complete once target volume passed")
	}
}

func TestCycleSoakPausesBetweenCycles(t *testing.T) {
	gpio := hal.NewSimulatedGPIO()
	masterGPIO := hal.NewSimulatedGPIO()
	bus := events.New()
	mv := valve.NewMasterValve(masterGPIO, valve.MasterValveConfig{}, hal.WallClock{}, bus)
	driver := valve.NewDriver(1, gpio, mv, bus)
	counter := hal.NewSimulatedPulseCounter()
	acct := flow.NewAccounting(counter, 450)
	mon := flow.NewMonitor(acct)
	clock := hal.NewSimulatedClock(time.Unix(2000, 0))
	ex := New(1, driver, acct, mon, clock, bus, CycleSoak{Enabled: true, CycleOn: time.Second, SoakFor: 2 * time.Second})

	counter.Inject(450)
	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 100}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Second) // past CycleOn, nowhere near DurationS
	ex.Tick()
	if ex.Snapshot().Phase != types.PhaseSoaking {
		t.Fatalf("expected soaking phase, got %v", ex.Snapshot().Phase)
	}
	if driver.IsOpen() {
		t.Fatal("valve should be closed while soaking")
	}
}

// TestCycleSoakAccumulatesElapsedAcrossPhases proves that a
// Duration-mode task's cumulative watering time carries forward across
// every cycle-and-soak phase transition, rather than resetting at each
// resume. With CycleOn=SoakFor=1s and DurationS=2, the task needs two
// 1-second watering phases (separated by one soak) to reach target —
// three full seconds of wall-clock time, only two of which are
// watering.
func TestCycleSoakAccumulatesElapsedAcrossPhases(t *testing.T) {
	gpio := hal.NewSimulatedGPIO()
	masterGPIO := hal.NewSimulatedGPIO()
	bus := events.New()
	mv := valve.NewMasterValve(masterGPIO, valve.MasterValveConfig{}, hal.WallClock{}, bus)
	driver := valve.NewDriver(1, gpio, mv, bus)
	counter := hal.NewSimulatedPulseCounter()
	acct := flow.NewAccounting(counter, 450)
	mon := flow.NewMonitor(acct)
	clock := hal.NewSimulatedClock(time.Unix(3000, 0))
	ex := New(1, driver, acct, mon, clock, bus, CycleSoak{Enabled: true, CycleOn: time.Second, SoakFor: time.Second})

	counter.Inject(450)
	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 2}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	if _, completed := ex.Tick(); completed {
		t.Fatal("task should not complete after only the first watering phase")
	}
	if got := ex.Snapshot().Phase; got != types.PhaseSoaking {
		t.Fatalf("expected soaking phase after the first cycle, got %v", got)
	}
	if got := ex.Snapshot().ElapsedMS; got != 1000 {
		t.Fatalf("ElapsedMS after first phase = %d, want 1000", got)
	}

	clock.Advance(time.Second)
	if _, completed := ex.Tick(); completed {
		t.Fatal("task should not complete immediately on resuming from soak")
	}
	if got := ex.Snapshot().Phase; got != types.PhaseRunning {
		t.Fatalf("expected running phase after soak ends, got %v", got)
	}
	// The resumed phase must carry the prior phase's progress forward,
	// not reset it to zero.
	if got := ex.Snapshot().ElapsedMS; got != 1000 {
		t.Fatalf("ElapsedMS on resume = %d, want 1000 carried forward from the first phase", got)
	}

	clock.Advance(time.Second)
	_, completed := ex.Tick()
	if !completed {
		t.Fatal("expected task to complete once cumulative watering time reaches the 2s target")
	}
	if got := ex.Snapshot().ElapsedMS; got != 2000 {
		t.Fatalf("final ElapsedMS = %d, want 2000 (cumulative across both watering phases)", got)
	}
}

func TestAbortStopsActiveTask(t *testing.T) {
	ex, counter, _ := newTestExecutor(t)
	counter.Inject(450)

	if err := ex.Start(types.Task{Mode: types.TaskModeDuration, DurationS: 100}); err != nil {
		t.Fatal(err)
	}
	ex.Abort(types.ErrHardware)
	if ex.IsBusy() {
		t.Fatal("executor should be idle after Abort")
	}
	if ex.Snapshot().Phase != types.PhaseFailed {
		t.Fatalf("expected PhaseFailed after Abort, got %v", ex.Snapshot().Phase)
	}
}
