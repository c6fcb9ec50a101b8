package core

import (
	"testing"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/config"
	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/flow"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/internal/metrics"
	"github.com/greenfield-labs/irrigctl/internal/store"
	"github.com/greenfield-labs/irrigctl/internal/valve"
	"github.com/greenfield-labs/irrigctl/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCore(t *testing.T) (*Core, *hal.SimulatedGPIO, *hal.SimulatedPulseCounter, *hal.SimulatedClock) {
	t.Helper()
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rtc := hal.NewSimulatedRTC()
	clock := hal.NewSimulatedClock(time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC))
	masterGPIO := hal.NewSimulatedGPIO()

	c, err := New(Deps{
		Store:     s,
		Bus:       events.New(),
		Metrics:   metrics.NewCollector(),
		Clock:     clock,
		RTC:       rtc,
		Master:    masterGPIO,
		MasterCfg: valve.MasterValveConfig{PreDelay: time.Millisecond, PostDelay: time.Millisecond, OverlapGrace: time.Millisecond},
		Periods:   config.Periods(config.PowerNormal),
	})
	if err != nil {
		t.Fatal(err)
	}

	gpio := hal.NewSimulatedGPIO()
	counter := hal.NewSimulatedPulseCounter()
	c.ConfigureChannel(1, gpio, counter)

	return c, gpio, counter, clock
}

func TestCreateTaskAndDrainViaTaskLoop(t *testing.T) {
	c, gpio, counter, clock := newTestCore(t)
	counter.Inject(450)

	if err := c.CreateTask(types.Task{ChannelID: 1, Mode: types.TaskModeDuration, DurationS: 1}); err != nil {
		t.Fatal(err)
	}
	if c.Queue().Len() != 1 {
		t.Fatalf("queue len = %d, want 1", c.Queue().Len())
	}

	c.tickTasks() // dispatch
	if c.Queue().Len() != 0 {
		t.Fatal("expected task to be dispatched out of the queue")
	}
	if !gpio.Get() {
		t.Fatal("expected channel valve to be open after dispatch")
	}

	clock.Advance(2 * time.Second)
	c.tickTasks() // should complete the task
	if gpio.Get() {
		t.Fatal("expected channel valve to close once the task completes")
	}
}

func TestCreateTaskRejectsZeroDuration(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	err := c.CreateTask(types.Task{ChannelID: 1, Mode: types.TaskModeDuration, DurationS: 0})
	if err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestStatusReflectsQueueDepth(t *testing.T) {
	c, _, counter, _ := newTestCore(t)
	counter.Inject(450)
	c.CreateTask(types.Task{ChannelID: 1, Mode: types.TaskModeDuration, DurationS: 5})

	status := c.Status()
	if status.QueueDepth != 1 {
		t.Fatalf("queue depth = %d, want 1", status.QueueDepth)
	}
}

func TestNoFlowAnomalyAbortsActiveTask(t *testing.T) {
	c, gpio, _, clock := newTestCore(t)

	if err := c.CreateTask(types.Task{ChannelID: 1, Mode: types.TaskModeDuration, DurationS: 100}); err != nil {
		t.Fatal(err)
	}
	c.tickTasks() // dispatch; no pulses are ever injected on this channel
	if !gpio.Get() {
		t.Fatal("expected channel valve open after dispatch")
	}

	clock.Advance(3 * time.Second) // past the Duration-mode no-flow grace
	c.tickTasks()                  // arms the no-flow timer

	for i := 0; i < 3; i++ {
		time.Sleep(flow.FlowCheckThreshold + 10*time.Millisecond)
		clock.Advance(time.Second)
		c.tickTasks()
	}

	if gpio.Get() {
		t.Fatal("expected channel valve to close once the no-flow anomaly aborts the task")
	}
	if !c.SafetyLayer().Flags().Has(types.FlagNoFlow) {
		t.Fatal("expected FlagNoFlow latched after the no-flow anomaly")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	c.Stop()
	// Calling Stop again must be a harmless no-op.
	c.Stop()
}
