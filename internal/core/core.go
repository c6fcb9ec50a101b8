// Package core wires the task queue, per-channel executors, scheduler,
// safety layer, flow monitors, wipe state machine, and event bus into
// a single aggregate with interior synchronization — replacing the
// global mutable state the original design relied on. Core owns three
// supervised goroutines (task dispatch, scheduling, and factory-wipe
// advancement) started by Start and stopped by Stop, the same
// loop-supervision discipline as the teacher's Controller.
package core

import (
	"fmt"
	"sync"

	"github.com/greenfield-labs/irrigctl/internal/config"
	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/executor"
	"github.com/greenfield-labs/irrigctl/internal/flow"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/internal/metrics"
	"github.com/greenfield-labs/irrigctl/internal/safety"
	"github.com/greenfield-labs/irrigctl/internal/scheduler"
	"github.com/greenfield-labs/irrigctl/internal/store"
	"github.com/greenfield-labs/irrigctl/internal/taskqueue"
	"github.com/greenfield-labs/irrigctl/internal/valve"
	"github.com/greenfield-labs/irrigctl/internal/wipe"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

const channelsStoreKey = "channels"
const channelsSchemaVersion = 1

// channelEraser adapts Core to wipe.Eraser.
type channelEraser struct{ c *Core }

func (e channelEraser) EraseChannels() error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	for id := range e.c.channels {
		ch := e.c.channels[id]
		ch.Name = ""
		ch.Enabled = false
		ch.ScheduleMode = types.ScheduleManual
		e.c.channels[id] = ch
	}
	return e.c.persistChannelsLocked()
}

func (e channelEraser) EraseSchedules() error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	for id := range e.c.channels {
		ch := e.c.channels[id]
		ch.Daily = types.DailySchedule{}
		ch.Periodic = types.PeriodicSchedule{}
		e.c.channels[id] = ch
	}
	return e.c.persistChannelsLocked()
}

func (e channelEraser) EraseCalibration() error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	for id, acct := range e.c.accounting {
		acct.SetCalibration(flow.DefaultPulsesPerLitre)
		e.c.accounting[id] = acct
	}
	return nil
}

func (e channelEraser) EraseStatistics() error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	for id := range e.c.channels {
		ch := e.c.channels[id]
		ch.Stats = types.ChannelStatistics{}
		e.c.channels[id] = ch
	}
	return e.c.persistChannelsLocked()
}

// Core is the single aggregate for the controller firmware.
type Core struct {
	mu sync.Mutex

	channels   map[types.ChannelID]types.Channel
	executors  map[types.ChannelID]*executor.Executor
	monitors   map[types.ChannelID]*flow.Monitor
	accounting map[types.ChannelID]*flow.Accounting
	drivers    map[types.ChannelID]*valve.Driver

	queue     *taskqueue.Queue
	scheduler *scheduler.Scheduler
	safetyL   *safety.Layer
	master    *valve.MasterValve
	wipeM     *wipe.Machine
	store     *store.Store
	bus       *events.Bus
	metrics   *metrics.Collector
	clock     hal.Clock

	periods config.LoopPeriods

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu2    sync.Mutex // guards Start/Stop lifecycle, separate from state mu
	started bool

	tempSensor  hal.TemperatureSensor
	lastTempC   float64
	rainSensor  hal.RainSensor
	lastRainMM  float64
}

// Deps bundles Core's collaborators.
type Deps struct {
	Store      *store.Store
	Bus        *events.Bus
	Metrics    *metrics.Collector
	Clock      hal.Clock
	RTC        hal.RealTimeClock
	TempSensor hal.TemperatureSensor
	RainSensor hal.RainSensor
	Master     hal.GPIO
	MasterCfg  valve.MasterValveConfig
	AutoModel  scheduler.AutoModel
	Periods    config.LoopPeriods
}

// rainGateAdapter lets Core satisfy scheduler.RainSource without
// exposing Core's lock to the scheduler package.
type rainGateAdapter struct{ c *Core }

func (r rainGateAdapter) RecentRainfallMM() float64 {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.lastRainMM
}

// New constructs a Core with no channels configured; call
// ConfigureChannel to add the fixed eight channels' hardware
// collaborators before Start.
func New(deps Deps) (*Core, error) {
	if deps.Clock == nil {
		deps.Clock = hal.WallClock{}
	}

	c := &Core{
		channels:   make(map[types.ChannelID]types.Channel),
		executors:  make(map[types.ChannelID]*executor.Executor),
		monitors:   make(map[types.ChannelID]*flow.Monitor),
		accounting: make(map[types.ChannelID]*flow.Accounting),
		drivers:    make(map[types.ChannelID]*valve.Driver),
		queue:      taskqueue.New(),
		store:      deps.Store,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		periods:    deps.Periods,
		stopCh:     make(chan struct{}),
		tempSensor: deps.TempSensor,
		rainSensor: deps.RainSensor,
	}

	c.safetyL = safety.New(deps.RTC, deps.Clock, deps.Bus)
	c.scheduler = scheduler.New(deps.AutoModel, c.safetyL, rainGateAdapter{c: c})
	c.master = valve.NewMasterValve(deps.Master, deps.MasterCfg, deps.Clock, deps.Bus)

	m, err := wipe.New(deps.Store, channelEraser{c: c}, deps.Bus, deps.Clock.Now)
	if err != nil {
		return nil, fmt.Errorf("core: init wipe machine: %w", err)
	}
	c.wipeM = m

	if err := c.loadChannels(); err != nil {
		return nil, err
	}

	return c, nil
}

// ConfigureChannel wires one channel's hardware collaborators and
// registers its executor. Must be called before Start. The
// cycle-and-soak setting the executor runs with comes from the
// channel's own persisted IntervalConfig (set via SetChannelConfig),
// not a value fixed at wiring time.
func (c *Core) ConfigureChannel(id types.ChannelID, valveGPIO hal.GPIO, pulses hal.PulseCounter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[id]
	if !ok {
		ch = types.Channel{ID: id, DefaultMode: types.TaskModeDuration, DefaultSeconds: 300}
		c.channels[id] = ch
	}

	acct := flow.NewAccounting(pulses, flow.DefaultPulsesPerLitre)
	mon := flow.NewMonitor(acct)
	driver := valve.NewDriver(id, valveGPIO, c.master, c.bus)
	ex := executor.New(id, driver, acct, mon, c.clock, c.bus, executor.CycleSoakFromConfig(ch.Interval))

	c.accounting[id] = acct
	c.monitors[id] = mon
	c.drivers[id] = driver
	c.executors[id] = ex
}

func (c *Core) loadChannels() error {
	var persisted map[types.ChannelID]types.Channel
	err := c.store.Load(channelsStoreKey, channelsSchemaVersion, &persisted)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("core: load channels: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range persisted {
		c.channels[id] = ch
	}
	return nil
}

func (c *Core) persistChannelsLocked() error {
	return c.store.Save(channelsStoreKey, channelsSchemaVersion, c.channels)
}

// SetChannelConfig applies a configuration update to a channel
// (ChannelConfig wireless record).
func (c *Core) SetChannelConfig(id types.ChannelID, mutate func(*types.Channel)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[id]
	if !ok {
		return fmt.Errorf("%w: unknown channel %d", types.ErrInvalidParam, id)
	}
	mutate(&ch)
	c.channels[id] = ch

	if ex, ok := c.executors[id]; ok {
		ex.SetCycle(executor.CycleSoakFromConfig(ch.Interval))
	}

	return c.persistChannelsLocked()
}

// Channel returns a copy of a channel's configuration.
func (c *Core) Channel(id types.ChannelID) (types.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// CreateTask enqueues a manual task (TaskCreate wireless record). Per
// the Non-goal excluding direct valve commands from the wireless
// surface, this only ever enqueues into the scheduler-governed task
// queue; it never actuates a valve directly.
func (c *Core) CreateTask(task types.Task) error {
	if task.ChannelID >= types.NumChannels {
		return fmt.Errorf("%w: channel %d out of range", types.ErrInvalidParam, task.ChannelID)
	}
	if task.Mode == types.TaskModeDuration && task.DurationS == 0 {
		return fmt.Errorf("%w: duration must be non-zero", types.ErrInvalidParam)
	}
	if task.Mode == types.TaskModeVolume && task.VolumeML == 0 {
		return fmt.Errorf("%w: volume must be non-zero", types.ErrInvalidParam)
	}
	task.EnqueuedAt = c.clock.Now()
	if err := c.queue.Enqueue(task); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordEnqueue()
	}
	return nil
}

// Status returns the aggregated system status.
func (c *Core) Status() types.SystemStatus {
	c.mu.Lock()
	activeChannel := types.ChannelID(0)
	activeSet := false
	for id, ex := range c.executors {
		if ex.IsBusy() {
			activeChannel = id
			activeSet = true
			break
		}
	}
	c.mu.Unlock()

	c.mu.Lock()
	temp := c.lastTempC
	c.mu.Unlock()

	return types.SystemStatus{
		Flags:            c.safetyL.Flags(),
		CurrentTempC:     temp,
		RtcHealthy:       !c.safetyL.Flags().Has(types.FlagRtcError),
		QueueDepth:       c.queue.Len(),
		ActiveChannel:    activeChannel,
		ActiveChannelSet: activeSet,
		WipeInProgress:   c.wipeM.State().Active(),
	}
}

// sampleTemperature reads the temperature sensor and feeds the safety
// layer's freeze-lockout hysteresis.
func (c *Core) sampleTemperature() {
	if c.tempSensor == nil {
		return
	}
	v, ok := c.tempSensor.ReadCelsius()
	c.safetyL.EvaluateTemperature(v, ok)
	if ok {
		c.mu.Lock()
		c.lastTempC = v
		c.mu.Unlock()
	}
}

// sampleRain reads the rain sensor and caches its reading for the
// scheduler's rain-gating rainGateAdapter. A failed read leaves the
// cached value alone rather than gating tasks on a stale zero.
func (c *Core) sampleRain() {
	if c.rainSensor == nil {
		return
	}
	mm, ok := c.rainSensor.RecentRainfallMM()
	if !ok {
		return
	}
	c.mu.Lock()
	c.lastRainMM = mm
	c.mu.Unlock()
}

// ActiveTaskState returns a snapshot of a channel's active task state,
// for the wireless surface's IntervalStatus read.
func (c *Core) ActiveTaskState(id types.ChannelID) (types.ActiveTaskState, bool) {
	c.mu.Lock()
	ex, ok := c.executors[id]
	c.mu.Unlock()
	if !ok {
		return types.ActiveTaskState{}, false
	}
	return ex.Snapshot(), true
}

// WipeMachine exposes the wipe state machine for the wireless adapter.
func (c *Core) WipeMachine() *wipe.Machine { return c.wipeM }

// SafetyLayer exposes the safety layer for the wireless adapter.
func (c *Core) SafetyLayer() *safety.Layer { return c.safetyL }

// Queue exposes the task queue for status reporting.
func (c *Core) Queue() *taskqueue.Queue { return c.queue }

// ClearErrors clears the clearable error latches (Open Question 3).
func (c *Core) ClearErrors() {
	c.safetyL.ClearErrors()
}
