// Package valve implements the per-channel valve driver and the
// shared master-valve controller: pre-delay before a zone opens,
// post-delay before the master valve closes, and an overlap grace
// window so back-to-back tasks on different channels don't chatter
// the master valve open/closed/open.
package valve

import (
	"fmt"
	"sync"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// MasterValveConfig controls the shared master-valve timing.
type MasterValveConfig struct {
	PreDelay     time.Duration // master valve opens this long before a zone valve
	PostDelay    time.Duration // master valve stays open this long after the last zone closes
	OverlapGrace time.Duration // window in which a new task's open suppresses the post-delay close
}

// DefaultMasterValveConfig mirrors typical residential solenoid
// actuation timing.
func DefaultMasterValveConfig() MasterValveConfig {
	return MasterValveConfig{
		PreDelay:     2 * time.Second,
		PostDelay:    3 * time.Second,
		OverlapGrace: 5 * time.Second,
	}
}

// MasterValve coordinates the single shared master-valve GPIO across
// all channels. Open/Close calls are reference counted so the valve
// only truly closes once no channel still needs it, with a grace
// window before the physical close to absorb the gap between one
// task ending and the next starting.
type MasterValve struct {
	mu         sync.Mutex
	gpio       hal.GPIO
	cfg        MasterValveConfig
	clock      hal.Clock
	openCount  int
	closeTimer *time.Timer
	bus        *events.Bus

	hasUpcoming bool
	upcomingAt  time.Time
}

// NewMasterValve constructs a master-valve controller.
func NewMasterValve(gpio hal.GPIO, cfg MasterValveConfig, clock hal.Clock, bus *events.Bus) *MasterValve {
	return &MasterValve{gpio: gpio, cfg: cfg, clock: clock, bus: bus}
}

// Acquire opens the master valve (after PreDelay) if it is not
// already open, and increments the reference count. It blocks for
// PreDelay only on the transition from closed to open.
func (m *MasterValve) Acquire() error {
	m.mu.Lock()
	if m.closeTimer != nil {
		m.closeTimer.Stop()
		m.closeTimer = nil
	}
	m.hasUpcoming = false // the anticipated arrival has now happened
	wasOpen := m.gpio.Get()
	m.openCount++
	m.mu.Unlock()

	if wasOpen {
		return nil
	}
	time.Sleep(m.cfg.PreDelay)
	if err := m.gpio.Set(true); err != nil {
		return fmt.Errorf("%w: master valve open: %v", types.ErrHardware, err)
	}
	if m.bus != nil {
		m.bus.Publish(events.ValveChanged, "master:open")
	}
	return nil
}

// NotifyUpcoming records that another task is expected to Acquire the
// master valve around startAt. If a close is already pending and
// startAt falls within OverlapGrace of now, the pending close is
// pushed back rather than left to fire and reopen moments later —
// the overlap-grace lookahead spec calls notify_upcoming. Callers
// that only know "something is queued, imminently" rather than an
// exact start time should pass the current time; since a ready queue
// entry is by construction runnable now, that collapses to the same
// case notify_upcoming exists for.
func (m *MasterValve) NotifyUpcoming(startAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasUpcoming = true
	m.upcomingAt = startAt

	if m.closeTimer == nil {
		return
	}
	wait, withinGrace := m.overlapWaitLocked()
	if !withinGrace {
		return
	}
	m.closeTimer.Stop()
	m.closeTimer = time.AfterFunc(wait, m.fireClose)
}

// ClearUpcoming withdraws a previously notified upcoming start — the
// anticipated task was aborted, or the queue drained without it
// starting.
func (m *MasterValve) ClearUpcoming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasUpcoming = false
}

// overlapWaitLocked reports how long Release's close timer should
// wait given a pending upcoming Acquire, and whether that Acquire is
// close enough (within OverlapGrace) to bridge at all. Must be called
// with mu held.
func (m *MasterValve) overlapWaitLocked() (wait time.Duration, withinGrace bool) {
	if !m.hasUpcoming {
		return m.cfg.PostDelay, true
	}
	until := m.upcomingAt.Sub(m.clock.Now())
	if until < 0 {
		until = 0
	}
	if until > m.cfg.OverlapGrace {
		return m.cfg.PostDelay, false
	}
	// Wait out the anticipated gap plus PostDelay: if the Acquire
	// lands as expected it cancels this timer outright (above); if it
	// never comes, the valve still closes instead of staying open
	// forever.
	return until + m.cfg.PostDelay, true
}

func (m *MasterValve) fireClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openCount > 0 {
		return // a new task acquired it before the timer fired
	}
	m.gpio.Set(false)
	if m.bus != nil {
		m.bus.Publish(events.ValveChanged, "master:close")
	}
}

// Release decrements the reference count and, once it reaches zero,
// schedules the master valve to close after PostDelay — unless a
// NotifyUpcoming is in effect for a start within OverlapGrace, in
// which case the valve bridges the gap instead of closing and
// reopening moments later.
func (m *MasterValve) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openCount > 0 {
		m.openCount--
	}
	if m.openCount > 0 {
		return
	}

	if m.closeTimer != nil {
		m.closeTimer.Stop()
		m.closeTimer = nil
	}

	wait, _ := m.overlapWaitLocked()
	m.closeTimer = time.AfterFunc(wait, m.fireClose)
}

// Driver actuates a single channel's valve GPIO, going through the
// shared master valve for every open/close.
type Driver struct {
	id     types.ChannelID
	gpio   hal.GPIO
	master *MasterValve
	bus    *events.Bus
}

// NewDriver constructs a channel valve driver.
func NewDriver(id types.ChannelID, gpio hal.GPIO, master *MasterValve, bus *events.Bus) *Driver {
	return &Driver{id: id, gpio: gpio, master: master, bus: bus}
}

// Open acquires the master valve then opens this channel's valve.
func (d *Driver) Open() error {
	if err := d.master.Acquire(); err != nil {
		return err
	}
	if err := d.gpio.Set(true); err != nil {
		return fmt.Errorf("%w: channel %d valve open: %v", types.ErrHardware, d.id, err)
	}
	if d.bus != nil {
		d.bus.Publish(events.ValveChanged, d.id)
	}
	return nil
}

// Close closes this channel's valve then releases the master valve.
func (d *Driver) Close() error {
	err := d.gpio.Set(false)
	d.master.Release()
	if d.bus != nil {
		d.bus.Publish(events.ValveChanged, d.id)
	}
	if err != nil {
		return fmt.Errorf("%w: channel %d valve close: %v", types.ErrHardware, d.id, err)
	}
	return nil
}

// IsOpen reports the channel valve's current GPIO state.
func (d *Driver) IsOpen() bool {
	return d.gpio.Get()
}
