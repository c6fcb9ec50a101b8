// Package hal defines the hardware collaborator interfaces the
// controller core depends on: the real-time clock, the flow pulse
// counter, the temperature sensor, and valve/master-valve GPIO
// outputs. Concrete driver implementations live outside this module
// (out of scope); this package also ships an in-memory simulated
// implementation used by tests and the irrigctl demo mode.
package hal

import (
	"context"
	"time"

	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// RealTimeClock reads wall-clock time from the hardware RTC. Healthy
// reports whether the most recent read succeeded; the safety layer
// falls back to monotonic time when it does not.
type RealTimeClock interface {
	Now() (time.Time, error)
	Healthy() bool
}

// PulseCounter reports accumulated flow-meter pulses since boot (or
// since the last Reset). It never returns an error: a stalled sensor
// simply stops incrementing, which the flow monitor detects by
// comparing successive reads.
type PulseCounter interface {
	Pulses() uint64
	Reset()
}

// TemperatureSensor reads the ambient temperature used by the
// freeze-lockout hysteresis. ok is false when the sensor cannot be
// read; the safety layer then keeps the current lockout state until
// the sensor has been failing for safety.SensorFailOpenAfter, after
// which it fails open.
type TemperatureSensor interface {
	ReadCelsius() (value float64, ok bool)
}

// RainSensor reports recent rainfall, in millimetres, over its own
// internal accumulation window, for the scheduler's rain-gating. ok
// is false when the sensor cannot be read.
type RainSensor interface {
	RecentRainfallMM() (mm float64, ok bool)
}

// GPIO drives a single valve or master-valve output pin.
type GPIO interface {
	Set(open bool) error
	Get() bool
}

// Clock abstracts the current time so tests can control elapsed-time
// math without sleeping.
type Clock interface {
	Now() time.Time
}

// WallClock is the real Clock implementation, delegating to
// time.Now().
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// Hardware bundles the collaborator set a channel's valve driver
// needs: its own GPIO plus the shared master-valve GPIO, pulse
// counter, RTC, and temperature sensor.
type Hardware struct {
	RTC         RealTimeClock
	PulseCounters map[types.ChannelID]PulseCounter
	TempSensor  TemperatureSensor
	ValveGPIOs  map[types.ChannelID]GPIO
	MasterValve GPIO
	Clock       Clock
}

// DriverContext is an alias for context.Context. None of the
// interfaces in this package take one.
type DriverContext = context.Context
