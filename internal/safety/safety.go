// Package safety aggregates the conditions that must gate watering:
// freeze-lockout hysteresis, RTC-failure fallback to monotonic time,
// and the latched alarm flags raised by the flow monitor and other
// collaborators.
package safety

import (
	"sync"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/hal"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// Freeze-lockout hysteresis band: lockout engages at or below
// LockoutEngageC and releases only once the temperature reaches or
// rises above LockoutReleaseC, so a reading chattering around a single threshold
// can never toggle watering on and off repeatedly.
const (
	LockoutEngageC  = 2.0
	LockoutReleaseC = 4.0
)

// SensorFailOpenAfter bounds how long a persistently failing
// temperature sensor may hold the last-known lockout state before the
// safety layer fails open (synthesizes a reading at LockoutReleaseC
// and lets the hysteresis run normally) rather than freeze watering
// shut — or open — indefinitely on stale data.
const SensorFailOpenAfter = 10 * time.Minute

// Layer aggregates freeze lockout, RTC fallback, the rain hold and the
// latched alarm flags. The rain hold, set through HoldForRain,
// suppresses scheduled/auto watering until its deadline passes.
type Layer struct {
	mu sync.Mutex

	rtc   hal.RealTimeClock
	clock hal.Clock
	bus   *events.Bus

	flags         types.SafetyFlag
	freezeLocked  bool
	rainHoldUntil time.Time
	bootMono      time.Time

	sensorFailingSince    time.Time
	sensorFailingObserved bool
}

// New constructs a safety Layer.
func New(rtc hal.RealTimeClock, clock hal.Clock, bus *events.Bus) *Layer {
	return &Layer{rtc: rtc, clock: clock, bus: bus, bootMono: clock.Now()}
}

// Now returns the current time, using the RTC when healthy and
// falling back to boot-relative monotonic time (flagged via
// FlagRtcError) otherwise, per the RTC-failure fallback rule.
func (l *Layer) Now() time.Time {
	if l.rtc != nil {
		if t, err := l.rtc.Now(); err == nil {
			l.clearFlag(types.FlagRtcError)
			return t
		}
	}
	l.raise(types.FlagRtcError)
	elapsed := l.clock.Now().Sub(l.bootMono)
	return time.Unix(0, 0).Add(elapsed)
}

// EvaluateTemperature applies the freeze-lockout hysteresis to a
// temperature reading. ok mirrors the sensor's own success flag. A
// failed read leaves lockout state alone at first (a single dropout
// is noise), but once the sensor has been failing for
// SensorFailOpenAfter the layer fails open: it synthesizes a reading
// at the release threshold and runs the ordinary hysteresis on it,
// rather than freeze lockout at whatever it happened to be when the
// sensor died.
func (l *Layer) EvaluateTemperature(celsius float64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ok {
		l.sensorFailingObserved = false
		l.applyHysteresisLocked(celsius)
		return
	}

	now := l.clock.Now()
	if !l.sensorFailingObserved {
		l.sensorFailingObserved = true
		l.sensorFailingSince = now
		return
	}
	if now.Sub(l.sensorFailingSince) >= SensorFailOpenAfter {
		l.applyHysteresisLocked(LockoutReleaseC)
	}
}

func (l *Layer) applyHysteresisLocked(celsius float64) {
	switch {
	case !l.freezeLocked && celsius <= LockoutEngageC:
		l.freezeLocked = true
	case l.freezeLocked && celsius >= LockoutReleaseC:
		l.freezeLocked = false
	}

	if l.freezeLocked {
		l.flags |= types.FlagFreezeLockout
	} else {
		l.flags &^= types.FlagFreezeLockout
	}
}

// HoldForRain suppresses scheduled/auto watering until the given
// deadline.
func (l *Layer) HoldForRain(until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rainHoldUntil = until
}

// WateringAllowed implements scheduler.Gate: watering is blocked while
// freeze-locked, rain-held, or RTC-failed (a scheduler cannot trust
// "now" well enough to fire safely).
func (l *Layer) WateringAllowed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.freezeLocked {
		return false
	}
	if l.flags.Has(types.FlagRtcError) {
		return false
	}
	if l.clock.Now().Before(l.rainHoldUntil) {
		return false
	}
	return true
}

// RaiseAnomaly latches a flow-monitor anomaly as an alarm flag and
// publishes AlarmRaised.
func (l *Layer) RaiseAnomaly(flag types.SafetyFlag) {
	l.raise(flag)
}

func (l *Layer) raise(flag types.SafetyFlag) {
	l.mu.Lock()
	already := l.flags.Has(flag)
	l.flags |= flag
	l.mu.Unlock()

	if !already && l.bus != nil {
		l.bus.Publish(events.AlarmRaised, flag)
	}
}

func (l *Layer) clearFlag(flag types.SafetyFlag) {
	l.mu.Lock()
	l.flags &^= flag
	l.mu.Unlock()
}

// ClearErrors clears the flow-anomaly and generic fault latches but
// deliberately leaves FlagFreezeLockout (self-clearing via hysteresis)
// and FlagRtcError (requires a successful RTC read) untouched — the
// resolution to the "which error classes may be cleared" question.
func (l *Layer) ClearErrors() {
	l.mu.Lock()
	l.flags &^= types.FlagNoFlow | types.FlagUnexpectedFlow | types.FlagFault
	l.mu.Unlock()
}

// Flags returns the current latched flag set.
func (l *Layer) Flags() types.SafetyFlag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flags
}
