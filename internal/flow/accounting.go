// Package flow converts flow-meter pulses into volume and watches for
// anomalies (no flow when a valve is open, flow when every valve is
// closed, or a flow-meter stall mid-task).
package flow

import "github.com/greenfield-labs/irrigctl/internal/hal"

// DefaultPulsesPerLitre is the calibration default for the reference
// flow meter; Accounting.SetCalibration overrides it per channel.
const DefaultPulsesPerLitre = 450

// Accounting turns accumulated pulses into millilitres using a
// per-channel pulses-per-litre calibration factor.
type Accounting struct {
	counter         hal.PulseCounter
	pulsesPerLitre  uint32
	baselinePulses  uint64
}

// NewAccounting wraps a pulse counter with a calibration factor.
func NewAccounting(counter hal.PulseCounter, pulsesPerLitre uint32) *Accounting {
	if pulsesPerLitre == 0 {
		pulsesPerLitre = DefaultPulsesPerLitre
	}
	return &Accounting{counter: counter, pulsesPerLitre: pulsesPerLitre}
}

// StartRun marks the current pulse count as the baseline for a new
// task's volume accumulation.
func (a *Accounting) StartRun() {
	a.baselinePulses = a.counter.Pulses()
}

// VolumeML returns the millilitres accumulated since the last
// StartRun call.
func (a *Accounting) VolumeML() uint32 {
	delta := a.counter.Pulses() - a.baselinePulses
	// ml = pulses * 1000 / pulses_per_litre
	return uint32(delta * 1000 / uint64(a.pulsesPerLitre))
}

// PulsesSinceStart returns the raw pulse delta since StartRun, used
// by the flow monitor's no-flow detection.
func (a *Accounting) PulsesSinceStart() uint64 {
	return a.counter.Pulses() - a.baselinePulses
}

// SetCalibration updates the pulses-per-litre factor. The wireless
// adapter has no Calibration write; the factory wipe calls this to
// restore DefaultPulsesPerLitre.
func (a *Accounting) SetCalibration(pulsesPerLitre uint32) {
	if pulsesPerLitre == 0 {
		return
	}
	a.pulsesPerLitre = pulsesPerLitre
}
