// Package wipe implements the persistent factory-wipe state machine:
// request, confirm (within a time-bounded window), then step through
// erasing channels, schedules, calibration, and statistics, one step
// at a time, resumable across a reboot at any step.
package wipe

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/store"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

const storeKey = "wipe_progress"
const schemaVersion = 1

// ConfirmWindow is how long a confirmation code remains valid after a
// wipe is requested.
const ConfirmWindow = 300 * time.Second

// Eraser performs the actual per-step erasure against live state
// (channel config, schedules, calibration, statistics). Each method
// must be idempotent: resuming at a step re-runs it.
type Eraser interface {
	EraseChannels() error
	EraseSchedules() error
	EraseCalibration() error
	EraseStatistics() error
}

// Machine drives the wipe state machine and persists its progress
// after every transition so a reboot mid-wipe resumes rather than
// restarting or silently dropping the request.
type Machine struct {
	store  *store.Store
	erase  Eraser
	bus    *events.Bus
	nowFn  func() time.Time
	state  types.WipeProgress
}

// New constructs a Machine, loading any in-flight progress from the
// store (first boot yields an idle machine).
func New(s *store.Store, erase Eraser, bus *events.Bus, nowFn func() time.Time) (*Machine, error) {
	m := &Machine{store: s, erase: erase, bus: bus, nowFn: nowFn}

	var progress types.WipeProgress
	err := s.Load(storeKey, schemaVersion, &progress)
	switch {
	case err == nil:
		m.state = progress
	case err == store.ErrNotFound:
		m.state = types.WipeProgress{Step: types.WipeStepIdle}
	default:
		return nil, fmt.Errorf("wipe: load progress: %w", err)
	}
	return m, nil
}

// State returns the current wipe progress.
func (m *Machine) State() types.WipeProgress {
	return m.state
}

func (m *Machine) persist() error {
	return m.store.Save(storeKey, schemaVersion, m.state)
}

// Request begins a wipe, generating a confirmation code the caller
// must echo back within ConfirmWindow via Confirm.
func (m *Machine) Request() (code uint32, err error) {
	if m.state.Active() {
		return 0, fmt.Errorf("%w: wipe already in progress", types.ErrBusy)
	}

	code = foldUUID(uuid.New())
	m.state = types.WipeProgress{
		Step:             types.WipeStepConfirmPending,
		ConfirmationCode: code,
		RequestedAt:      m.nowFn(),
	}
	if err := m.persist(); err != nil {
		return 0, err
	}
	return code, nil
}

// Confirm validates a confirmation code against the open request. It
// fails once ConfirmWindow has elapsed since Request, requiring a
// fresh Request.
func (m *Machine) Confirm(code uint32) error {
	if m.state.Step != types.WipeStepConfirmPending {
		return fmt.Errorf("%w: no wipe awaiting confirmation", types.ErrInvalidParam)
	}
	if m.nowFn().Sub(m.state.RequestedAt) > ConfirmWindow {
		m.state = types.WipeProgress{Step: types.WipeStepIdle}
		_ = m.persist()
		return fmt.Errorf("%w: confirmation window expired", types.ErrTimeout)
	}
	if code != m.state.ConfirmationCode {
		return fmt.Errorf("%w: confirmation code mismatch", types.ErrInvalidParam)
	}

	m.state.Step = types.WipeStepConfirmed
	m.state.ConfirmedAt = m.nowFn()
	return m.persist()
}

// stepOrder is the sequence Advance walks through once confirmed.
var stepOrder = []types.WipeStep{
	types.WipeStepConfirmed,
	types.WipeStepErasingChannels,
	types.WipeStepErasingSchedules,
	types.WipeStepErasingCalibration,
	types.WipeStepErasingStatistics,
	types.WipeStepFinalizing,
	types.WipeStepDone,
}

// Advance runs exactly one step of the wipe and persists the result.
// It is safe to call repeatedly (including after a reboot mid-wipe):
// each step's Eraser method is idempotent, so re-running the current
// step on resume is harmless. It returns done=true once the machine
// reaches WipeStepDone.
func (m *Machine) Advance() (done bool, err error) {
	if !m.state.Active() {
		return m.state.Step == types.WipeStepDone, nil
	}

	switch m.state.Step {
	case types.WipeStepConfirmPending:
		return false, fmt.Errorf("%w: wipe not yet confirmed", types.ErrInvalidParam)
	case types.WipeStepConfirmed:
		m.state.Step = types.WipeStepErasingChannels
	case types.WipeStepErasingChannels:
		if err := m.erase.EraseChannels(); err != nil {
			return false, fmt.Errorf("wipe: erase channels: %w", err)
		}
		m.state.Step = types.WipeStepErasingSchedules
	case types.WipeStepErasingSchedules:
		if err := m.erase.EraseSchedules(); err != nil {
			return false, fmt.Errorf("wipe: erase schedules: %w", err)
		}
		m.state.Step = types.WipeStepErasingCalibration
	case types.WipeStepErasingCalibration:
		if err := m.erase.EraseCalibration(); err != nil {
			return false, fmt.Errorf("wipe: erase calibration: %w", err)
		}
		m.state.Step = types.WipeStepErasingStatistics
	case types.WipeStepErasingStatistics:
		if err := m.erase.EraseStatistics(); err != nil {
			return false, fmt.Errorf("wipe: erase statistics: %w", err)
		}
		m.state.Step = types.WipeStepFinalizing
	case types.WipeStepFinalizing:
		m.state.Step = types.WipeStepDone
	case types.WipeStepDone:
		// nothing to do
	default:
		return false, fmt.Errorf("%w: unknown wipe step %d", types.ErrConfig, m.state.Step)
	}

	if err := m.persist(); err != nil {
		return false, err
	}
	if m.bus != nil {
		m.bus.Publish(events.StatusChanged, m.state)
	}
	return m.state.Step == types.WipeStepDone, nil
}

// Reset clears a completed or abandoned wipe back to idle.
func (m *Machine) Reset() error {
	m.state = types.WipeProgress{Step: types.WipeStepIdle}
	return m.persist()
}

func foldUUID(id uuid.UUID) uint32 {
	var v uint32
	for i, b := range id {
		v ^= uint32(b) << uint((i%4)*8)
	}
	return v
}
