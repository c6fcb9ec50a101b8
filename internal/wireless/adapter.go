package wireless

import (
	"fmt"
	"sync"

	"github.com/greenfield-labs/irrigctl/internal/core"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// Adapter translates wireless attribute record reads/writes into Core
// calls. When Enabled is false every method is a documented no-op,
// per the wireless feature toggle.
type Adapter struct {
	mu      sync.Mutex
	core    *core.Core
	Enabled bool

	pendingChannelSelect types.ChannelID
	hasPendingSelect     bool
}

// New constructs an Adapter over a Core.
func New(c *core.Core, enabled bool) *Adapter {
	return &Adapter{core: c, Enabled: enabled}
}

// WriteTaskCreate handles a TaskCreate record write. This never
// actuates a valve directly: it only enqueues, honoring the Non-goal
// that the wireless surface cannot issue direct valve commands.
func (a *Adapter) WriteTaskCreate(rec TaskCreateRecord) error {
	if !a.Enabled {
		return nil
	}
	return a.core.CreateTask(types.Task{
		ChannelID: rec.ChannelID,
		Mode:      rec.Mode,
		DurationS: rec.DurationS,
		VolumeML:  rec.VolumeML,
		Source:    types.TaskSourceManual,
	})
}

// ReadSystemStatus returns the current SystemStatus record.
func (a *Adapter) ReadSystemStatus() SystemStatusRecord {
	if !a.Enabled {
		return SystemStatusRecord{}
	}
	status := a.core.Status()
	return SystemStatusRecord{
		Flags:          uint32(status.Flags),
		QueueDepth:     uint16(status.QueueDepth),
		WipeInProgress: status.WipeInProgress,
	}
}

// WriteChannelConfigSelect arms a channel for the next
// ChannelConfigPayload write, implementing the fragmented-write
// replacement.
func (a *Adapter) WriteChannelConfigSelect(sel ChannelConfigSelect) error {
	if !a.Enabled {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingChannelSelect = sel.ChannelID
	a.hasPendingSelect = true
	return nil
}

// WriteChannelConfigPayload applies a payload to the channel selected
// by the most recent WriteChannelConfigSelect call.
func (a *Adapter) WriteChannelConfigPayload(payload ChannelConfigPayload) error {
	if !a.Enabled {
		return nil
	}
	a.mu.Lock()
	if !a.hasPendingSelect {
		a.mu.Unlock()
		return fmt.Errorf("%w: no channel selected for configuration write", types.ErrInvalidParam)
	}
	id := a.pendingChannelSelect
	a.hasPendingSelect = false
	a.mu.Unlock()

	return a.core.SetChannelConfig(id, func(ch *types.Channel) {
		ch.Enabled = payload.Enabled
		ch.ScheduleMode = payload.ScheduleMode
		ch.Daily = types.DailySchedule{
			HourOfDay:    payload.HourOfDay,
			MinuteOfHour: payload.MinuteOfHour,
			WeekdayMask:  payload.WeekdayMask,
		}
		ch.Periodic = types.PeriodicSchedule{
			IntervalDays: payload.IntervalDays,
			HourOfDay:    payload.HourOfDay,
			MinuteOfHour: payload.MinuteOfHour,
			AnchorTime:   ch.Periodic.AnchorTime,
		}
		ch.DefaultMode = payload.DefaultMode
		ch.DefaultSeconds = payload.DefaultSeconds
		ch.DefaultVolume = payload.DefaultVolume
	})
}

// WriteIntervalConfig applies a channel's cycle-and-soak configuration
// (distinct from ChannelConfigPayload's schedule-fire cadence). The
// executor picks up the new setting immediately via Core.SetChannelConfig's
// live SetCycle push.
func (a *Adapter) WriteIntervalConfig(rec IntervalConfigRecord) error {
	if !a.Enabled {
		return nil
	}
	return a.core.SetChannelConfig(rec.ChannelID, func(ch *types.Channel) {
		ch.Interval = types.IntervalConfig{
			WateringS:  uint32(rec.WateringS),
			PauseS:     uint32(rec.PauseS),
			Configured: rec.Configured,
		}
	})
}

// ReadIntervalConfig returns a channel's current cycle-and-soak
// configuration.
func (a *Adapter) ReadIntervalConfig(id types.ChannelID) (IntervalConfigRecord, error) {
	if !a.Enabled {
		return IntervalConfigRecord{}, nil
	}
	ch, ok := a.core.Channel(id)
	if !ok {
		return IntervalConfigRecord{}, fmt.Errorf("%w: unknown channel %d", types.ErrInvalidParam, id)
	}
	return IntervalConfigRecord{
		ChannelID:  id,
		WateringS:  uint16(ch.Interval.WateringS),
		PauseS:     uint16(ch.Interval.PauseS),
		Configured: ch.Interval.Configured,
	}, nil
}

// ReadIntervalStatus returns a channel's current position within an
// in-flight cycle-and-soak run. PhaseElapsed is filled from the task's
// cumulative ElapsedMS (watering time across all phases, in seconds),
// not from the time spent in the current phase.
func (a *Adapter) ReadIntervalStatus(id types.ChannelID) (IntervalStatusRecord, error) {
	if !a.Enabled {
		return IntervalStatusRecord{}, nil
	}
	state, ok := a.core.ActiveTaskState(id)
	if !ok {
		return IntervalStatusRecord{}, fmt.Errorf("%w: unknown channel %d", types.ErrInvalidParam, id)
	}
	return IntervalStatusRecord{
		ChannelID:    id,
		Soaking:      state.Phase == types.PhaseSoaking,
		PhaseElapsed: uint32(state.ElapsedMS / 1000),
	}, nil
}

// ReadStatistics returns the Statistics record for a channel.
func (a *Adapter) ReadStatistics(id types.ChannelID) (StatisticsRecord, error) {
	if !a.Enabled {
		return StatisticsRecord{}, nil
	}
	ch, ok := a.core.Channel(id)
	if !ok {
		return StatisticsRecord{}, fmt.Errorf("%w: unknown channel %d", types.ErrInvalidParam, id)
	}
	return StatisticsRecord{
		ChannelID:       id,
		TotalVolumeML:   ch.Stats.TotalVolumeML,
		TotalDurationS:  ch.Stats.TotalDurationS,
		LastRunVolumeML: ch.Stats.LastRunVolumeML,
		RunCount:        ch.Stats.RunCount,
	}, nil
}

// ReadAlarm returns the current latched alarm flags.
func (a *Adapter) ReadAlarm() AlarmRecord {
	if !a.Enabled {
		return AlarmRecord{}
	}
	return AlarmRecord{Flags: uint32(a.core.SafetyLayer().Flags())}
}

// WriteResetControl drives the factory-wipe request/confirm flow.
// Request=true with ConfirmationCode=0 begins a wipe and the caller
// must read back the generated code out-of-band (the confirmation
// code itself is never sent over the air in the request record);
// Request=false with a non-zero code confirms a pending wipe.
func (a *Adapter) WriteResetControl(rec ResetControlRecord) (code uint32, err error) {
	if !a.Enabled {
		return 0, nil
	}
	m := a.core.WipeMachine()
	if rec.Request {
		return m.Request()
	}
	return 0, m.Confirm(rec.ConfirmationCode)
}

// ReadWipeProgress returns the current wipe step.
func (a *Adapter) ReadWipeProgress() WipeProgressRecord {
	if !a.Enabled {
		return WipeProgressRecord{}
	}
	return WipeProgressRecord{Step: uint8(a.core.WipeMachine().State().Step)}
}

// WriteClearErrors implements the "clear runtime errors" command,
// clearing only the flow-anomaly and generic fault latches.
func (a *Adapter) WriteClearErrors() {
	if !a.Enabled {
		return
	}
	a.core.ClearErrors()
}
