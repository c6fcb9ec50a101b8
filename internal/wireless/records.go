// Package wireless adapts the typed wireless attribute records to the
// Core API. Records that involve multi-field writes (ChannelConfig)
// are split into a selector and a payload record rather than the
// source firmware's ad-hoc write-fragment protocol, per the
// fragmented-writes re-architecture.
//
// Every record has a packed little-endian binary encoding, versioned
// by a leading byte, for transport over the (out-of-scope) wireless
// transport layer.
package wireless

import (
	"encoding/binary"
	"fmt"

	"github.com/greenfield-labs/irrigctl/pkg/types"
)

const recordVersion1 = 1

// TaskCreateRecord is the wire shape of a manual TaskCreate write.
type TaskCreateRecord struct {
	ChannelID types.ChannelID
	Mode      types.TaskMode
	DurationS uint32
	VolumeML  uint32
}

func (r TaskCreateRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+1+4+4)
	buf[0] = recordVersion1
	buf[1] = byte(r.ChannelID)
	buf[2] = byte(r.Mode)
	binary.LittleEndian.PutUint32(buf[3:7], r.DurationS)
	binary.LittleEndian.PutUint32(buf[7:11], r.VolumeML)
	return buf, nil
}

func (r *TaskCreateRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 11 {
		return fmt.Errorf("%w: TaskCreateRecord too short", types.ErrInvalidParam)
	}
	if data[0] != recordVersion1 {
		return fmt.Errorf("%w: unsupported TaskCreateRecord version %d", types.ErrConfig, data[0])
	}
	r.ChannelID = types.ChannelID(data[1])
	r.Mode = types.TaskMode(data[2])
	r.DurationS = binary.LittleEndian.Uint32(data[3:7])
	r.VolumeML = binary.LittleEndian.Uint32(data[7:11])
	return nil
}

// ValveStatusRecord is the read-only wire shape of ValveStatus.
type ValveStatusRecord struct {
	ChannelID types.ChannelID
	Open      bool
}

func (r ValveStatusRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 3)
	buf[0] = recordVersion1
	buf[1] = byte(r.ChannelID)
	if r.Open {
		buf[2] = 1
	}
	return buf, nil
}

func (r *ValveStatusRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 3 {
		return fmt.Errorf("%w: ValveStatusRecord too short", types.ErrInvalidParam)
	}
	r.ChannelID = types.ChannelID(data[1])
	r.Open = data[2] != 0
	return nil
}

// SystemStatusRecord is the read-only wire shape of SystemStatus.
type SystemStatusRecord struct {
	Flags          uint32
	QueueDepth     uint16
	WipeInProgress bool
}

func (r SystemStatusRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+4+2+1)
	buf[0] = recordVersion1
	binary.LittleEndian.PutUint32(buf[1:5], r.Flags)
	binary.LittleEndian.PutUint16(buf[5:7], r.QueueDepth)
	if r.WipeInProgress {
		buf[7] = 1
	}
	return buf, nil
}

// ChannelConfigSelect selects which channel a subsequent
// ChannelConfigPayload write applies to — the selector half of the
// fragmented-write replacement.
type ChannelConfigSelect struct {
	ChannelID types.ChannelID
}

func (r ChannelConfigSelect) MarshalBinary() ([]byte, error) {
	return []byte{recordVersion1, byte(r.ChannelID)}, nil
}

func (r *ChannelConfigSelect) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: ChannelConfigSelect too short", types.ErrInvalidParam)
	}
	r.ChannelID = types.ChannelID(data[1])
	return nil
}

// ChannelConfigPayload is the long-form write applied to the
// previously selected channel.
type ChannelConfigPayload struct {
	Enabled        bool
	ScheduleMode   types.ScheduleMode
	HourOfDay      uint8
	MinuteOfHour   uint8
	WeekdayMask    uint8
	IntervalDays   uint16
	DefaultMode    types.TaskMode
	DefaultSeconds uint32
	DefaultVolume  uint32
}

func (r ChannelConfigPayload) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+1+1+1+1+2+1+4+4)
	i := 0
	buf[i] = recordVersion1
	i++
	if r.Enabled {
		buf[i] = 1
	}
	i++
	buf[i] = byte(r.ScheduleMode)
	i++
	buf[i] = r.HourOfDay
	i++
	buf[i] = r.MinuteOfHour
	i++
	buf[i] = r.WeekdayMask
	i++
	binary.LittleEndian.PutUint16(buf[i:i+2], r.IntervalDays)
	i += 2
	buf[i] = byte(r.DefaultMode)
	i++
	binary.LittleEndian.PutUint32(buf[i:i+4], r.DefaultSeconds)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:i+4], r.DefaultVolume)
	return buf, nil
}

func (r *ChannelConfigPayload) UnmarshalBinary(data []byte) error {
	const want = 1 + 1 + 1 + 1 + 1 + 1 + 2 + 1 + 4 + 4
	if len(data) < want {
		return fmt.Errorf("%w: ChannelConfigPayload too short", types.ErrInvalidParam)
	}
	i := 1
	r.Enabled = data[i] != 0
	i++
	r.ScheduleMode = types.ScheduleMode(data[i])
	i++
	r.HourOfDay = data[i]
	i++
	r.MinuteOfHour = data[i]
	i++
	r.WeekdayMask = data[i]
	i++
	r.IntervalDays = binary.LittleEndian.Uint16(data[i : i+2])
	i += 2
	r.DefaultMode = types.TaskMode(data[i])
	i++
	r.DefaultSeconds = binary.LittleEndian.Uint32(data[i : i+4])
	i += 4
	r.DefaultVolume = binary.LittleEndian.Uint32(data[i : i+4])
	return nil
}

// IntervalConfigRecord reads/writes a channel's cycle-and-soak
// (interval watering) configuration — distinct from the
// ChannelConfigPayload's schedule-fire cadence (Daily/Periodic/Auto),
// this controls how a single fired task alternates watering and pause
// phases once it is running.
type IntervalConfigRecord struct {
	ChannelID  types.ChannelID
	WateringS  uint16
	PauseS     uint16
	Configured bool
}

func (r IntervalConfigRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+2+2+1)
	buf[0] = recordVersion1
	buf[1] = byte(r.ChannelID)
	binary.LittleEndian.PutUint16(buf[2:4], r.WateringS)
	binary.LittleEndian.PutUint16(buf[4:6], r.PauseS)
	if r.Configured {
		buf[6] = 1
	}
	return buf, nil
}

func (r *IntervalConfigRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return fmt.Errorf("%w: IntervalConfigRecord too short", types.ErrInvalidParam)
	}
	if data[0] != recordVersion1 {
		return fmt.Errorf("%w: unsupported IntervalConfigRecord version %d", types.ErrConfig, data[0])
	}
	r.ChannelID = types.ChannelID(data[1])
	r.WateringS = binary.LittleEndian.Uint16(data[2:4])
	r.PauseS = binary.LittleEndian.Uint16(data[4:6])
	r.Configured = data[6] != 0
	return nil
}

// IntervalStatusRecord is the read-only view of a channel's current
// position within its cycle-and-soak run: whether it is soaking, and
// in PhaseElapsed the task's cumulative watering time in seconds
// (summed over all watering phases so far, not reset per phase).
type IntervalStatusRecord struct {
	ChannelID    types.ChannelID
	Soaking      bool
	PhaseElapsed uint32
}

func (r IntervalStatusRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+1+4)
	buf[0] = recordVersion1
	buf[1] = byte(r.ChannelID)
	if r.Soaking {
		buf[2] = 1
	}
	binary.LittleEndian.PutUint32(buf[3:7], r.PhaseElapsed)
	return buf, nil
}

// CalibrationRecord reads/writes a channel's pulses-per-litre factor.
type CalibrationRecord struct {
	ChannelID      types.ChannelID
	PulsesPerLitre uint32
}

func (r CalibrationRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+4)
	buf[0] = recordVersion1
	buf[1] = byte(r.ChannelID)
	binary.LittleEndian.PutUint32(buf[2:6], r.PulsesPerLitre)
	return buf, nil
}

func (r *CalibrationRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: CalibrationRecord too short", types.ErrInvalidParam)
	}
	r.ChannelID = types.ChannelID(data[1])
	r.PulsesPerLitre = binary.LittleEndian.Uint32(data[2:6])
	return nil
}

// RtcRecord reads/writes the RTC's wall-clock time as a unix
// timestamp.
type RtcRecord struct {
	UnixSeconds int64
}

func (r RtcRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+8)
	buf[0] = recordVersion1
	binary.LittleEndian.PutUint64(buf[1:9], uint64(r.UnixSeconds))
	return buf, nil
}

func (r *RtcRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("%w: RtcRecord too short", types.ErrInvalidParam)
	}
	r.UnixSeconds = int64(binary.LittleEndian.Uint64(data[1:9]))
	return nil
}

// AlarmRecord is the read-only latched-flags view.
type AlarmRecord struct {
	Flags uint32
}

func (r AlarmRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 5)
	buf[0] = recordVersion1
	binary.LittleEndian.PutUint32(buf[1:5], r.Flags)
	return buf, nil
}

// DiagnosticsRecord is the read-only diagnostic snapshot.
type DiagnosticsRecord struct {
	UptimeS    uint64
	ErrorCount uint32
	ValveMask  uint8
}

func (r DiagnosticsRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+8+4+1)
	buf[0] = recordVersion1
	binary.LittleEndian.PutUint64(buf[1:9], r.UptimeS)
	binary.LittleEndian.PutUint32(buf[9:13], r.ErrorCount)
	buf[13] = r.ValveMask
	return buf, nil
}

// ResetControlRecord drives the factory-wipe request/confirm flow.
type ResetControlRecord struct {
	Request          bool
	ConfirmationCode uint32
}

func (r ResetControlRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+4)
	buf[0] = recordVersion1
	if r.Request {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], r.ConfirmationCode)
	return buf, nil
}

func (r *ResetControlRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: ResetControlRecord too short", types.ErrInvalidParam)
	}
	r.Request = data[1] != 0
	r.ConfirmationCode = binary.LittleEndian.Uint32(data[2:6])
	return nil
}

// WipeProgressRecord is the read-only wipe-state view.
type WipeProgressRecord struct {
	Step uint8
}

func (r WipeProgressRecord) MarshalBinary() ([]byte, error) {
	return []byte{recordVersion1, r.Step}, nil
}

// StatisticsRecord is the read-only per-channel totals view. History
// aggregation (daily/monthly/annual rollups) remains out of scope;
// this carries only the raw running totals Core updates each time a
// task completes.
type StatisticsRecord struct {
	ChannelID       types.ChannelID
	TotalVolumeML   uint64
	TotalDurationS  uint64
	LastRunVolumeML uint32
	RunCount        uint32
}

func (r StatisticsRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 1+1+8+8+4+4)
	i := 0
	buf[i] = recordVersion1
	i++
	buf[i] = byte(r.ChannelID)
	i++
	binary.LittleEndian.PutUint64(buf[i:i+8], r.TotalVolumeML)
	i += 8
	binary.LittleEndian.PutUint64(buf[i:i+8], r.TotalDurationS)
	i += 8
	binary.LittleEndian.PutUint32(buf[i:i+4], r.LastRunVolumeML)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:i+4], r.RunCount)
	return buf, nil
}
