// Package types defines the data model shared across the irrigation
// controller core: channels, tasks, queue entries, system status, and
// the persisted wipe-progress record.
package types

import "time"

// NumChannels is the fixed number of valve channels the controller
// core supports.
const NumChannels = 8

// ChannelID identifies one of the eight valve channels.
type ChannelID uint8

// TaskMode selects how a task's run length is determined.
type TaskMode int

const (
	TaskModeDuration TaskMode = iota // run for a fixed duration
	TaskModeVolume                   // run until a target volume has passed
)

func (m TaskMode) String() string {
	switch m {
	case TaskModeDuration:
		return "duration"
	case TaskModeVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// TaskSource records who asked for a task, for statistics and for the
// "clear errors" / diagnostics surface.
type TaskSource int

const (
	TaskSourceManual TaskSource = iota
	TaskSourceSchedule
	TaskSourceRainAdjusted // scheduled task whose target was scaled down by rain compensation
	TaskSourceAuto
)

// Task is an owned-by-value unit of work enqueued against a channel.
// It is copied into and out of the queue rather than referenced by
// pointer, so the queue never shares mutable state with the executor
// that later runs it.
type Task struct {
	ChannelID     ChannelID
	Mode          TaskMode
	DurationS     uint32 // seconds, used when Mode == TaskModeDuration
	VolumeML      uint32 // millilitres, used when Mode == TaskModeVolume
	Source        TaskSource
	EffectiveTarget int32 // signed deficit-adjusted target, in seconds for Duration tasks and ml for Volume tasks; 0 or less means "use DurationS/VolumeML verbatim"
	EnqueuedAt    time.Time
}

// TaskPhase is the executor's internal state for an active task.
type TaskPhase int

const (
	PhaseIdle TaskPhase = iota
	PhaseRunning
	PhaseSoaking
	PhasePaused
	PhaseCompleted
	PhaseFailed
)

func (p TaskPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSoaking:
		return "soaking"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ActiveTaskState is the executor's view of the task currently running
// on a channel. It is a value copied out of the executor for status
// reporting, never a pointer shared with callers.
type ActiveTaskState struct {
	Task            Task
	Phase           TaskPhase
	StartedAtMonoMS uint64
	ElapsedMS       uint64
	CyclesDone      int
	VolumeSoFarML   uint32
	LastError       error
}

// Plant / soil / irrigation method enums support the auto-mode deficit
// model; the deficit formulae themselves are out of scope (see
// AutoModel in the scheduler package) but the selectors are part of
// the persisted channel configuration surface.
type SoilType int

const (
	SoilUnknown SoilType = iota
	SoilSand
	SoilLoam
	SoilClay
)

type IrrigationMethod int

const (
	MethodDrip IrrigationMethod = iota
	MethodSpray
	MethodRotor
)

// Geolocation anchors solar-timing calculations for auto mode.
type Geolocation struct {
	LatitudeDeg  float64
	LongitudeDeg float64
}

// GrowingEnvironment is the auto-mode configuration for a channel.
type GrowingEnvironment struct {
	Plant                   string
	SoilType                SoilType
	IrrigationMethod        IrrigationMethod
	CustomSoilCoefficients  map[string]float64
	Location                Geolocation
	InstallDate             time.Time // zero value means auto mode is not yet eligible
}

// ChannelStatistics tracks per-channel running totals. Aggregation
// into daily/monthly/annual rollups is out of scope; this is the raw
// counter set the Statistics wireless record reads from.
type ChannelStatistics struct {
	TotalVolumeML   uint64
	TotalDurationS  uint64
	LastRunVolumeML uint32
	RunCount        uint32
}

// ScheduleMode selects how a channel is driven by the scheduler.
type ScheduleMode int

const (
	ScheduleManual ScheduleMode = iota
	ScheduleDaily
	SchedulePeriodic
	ScheduleAuto
)

// DailySchedule fires once at HourOfDay:MinuteOfHour on the configured
// weekdays (bitmask, bit 0 = Sunday).
type DailySchedule struct {
	HourOfDay    uint8
	MinuteOfHour uint8
	WeekdayMask  uint8
}

// PeriodicSchedule fires every IntervalDays, on the shared
// HourOfDay:MinuteOfHour start time, counting days elapsed since
// AnchorTime rather than wall-clock-day boundaries. This governs
// *when* a channel's schedule next fires, not how a single task runs
// once started — see IntervalConfig for the latter.
type PeriodicSchedule struct {
	IntervalDays uint16
	HourOfDay    uint8
	MinuteOfHour uint8
	AnchorTime   time.Time
}

// RainCompensationMode selects how a channel's scheduled tasks react
// to recent rainfall exceeding its threshold.
type RainCompensationMode int

const (
	RainCompensationSkip   RainCompensationMode = iota // drop the scheduled task entirely
	RainCompensationReduce                             // scale the task's target down instead of dropping it
)

// RainCompensation is a channel's rain-gating configuration. Enabled
// gates the whole mechanism off; ReductionPct only applies in Reduce
// mode.
type RainCompensation struct {
	Enabled      bool
	ThresholdMM  float64
	ReductionPct float64
	Mode         RainCompensationMode
}

// IntervalConfig is a channel's cycle-and-soak (interval watering)
// configuration: once a task starts, alternate WateringS seconds of
// open valve with PauseS seconds closed until the task's total target
// is reached. Active only if Configured and WateringS is non-zero.
// Distinct from PeriodicSchedule, which instead governs the interval
// between schedule fires in days/hours.
type IntervalConfig struct {
	WateringS  uint32
	PauseS     uint32
	Configured bool
}

// Channel is the persisted configuration for one valve output.
type Channel struct {
	ID             ChannelID
	Name           string
	Enabled        bool
	ScheduleMode   ScheduleMode
	Daily          DailySchedule
	Periodic       PeriodicSchedule
	Interval       IntervalConfig
	Rain           RainCompensation
	DefaultMode    TaskMode
	DefaultSeconds uint32
	DefaultVolume  uint32
	Environment    GrowingEnvironment
	Stats          ChannelStatistics
	LastWateredAt  time.Time

	// LastAutoCheckJulianDay and AutoCheckRanToday persist the
	// once-per-day dedup for Auto-mode's deficit check across
	// restarts (spec's "at most once per julian day" invariant). They
	// are runtime bookkeeping, not user configuration.
	LastAutoCheckJulianDay int
	AutoCheckRanToday      bool
}

// SafetyFlag enumerates the latched error/alarm conditions the safety
// layer tracks.
type SafetyFlag uint32

const (
	FlagNone SafetyFlag = 0
	FlagNoFlow SafetyFlag = 1 << (iota - 1)
	FlagUnexpectedFlow
	FlagFreezeLockout
	FlagRtcError
	FlagFault
)

func (f SafetyFlag) Has(flag SafetyFlag) bool { return f&flag != 0 }

// SystemStatus is the aggregated, read-only snapshot exposed to the
// wireless surface and to operators via the CLI.
type SystemStatus struct {
	Flags            SafetyFlag
	CurrentTempC     float64
	RtcHealthy       bool
	UptimeS          uint64
	QueueDepth       int
	ActiveChannel    ChannelID
	ActiveChannelSet bool
	WipeInProgress   bool
}

// WipeStep enumerates the factory-wipe state machine's steps.
type WipeStep int

const (
	WipeStepIdle WipeStep = iota
	WipeStepRequested
	WipeStepConfirmPending
	WipeStepConfirmed
	WipeStepErasingChannels
	WipeStepErasingSchedules
	WipeStepErasingCalibration
	WipeStepErasingStatistics
	WipeStepFinalizing
	WipeStepDone
)

// WipeProgress is the resumable persisted state of an in-flight
// factory wipe.
type WipeProgress struct {
	Step             WipeStep
	ConfirmationCode uint32
	RequestedAt      time.Time
	ConfirmedAt      time.Time
}

// Active returns whether a wipe is mid-flight and must be resumed on
// boot rather than treated as idle.
func (w WipeProgress) Active() bool {
	return w.Step != WipeStepIdle && w.Step != WipeStepDone
}
