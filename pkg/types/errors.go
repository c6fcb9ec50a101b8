package types

import "errors"

// Error taxonomy shared by every package in the controller core.
// Callers should use errors.Is against these sentinels; call sites
// wrap them with fmt.Errorf("%w: ...") to attach detail without
// losing the taxonomy.
var (
	ErrInvalidParam    = errors.New("invalid parameter")
	ErrNotInitialized  = errors.New("not initialized")
	ErrBusy            = errors.New("channel busy")
	ErrHardware        = errors.New("hardware fault")
	ErrConfig          = errors.New("invalid configuration")
	ErrRtcFailure      = errors.New("rtc failure")
	ErrNoFlow          = errors.New("no flow detected")
	ErrUnexpectedFlow  = errors.New("unexpected flow detected")
	ErrQueueFull       = errors.New("task queue full")
	ErrTimeout         = errors.New("operation timed out")
)
