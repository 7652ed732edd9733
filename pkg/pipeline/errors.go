package pipeline

import "errors"

// Error taxonomy for a capture cycle. Cycle errors are logged and
// swallowed by the controller; they wrap the underlying service error.
var (
	// ErrCapture is a device or session failure, or an undecodable image.
	ErrCapture = errors.New("pipeline: capture failed")

	// ErrClassification is a model invocation failure or an empty result.
	ErrClassification = errors.New("pipeline: classification failed")

	// ErrSpeech is a synthesis or playback failure.
	ErrSpeech = errors.New("pipeline: speech failed")
)

// Errors returned to callers of Trigger and ToggleFlash.
var (
	// ErrBusy is returned when a trigger arrives while a cycle is in flight.
	ErrBusy = errors.New("pipeline: cycle in progress")

	// ErrNoSession is returned when triggering before the capture session
	// has started.
	ErrNoSession = errors.New("pipeline: capture session not started")

	// ErrStopped is returned once the controller loop has exited or before
	// it has started.
	ErrStopped = errors.New("pipeline: controller not running")
)
