// Package camera owns the capture session used by the vision app.
//
// A Camera keeps a live preview running once started and hands out single
// still captures on request. Backends include a local webcam (gocv), an
// HTTP snapshot endpoint, and a scripted mock for tests.
package camera

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common camera conditions.
var (
	// ErrNotStarted is returned when capturing before Start.
	ErrNotStarted = errors.New("camera: session not started")

	// ErrNoFrame is returned when the device has not produced a frame yet.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera: closed")
)

// Camera is the capture session consumed by the pipeline controller.
type Camera interface {
	// Start opens the device and begins the live preview session.
	Start(ctx context.Context) error

	// Capture takes one still photo using the request's settings and returns
	// it JPEG-encoded. It blocks until the photo is ready.
	Capture(ctx context.Context, req Request) ([]byte, error)

	// Latest returns the most recent preview frame (JPEG).
	Latest() ([]byte, error)

	// Close ends the session and releases the device.
	Close() error
}

// FrameSource is the subset of Camera needed to pump preview frames.
type FrameSource interface {
	Latest() ([]byte, error)
}

// FlashMode selects whether the next capture fires the flash.
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
)

// String returns "on" or "off".
func (m FlashMode) String() string {
	if m == FlashOn {
		return "on"
	}
	return "off"
}

// Toggle returns the opposite mode.
func (m FlashMode) Toggle() FlashMode {
	if m == FlashOn {
		return FlashOff
	}
	return FlashOn
}

// MarshalText encodes the mode as "on" or "off".
func (m FlashMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "on" or "off".
func (m *FlashMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "on":
		*m = FlashOn
	case "off":
		*m = FlashOff
	default:
		return fmt.Errorf("camera: invalid flash mode %q", b)
	}
	return nil
}

// Request describes one still capture. It is built fresh per trigger.
type Request struct {
	// ID correlates the capture with its pipeline cycle.
	ID string

	// Flash is the flash setting for this capture only.
	Flash FlashMode
}
