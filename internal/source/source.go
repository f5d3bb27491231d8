// Package source defines the capture-device contract the supervisor drives
// and ships a synthetic source for development and tests. Real device
// enumeration and opening (by index, or by friendly name on platforms that
// support it) is an external collaborator: this package only defines the
// narrow interface the supervisor needs from it.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/warpcomdev/mjpegd/internal/frame"
)

// ErrDeviceUnavailable is permanent: the device could not be opened at all.
var ErrDeviceUnavailable = errors.New("source: device unavailable")

// TransientReadError wraps a single failed read that the capture loop
// should retry on its next tick, not tear the server down over.
type TransientReadError struct {
	Err error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("source: transient read failure: %v", e.Err)
}

func (e *TransientReadError) Unwrap() error {
	return e.Err
}

// FrameSource yields raw frames at a target cadence from an already-opened
// capture device.
type FrameSource interface {
	// ReadFrame blocks up to one frame interval and returns the next frame,
	// ErrDeviceUnavailable, or a *TransientReadError.
	ReadFrame(ctx context.Context) (frame.Raw, error)
	// Actual reports the width/height/fps the device actually settled on,
	// which may differ from what was requested at Open time.
	Actual() (width, height, fps int)
	// Close releases the device.
	Close() error
}

// Device identifies one capturable device as reported by Enumerate.
type Device struct {
	Index       int
	DisplayName string
}

// Enumerator lists capture devices available on the host. Real
// implementations are platform-specific external collaborators; this
// package ships none and expects one to be injected.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Device, error)
}

// Opener opens a device by index at the requested parameters and returns a
// FrameSource. Real implementations are platform-specific external
// collaborators; this package ships none and expects one to be injected.
type Opener interface {
	Open(ctx context.Context, index, width, height, fps int) (FrameSource, error)
}
