package media

import (
	"context"
	"fmt"
)

// CaptureErrorKind classifies device acquisition failures so callers can
// surface an actionable message instead of a raw driver error.
type CaptureErrorKind int

const (
	CaptureUnknown CaptureErrorKind = iota
	CapturePermissionDenied
	CaptureDeviceNotFound
	CaptureDeviceBusy
	CaptureOverconstrained
)

// CaptureError wraps a device acquisition failure with its classification.
type CaptureError struct {
	Kind   CaptureErrorKind
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %s", e.Device, e.UserMessage())
}

func (e *CaptureError) Unwrap() error { return e.Err }

// UserMessage returns the message shown to the person attempting the call.
func (e *CaptureError) UserMessage() string {
	switch e.Kind {
	case CapturePermissionDenied:
		return "Camera/microphone access denied. Please allow access and try again."
	case CaptureDeviceNotFound:
		return "No camera or microphone found. Please connect a device and try again."
	case CaptureDeviceBusy:
		return "Camera or microphone is already in use by another application."
	case CaptureOverconstrained:
		return "Camera does not support the requested settings."
	default:
		if e.Err != nil {
			return fmt.Sprintf("Could not access camera/microphone: %v", e.Err)
		}
		return "Could not access camera/microphone."
	}
}

// OpenRequest describes which tracks to acquire and with what constraints.
type OpenRequest struct {
	Video         bool
	Audio         bool
	VideoDeviceID string
	Width         int
	Height        int
	FPS           int
}

// VideoInput describes one selectable camera.
type VideoInput struct {
	DeviceID string
	Label    string
}

// Devices is the capture backend. Open acquires a camera/microphone stream,
// OpenScreen acquires a display capture whose video track ends when the
// share is cancelled at the source.
type Devices interface {
	Open(ctx context.Context, req OpenRequest) (*Stream, error)
	OpenScreen(ctx context.Context) (*Stream, error)
	ListVideoInputs(ctx context.Context) ([]VideoInput, error)
}
