package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies capture failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTimeout       ErrorKind = "timeout"
	KindProtocol      ErrorKind = "protocol"
	KindTransport     ErrorKind = "transport"
)

var (
	ErrNoCameras        = errors.New("no cameras configured")
	ErrCameraNotFound   = errors.New("camera not found")
	ErrAllCamerasFailed = errors.New("no camera produced an image")
	ErrInvalidImage     = errors.New("payload is not a JPEG or PNG image")
	ErrInsufficientData = errors.New("payload too small to be an image")
	ErrNoFrame          = errors.New("stream ended without a complete frame")
)

// CaptureError carries the kind of failure plus the camera and operation it happened in.
type CaptureError struct {
	Kind   ErrorKind
	Camera string
	Op     string
	Err    error
}

func (e *CaptureError) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Camera != "" {
		msg = fmt.Sprintf("camera %q: %s", e.Camera, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, camera, op string, err error) *CaptureError {
	return &CaptureError{Kind: kind, Camera: camera, Op: op, Err: err}
}

// ConfigurationError reports missing or unusable camera configuration.
func ConfigurationError(camera string, err error) *CaptureError {
	return newError(KindConfiguration, camera, "", err)
}

// TimeoutError reports that a process or network call exceeded its bound.
func TimeoutError(camera, op string, err error) *CaptureError {
	return newError(KindTimeout, camera, op, err)
}

// ProtocolError reports malformed stream data or a validator rejection.
func ProtocolError(camera, op string, err error) *CaptureError {
	return newError(KindProtocol, camera, op, err)
}

// TransportError reports a network or HTTP failure.
func TransportError(camera, op string, err error) *CaptureError {
	return newError(KindTransport, camera, op, err)
}

// KindOf returns the kind of the first CaptureError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
