package models

import (
	"errors"
	"fmt"
	"testing"

	"go.viam.com/test"
)

func TestCaptureError(t *testing.T) {
	err := TimeoutError("door", "rtsp", errors.New("ffmpeg did not finish"))
	test.That(t, err.Error(), test.ShouldEqual, `camera "door": rtsp: timeout error: ffmpeg did not finish`)

	wrapped := fmt.Errorf("batch: %w", ProtocolError("door", "mjpeg", ErrNoFrame))
	test.That(t, KindOf(wrapped), test.ShouldEqual, KindProtocol)
	test.That(t, errors.Is(wrapped, ErrNoFrame), test.ShouldBeTrue)

	test.That(t, ConfigurationError("", ErrNoCameras).Error(), test.ShouldEqual, "configuration error: no cameras configured")
	test.That(t, KindOf(errors.New("plain")), test.ShouldEqual, ErrorKind(""))
}

func TestProfileAndReport(t *testing.T) {
	p := CameraProfile{Name: "a", Username: "admin"}
	test.That(t, p.HasCredentials(), test.ShouldBeFalse)
	p.Password = "pw"
	test.That(t, p.HasCredentials(), test.ShouldBeTrue)
	test.That(t, p.WithPath("/x").Path, test.ShouldEqual, "/x")
	test.That(t, p.Path, test.ShouldEqual, "")

	test.That(t, ParseCameraType(" MJPEG "), test.ShouldEqual, CameraTypeMJPEG)
	test.That(t, ParseCameraType("webrtc"), test.ShouldEqual, CameraTypeUnknown)

	var nilReport *AggregateReport
	test.That(t, nilReport.Succeeded(), test.ShouldBeFalse)
	test.That(t, (&AggregateReport{Successes: []CaptureResult{{}}}).Succeeded(), test.ShouldBeTrue)
}
