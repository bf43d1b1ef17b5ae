package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.viam.com/test"

	"snapcam/pkg/models"
)

type fakeStrategies struct {
	called  string
	timeout time.Duration
	img     []byte
	err     error
	panics  bool
}

func (f *fakeStrategies) result(name string) ([]byte, error) {
	f.called = name
	if f.panics {
		panic("decoder exploded")
	}
	return f.img, f.err
}

func (f *fakeStrategies) CaptureRTSP(_ context.Context, _ models.CameraProfile, timeout time.Duration) ([]byte, error) {
	f.timeout = timeout
	return f.result("rtsp")
}

func (f *fakeStrategies) CaptureMJPEG(context.Context, models.CameraProfile) ([]byte, error) {
	return f.result("mjpeg")
}

func (f *fakeStrategies) CaptureHTTPGeneric(context.Context, models.CameraProfile) ([]byte, error) {
	return f.result("http")
}

func (f *fakeStrategies) CaptureONVIF(context.Context, models.CameraProfile) ([]byte, error) {
	return f.result("onvif")
}

func TestSelectorRouting(t *testing.T) {
	cases := []struct {
		typ  models.CameraType
		want string
	}{
		{models.CameraTypeRTSP, "rtsp"},
		{models.CameraTypeMJPEG, "mjpeg"},
		{models.CameraTypeHTTP, "http"},
		{models.CameraTypeONVIF, "onvif"},
		{models.CameraTypeUnknown, "rtsp"},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			fake := &fakeStrategies{img: fakeJPEG(200)}
			s := NewSelector(fake, zerolog.Nop())
			res := s.Capture(context.Background(), models.CameraProfile{Name: "cam", Type: tc.typ, RawType: "webrtc"}, 3*time.Second)
			test.That(t, fake.called, test.ShouldEqual, tc.want)
			test.That(t, res.Success, test.ShouldBeTrue)
			test.That(t, res.Error, test.ShouldBeEmpty)
			test.That(t, res.Image, test.ShouldHaveLength, 200)
			test.That(t, res.CameraName, test.ShouldEqual, "cam")
			test.That(t, res.ID, test.ShouldNotBeEmpty)
		})
	}

	fake := &fakeStrategies{img: fakeJPEG(200)}
	NewSelector(fake, zerolog.Nop()).Capture(context.Background(), models.CameraProfile{Type: models.CameraTypeRTSP}, 7*time.Second)
	test.That(t, fake.timeout, test.ShouldEqual, 7*time.Second)
}

func TestSelectorFailures(t *testing.T) {
	p := models.CameraProfile{Name: "garage", Type: models.CameraTypeHTTP}

	t.Run("strategy error", func(t *testing.T) {
		fake := &fakeStrategies{err: models.TransportError("garage", "http", errors.New("connection refused"))}
		res := NewSelector(fake, zerolog.Nop()).Capture(context.Background(), p, time.Second)
		test.That(t, res.Success, test.ShouldBeFalse)
		test.That(t, res.Image, test.ShouldBeNil)
		test.That(t, res.Error, test.ShouldContainSubstring, "connection refused")
		test.That(t, res.Error, test.ShouldContainSubstring, "garage")
	})

	t.Run("panic becomes a failed result", func(t *testing.T) {
		fake := &fakeStrategies{panics: true}
		var res models.CaptureResult
		test.That(t, func() {
			res = NewSelector(fake, zerolog.Nop()).Capture(context.Background(), p, time.Second)
		}, test.ShouldNotPanic)
		test.That(t, res.Success, test.ShouldBeFalse)
		test.That(t, res.Error, test.ShouldContainSubstring, "decoder exploded")
	})

	t.Run("non-image bytes are rejected", func(t *testing.T) {
		fake := &fakeStrategies{img: []byte("<html>login required</html>")}
		res := NewSelector(fake, zerolog.Nop()).Capture(context.Background(), p, time.Second)
		test.That(t, res.Success, test.ShouldBeFalse)
		test.That(t, res.Image, test.ShouldBeNil)
		test.That(t, res.Error, test.ShouldContainSubstring, models.ErrInvalidImage.Error())
	})

	t.Run("duration is measured", func(t *testing.T) {
		fake := &fakeStrategies{img: fakeJPEG(200)}
		s := NewSelector(fake, zerolog.Nop())
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		calls := 0
		s.now = func() time.Time {
			calls++
			return base.Add(time.Duration(calls-1) * 250 * time.Millisecond)
		}
		res := s.Capture(context.Background(), p, time.Second)
		test.That(t, res.CapturedAt.Equal(base), test.ShouldBeTrue)
		test.That(t, res.Duration, test.ShouldEqual, 250*time.Millisecond)
	})
}
