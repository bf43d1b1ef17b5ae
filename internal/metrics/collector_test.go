package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"snapcam/internal/registry"
	"snapcam/pkg/models"
)

func TestCollector(t *testing.T) {
	reg := registry.FromConfig(map[string]string{
		"CAMERA_DOOR_IP":    "10.0.0.1",
		"CAMERA_KITCHEN_IP": "10.0.0.2",
	})
	c := NewCollector(reg)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(c)

	at := time.Unix(1700000000, 0)
	c.ObserveResult(models.CaptureResult{
		CameraName: "door", CameraType: models.CameraTypeRTSP,
		Image: make([]byte, 2048), Success: true, CapturedAt: at, Duration: 1500 * time.Millisecond,
	})
	c.ObserveResult(models.CaptureResult{
		CameraName: "kitchen", CameraType: models.CameraTypeMJPEG, Error: "timeout", CapturedAt: at,
	})
	c.ObserveResult(models.CaptureResult{
		CameraName: "kitchen", CameraType: models.CameraTypeMJPEG, Error: "timeout", CapturedAt: at,
	})
	c.ObserveReport(&models.AggregateReport{
		TotalCameras: 2,
		Successes:    []models.CaptureResult{{CameraName: "door"}},
		Failures:     []models.CaptureFailure{{CameraName: "kitchen"}},
		Duration:     2 * time.Second,
	})

	expected := `
# HELP snapcam_camera_up Whether the last capture from the camera succeeded.
# TYPE snapcam_camera_up gauge
snapcam_camera_up{camera="door",type="rtsp"} 1
snapcam_camera_up{camera="kitchen",type="mjpeg"} 0
# HELP snapcam_captures_total Capture attempts grouped by outcome.
# TYPE snapcam_captures_total counter
snapcam_captures_total{camera="door",result="failure"} 0
snapcam_captures_total{camera="door",result="success"} 1
snapcam_captures_total{camera="kitchen",result="failure"} 2
snapcam_captures_total{camera="kitchen",result="success"} 0
# HELP snapcam_cameras_total Number of cameras configured.
# TYPE snapcam_cameras_total gauge
snapcam_cameras_total 2
# HELP snapcam_batch_cameras Cameras in the last batch capture grouped by outcome.
# TYPE snapcam_batch_cameras gauge
snapcam_batch_cameras{result="failure"} 1
snapcam_batch_cameras{result="success"} 1
`
	err := testutil.GatherAndCompare(promReg, strings.NewReader(expected),
		"snapcam_camera_up", "snapcam_captures_total", "snapcam_cameras_total", "snapcam_batch_cameras")
	test.That(t, err, test.ShouldBeNil)

	test.That(t, testutil.CollectAndCount(c, "snapcam_camera_image_bytes"), test.ShouldEqual, 2)
}
