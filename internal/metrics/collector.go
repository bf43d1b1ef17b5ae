// Package metrics exposes capture outcomes to Prometheus.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"snapcam/internal/registry"
	"snapcam/pkg/models"
)

var (
	camerasDesc = prometheus.NewDesc(
		"snapcam_cameras_total", "Number of cameras configured.", nil, nil,
	)
	cameraUpDesc = prometheus.NewDesc(
		"snapcam_camera_up", "Whether the last capture from the camera succeeded.", []string{"camera", "type"}, nil,
	)
	captureDurationDesc = prometheus.NewDesc(
		"snapcam_camera_capture_duration_seconds", "Duration of the last capture.", []string{"camera", "type"}, nil,
	)
	lastCaptureDesc = prometheus.NewDesc(
		"snapcam_camera_last_capture_timestamp_seconds", "Unix time of the last capture attempt.", []string{"camera"}, nil,
	)
	imageBytesDesc = prometheus.NewDesc(
		"snapcam_camera_image_bytes", "Size of the last captured image.", []string{"camera"}, nil,
	)
	capturesDesc = prometheus.NewDesc(
		"snapcam_captures_total", "Capture attempts grouped by outcome.", []string{"camera", "result"}, nil,
	)
	batchCamerasDesc = prometheus.NewDesc(
		"snapcam_batch_cameras", "Cameras in the last batch capture grouped by outcome.", []string{"result"}, nil,
	)
	batchDurationDesc = prometheus.NewDesc(
		"snapcam_batch_duration_seconds", "Duration of the last batch capture.", nil, nil,
	)
	batchesDesc = prometheus.NewDesc(
		"snapcam_batches_total", "Batch captures run.", nil, nil,
	)
)

type cameraState struct {
	cameraType models.CameraType
	success    bool
	duration   time.Duration
	at         time.Time
	imageBytes int
	ok         float64
	failed     float64
}

// Collector keeps the latest capture outcome per camera and reports it on scrape.
// It is safe for concurrent use.
type Collector struct {
	Registry *registry.Registry

	mu      sync.Mutex
	cameras map[string]*cameraState
	last    *models.AggregateReport
	batches float64
}

// NewCollector returns a Collector reporting on the cameras of reg.
func NewCollector(reg *registry.Registry) *Collector {
	return &Collector{Registry: reg, cameras: make(map[string]*cameraState)}
}

// ObserveResult records a single capture.
func (c *Collector) ObserveResult(res models.CaptureResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.cameras[res.CameraName]
	if !ok {
		st = &cameraState{}
		c.cameras[res.CameraName] = st
	}
	st.cameraType = res.CameraType
	st.success = res.Success
	st.duration = res.Duration
	st.at = res.CapturedAt
	if res.Success {
		st.imageBytes = len(res.Image)
		st.ok++
	} else {
		st.failed++
	}
}

// ObserveReport records a batch capture.
func (c *Collector) ObserveReport(report *models.AggregateReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = report
	c.batches++
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- camerasDesc
	ch <- cameraUpDesc
	ch <- captureDurationDesc
	ch <- lastCaptureDesc
	ch <- imageBytesDesc
	ch <- capturesDesc
	ch <- batchCamerasDesc
	ch <- batchDurationDesc
	ch <- batchesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Registry != nil {
		ch <- prometheus.MustNewConstMetric(camerasDesc, prometheus.GaugeValue, float64(c.Registry.Len()))
	}

	names := make([]string, 0, len(c.cameras))
	for name := range c.cameras {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := c.cameras[name]
		typ := string(st.cameraType)
		if typ == "" {
			typ = string(models.CameraTypeUnknown)
		}

		up := 0.0
		if st.success {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(cameraUpDesc, prometheus.GaugeValue, up, name, typ)
		ch <- prometheus.MustNewConstMetric(captureDurationDesc, prometheus.GaugeValue, st.duration.Seconds(), name, typ)
		if !st.at.IsZero() {
			ch <- prometheus.MustNewConstMetric(lastCaptureDesc, prometheus.GaugeValue, float64(st.at.Unix()), name)
		}
		ch <- prometheus.MustNewConstMetric(imageBytesDesc, prometheus.GaugeValue, float64(st.imageBytes), name)
		ch <- prometheus.MustNewConstMetric(capturesDesc, prometheus.CounterValue, st.ok, name, "success")
		ch <- prometheus.MustNewConstMetric(capturesDesc, prometheus.CounterValue, st.failed, name, "failure")
	}

	ch <- prometheus.MustNewConstMetric(batchesDesc, prometheus.CounterValue, c.batches)
	if c.last != nil {
		ch <- prometheus.MustNewConstMetric(batchCamerasDesc, prometheus.GaugeValue, float64(len(c.last.Successes)), "success")
		ch <- prometheus.MustNewConstMetric(batchCamerasDesc, prometheus.GaugeValue, float64(len(c.last.Failures)), "failure")
		ch <- prometheus.MustNewConstMetric(batchDurationDesc, prometheus.GaugeValue, c.last.Duration.Seconds())
	}
}
