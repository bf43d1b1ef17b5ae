package models

import "time"

// CaptureResult is the outcome of one capture attempt against one camera.
type CaptureResult struct {
	ID         string        `json:"id"`
	CameraName string        `json:"cameraName"`
	CameraType CameraType    `json:"cameraType"`
	Image      []byte        `json:"image,omitempty"`
	CapturedAt time.Time     `json:"capturedAt"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// CaptureFailure is the failure half of an AggregateReport.
type CaptureFailure struct {
	CameraName string `json:"cameraName"`
	Error      string `json:"error"`
}

// AggregateReport summarizes a fan-out capture over all registered cameras.
type AggregateReport struct {
	TotalCameras int              `json:"totalCameras"`
	Successes    []CaptureResult  `json:"successes"`
	Failures     []CaptureFailure `json:"failures"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	Duration     time.Duration    `json:"duration"`
}

// Succeeded is false when not a single camera produced an image.
func (r *AggregateReport) Succeeded() bool {
	return r != nil && len(r.Successes) > 0
}
