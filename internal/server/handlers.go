package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"snapcam/internal/capture"
	"snapcam/internal/service"
	"snapcam/pkg/models"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func errorJSON(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error(), Timestamp: time.Now()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"cameras":   s.backend.Registry().Len(),
		"timestamp": time.Now(),
	})
}

func (s *Server) handleCameras(c *gin.Context) {
	reg := s.backend.Registry()
	cameras := make([]models.CameraProfile, 0, reg.Len())
	for _, name := range reg.Names() {
		p, _ := reg.Get(name)
		cameras = append(cameras, p)
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	res, err := s.backend.Capture(c.Request.Context(), service.CaptureParams{CameraName: c.Param("name")})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoCameras):
			errorJSON(c, http.StatusServiceUnavailable, "no_cameras", err)
		case errors.Is(err, models.ErrCameraNotFound):
			errorJSON(c, http.StatusNotFound, "camera_not_found", err)
		default:
			errorJSON(c, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	if !res.Success {
		errorJSON(c, http.StatusBadGateway, "capture_failed", errors.New(res.Error))
		return
	}

	c.Header("X-Capture-Id", res.ID)
	c.Header("X-Camera", res.CameraName)
	c.Data(http.StatusOK, capture.ContentType(res.Image), res.Image)
}

// handleSnapshots runs a batch capture. Images are left out of the JSON
// unless ?images=true.
func (s *Server) handleSnapshots(c *gin.Context) {
	report, err := s.backend.CaptureAll(c.Request.Context())
	if report == nil {
		if err == nil {
			err = errors.New("no report produced")
		}
		if errors.Is(err, models.ErrNoCameras) {
			errorJSON(c, http.StatusServiceUnavailable, "no_cameras", err)
			return
		}
		errorJSON(c, http.StatusInternalServerError, "internal_error", err)
		return
	}

	if c.Query("images") != "true" {
		stripped := *report
		stripped.Successes = make([]models.CaptureResult, len(report.Successes))
		for i, r := range report.Successes {
			r.Image = nil
			stripped.Successes[i] = r
		}
		report = &stripped
	}

	status := http.StatusOK
	if errors.Is(err, models.ErrAllCamerasFailed) {
		status = http.StatusBadGateway
	}
	c.JSON(status, report)
}
