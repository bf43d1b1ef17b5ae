package capture

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapcam/pkg/models"
)

// Selector routes a profile to the strategy for its type and reports the
// outcome as a CaptureResult. It never returns an error and never panics.
type Selector struct {
	strategies Strategies
	logger     zerolog.Logger
	now        func() time.Time
}

// NewSelector wraps a set of strategies.
func NewSelector(s Strategies, logger zerolog.Logger) *Selector {
	return &Selector{
		strategies: s,
		logger:     logger.With().Str("component", "selector").Logger(),
		now:        time.Now,
	}
}

// Capture takes one snapshot from p. timeout only bounds the RTSP strategy;
// the HTTP based strategies carry their own bounds.
func (s *Selector) Capture(ctx context.Context, p models.CameraProfile, timeout time.Duration) (res models.CaptureResult) {
	start := s.now()
	res = models.CaptureResult{
		ID:         uuid.NewString(),
		CameraName: p.Name,
		CameraType: p.Type,
		CapturedAt: start,
	}
	logger := s.logger.With().Str("camera", p.Name).Str("type", string(p.Type)).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("capture panicked")
			res.Image = nil
			res.Success = false
			res.Error = fmt.Sprintf("capture panicked: %v", r)
		}
		res.Duration = s.now().Sub(start)
	}()

	img, err := s.route(ctx, p, timeout, logger)
	switch {
	case err != nil:
		res.Error = err.Error()
	case !IsValidImage(img):
		res.Error = models.ProtocolError(p.Name, string(p.Type), models.ErrInvalidImage).Error()
	default:
		res.Image = img
		res.Success = true
	}

	if res.Success {
		logger.Info().Int("bytes", len(img)).Msg("capture succeeded")
	} else {
		logger.Warn().Str("error", res.Error).Msg("capture failed")
	}
	return res
}

func (s *Selector) route(ctx context.Context, p models.CameraProfile, timeout time.Duration, logger zerolog.Logger) ([]byte, error) {
	switch p.Type {
	case models.CameraTypeMJPEG:
		return s.strategies.CaptureMJPEG(ctx, p)
	case models.CameraTypeHTTP:
		return s.strategies.CaptureHTTPGeneric(ctx, p)
	case models.CameraTypeONVIF:
		return s.strategies.CaptureONVIF(ctx, p)
	case models.CameraTypeRTSP:
		return s.strategies.CaptureRTSP(ctx, p, timeout)
	default:
		logger.Warn().Str("raw_type", p.RawType).Msg("unknown camera type, falling back to rtsp")
		return s.strategies.CaptureRTSP(ctx, p, timeout)
	}
}
