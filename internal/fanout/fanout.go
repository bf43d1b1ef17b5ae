// Package fanout captures from many cameras at once with bounded parallelism.
package fanout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"snapcam/pkg/models"
)

// DefaultConcurrency is the number of cameras captured at the same time.
const DefaultConcurrency = 3

// CaptureFunc captures a single camera. It reports failures in the result.
type CaptureFunc func(ctx context.Context, p models.CameraProfile) models.CaptureResult

// Orchestrator runs a CaptureFunc over a set of profiles.
type Orchestrator struct {
	capture CaptureFunc
	limit   int
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns an Orchestrator running at most limit captures concurrently.
// A limit outside 1..DefaultConcurrency means DefaultConcurrency.
func New(capture CaptureFunc, limit int, logger zerolog.Logger) *Orchestrator {
	if limit < 1 || limit > DefaultConcurrency {
		limit = DefaultConcurrency
	}
	return &Orchestrator{
		capture: capture,
		limit:   limit,
		logger:  logger.With().Str("component", "fanout").Logger(),
		now:     time.Now,
	}
}

// Limit returns the concurrency bound.
func (o *Orchestrator) Limit() int { return o.limit }

// CaptureAll captures every profile and aggregates the outcome. Results are
// ordered by camera name regardless of completion order. A non-empty batch in
// which every camera failed returns the report along with ErrAllCamerasFailed.
func (o *Orchestrator) CaptureAll(ctx context.Context, profiles map[string]models.CameraProfile) (*models.AggregateReport, error) {
	if len(profiles) == 0 {
		return nil, models.ConfigurationError("", models.ErrNoCameras)
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	start := o.now()
	results := make([]models.CaptureResult, len(names))

	var g errgroup.Group
	g.SetLimit(o.limit)
	for i, name := range names {
		i, name := i, name
		p := profiles[name]
		if p.Name == "" {
			p.Name = name
		}
		g.Go(func() error {
			results[i] = o.captureOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := &models.AggregateReport{
		TotalCameras: len(names),
		Successes:    []models.CaptureResult{},
		Failures:     []models.CaptureFailure{},
		GeneratedAt:  o.now(),
	}
	report.Duration = report.GeneratedAt.Sub(start)

	for i, res := range results {
		if res.Success {
			report.Successes = append(report.Successes, res)
			continue
		}
		msg := res.Error
		if msg == "" {
			msg = "capture failed"
		}
		report.Failures = append(report.Failures, models.CaptureFailure{CameraName: names[i], Error: msg})
	}

	o.logger.Info().
		Int("total", report.TotalCameras).
		Int("succeeded", len(report.Successes)).
		Int("failed", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("batch capture complete")

	if !report.Succeeded() {
		return report, errors.Wrapf(models.ErrAllCamerasFailed, "%d of %d cameras failed", len(report.Failures), report.TotalCameras)
	}
	return report, nil
}

// captureOne turns a panicking capture into a failed result so one camera
// cannot abort the batch.
func (o *Orchestrator) captureOne(ctx context.Context, p models.CameraProfile) (res models.CaptureResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("camera", p.Name).Interface("panic", r).Msg("capture panicked")
			res = models.CaptureResult{
				CameraName: p.Name,
				CameraType: p.Type,
				CapturedAt: o.now(),
				Error:      fmt.Sprintf("capture panicked: %v", r),
			}
		}
	}()
	res = o.capture(ctx, p)
	if res.CameraName == "" {
		res.CameraName = p.Name
	}
	return res
}
