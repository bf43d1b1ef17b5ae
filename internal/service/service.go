// Package service is the single entry point callers use to capture images.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"snapcam/internal/capture"
	"snapcam/internal/fanout"
	"snapcam/internal/registry"
	"snapcam/pkg/models"
)

// Observer is told about every capture result and batch report.
// ObserveResult may be called concurrently during a batch.
type Observer interface {
	ObserveResult(res models.CaptureResult)
	ObserveReport(report *models.AggregateReport)
}

// CaptureParams selects the camera for a single capture. An empty name means
// the default camera.
type CaptureParams struct {
	CameraName string `json:"camera_name"`
}

// Service ties the registry, selector and orchestrator together.
type Service struct {
	registry     *registry.Registry
	selector     *capture.Selector
	orchestrator *fanout.Orchestrator
	rtspTimeout  time.Duration
	observers    []Observer
	logger       zerolog.Logger
}

// Options configures a Service.
type Options struct {
	RTSPTimeout time.Duration
	Concurrency int
}

// New builds a Service capturing through strategies.
func New(reg *registry.Registry, strategies capture.Strategies, opts Options, logger zerolog.Logger) *Service {
	if opts.RTSPTimeout <= 0 {
		opts.RTSPTimeout = capture.DefaultRTSPTimeout
	}
	s := &Service{
		registry:    reg,
		selector:    capture.NewSelector(strategies, logger),
		rtspTimeout: opts.RTSPTimeout,
		logger:      logger.With().Str("component", "service").Logger(),
	}
	s.orchestrator = fanout.New(s.captureProfile, opts.Concurrency, logger)
	return s
}

// AddObserver registers o. It is not safe to call while captures are running.
func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Registry returns the camera registry the service captures from.
func (s *Service) Registry() *registry.Registry { return s.registry }

func (s *Service) captureProfile(ctx context.Context, p models.CameraProfile) models.CaptureResult {
	res := s.selector.Capture(ctx, p, s.rtspTimeout)
	for _, o := range s.observers {
		o.ObserveResult(res)
	}
	return res
}

// Capture takes one snapshot. The returned error is only set when the camera
// cannot be resolved; capture failures are reported in the result.
func (s *Service) Capture(ctx context.Context, params CaptureParams) (models.CaptureResult, error) {
	p, err := s.registry.Resolve(params.CameraName)
	if err != nil {
		s.logger.Warn().Err(err).Str("camera", params.CameraName).Msg("cannot resolve camera")
		return models.CaptureResult{CameraName: params.CameraName, Error: err.Error()}, err
	}
	return s.captureProfile(ctx, p), nil
}

// CaptureAll captures every registered camera. See fanout.Orchestrator.CaptureAll.
func (s *Service) CaptureAll(ctx context.Context) (*models.AggregateReport, error) {
	report, err := s.orchestrator.CaptureAll(ctx, s.registry.Profiles())
	if report != nil {
		for _, o := range s.observers {
			o.ObserveReport(report)
		}
	}
	return report, err
}
