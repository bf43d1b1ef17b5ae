package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownFunction is returned by Dispatch for names not in Functions.
var ErrUnknownFunction = errors.New("unknown function")

// Handler runs one function against a Service.
type Handler func(ctx context.Context, s *Service, params map[string]string) (interface{}, error)

// Function describes a capability callers can invoke by name.
type Function struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     Handler
}

// Functions is every capability the service exposes.
var Functions = []Function{
	{
		Name:        "camera",
		Aliases:     []string{"cam", "snapshot"},
		Description: "Capture a snapshot from a specific IP camera",
		Usage:       "camera [camera_name]",
		Handler:     captureHandler,
	},
	{
		Name:        "allcameras",
		Aliases:     []string{"allcams", "cameras"},
		Description: "Capture snapshots from every configured camera",
		Usage:       "allcameras",
		Handler:     captureAllHandler,
	},
}

// Lookup finds a function by name or alias, ignoring case.
func Lookup(name string) (Function, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, fn := range Functions {
		if fn.Name == name {
			return fn, true
		}
		for _, alias := range fn.Aliases {
			if alias == name {
				return fn, true
			}
		}
	}
	return Function{}, false
}

// Dispatch runs the named function.
func (s *Service) Dispatch(ctx context.Context, name string, params map[string]string) (interface{}, error) {
	fn, ok := Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFunction, "%q", name)
	}
	return fn.Handler(ctx, s, params)
}

func captureHandler(ctx context.Context, s *Service, params map[string]string) (interface{}, error) {
	name := params["camera_name"]
	if name == "" {
		name = params["camera"]
	}
	res, err := s.Capture(ctx, CaptureParams{CameraName: name})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func captureAllHandler(ctx context.Context, s *Service, _ map[string]string) (interface{}, error) {
	return s.CaptureAll(ctx)
}
