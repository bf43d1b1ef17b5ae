package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"snapcam/pkg/models"
)

// Snapshot is a fully read HTTP response body.
type Snapshot struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Stream is an open response whose body the caller must close.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	StatusCode  int
}

func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// GetSnapshot issues one GET against path (relative to the camera, or absolute)
// and returns the whole body.
func (c *CameraClient) GetSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		Get(NormalizePath(path))

	if err != nil {
		return nil, classify(c.Profile.Name, "snapshot", err)
	}

	if !statusOK(resp.StatusCode()) {
		return nil, models.TransportError(c.Profile.Name, "snapshot",
			fmt.Errorf("unexpected status %s", resp.Status()))
	}

	return &Snapshot{
		Body:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
	}, nil
}

// OpenStream issues a GET without reading the body so it can be consumed incrementally.
func (c *CameraClient) OpenStream(ctx context.Context, path string) (*Stream, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(NormalizePath(path))

	if err != nil {
		return nil, classify(c.Profile.Name, "stream", err)
	}

	body := resp.RawBody()
	if !statusOK(resp.StatusCode()) {
		if body != nil {
			_ = body.Close()
		}
		return nil, models.TransportError(c.Profile.Name, "stream",
			fmt.Errorf("unexpected status %s", resp.Status()))
	}

	return &Stream{
		Body:        body,
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
	}, nil
}

// ReadError classifies an error seen while reading a stream body.
func (c *CameraClient) ReadError(op string, err error) error {
	return classify(c.Profile.Name, op, err)
}
