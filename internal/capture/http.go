package capture

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"snapcam/internal/client"
	"snapcam/pkg/models"
)

const DefaultHTTPTimeout = 10 * time.Second

// SnapshotPaths are tried in order when an http camera has no usable path.
var SnapshotPaths = []string{
	"/snapshot.cgi",
	"/snapshot.jpg",
	"/image/jpeg.cgi",
	"/cgi-bin/snapshot.cgi",
	"/stw-cgi/image.cgi",
}

// CaptureHTTPPath fetches p.Path once and validates the body as an image.
func (c *Capturer) CaptureHTTPPath(ctx context.Context, p models.CameraProfile) ([]byte, error) {
	if p.Path == "" {
		return nil, models.ConfigurationError(p.Name, errors.New("snapshot path is required"))
	}

	cl := client.New(p, c.opts.HTTPTimeout, c.logger)
	defer cl.Close()
	c.logger.Debug().
		Str("camera", p.Name).
		Str("url", client.Redact(client.URLFor(p, p.Path))).
		Msg("trying http snapshot")

	snap, err := cl.GetSnapshot(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if err := checkPayload(p.Name, "http", snap.Body); err != nil {
		return nil, errors.Wrapf(err, "content-type %q", snap.ContentType)
	}

	c.logger.Info().Str("camera", p.Name).Int("bytes", len(snap.Body)).Msg("http snapshot captured")
	return snap.Body, nil
}

// CaptureHTTPGeneric walks SnapshotPaths and returns the first image found.
// Any failure, non-2xx included, moves on to the next path.
func (c *Capturer) CaptureHTTPGeneric(ctx context.Context, p models.CameraProfile) ([]byte, error) {
	var errs error
	kind := models.KindTransport

	for _, path := range SnapshotPaths {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		img, err := c.CaptureHTTPPath(ctx, p.WithPath(path))
		if err == nil {
			return img, nil
		}
		c.logger.Debug().Err(err).Str("camera", p.Name).Str("path", path).Msg("snapshot path failed")
		if k := models.KindOf(err); k != "" {
			kind = k
		}
		errs = multierr.Append(errs, errors.Wrap(err, path))
	}

	return nil, &models.CaptureError{
		Kind:   kind,
		Camera: p.Name,
		Op:     "http",
		Err:    errors.Wrapf(errs, "all %d snapshot paths failed", len(SnapshotPaths)),
	}
}
