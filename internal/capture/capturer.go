// Package capture pulls single still images out of IP cameras.
//
// Each camera type has its own strategy: ffmpeg for RTSP, a multipart frame
// parser for MJPEG, plain GETs for snapshot endpoints and an ONVIF lookup that
// falls back to the HTTP probes. Strategies return ([]byte, error); the
// Selector turns those into models.CaptureResult values and never lets an
// error or panic escape.
package capture

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"snapcam/pkg/models"
)

// Options tunes the strategies. Zero values fall back to the defaults below.
type Options struct {
	FFmpegPath    string
	RTSPTransport string
	TempDir       string
	HTTPTimeout   time.Duration
	MJPEGTimeout  time.Duration
	// ONVIFLookup enables the GetSnapshotUri step for onvif cameras without a path.
	ONVIFLookup bool
}

func (o Options) withDefaults() Options {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.RTSPTransport == "" {
		o.RTSPTransport = "tcp"
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.MJPEGTimeout <= 0 {
		o.MJPEGTimeout = DefaultMJPEGTimeout
	}
	return o
}

// Strategies is the set of per-type capture operations the Selector routes to.
type Strategies interface {
	CaptureRTSP(ctx context.Context, p models.CameraProfile, timeout time.Duration) ([]byte, error)
	CaptureMJPEG(ctx context.Context, p models.CameraProfile) ([]byte, error)
	CaptureHTTPGeneric(ctx context.Context, p models.CameraProfile) ([]byte, error)
	CaptureONVIF(ctx context.Context, p models.CameraProfile) ([]byte, error)
}

// Capturer implements every strategy.
type Capturer struct {
	opts     Options
	logger   zerolog.Logger
	resolver SnapshotURIResolver
}

// New returns a Capturer. When opts.ONVIFLookup is set, onvif cameras without a
// configured path ask the device for its snapshot URI first.
func New(opts Options, logger zerolog.Logger) *Capturer {
	opts = opts.withDefaults()
	c := &Capturer{
		opts:   opts,
		logger: logger.With().Str("component", "capture").Logger(),
	}
	if opts.ONVIFLookup {
		c.resolver = &onvifResolver{timeout: opts.HTTPTimeout, logger: c.logger}
	}
	return c
}

// WithResolver replaces the ONVIF snapshot URI resolver; nil disables the lookup.
func (c *Capturer) WithResolver(r SnapshotURIResolver) *Capturer {
	c.resolver = r
	return c
}

var _ Strategies = (*Capturer)(nil)
