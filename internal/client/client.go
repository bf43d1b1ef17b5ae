package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"snapcam/internal/auth"
	"snapcam/pkg/models"
)

// CameraClient talks HTTP to a single camera.
type CameraClient struct {
	HTTP    *resty.Client
	Profile models.CameraProfile
	BaseURL string

	transport http.RoundTripper
}

// New builds a client for p whose requests, body reads included, are bounded by timeout.
func New(p models.CameraProfile, timeout time.Duration, logger zerolog.Logger) *CameraClient {
	creds := auth.FromProfile(p)
	base := BaseURL(p)

	transport := auth.NewTransport(creds)
	r := resty.New()
	r.SetTransport(transport)
	r.SetBaseURL(base)
	r.SetTimeout(timeout)
	r.SetLogger(restyLogger{logger.With().Str("camera", p.Name).Logger()})
	r.SetHeader("User-Agent", "snapcam")

	// Basic auth only when both halves are present; digest is handled by the transport.
	if creds.UseBasic() {
		r.SetBasicAuth(creds.Username, creds.Password)
	}

	return &CameraClient{
		HTTP:    r,
		Profile: p,
		BaseURL: base,

		transport: transport,
	}
}

// Close releases any connection the client still holds.
func (c *CameraClient) Close() {
	auth.CloseIdle(c.transport)
}

// Scheme returns https for port 443 and http otherwise.
func Scheme(port string) string {
	if port == "443" {
		return "https"
	}
	return "http"
}

// BaseURL builds scheme://host[:port] for p. The port is left out for 80 and 443.
func BaseURL(p models.CameraProfile) string {
	host := p.Host
	if p.Port != "" && p.Port != "80" && p.Port != "443" {
		host = net.JoinHostPort(p.Host, p.Port)
	}
	return Scheme(p.Port) + "://" + host
}

// NormalizePath makes sure a non-empty relative path starts with a slash.
// Absolute URLs are returned untouched.
func NormalizePath(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// URLFor returns the absolute URL for path on p. Absolute paths are returned as is.
func URLFor(p models.CameraProfile, path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return BaseURL(p) + NormalizePath(path)
}

// Redact strips credentials from a URL so it can be logged.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// classify converts a transport-level failure into a CaptureError.
func classify(camera, op string, err error) error {
	if IsTimeout(err) {
		return models.TimeoutError(camera, op, err)
	}
	return models.TransportError(camera, op, err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// restyLogger routes resty's own warnings through zerolog.
type restyLogger struct {
	l zerolog.Logger
}

func (r restyLogger) Errorf(format string, v ...interface{}) { r.l.Error().Msgf(format, v...) }
func (r restyLogger) Warnf(format string, v ...interface{})  { r.l.Warn().Msgf(format, v...) }
func (r restyLogger) Debugf(format string, v ...interface{}) { r.l.Debug().Msgf(format, v...) }
