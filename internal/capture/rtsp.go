package capture

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"snapcam/pkg/models"
)

const (
	DefaultRTSPTimeout = 15 * time.Second
	rtspStreamPath     = "/stream1"
	stderrTail         = 4 << 10
	killGrace          = 2 * time.Second
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RTSPURL builds the stream URL for p, embedding credentials only when both are set.
func RTSPURL(p models.CameraProfile) string {
	port := p.Port
	if port == "" {
		port = "554"
	}
	u := url.URL{
		Scheme: "rtsp",
		Host:   net.JoinHostPort(p.Host, port),
		Path:   rtspStreamPath,
	}
	if p.HasCredentials() {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}

func ffmpegArgs(streamURL, transport, output string) []string {
	if transport == "" {
		transport = "tcp"
	}
	return []string{
		"-y",
		"-rtsp_transport", transport,
		"-i", streamURL,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}
}

// CaptureRTSP pulls a single frame through ffmpeg. The ffmpeg process and its
// temporary output file never outlive the call.
func (c *Capturer) CaptureRTSP(ctx context.Context, p models.CameraProfile, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultRTSPTimeout
	}
	streamURL := RTSPURL(p)
	logger := c.logger.With().Str("camera", p.Name).Str("url", redactURL(streamURL)).Logger()

	tmp, err := os.CreateTemp(c.opts.TempDir, "snapcam-"+unsafeFileChars.ReplaceAllString(p.Name, "_")+"-*.jpg")
	if err != nil {
		return nil, errors.Wrap(err, "creating temporary frame file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("file", tmpPath).Msg("failed to remove temporary frame")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.opts.FFmpegPath, ffmpegArgs(streamURL, c.opts.RTSPTransport, tmpPath)...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	cmd.WaitDelay = killGrace

	logger.Debug().Dur("timeout", timeout).Msg("running ffmpeg")
	runErr := cmd.Run()

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, models.TimeoutError(p.Name, "rtsp",
				errors.Errorf("ffmpeg did not produce a frame within %s", timeout))
		}
		return nil, models.TransportError(p.Name, "rtsp", ctxErr)
	}
	if runErr != nil {
		logger.Error().Err(runErr).Str("stderr", stderr.String()).Msg("ffmpeg failed")
		return nil, models.ProtocolError(p.Name, "rtsp",
			errors.Wrapf(runErr, "ffmpeg: %s", lastLine(stderr.String())))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, models.ProtocolError(p.Name, "rtsp", errors.Wrap(err, "reading frame"))
	}
	if err := checkPayload(p.Name, "rtsp", data); err != nil {
		return nil, err
	}

	logger.Info().Int("bytes", len(data)).Msg("rtsp snapshot captured")
	return data, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
