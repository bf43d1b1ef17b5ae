package capture

import (
	"context"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/pkg/errors"

	"snapcam/internal/client"
	"snapcam/pkg/models"
)

// MediaInfo describes one media section of an RTSP session description.
type MediaInfo struct {
	Type    string   `json:"type"`
	Control string   `json:"control,omitempty"`
	Codecs  []string `json:"codecs"`
}

// StreamInfo is what an RTSP DESCRIBE reveals about a camera stream.
type StreamInfo struct {
	Camera string      `json:"camera"`
	URL    string      `json:"url"`
	Medias []MediaInfo `json:"medias"`
}

// HasVideo reports whether any media section is video.
func (s *StreamInfo) HasVideo() bool {
	for _, m := range s.Medias {
		if m.Type == "video" {
			return true
		}
	}
	return false
}

// ProbeRTSP issues a DESCRIBE against the camera's stream without pulling any
// frames. It is used to check reachability and credentials ahead of a capture.
func (c *Capturer) ProbeRTSP(ctx context.Context, p models.CameraProfile, timeout time.Duration) (*StreamInfo, error) {
	if timeout <= 0 {
		timeout = DefaultRTSPTimeout
	}
	streamURL := RTSPURL(p)
	u, err := base.ParseURL(streamURL)
	if err != nil {
		return nil, models.ConfigurationError(p.Name, errors.Wrap(err, "invalid rtsp url"))
	}

	rc := &gortsplib.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if err := rc.Start(u.Scheme, u.Host); err != nil {
		return nil, models.TransportError(p.Name, "probe", err)
	}

	// gortsplib calls are not context aware; closing the client unblocks them.
	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(rc.Close) }
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeClient()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		closeClient()
	}()

	desc, _, err := rc.Describe(u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.TimeoutError(p.Name, "probe", ctx.Err())
		}
		if client.IsTimeout(err) {
			return nil, models.TimeoutError(p.Name, "probe", err)
		}
		return nil, models.TransportError(p.Name, "probe", err)
	}

	info := &StreamInfo{Camera: p.Name, URL: redactURL(streamURL)}
	for _, m := range desc.Medias {
		mi := MediaInfo{Type: string(m.Type), Control: m.Control}
		for _, f := range m.Formats {
			mi.Codecs = append(mi.Codecs, f.Codec())
		}
		info.Medias = append(info.Medias, mi)
	}

	c.logger.Debug().Str("camera", p.Name).Int("medias", len(info.Medias)).Msg("rtsp probe complete")
	return info, nil
}
