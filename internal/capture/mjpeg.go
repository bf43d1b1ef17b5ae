package capture

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"snapcam/internal/client"
	"snapcam/pkg/models"
)

const (
	DefaultMJPEGPath    = "/video/mjpg/1"
	DefaultMJPEGTimeout = 15 * time.Second

	// MaxFrameBuffer bounds the bytes held while waiting for an end-of-image marker.
	MaxFrameBuffer = 5 << 20
	minFrameSize   = 1000
	readChunkSize  = 32 << 10
)

var (
	soiMarker = []byte{0xFF, 0xD8}
	eoiMarker = []byte{0xFF, 0xD9}
)

// ParseState is the state of a FrameParser.
type ParseState int

const (
	Searching ParseState = iota
	Accumulating
)

func (s ParseState) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "searching"
}

// FrameParser extracts the first complete JPEG from a chunked multipart body.
type FrameParser struct {
	state ParseState
	buf   []byte
	// scanned is how far into buf the end marker search has already looked.
	scanned int
	// pending holds a trailing 0xFF seen while searching, in case the start
	// marker is split across chunks.
	pending bool

	maxBuffer int
	minFrame  int

	overflows int
	rejected  int
}

// NewFrameParser returns a parser with the default 5 MiB buffer bound.
func NewFrameParser() *FrameParser {
	return &FrameParser{maxBuffer: MaxFrameBuffer, minFrame: minFrameSize}
}

func (fp *FrameParser) State() ParseState { return fp.state }
func (fp *FrameParser) Buffered() int     { return len(fp.buf) }
func (fp *FrameParser) Overflows() int    { return fp.overflows }
func (fp *FrameParser) Rejected() int     { return fp.rejected }

func (fp *FrameParser) reset() {
	fp.state = Searching
	fp.buf = fp.buf[:0]
	fp.scanned = 0
}

// Feed consumes one chunk and returns a frame once one is accepted. A frame
// is accepted when it validates as an image and is larger than 1000 bytes.
func (fp *FrameParser) Feed(chunk []byte) ([]byte, bool) {
	data := chunk
	for len(data) > 0 {
		if fp.state == Searching {
			if fp.pending {
				fp.pending = false
				if data[0] == soiMarker[1] {
					fp.buf = append(fp.buf[:0], soiMarker[0])
					fp.state = Accumulating
					fp.scanned = 0
				}
			}
			if fp.state == Searching {
				i := bytes.Index(data, soiMarker)
				if i < 0 {
					fp.pending = data[len(data)-1] == soiMarker[0]
					return nil, false
				}
				fp.buf = append(fp.buf[:0], data[i:]...)
				fp.state = Accumulating
				fp.scanned = 0
				data = nil
			}
		}
		if data != nil {
			fp.buf = append(fp.buf, data...)
			data = nil
		}

		// The end marker is searched for after the two start-marker bytes.
		from := fp.scanned
		if from < len(soiMarker) {
			from = len(soiMarker)
		}
		j := -1
		if from < len(fp.buf) {
			j = bytes.Index(fp.buf[from:], eoiMarker)
		}
		if j < 0 {
			// Step back one byte so a marker split across chunks is still found.
			fp.scanned = len(fp.buf) - 1
			if len(fp.buf) > fp.maxBuffer {
				fp.overflows++
				fp.reset()
			}
			return nil, false
		}

		end := from + j + len(eoiMarker)
		frame := fp.buf[:end]
		if len(frame) > fp.minFrame && IsValidImage(frame) {
			out := make([]byte, len(frame))
			copy(out, frame)
			fp.reset()
			return out, true
		}

		fp.rejected++
		data = append([]byte(nil), fp.buf[end:]...)
		fp.reset()
	}
	return nil, false
}

func isMultipartReplace(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "multipart/x-mixed-replace")
}

// CaptureMJPEG opens the camera's MJPEG stream and returns its first good
// frame. Endpoints answering with a single image are accepted too.
func (c *Capturer) CaptureMJPEG(ctx context.Context, p models.CameraProfile) ([]byte, error) {
	path := p.Path
	if path == "" {
		path = DefaultMJPEGPath
	}
	logger := c.logger.With().Str("camera", p.Name).Logger()

	cl := client.New(p, c.opts.MJPEGTimeout, c.logger)
	defer cl.Close()
	logger.Debug().Str("url", client.Redact(client.URLFor(p, path))).Msg("opening mjpeg stream")

	stream, err := cl.OpenStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Body.Close()

	if !isMultipartReplace(stream.ContentType) {
		body, err := io.ReadAll(io.LimitReader(stream.Body, MaxFrameBuffer))
		if err != nil {
			return nil, cl.ReadError("mjpeg", err)
		}
		// A single image here must be strictly larger than the snapshot minimum.
		if len(body) <= minPayloadSize {
			return nil, models.ProtocolError(p.Name, "mjpeg",
				errors.Wrapf(models.ErrInsufficientData, "got %d bytes", len(body)))
		}
		if err := checkPayload(p.Name, "mjpeg", body); err != nil {
			return nil, err
		}
		logger.Info().Int("bytes", len(body)).Msg("direct image captured from mjpeg url")
		return body, nil
	}

	parser := NewFrameParser()
	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := stream.Body.Read(chunk)
		if n > 0 {
			if frame, ok := parser.Feed(chunk[:n]); ok {
				logger.Info().Int("bytes", len(frame)).Int("rejected", parser.Rejected()).Msg("mjpeg frame captured")
				return frame, nil
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return nil, models.ProtocolError(p.Name, "mjpeg",
				errors.Wrapf(models.ErrNoFrame, "%d candidates rejected, %d overflows", parser.Rejected(), parser.Overflows()))
		}
		return nil, cl.ReadError("mjpeg", readErr)
	}
}
