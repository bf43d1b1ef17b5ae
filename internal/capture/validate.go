package capture

import (
	"bytes"

	"github.com/pkg/errors"

	"snapcam/pkg/models"
)

const (
	minImageLen = 10

	// minPayloadSize is the smallest body accepted from a snapshot endpoint or ffmpeg.
	minPayloadSize = 100
)

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// IsValidImage reports whether b starts with a JPEG or PNG signature.
func IsValidImage(b []byte) bool {
	return ImageFormat(b) != ""
}

// ImageFormat returns "jpeg", "png" or "" for anything else.
func ImageFormat(b []byte) string {
	if len(b) < minImageLen {
		return ""
	}
	switch {
	case bytes.HasPrefix(b, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(b, pngMagic):
		return "png"
	}
	return ""
}

// ContentType maps an image payload to its MIME type.
func ContentType(b []byte) string {
	if f := ImageFormat(b); f != "" {
		return "image/" + f
	}
	return "application/octet-stream"
}

func checkPayload(camera, op string, b []byte) error {
	if len(b) < minPayloadSize {
		return models.ProtocolError(camera, op,
			errors.Wrapf(models.ErrInsufficientData, "got %d bytes", len(b)))
	}
	if !IsValidImage(b) {
		return models.ProtocolError(camera, op, models.ErrInvalidImage)
	}
	return nil
}
