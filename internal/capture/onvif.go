package capture

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/use-go/onvif"
	"github.com/use-go/onvif/media"
	onvifxsd "github.com/use-go/onvif/xsd/onvif"

	"snapcam/internal/auth"
	"snapcam/pkg/models"
)

// SnapshotURIResolver asks a device where its snapshot endpoint lives.
type SnapshotURIResolver interface {
	SnapshotURI(ctx context.Context, p models.CameraProfile) (string, error)
}

// methodCaller is the part of onvif.Device used here.
type methodCaller interface {
	CallMethod(request interface{}) (*http.Response, error)
}

type getProfilesEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		GetProfilesResponse struct {
			Profiles []struct {
				Token string `xml:"token,attr"`
				Name  string `xml:"Name"`
			} `xml:"Profiles"`
		} `xml:"GetProfilesResponse"`
	} `xml:"Body"`
}

type getSnapshotURIEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		GetSnapshotURIResponse struct {
			MediaURI struct {
				URI string `xml:"Uri"`
			} `xml:"MediaUri"`
		} `xml:"GetSnapshotUriResponse"`
	} `xml:"Body"`
}

type onvifResolver struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func (r *onvifResolver) SnapshotURI(ctx context.Context, p models.CameraProfile) (string, error) {
	port := p.OnvifPort
	if port == "" {
		port = "80"
	}
	transport := auth.NewTransport(auth.Credentials{})
	defer auth.CloseIdle(transport)
	httpClient := &http.Client{
		Timeout:   r.timeout,
		Transport: transport,
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < httpClient.Timeout {
			httpClient.Timeout = left
		}
	}

	dev, err := onvif.NewDevice(onvif.DeviceParams{
		Xaddr:      net.JoinHostPort(p.Host, port),
		Username:   p.Username,
		Password:   p.Password,
		HttpClient: httpClient,
	})
	if err != nil {
		return "", models.TransportError(p.Name, "onvif", errors.Wrap(err, "connecting to onvif device"))
	}

	uri, err := snapshotURIFromDevice(dev, r.logger.With().Str("camera", p.Name).Logger())
	if err != nil {
		return "", models.ProtocolError(p.Name, "onvif", err)
	}
	return uri, nil
}

// snapshotURIFromDevice returns the snapshot URI of the first media profile
// that reports one.
func snapshotURIFromDevice(dev methodCaller, logger zerolog.Logger) (string, error) {
	var profiles getProfilesEnvelope
	if err := callAndDecode(dev, media.GetProfiles{}, &profiles); err != nil {
		return "", errors.Wrap(err, "GetProfiles")
	}
	if len(profiles.Body.GetProfilesResponse.Profiles) == 0 {
		return "", errors.New("device reported no media profiles")
	}

	var lastErr error
	for _, profile := range profiles.Body.GetProfilesResponse.Profiles {
		var resp getSnapshotURIEnvelope
		req := media.GetSnapshotUri{ProfileToken: onvifxsd.ReferenceToken(profile.Token)}
		if err := callAndDecode(dev, req, &resp); err != nil {
			lastErr = errors.Wrapf(err, "GetSnapshotUri for profile %s", profile.Token)
			logger.Debug().Err(err).Str("profile", profile.Token).Msg("no snapshot uri")
			continue
		}
		if uri := strings.TrimSpace(resp.Body.GetSnapshotURIResponse.MediaURI.URI); uri != "" {
			logger.Debug().Str("profile", profile.Token).Str("uri", uri).Msg("resolved snapshot uri")
			return uri, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", errors.New("no media profile has a snapshot uri")
}

func callAndDecode(dev methodCaller, req interface{}, out interface{}) error {
	resp, err := dev.CallMethod(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return xml.NewDecoder(bytes.NewReader(body)).Decode(out)
}

// CaptureONVIF captures from an onvif camera. A configured path is fetched
// directly. Otherwise the device is asked for its snapshot URI when lookups
// are enabled, and the generic snapshot paths are tried last.
func (c *Capturer) CaptureONVIF(ctx context.Context, p models.CameraProfile) ([]byte, error) {
	if p.Path != "" {
		return c.CaptureHTTPPath(ctx, p)
	}

	if c.resolver != nil {
		uri, err := c.resolver.SnapshotURI(ctx, p)
		if err == nil {
			img, err := c.CaptureHTTPPath(ctx, p.WithPath(uri))
			if err == nil {
				return img, nil
			}
			c.logger.Warn().Err(err).Str("camera", p.Name).Msg("onvif snapshot uri failed, trying generic paths")
		} else {
			c.logger.Warn().Err(err).Str("camera", p.Name).Msg("onvif lookup failed, trying generic paths")
		}
	}

	return c.CaptureHTTPGeneric(ctx, p)
}
