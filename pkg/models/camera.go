package models

import "strings"

// CameraType is the capture strategy a camera is declared with.
type CameraType string

const (
	CameraTypeRTSP    CameraType = "rtsp"
	CameraTypeMJPEG   CameraType = "mjpeg"
	CameraTypeHTTP    CameraType = "http"
	CameraTypeONVIF   CameraType = "onvif"
	CameraTypeUnknown CameraType = "unknown"
)

// ParseCameraType lower-cases s and maps anything unrecognized to CameraTypeUnknown.
func ParseCameraType(s string) CameraType {
	switch t := CameraType(strings.ToLower(strings.TrimSpace(s))); t {
	case CameraTypeRTSP, CameraTypeMJPEG, CameraTypeHTTP, CameraTypeONVIF:
		return t
	default:
		return CameraTypeUnknown
	}
}

// AuthScheme selects how credentials are presented to HTTP endpoints.
type AuthScheme string

const (
	AuthBasic  AuthScheme = "basic"
	AuthDigest AuthScheme = "digest"
)

// CameraProfile describes a single configured camera
type CameraProfile struct {
	Name     string     `json:"name"`
	Host     string     `json:"host"`
	Port     string     `json:"port"` // kept as configured, e.g. "554"
	Username string     `json:"username"`
	Password string     `json:"-"`
	Type     CameraType `json:"type"`
	Path     string     `json:"path,omitempty"`

	// RawType is the TYPE value before normalization, so unknown types can be reported.
	RawType   string     `json:"rawType,omitempty"`
	Auth      AuthScheme `json:"auth"`
	OnvifPort string     `json:"onvifPort,omitempty"`
}

// HasCredentials reports whether both username and password are set.
func (p CameraProfile) HasCredentials() bool {
	return p.Username != "" && p.Password != ""
}

// WithPath returns a copy of the profile pointing at a different path.
func (p CameraProfile) WithPath(path string) CameraProfile {
	p.Path = path
	return p
}
