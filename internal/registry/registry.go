// Package registry turns the flat CAMERA_* configuration namespace into camera profiles.
package registry

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"snapcam/pkg/models"
)

const (
	keyPrefix = "CAMERA_"

	// DefaultName is the profile built from the legacy single-camera keys.
	DefaultName = "default"

	DefaultPort      = "554"
	DefaultUsername  = "admin"
	DefaultOnvifPort = "80"
)

var legacyFields = []string{"IP", "PORT", "USERNAME", "PASSWORD", "TYPE", "PATH", "AUTH", "ONVIF_PORT"}

func newProfile(name string) models.CameraProfile {
	return models.CameraProfile{
		Name:      name,
		Port:      DefaultPort,
		Username:  DefaultUsername,
		Type:      models.CameraTypeRTSP,
		RawType:   string(models.CameraTypeRTSP),
		Auth:      models.AuthBasic,
		OnvifPort: DefaultOnvifPort,
	}
}

// applyField sets one FIELD on p. Unrecognized fields are ignored.
func applyField(p *models.CameraProfile, field, value string) {
	switch strings.ToUpper(field) {
	case "IP":
		p.Host = strings.TrimSpace(value)
	case "PORT":
		p.Port = strings.TrimSpace(value)
	case "USERNAME":
		p.Username = value
	case "PASSWORD":
		p.Password = value
	case "PATH":
		p.Path = value
	case "TYPE":
		p.RawType = strings.ToLower(strings.TrimSpace(value))
		p.Type = models.ParseCameraType(value)
	case "AUTH":
		if strings.EqualFold(strings.TrimSpace(value), string(models.AuthDigest)) {
			p.Auth = models.AuthDigest
		} else {
			p.Auth = models.AuthBasic
		}
	case "ONVIF_PORT":
		p.OnvifPort = strings.TrimSpace(value)
	}
}

// Discover builds camera profiles from raw CAMERA_<NAME>_<FIELD> keys.
// Profiles without a host are dropped.
func Discover(raw map[string]string) map[string]models.CameraProfile {
	cameras := make(map[string]*models.CameraProfile)

	if ip := raw[keyPrefix+"IP"]; ip != "" {
		p := newProfile(DefaultName)
		for _, field := range legacyFields {
			if v, ok := raw[keyPrefix+field]; ok {
				applyField(&p, field, v)
			}
		}
		cameras[DefaultName] = &p
	}

	// Sorted so that repeated keys differing only by case resolve deterministically.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		// Matched exactly, like the legacy keys.
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		rest := key[len(keyPrefix):]
		name, field, ok := strings.Cut(rest, "_")
		if !ok || name == "" || field == "" {
			continue
		}
		name = strings.ToLower(name)

		p, exists := cameras[name]
		if !exists {
			np := newProfile(name)
			p = &np
			cameras[name] = p
		}
		applyField(p, field, raw[key])
	}

	out := make(map[string]models.CameraProfile, len(cameras))
	for name, p := range cameras {
		if p.Host == "" {
			continue
		}
		out[name] = *p
	}
	return out
}

// Registry is an immutable set of discovered camera profiles.
type Registry struct {
	cameras map[string]models.CameraProfile
	names   []string
}

// New wraps an already discovered profile map.
func New(cameras map[string]models.CameraProfile) *Registry {
	copied := make(map[string]models.CameraProfile, len(cameras))
	names := make([]string, 0, len(cameras))
	for name, p := range cameras {
		copied[name] = p
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{cameras: copied, names: names}
}

// FromConfig discovers profiles from raw and wraps them.
func FromConfig(raw map[string]string) *Registry {
	return New(Discover(raw))
}

// Len returns the number of cameras.
func (r *Registry) Len() int { return len(r.names) }

// Names returns camera names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Get returns the named profile.
func (r *Registry) Get(name string) (models.CameraProfile, bool) {
	p, ok := r.cameras[strings.ToLower(name)]
	return p, ok
}

// Profiles returns a copy of every profile keyed by name.
func (r *Registry) Profiles() map[string]models.CameraProfile {
	out := make(map[string]models.CameraProfile, len(r.cameras))
	for k, v := range r.cameras {
		out[k] = v
	}
	return out
}

// Resolve looks up name, substituting the default camera when name is empty
// or unknown and a default exists.
func (r *Registry) Resolve(name string) (models.CameraProfile, error) {
	if r.Len() == 0 {
		return models.CameraProfile{}, models.ConfigurationError(name, models.ErrNoCameras)
	}
	if name != "" {
		if p, ok := r.Get(name); ok {
			return p, nil
		}
	}
	if p, ok := r.cameras[DefaultName]; ok {
		return p, nil
	}
	if name == "" {
		name = DefaultName
	}
	return models.CameraProfile{}, models.ConfigurationError(name,
		errors.Wrapf(models.ErrCameraNotFound, "available: %s", strings.Join(r.names, ", ")))
}
