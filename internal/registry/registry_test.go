package registry

import (
	"errors"
	"testing"

	"go.viam.com/test"

	"snapcam/pkg/models"
)

func TestDiscover(t *testing.T) {
	t.Run("kitchen scenario", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_KITCHEN_IP":   "10.0.0.5",
			"CAMERA_KITCHEN_TYPE": "mjpeg",
		})
		test.That(t, cams, test.ShouldHaveLength, 1)
		p, ok := cams["kitchen"]
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.Name, test.ShouldEqual, "kitchen")
		test.That(t, p.Host, test.ShouldEqual, "10.0.0.5")
		test.That(t, p.Port, test.ShouldEqual, "554")
		test.That(t, p.Username, test.ShouldEqual, "admin")
		test.That(t, p.Password, test.ShouldEqual, "")
		test.That(t, p.Type, test.ShouldEqual, models.CameraTypeMJPEG)
		test.That(t, p.Auth, test.ShouldEqual, models.AuthBasic)
	})

	t.Run("profiles without host are dropped", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_GARAGE_PORT":     "8080",
			"CAMERA_GARAGE_USERNAME": "root",
			"CAMERA_DOOR_IP":         "10.0.0.9",
			"CAMERA_EMPTY_IP":        "",
		})
		test.That(t, cams, test.ShouldHaveLength, 1)
		_, ok := cams["door"]
		test.That(t, ok, test.ShouldBeTrue)
		for _, p := range cams {
			test.That(t, p.Host, test.ShouldNotBeEmpty)
		}
	})

	t.Run("legacy keys populate default", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_IP":       "192.168.0.4",
			"CAMERA_PORT":     "8554",
			"CAMERA_PASSWORD": "secret",
			"CAMERA_TYPE":     "HTTP",
		})
		p, ok := cams[DefaultName]
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.Host, test.ShouldEqual, "192.168.0.4")
		test.That(t, p.Port, test.ShouldEqual, "8554")
		test.That(t, p.Username, test.ShouldEqual, "admin")
		test.That(t, p.Password, test.ShouldEqual, "secret")
		test.That(t, p.Type, test.ShouldEqual, models.CameraTypeHTTP)
		test.That(t, p.HasCredentials(), test.ShouldBeTrue)
	})

	t.Run("name is case insensitive and type lower-cased", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_Porch_IP":   "10.1.1.1",
			"CAMERA_PORCH_TYPE": "ONVIF",
			"CAMERA_PORCH_PATH": "onvif/snapshot",
		})
		p, ok := cams["porch"]
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.Type, test.ShouldEqual, models.CameraTypeONVIF)
		test.That(t, p.Path, test.ShouldEqual, "onvif/snapshot")
	})

	t.Run("unknown type is kept as unknown", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_ATTIC_IP":   "10.1.1.2",
			"CAMERA_ATTIC_TYPE": "webrtc",
		})
		p := cams["attic"]
		test.That(t, p.Type, test.ShouldEqual, models.CameraTypeUnknown)
		test.That(t, p.RawType, test.ShouldEqual, "webrtc")
	})

	t.Run("digest auth and onvif port", func(t *testing.T) {
		cams := Discover(map[string]string{
			"CAMERA_LOBBY_IP":         "10.1.1.3",
			"CAMERA_LOBBY_AUTH":       "Digest",
			"CAMERA_LOBBY_ONVIF_PORT": "8000",
		})
		p := cams["lobby"]
		test.That(t, p.Auth, test.ShouldEqual, models.AuthDigest)
		test.That(t, p.OnvifPort, test.ShouldEqual, "8000")
	})

	t.Run("unrelated keys are ignored", func(t *testing.T) {
		cams := Discover(map[string]string{
			"PATH":            "/usr/bin",
			"CAMERAMAN_X_IP":  "10.0.0.1",
			"CAMERA_":         "x",
			"CAMERA_USERNAME": "root",
		})
		test.That(t, cams, test.ShouldBeEmpty)
	})

	t.Run("prefix is case sensitive", func(t *testing.T) {
		cams := Discover(map[string]string{
			"camera_ip":         "10.0.0.7",
			"Camera_Kitchen_IP": "10.0.0.8",
			"CAMERA_DOOR_IP":    "10.0.0.9",
		})
		test.That(t, cams, test.ShouldHaveLength, 1)
		test.That(t, cams["door"].Host, test.ShouldEqual, "10.0.0.9")
	})
}

func TestRegistryResolve(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		_, err := New(nil).Resolve("kitchen")
		test.That(t, errors.Is(err, models.ErrNoCameras), test.ShouldBeTrue)
		test.That(t, models.KindOf(err), test.ShouldEqual, models.KindConfiguration)
	})

	t.Run("unknown name falls back to default", func(t *testing.T) {
		r := FromConfig(map[string]string{
			"CAMERA_IP":         "10.0.0.1",
			"CAMERA_KITCHEN_IP": "10.0.0.2",
		})
		p, err := r.Resolve("garage")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.Name, test.ShouldEqual, DefaultName)

		p, err = r.Resolve("")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.Name, test.ShouldEqual, DefaultName)

		p, err = r.Resolve("KITCHEN")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.Name, test.ShouldEqual, "kitchen")
	})

	t.Run("unknown name without default lists cameras", func(t *testing.T) {
		r := FromConfig(map[string]string{
			"CAMERA_KITCHEN_IP": "10.0.0.2",
			"CAMERA_DOOR_IP":    "10.0.0.3",
		})
		_, err := r.Resolve("garage")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, models.ErrCameraNotFound), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "door, kitchen")
		test.That(t, r.Names(), test.ShouldResemble, []string{"door", "kitchen"})
	})
}
