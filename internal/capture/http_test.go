package capture

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.viam.com/test"

	"snapcam/pkg/models"
)

func serverProfile(t *testing.T, srv *httptest.Server, typ models.CameraType) models.CameraProfile {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	test.That(t, err, test.ShouldBeNil)
	return models.CameraProfile{
		Name:     "cam",
		Host:     host,
		Port:     port,
		Username: "admin",
		Type:     typ,
		Auth:     models.AuthBasic,
	}
}

func TestCaptureHTTPPath(t *testing.T) {
	jpeg := fakeJPEG(512)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snap.jpg":
			if u, p, ok := r.BasicAuth(); !ok || u != "admin" || p != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(jpeg)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())

	t.Run("authenticated snapshot", func(t *testing.T) {
		p := serverProfile(t, srv, models.CameraTypeHTTP)
		p.Password = "pw"
		p.Path = "snap.jpg"
		img, err := c.CaptureHTTPPath(context.Background(), p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img, test.ShouldResemble, jpeg)
	})

	t.Run("html page is not an image", func(t *testing.T) {
		p := serverProfile(t, srv, models.CameraTypeHTTP).WithPath("/page")
		_, err := c.CaptureHTTPPath(context.Background(), p)
		test.That(t, errors.Is(err, models.ErrInvalidImage), test.ShouldBeTrue)
		test.That(t, models.KindOf(err), test.ShouldEqual, models.KindProtocol)
		test.That(t, err.Error(), test.ShouldContainSubstring, "text/html")
	})

	t.Run("missing credentials are rejected by the camera", func(t *testing.T) {
		p := serverProfile(t, srv, models.CameraTypeHTTP).WithPath("/snap.jpg")
		_, err := c.CaptureHTTPPath(context.Background(), p)
		test.That(t, models.KindOf(err), test.ShouldEqual, models.KindTransport)
	})

	t.Run("path is required", func(t *testing.T) {
		_, err := c.CaptureHTTPPath(context.Background(), serverProfile(t, srv, models.CameraTypeHTTP))
		test.That(t, models.KindOf(err), test.ShouldEqual, models.KindConfiguration)
	})
}

func TestCaptureHTTPPathAbsoluteURL(t *testing.T) {
	jpeg := fakeJPEG(600)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	defer srv.Close()

	// Host and port point nowhere; the path carries the real snapshot URL.
	p := models.CameraProfile{Name: "front", Host: "192.0.2.1", Port: "8081", Type: models.CameraTypeHTTP}
	p.Path = srv.URL + "/cgi/still.jpg"

	c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())
	img, err := c.CaptureHTTPPath(context.Background(), p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img, test.ShouldResemble, jpeg)
	test.That(t, gotPath, test.ShouldEqual, "/cgi/still.jpg")
}

func TestCaptureHTTPPathClosesConnections(t *testing.T) {
	jpeg := fakeJPEG(300)
	var mu sync.Mutex
	opened, closed := 0, 0
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		mu.Lock()
		defer mu.Unlock()
		switch state {
		case http.StateNew:
			opened++
		case http.StateClosed, http.StateHijacked:
			closed++
		}
	}
	srv.Start()
	defer srv.Close()

	c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())
	p := serverProfile(t, srv, models.CameraTypeHTTP).WithPath("/snap.jpg")
	for i := 0; i < 20; i++ {
		_, err := c.CaptureHTTPPath(context.Background(), p)
		test.That(t, err, test.ShouldBeNil)
	}

	counts := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		return opened, closed
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o, cl := counts(); o == cl {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	o, cl := counts()
	test.That(t, o, test.ShouldBeGreaterThan, 0)
	test.That(t, cl, test.ShouldEqual, o)
}

func TestCaptureHTTPGeneric(t *testing.T) {
	jpeg := fakeJPEG(800)

	t.Run("falls through to a later path", func(t *testing.T) {
		var mu sync.Mutex
		var seen []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.URL.Path)
			mu.Unlock()
			switch r.URL.Path {
			case "/snapshot.jpg":
				// 200 with a body that is not an image must not stop the walk.
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write(bytes.Repeat([]byte("<p>"), 50))
			case "/cgi-bin/snapshot.cgi":
				_, _ = w.Write(jpeg)
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer srv.Close()

		c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())
		img, err := c.CaptureHTTPGeneric(context.Background(), serverProfile(t, srv, models.CameraTypeHTTP))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img, test.ShouldResemble, jpeg)
		test.That(t, seen, test.ShouldResemble, []string{
			"/snapshot.cgi", "/snapshot.jpg", "/image/jpeg.cgi", "/cgi-bin/snapshot.cgi",
		})
	})

	t.Run("all paths failing is aggregated", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())
		_, err := c.CaptureHTTPGeneric(context.Background(), serverProfile(t, srv, models.CameraTypeHTTP))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, models.KindOf(err), test.ShouldEqual, models.KindTransport)
		test.That(t, err.Error(), test.ShouldContainSubstring, "all 5 snapshot paths failed")
		for _, path := range SnapshotPaths {
			test.That(t, err.Error(), test.ShouldContainSubstring, path)
		}
	})

	t.Run("cancelled context stops the walk", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := New(Options{HTTPTimeout: time.Second}, zerolog.Nop())
		_, err := c.CaptureHTTPGeneric(ctx, serverProfile(t, srv, models.CameraTypeHTTP))
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}
