package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/warpcomdev/mjpegd/internal/broker"
	"github.com/warpcomdev/mjpegd/internal/frame"
	"github.com/warpcomdev/mjpegd/internal/logging"
	"github.com/warpcomdev/mjpegd/internal/registry"
)

type noopLogger struct{}

func (noopLogger) With(fields ...logging.Field) logging.Logger { return noopLogger{} }
func (noopLogger) Info(msg string, fields ...logging.Field)    {}
func (noopLogger) Warn(msg string, fields ...logging.Field)    {}
func (noopLogger) Error(msg string, fields ...logging.Field)   {}
func (noopLogger) Debug(msg string, fields ...logging.Field)   {}
func (noopLogger) Fatal(msg string, fields ...logging.Field)   {}

func TestStreamEndpointWritesOnePartThenStopsOnCancel(t *testing.T) {
	brk := broker.New(5*time.Second, time.Millisecond, 30)
	defer brk.Close()
	reg := registry.New()
	shutdown := make(chan struct{})

	e := &StreamEndpoint{
		Broker:     brk,
		Registry:   reg,
		DeviceName: "fake0",
		Logger:     noopLogger{},
		Shutdown:   shutdown,
	}

	req := httptest.NewRequest(http.MethodGet, "/stream?client_id=abcd1234&key=0", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	// Give Register/Subscribe a moment to happen before publishing.
	time.Sleep(10 * time.Millisecond)
	if reg.Size() != 1 {
		t.Fatal("client should be registered while the stream is open")
	}

	brk.Publish(frame.Encoded{Payload: []byte("frame-bytes"), Width: 8, Height: 8, CapturedAt: time.Now()})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeHTTP did not return after context cancellation")
	}

	if reg.Size() != 0 {
		t.Error("client should be deregistered once the stream ends")
	}

	ct := rec.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/x-mixed-replace;boundary=frame") {
		t.Fatalf("Content-Type = %q, want multipart/x-mixed-replace;boundary=frame", ct)
	}
	cookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "stream_client=0/abcd1234") {
		t.Fatalf("Set-Cookie = %q, want it to scope stream_client to key/client_id", cookie)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "--frame\r\n") {
		t.Fatal("body missing the multipart boundary line")
	}
	if !strings.Contains(body, "frame-bytes") {
		t.Fatal("body missing the published frame payload")
	}
}

func TestStreamEndpointCookieClientIDReusedWhenQueryOmitsIt(t *testing.T) {
	brk := broker.New(5*time.Second, time.Millisecond, 30)
	defer brk.Close()
	reg := registry.New()
	shutdown := make(chan struct{})
	e := &StreamEndpoint{Broker: brk, Registry: reg, Logger: noopLogger{}, Shutdown: shutdown}

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.AddCookie(&http.Cookie{Name: "stream_client", Value: "0/fromcookie"})
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	snap := reg.Snapshot()
	if len(snap) != 1 || snap[0].ClientID != "fromcookie" {
		t.Fatalf("registered session = %+v, want ClientID \"fromcookie\" reused from the cookie", snap)
	}

	cancel()
	<-done
}

func TestStreamEndpointRejectsPost(t *testing.T) {
	brk := broker.New(time.Second, time.Second, 1)
	defer brk.Close()
	e := &StreamEndpoint{Broker: brk, Registry: registry.New(), Logger: noopLogger{}, Shutdown: make(chan struct{})}
	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
