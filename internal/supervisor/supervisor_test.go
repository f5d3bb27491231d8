package supervisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/warpcomdev/mjpegd/internal/config"
	"github.com/warpcomdev/mjpegd/internal/logging"
	"github.com/warpcomdev/mjpegd/internal/source"
)

type noopLogger struct{}

func (noopLogger) With(fields ...logging.Field) logging.Logger { return noopLogger{} }
func (noopLogger) Info(msg string, fields ...logging.Field)    {}
func (noopLogger) Warn(msg string, fields ...logging.Field)    {}
func (noopLogger) Error(msg string, fields ...logging.Field)   {}
func (noopLogger) Debug(msg string, fields ...logging.Field)   {}
func (noopLogger) Fatal(msg string, fields ...logging.Field)   {}

func testConfig() *config.Config {
	return &config.Config{
		StreamName:           "stream",
		Output:               &config.Size{Width: 8, Height: 8},
		Quality:              80,
		FPS:                  1000,
		Host:                 "127.0.0.1",
		Port:                 0,
		DeviceIndex:          0,
		LogAccess:            false,
		OnlineThreshold:      5000,
		DedupWindowMillis:    1000,
		MaxConsecutiveErrors: 5,
	}
}

func newTestSupervisor() *Supervisor {
	opener := source.FakeOpener{ChangeEvery: 1}
	return New(testConfig(), noopLogger{}, opener, opener)
}

func TestStartStopLifecycle(t *testing.T) {
	sup := newTestSupervisor()
	ctx := context.Background()

	if sup.State() != Stopped {
		t.Fatalf("initial state = %v, want Stopped", sup.State())
	}
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sup.State() != Running {
		t.Fatalf("state after Start = %v, want Running", sup.State())
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sup.State() != Stopped {
		t.Fatalf("state after Stop = %v, want Stopped", sup.State())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sup := newTestSupervisor()
	ctx := context.Background()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer sup.Stop(ctx)

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op, not an error: %v", err)
	}
	if sup.State() != Running {
		t.Fatalf("state after duplicate Start = %v, want Running", sup.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sup := newTestSupervisor()
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on a never-started supervisor should be a no-op: %v", err)
	}
	if sup.State() != Stopped {
		t.Fatalf("state = %v, want Stopped", sup.State())
	}
}

func (s *Supervisor) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func TestEndToEndSnapshotAndState(t *testing.T) {
	sup := newTestSupervisor()
	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sup.Stop(stopCtx)
	}()

	addr := sup.addr()
	if addr == "" {
		t.Fatal("listener address unavailable after Start")
	}

	// Allow the capture loop time to publish at least one frame.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/snapshot", addr))
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/snapshot status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Fatal("/snapshot returned an empty body")
	}

	stateResp, err := http.Get(fmt.Sprintf("http://%s/state", addr))
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer stateResp.Body.Close()
	if stateResp.StatusCode != http.StatusOK {
		t.Fatalf("/state status = %d, want 200", stateResp.StatusCode)
	}
	stateBody, _ := io.ReadAll(stateResp.Body)
	if !strings.Contains(string(stateBody), `"ok":"true"`) {
		t.Fatalf("/state body = %s, want ok:true", stateBody)
	}
}

func TestEndToEndStreamDeliversMultipartFrames(t *testing.T) {
	sup := newTestSupervisor()
	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sup.Stop(stopCtx)
	}()

	addr := sup.addr()
	reqCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://%s/stream", addr), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/x-mixed-replace;boundary=frame") {
		t.Fatalf("Content-Type = %q, want multipart/x-mixed-replace;boundary=frame", ct)
	}

	buf := make([]byte, 1024)
	n, err := resp.Body.Read(buf)
	if err != nil && n == 0 {
		t.Fatalf("reading stream body: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "--frame") {
		t.Fatalf("stream body does not start with the multipart boundary: %q", buf[:n])
	}
}

func TestStartFailsWhenPortAlreadyBound(t *testing.T) {
	first := newTestSupervisor()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		first.Stop(ctx)
	}()

	busyCfg := testConfig()
	busyCfg.Port = mustPort(first.addr())
	opener := source.FakeOpener{ChangeEvery: 1}
	second := New(busyCfg, noopLogger{}, opener, opener)

	err := second.Start(context.Background())
	if err == nil {
		t.Fatal("expected a bind failure when the port is already in use")
	}
	if second.State() != Stopped {
		t.Fatalf("state after failed Start = %v, want Stopped", second.State())
	}
}

func mustPort(addr string) int {
	var port int
	parts := strings.Split(addr, ":")
	fmt.Sscanf(parts[len(parts)-1], "%d", &port)
	return port
}
