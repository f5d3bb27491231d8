// Package supervisor owns the server lifecycle: it starts/stops the HTTP
// listener and the capture loop and wires graceful shutdown, using an
// explicit state machine guarded by a mutex instead of a bare running flag.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/warpcomdev/mjpegd/internal/broker"
	"github.com/warpcomdev/mjpegd/internal/config"
	"github.com/warpcomdev/mjpegd/internal/encoder"
	"github.com/warpcomdev/mjpegd/internal/httpapi"
	"github.com/warpcomdev/mjpegd/internal/logging"
	"github.com/warpcomdev/mjpegd/internal/metrics"
	"github.com/warpcomdev/mjpegd/internal/registry"
	"github.com/warpcomdev/mjpegd/internal/ringbuf"
	"github.com/warpcomdev/mjpegd/internal/source"
)

// recentFailures bounds how many transient-failure timestamps are kept for
// the fatal escalation log line.
const recentFailures = 10

// State is the Supervisor's lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

// ErrBindFailed reports that the HTTP listener could not bind its address.
var ErrBindFailed = errors.New("supervisor: bind failed")

// Supervisor owns the FrameSource, the FrameBroker, the HTTP listener and
// the capture loop.
type Supervisor struct {
	cfg      *config.Config
	logger   logging.Logger
	opener   source.Opener
	enumer   source.Enumerator

	mu    sync.Mutex
	state State

	src        source.FrameSource
	brk        *broker.Broker
	reg        *registry.Registry
	httpServer *http.Server
	listener   net.Listener
	shutdownCh chan struct{}
	cancelCap  context.CancelFunc
	captureWG  sync.WaitGroup
}

// New builds a Supervisor. opener and enumer are the external camera
// collaborators; enumer may be nil when cfg.DeviceIndex is already set.
func New(cfg *config.Config, logger logging.Logger, opener source.Opener, enumer source.Enumerator) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		opener: opener,
		enumer: enumer,
		state:  Stopped,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) resolveDeviceIndex(ctx context.Context) (int, error) {
	if s.cfg.DeviceIndex >= 0 {
		return s.cfg.DeviceIndex, nil
	}
	if s.enumer == nil {
		return 0, fmt.Errorf("%w: no device enumerator available to resolve %q", source.ErrDeviceUnavailable, s.cfg.DeviceName)
	}
	devices, err := s.enumer.Enumerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", source.ErrDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.DisplayName == s.cfg.DeviceName {
			return d.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no device named %q", source.ErrDeviceUnavailable, s.cfg.DeviceName)
}

// Start opens the FrameSource, binds the HTTP listener and spawns the
// capture loop. Idempotent: calling Start while already running logs a
// warning and returns nil.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Stopped {
		s.logger.Warn("start called while not stopped", logging.Int("state", int(s.state)))
		s.mu.Unlock()
		return nil
	}
	s.state = Starting
	s.mu.Unlock()
	metrics.SupervisorState.Set(float64(Starting))

	width, height := 640, 480
	if s.cfg.Output != nil {
		width, height = s.cfg.Output.Width, s.cfg.Output.Height
	}

	index, err := s.resolveDeviceIndex(ctx)
	if err != nil {
		s.backToStopped()
		return err
	}

	src, err := s.opener.Open(ctx, index, width, height, s.cfg.FPS)
	if err != nil {
		s.backToStopped()
		return fmt.Errorf("%w: %v", source.ErrDeviceUnavailable, err)
	}

	actualWidth, actualHeight, actualFPS := src.Actual()
	var target *encoder.Size
	if s.cfg.Output != nil && (s.cfg.Output.Width != actualWidth || s.cfg.Output.Height != actualHeight) {
		target = &encoder.Size{Width: s.cfg.Output.Width, Height: s.cfg.Output.Height}
	}
	enc := encoder.New(s.cfg.Quality, target)

	brk := broker.New(
		time.Duration(s.cfg.OnlineThreshold)*time.Millisecond,
		time.Duration(s.cfg.DedupWindowMillis)*time.Millisecond,
		actualFPS,
	)
	reg := registry.New()
	shutdownCh := make(chan struct{})

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		src.Close()
		s.backToStopped()
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/"+s.cfg.StreamName, &httpapi.StreamEndpoint{
		Broker:     brk,
		Registry:   reg,
		DeviceName: s.cfg.DeviceName,
		Logger:     s.logger,
		Shutdown:   shutdownCh,
	})
	stateEndpoint := &httpapi.StateEndpoint{Broker: brk, Registry: reg, Quality: s.cfg.Quality}
	mux.Handle("/state", http.TimeoutHandler(stateEndpoint, 5*time.Second, "timeout"))
	snapshotEndpoint := &httpapi.SnapshotEndpoint{Broker: brk}
	mux.Handle("/snapshot", http.TimeoutHandler(snapshotEndpoint, 5*time.Second, "timeout"))
	mux.Handle("/", &httpapi.IndexEndpoint{Host: s.cfg.Host, Port: s.cfg.Port, StreamName: s.cfg.StreamName})

	var handler http.Handler = mux
	if s.cfg.LogAccess {
		handler = s.accessLog(mux)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	captureCtx, cancelCap := context.WithCancel(context.Background())

	s.mu.Lock()
	s.src = src
	s.brk = brk
	s.reg = reg
	s.httpServer = httpServer
	s.listener = listener
	s.shutdownCh = shutdownCh
	s.cancelCap = cancelCap
	s.state = Running
	s.mu.Unlock()
	metrics.SupervisorState.Set(float64(Running))

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server exited", logging.Error(err))
		}
	}()

	s.captureWG.Add(1)
	go s.captureLoop(captureCtx, src, enc, brk)

	return nil
}

// accessLog wraps handler with a per-request log line, enabled by
// cfg.LogAccess. It never logs request bodies or headers: just enough to
// correlate a client with a route.
func (s *Supervisor) accessLog(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Info("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("remote", r.RemoteAddr),
			logging.Duration("duration", time.Since(start)))
	})
}

func (s *Supervisor) backToStopped() {
	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	metrics.SupervisorState.Set(float64(Stopped))
}

func (s *Supervisor) captureLoop(ctx context.Context, src source.FrameSource, enc *encoder.Encoder, brk *broker.Broker) {
	defer s.captureWG.Done()

	consecutiveErrors := 0
	failures := ringbuf.New(recentFailures)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := src.ReadFrame(ctx)
		if err != nil {
			var transient *source.TransientReadError
			if errors.As(err, &transient) {
				consecutiveErrors++
				now := time.Now()
				failures.Push(now)
				metrics.CaptureReadFailures.Inc()
				s.logger.Debug("transient read failure", logging.Error(err), logging.Int("consecutive", consecutiveErrors))
				if consecutiveErrors >= s.cfg.MaxConsecutiveErrors {
					metrics.CaptureFatal.Inc()
					fatal := backoff.Permanent(fmt.Errorf("%d consecutive transient read failures: %w", consecutiveErrors, err))
					s.logger.Error("escalating transient read failures to fatal",
						logging.Error(fatal),
						logging.Int("failuresInLastSecond", failures.CountSince(now.Add(-time.Second))),
						logging.Any("recentFailureTimestamps", failures.Items()))
					return
				}
				continue
			}
			// ctx cancellation or a permanent device error: stop quietly.
			return
		}
		consecutiveErrors = 0

		encoded, err := enc.Encode(raw)
		if err != nil {
			s.logger.Warn("encode failed", logging.Error(err))
			continue
		}
		brk.Publish(encoded)
	}
}

// Stop cancels the broker, signals all in-flight sessions to terminate,
// gracefully shuts down the HTTP listener, and releases the device.
// Calling Stop when not running is a no-op with a warning.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Running {
		s.logger.Warn("stop called while not running", logging.Int("state", int(s.state)))
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	src := s.src
	brk := s.brk
	httpServer := s.httpServer
	shutdownCh := s.shutdownCh
	cancelCap := s.cancelCap
	s.mu.Unlock()
	metrics.SupervisorState.Set(float64(Stopping))

	close(shutdownCh)
	cancelCap()
	brk.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", logging.Error(err))
	}

	s.captureWG.Wait()
	if err := src.Close(); err != nil {
		s.logger.Warn("error releasing device", logging.Error(err))
	}

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	metrics.SupervisorState.Set(float64(Stopped))
	return nil
}
