// Package httpapi implements the four HTTP surfaces the daemon exposes:
// the MJPEG stream, the JSON state snapshot, the single-shot snapshot, and
// the static index page.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warpcomdev/mjpegd/internal/broker"
	"github.com/warpcomdev/mjpegd/internal/logging"
	"github.com/warpcomdev/mjpegd/internal/registry"
)

// StreamEndpoint serves GET /{name}.
type StreamEndpoint struct {
	Broker     *broker.Broker
	Registry   *registry.Registry
	DeviceName string
	Logger     logging.Logger
	// Shutdown is closed by the supervisor to force every in-flight
	// session to terminate within one frame interval.
	Shutdown <-chan struct{}
}

func (e *StreamEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		key = "0"
	}

	// The client_id query param takes precedence; without it, the id from a
	// stream_client cookie is reused, and a fresh id is only minted when
	// neither is present.
	clientID := q.Get("client_id")
	if clientID == "" {
		if cookie, err := r.Cookie("stream_client"); err == nil {
			if _, id, ok := strings.Cut(cookie.Value, "/"); ok && id != "" {
				clientID = id
			}
		}
	}
	if clientID == "" {
		clientID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	advanceHeaders := q.Get("advance_headers") == "1"

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-e.Shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+boundary)
	w.Header().Set("Set-Cookie", "stream_client="+key+"/"+clientID+"; Path=/; Max-Age=30")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	e.Registry.Register(registry.Session{
		ClientID:       clientID,
		Key:            key,
		AdvanceHeaders: advanceHeaders,
		OpenedAt:       time.Now(),
	})
	defer e.Registry.Deregister(clientID)

	sub := e.Broker.Subscribe()
	defer sub.Close()

	for {
		encoded, err := sub.Next(ctx)
		if err != nil {
			return
		}

		state := e.Broker.Snapshot()
		fields := partHeaders(state.Online, encoded.Width, encoded.Height, e.DeviceName, encoded.TimestampMillis(), len(encoded.Payload), advanceHeaders)
		if err := writePart(w, fields, encoded.Payload); err != nil {
			if !isPeerClosed(err) {
				e.Logger.Warn("stream write failed", logging.Error(err), logging.String("client_id", clientID))
			}
			return
		}
		if canFlush {
			flusher.Flush()
		}
		e.Registry.SetFPS(clientID, state.PerSecondFPS)
	}
}
