// Package broker implements the FrameBroker: the single concurrency hub
// that holds the latest encoded frame, deduplicates repeats, and fans it
// out to an arbitrary number of subscribers without ever blocking the
// producer on a slow consumer.
//
// This is a single-slot broadcaster with overwrite-on-publish semantics:
// exactly one slot, not a ring, since subscribers must only ever see the
// latest frame, never a backlog.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/mjpegd/internal/frame"
)

// ErrClosed is returned by Next once the broker has been closed.
var ErrClosed = errors.New("broker: closed")

var (
	publishedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpegd_broker_published_frames_total",
		Help: "Distinct frames published to the broker",
	})
	dedupedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpegd_broker_deduped_frames_total",
		Help: "Frames dropped by the broker because they repeated the previous publish within the dedup window",
	})
	subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjpegd_broker_subscribers",
		Help: "Live broker subscriptions",
	})
)

// State is a point-in-time, internally-consistent snapshot of the broker,
// the shape the StateEndpoint reads from.
type State struct {
	Sequence      uint64
	Online        bool
	Width, Height int
	DesiredFPS    int
	PerSecondFPS  int
}

// Broker holds the latest encoded frame and notifies subscribers.
type Broker struct {
	onlineThreshold time.Duration
	dedupWindow     time.Duration
	desiredFPS      int

	mu             sync.Mutex
	latest         frame.Encoded
	haveLatest     bool
	seq            uint64
	lastDistinctAt time.Time
	frameCounter   int
	perSecondFPS   int
	windowStart    time.Time
	closed         bool
	verChan        chan struct{}
}

// New builds a Broker. onlineThreshold is the window within which a distinct
// publish must have landed for the source to be considered online (default
// 5s). dedupWindow is the repeat-suppression window (default 1s). desiredFPS
// is reported verbatim in State for the StateEndpoint; it does not affect
// behavior.
func New(onlineThreshold, dedupWindow time.Duration, desiredFPS int) *Broker {
	return &Broker{
		onlineThreshold: onlineThreshold,
		dedupWindow:     dedupWindow,
		desiredFPS:      desiredFPS,
		verChan:         make(chan struct{}),
	}
}

// Publish is called only by the capture loop. It applies the dedup rule,
// then updates the latest slot, sequence number and FPS accounting, and
// wakes any waiting subscribers. Publish never blocks on a subscriber: the
// critical section only ever touches in-process broker state.
func (b *Broker) Publish(encoded frame.Encoded) {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if b.haveLatest && encoded.SameBytes(b.latest) && now.Sub(b.lastDistinctAt) < b.dedupWindow {
		dedupedFrames.Inc()
		return
	}

	b.latest = encoded
	b.haveLatest = true
	b.seq++
	b.lastDistinctAt = now
	publishedFrames.Inc()

	if b.windowStart.IsZero() {
		b.windowStart = now
	}
	if now.Sub(b.windowStart) >= time.Second {
		b.perSecondFPS = b.frameCounter
		b.frameCounter = 0
		b.windowStart = now
	}
	b.frameCounter++

	close(b.verChan)
	b.verChan = make(chan struct{})
}

// Snapshot returns the broker's current state. Safe to call concurrently
// with Publish and any Subscription.
func (b *Broker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	online := b.haveLatest && time.Since(b.lastDistinctAt) < b.onlineThreshold
	s := State{
		Sequence:     b.seq,
		Online:       online,
		DesiredFPS:   b.desiredFPS,
		PerSecondFPS: b.perSecondFPS,
	}
	if b.haveLatest {
		s.Width, s.Height = b.latest.Width, b.latest.Height
	}
	return s
}

// Latest returns the most recently published frame, if any.
func (b *Broker) Latest() (frame.Encoded, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.haveLatest
}

// Close wakes every waiting subscriber with ErrClosed. Idempotent.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.verChan)
}

// Subscription tracks one subscriber's position in the sequence.
type Subscription struct {
	broker  *Broker
	lastSeq uint64
}

// Subscribe registers a new subscription starting before the first
// sequence number, so the first Next call returns whatever is currently
// latest (if anything has been published yet).
func (b *Broker) Subscribe() *Subscription {
	subscriberGauge.Inc()
	return &Subscription{broker: b}
}

// Close releases the subscription's accounting. It does not affect the
// broker or other subscribers.
func (s *Subscription) Close() {
	subscriberGauge.Dec()
}

// Next returns the most recent EncodedFrame whose sequence number is
// strictly greater than the last one this subscription delivered. If none
// is available yet it waits until one is published or ctx is cancelled. A
// slow subscriber that hasn't consumed the previous frame simply jumps
// straight to the newest one: there is no per-subscriber queue.
func (s *Subscription) Next(ctx context.Context) (frame.Encoded, error) {
	b := s.broker
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return frame.Encoded{}, ErrClosed
		}
		if b.seq > s.lastSeq {
			latest := b.latest
			s.lastSeq = b.seq
			b.mu.Unlock()
			return latest, nil
		}
		wait := b.verChan
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return frame.Encoded{}, ctx.Err()
		}
	}
}
