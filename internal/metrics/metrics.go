// Package metrics collects the prometheus metrics that don't belong to any
// single component package (encoder and broker each define their own):
// capture-loop health and supervisor lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CaptureReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpegd_capture_read_failures_total",
		Help: "Transient FrameSource read failures",
	})

	CaptureFatal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjpegd_capture_fatal_total",
		Help: "Capture loop escalations to a fatal error",
	})

	SupervisorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjpegd_supervisor_state",
		Help: "Supervisor lifecycle state (0=Stopped,1=Starting,2=Running,3=Stopping)",
	})
)
