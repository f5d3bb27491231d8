package httpapi

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// isPeerClosed classifies a stream write error as the normal end of a
// session (reset, aborted, broken pipe, client gone) versus a real error
// worth logging, so an ordinary disconnect terminates silently instead of
// spamming the log.
func isPeerClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "client disconnected")
}
