package httpapi

import (
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestIsPeerClosed(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EOF", io.EOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"EPIPE", syscall.EPIPE, true},
		{"ECONNRESET", syscall.ECONNRESET, true},
		{"net.Error", &net.OpError{Op: "write", Err: errors.New("use of closed network connection")}, true},
		{"broken pipe string", errors.New("write: broken pipe"), true},
		{"connection reset string", errors.New("read: connection reset by peer"), true},
		{"client disconnected string", errors.New("client disconnected"), true},
		{"unrelated error", errors.New("disk full"), false},
	}
	for _, tc := range cases {
		if got := isPeerClosed(tc.err); got != tc.want {
			t.Errorf("%s: isPeerClosed(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}
