package source

import (
	"context"
	"time"

	"github.com/warpcomdev/mjpegd/internal/frame"
)

// Fake is a synthetic FrameSource used in development and tests: it cycles
// a source image on a ticker instead of talking to hardware. Every
// changeEvery ticks it rolls the pixel buffer by one scanline so the frame
// changes, a cheap way to fake motion; in between, frames repeat.
type Fake struct {
	width, height int
	fps           int
	pitch         int
	buf           []byte
	ticker        *time.Ticker
	changeEvery   int // ticks between distinct frames; 1 = every tick differs
	tick          int
}

// NewFake builds a synthetic source at the given resolution and cadence.
// changeEvery controls how many ticks elapse between distinct frames, so
// tests can exercise the broker's dedup rule deterministically.
func NewFake(width, height, fps, changeEvery int) *Fake {
	if changeEvery < 1 {
		changeEvery = 1
	}
	pitch := width * 3 // RGB24
	buf := make([]byte, pitch*height)
	return &Fake{
		width:       width,
		height:      height,
		fps:         fps,
		pitch:       pitch,
		buf:         buf,
		ticker:      time.NewTicker(time.Second / time.Duration(fps)),
		changeEvery: changeEvery,
	}
}

// ReadFrame implements FrameSource.
func (f *Fake) ReadFrame(ctx context.Context) (frame.Raw, error) {
	select {
	case <-ctx.Done():
		return frame.Raw{}, &TransientReadError{Err: ctx.Err()}
	case <-f.ticker.C:
	}
	f.tick++
	if f.tick%f.changeEvery == 0 {
		line := make([]byte, f.pitch)
		total := len(f.buf)
		copy(line, f.buf)
		copy(f.buf, f.buf[f.pitch:])
		copy(f.buf[total-f.pitch:], line)
		for i := range line {
			f.buf[total-f.pitch+i] += 1
		}
	}
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	return frame.Raw{
		Pixels:     out,
		Width:      f.width,
		Height:     f.height,
		CapturedAt: time.Now(),
	}, nil
}

// Actual implements FrameSource.
func (f *Fake) Actual() (width, height, fps int) {
	return f.width, f.height, f.fps
}

// Close implements FrameSource.
func (f *Fake) Close() error {
	f.ticker.Stop()
	return nil
}
