package source

import "context"

// FakeOpener implements both Enumerator and Opener over the synthetic Fake
// source, standing in for a real per-platform camera backend treated as an
// external collaborator. It lets the daemon run end-to-end (and the test
// suite exercise the full stack) without any hardware attached.
type FakeOpener struct {
	ChangeEvery int // ticks between distinct frames; 1 = every tick differs
}

// Enumerate implements Enumerator, reporting a single synthetic device.
func (f FakeOpener) Enumerate(ctx context.Context) ([]Device, error) {
	return []Device{{Index: 0, DisplayName: "fake0"}}, nil
}

// Open implements Opener.
func (f FakeOpener) Open(ctx context.Context, index, width, height, fps int) (FrameSource, error) {
	if index != 0 {
		return nil, ErrDeviceUnavailable
	}
	changeEvery := f.ChangeEvery
	if changeEvery < 1 {
		changeEvery = 1
	}
	return NewFake(width, height, fps, changeEvery), nil
}
