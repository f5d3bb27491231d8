// Package frame holds the raw and encoded frame types shared between the
// capture loop, the encoder and the broker.
package frame

import (
	"bytes"
	"time"
)

// Raw is a captured, not-yet-encoded frame. It is owned transiently by the
// capture loop and handed by value to the encoder.
type Raw struct {
	Pixels    []byte    // packed pixel buffer, format is source-defined
	Width     int
	Height    int
	CapturedAt time.Time // monotonic-ish capture timestamp
}

// Encoded is an immutable JPEG payload plus enough metadata to serve it and
// to detect repeat frames. Once handed to the broker it is never mutated;
// any number of subscribers may read it concurrently.
type Encoded struct {
	Payload    []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// TimestampMillis is the capture time as milliseconds since epoch, the unit
// the X-Timestamp stream header uses.
func (e Encoded) TimestampMillis() int64 {
	return e.CapturedAt.UnixMilli()
}

// SameBytes reports whether two encoded frames carry byte-identical
// payloads, the dedup rule's comparison.
func (e Encoded) SameBytes(other Encoded) bool {
	return bytes.Equal(e.Payload, other.Payload)
}
