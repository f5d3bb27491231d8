// Dedicated multipart/x-mixed-replace formatter. The framing is trivial
// ("--frame\r\n", headers, blank line, body, "\r\n") and a generic
// multipart library (mime/multipart) does not give per-part control over
// omitted headers that the advance_headers shaping policy requires, so it
// is hand-rolled here instead.
package httpapi

import (
	"io"
	"strconv"
)

const boundary = "frame"

// headerField is one part header, kept as an ordered slice (not a map) so
// output is deterministic and byte-for-byte reproducible.
type headerField struct {
	Name  string
	Value string
}

// partHeaders builds the full header set for a stream part, then applies
// the advance_headers shaping policy: strip Content-Length and every
// X-UStreamer-* header when the session asked for it.
func partHeaders(online bool, width, height int, deviceName string, timestampMillis int64, bodyLen int, advanceHeaders bool) []headerField {
	fields := []headerField{
		{"Content-Type", "image/jpeg"},
		{"Content-Length", strconv.Itoa(bodyLen)},
		{"X-UStreamer-Online", boolString(online)},
		{"X-UStreamer-Width", strconv.Itoa(width)},
		{"X-UStreamer-Height", strconv.Itoa(height)},
		{"X-UStreamer-Name", deviceName},
		{"X-Timestamp", strconv.FormatInt(timestampMillis, 10)},
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}
	if !advanceHeaders {
		return fields
	}
	shaped := fields[:0:0]
	for _, f := range fields {
		if f.Name == "Content-Length" || hasPrefixFold(f.Name, "X-UStreamer-") {
			continue
		}
		shaped = append(shaped, f)
	}
	return shaped
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// writePart writes one multipart part: boundary line, headers, blank line,
// body, trailing CRLF. It never writes the closing boundary: the caller
// keeps the body open until the session terminates.
func writePart(w io.Writer, fields []headerField, body []byte) error {
	if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := io.WriteString(w, f.Name+": "+f.Value+"\r\n"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	return nil
}
