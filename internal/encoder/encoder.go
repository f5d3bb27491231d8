// Package encoder turns a raw captured frame into a JPEG-encoded one,
// resizing first when the caller asked for an output size different from
// the source's.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	frametype "github.com/warpcomdev/mjpegd/internal/frame"
)

// EncodeFailed reports a single frame's encode failure. The caller drops
// the frame and continues; it is never fatal.
type EncodeFailed struct {
	Err error
}

func (e *EncodeFailed) Error() string {
	return fmt.Sprintf("encoder: encode failed: %v", e.Err)
}

func (e *EncodeFailed) Unwrap() error {
	return e.Err
}

var encodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "mjpegd_encode_latency_milliseconds",
	Help: "JPEG encode latency, including resize when requested",
	Buckets: []float64{
		1, 3, 5, 10, 20, 40, 80, 160, 320,
	},
})

// Size is an optional target output resolution.
type Size struct {
	Width  int
	Height int
}

// Encoder resizes (optionally) and JPEG-encodes raw frames at a fixed
// quality, clamped to [1,100] at construction time.
type Encoder struct {
	quality int
	target  *Size
}

// New builds an Encoder. A nil target means passthrough: frames keep the
// source resolution.
func New(quality int, target *Size) *Encoder {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &Encoder{quality: quality, target: target}
}

// rgbImage adapts a packed RGB24 buffer to image.Image without copying, so
// resize/encode can work directly off the capture buffer.
type rgbImage struct {
	pixels []byte
	width  int
	height int
}

func (r *rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (r *rgbImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

func (r *rgbImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return color.RGBA{}
	}
	i := (y*r.width + x) * 3
	if i+2 >= len(r.pixels) {
		return color.RGBA{}
	}
	return color.RGBA{R: r.pixels[i], G: r.pixels[i+1], B: r.pixels[i+2], A: 0xff}
}

// Encode resizes (if a target size is set and differs from the source) and
// JPEG-encodes the given raw frame.
func (e *Encoder) Encode(raw frametype.Raw) (frametype.Encoded, error) {
	start := time.Now()
	defer func() {
		encodeLatency.Observe(float64(time.Since(start).Milliseconds()))
	}()

	src := &rgbImage{pixels: raw.Pixels, width: raw.Width, height: raw.Height}

	var img image.Image = src
	outWidth, outHeight := raw.Width, raw.Height
	if e.target != nil && (e.target.Width != raw.Width || e.target.Height != raw.Height) {
		outWidth, outHeight = e.target.Width, e.target.Height
		dst := image.NewRGBA(image.Rect(0, 0, outWidth, outHeight))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return frametype.Encoded{}, &EncodeFailed{Err: err}
	}

	return frametype.Encoded{
		Payload:    buf.Bytes(),
		Width:      outWidth,
		Height:     outHeight,
		CapturedAt: raw.CapturedAt,
	}, nil
}
