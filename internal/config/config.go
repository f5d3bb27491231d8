// Package config parses and validates the daemon's CLI surface, following
// a validate-and-default pattern: out-of-range values are rejected, not
// clamped.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument reports a malformed or out-of-range CLI argument.
var ErrInvalidArgument = errors.New("config: invalid argument")

// Size is an optional output resolution.
type Size struct {
	Width, Height int
}

// Config is the daemon's immutable configuration.
type Config struct {
	StreamName string
	Output     *Size // nil means passthrough (no resize)

	Quality    int
	FPS        int

	Host string
	Port int

	DeviceIndex int // -1 if DeviceName is set instead
	DeviceName  string

	LogAccess bool
	Debug     bool
	LogFile   string

	// Non-CLI-surfaced tunables, carried as constructor defaults.
	OnlineThreshold      int // milliseconds
	DedupWindowMillis    int
	MaxConsecutiveErrors int
}

func normalizeStreamName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

func parseResolution(s string) (Size, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("%w: resolution must be WxH, got %q", ErrInvalidArgument, s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return Size{}, fmt.Errorf("%w: invalid width in %q", ErrInvalidArgument, s)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return Size{}, fmt.Errorf("%w: invalid height in %q", ErrInvalidArgument, s)
	}
	return Size{Width: w, Height: h}, nil
}

// Parse builds a Config from CLI arguments (excluding the program name).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mjpegd", flag.ContinueOnError)

	device := fs.Int("device", -1, "capture device index")
	deviceName := fs.String("device-name", "", "capture device friendly name")
	resolution := fs.String("resolution", "640x480", "output resolution, WxH")
	quality := fs.Int("quality", 100, "JPEG quality, 1-100")
	fps := fs.Int("fps", 30, "target capture FPS")
	host := fs.String("host", "localhost", "bind host")
	port := fs.Int("port", 8000, "bind port")
	streamName := fs.String("stream-name", "stream", "stream path name")
	logAccess := fs.Bool("log-access", true, "log access requests")
	debug := fs.Bool("debug", false, "enable debug logging")
	logFile := fs.String("log-file", "", "log file path; empty logs to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if *device >= 0 && *deviceName != "" {
		return nil, fmt.Errorf("%w: --device and --device-name are mutually exclusive", ErrInvalidArgument)
	}
	if *device < 0 && *deviceName == "" {
		return nil, fmt.Errorf("%w: one of --device or --device-name is required", ErrInvalidArgument)
	}

	size, err := parseResolution(*resolution)
	if err != nil {
		return nil, err
	}

	if *quality < 1 || *quality > 100 {
		return nil, fmt.Errorf("%w: quality must be in [1,100], got %d", ErrInvalidArgument, *quality)
	}
	if *fps <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive, got %d", ErrInvalidArgument, *fps)
	}
	if *port < 1 || *port > 65535 {
		return nil, fmt.Errorf("%w: port must be in [1,65535], got %d", ErrInvalidArgument, *port)
	}

	cfg := &Config{
		StreamName:           normalizeStreamName(*streamName),
		Output:               &size,
		Quality:              *quality,
		FPS:                  *fps,
		Host:                 *host,
		Port:                 *port,
		DeviceIndex:          *device,
		DeviceName:           *deviceName,
		LogAccess:            *logAccess,
		Debug:                *debug,
		LogFile:              *logFile,
		OnlineThreshold:      5000,
		DedupWindowMillis:    1000,
		MaxConsecutiveErrors: 30,
	}
	return cfg, nil
}
