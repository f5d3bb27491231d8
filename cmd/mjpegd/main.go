// Command mjpegd reads frames from a frame source, JPEG-encodes them,
// and serves them to any number of concurrent HTTP clients as an MJPEG
// stream, alongside a JSON status endpoint and a single-shot snapshot
// endpoint. The frame source wired in here is the synthetic one from
// internal/source; no real camera backend is included.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpcomdev/mjpegd/internal/config"
	"github.com/warpcomdev/mjpegd/internal/logging"
	"github.com/warpcomdev/mjpegd/internal/source"
	"github.com/warpcomdev/mjpegd/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, err := logging.New(cfg.Debug, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	opener := source.FakeOpener{ChangeEvery: 1}
	sup := supervisor.New(cfg, logger, opener, opener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error("start failed", logging.Error(err))
		if errors.Is(err, supervisor.ErrBindFailed) {
			return 2
		}
		return 1
	}

	go serveMetrics(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		logger.Error("stop failed", logging.Error(err))
		return 1
	}
	return 0
}

func serveMetrics(logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              "localhost:9101",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Debug("metrics listener exited", logging.Error(err))
	}
}
