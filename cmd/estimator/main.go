/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The estimator service runs one estimation session over a measurement
// source and serves the results: Prometheus metrics on /metrics, a
// websocket estimate feed on /live and a liveness probe on /healthz.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rudywasfound/pravaha/internal/config"
	"github.com/rudywasfound/pravaha/internal/logging"
	"github.com/rudywasfound/pravaha/internal/metrics"
	"github.com/rudywasfound/pravaha/internal/session"
	"github.com/rudywasfound/pravaha/internal/sim"
	"github.com/rudywasfound/pravaha/internal/source"
	"github.com/rudywasfound/pravaha/internal/stream"
	"github.com/rudywasfound/pravaha/pkg/kalman"
	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "estimator:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("estimator", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting estimator", zap.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mtr := metrics.New()
	hub := stream.New(logger, cfg.Stream.Buffer)

	sess, err := session.New(session.Config{
		Detector: cfg.DetectorConfig(),
		NISWarn:  cfg.Estimator.NISWarnThreshold,
	}, logger, mtr, hub)
	if err != nil {
		return err
	}

	src, closeSource, err := buildSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	mux := http.NewServeMux()
	mux.Handle("/metrics", mtr.Handler())
	mux.Handle("/live", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	go hub.Run(ctx)

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- ingest(ctx, logger, sess, src) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErr:
		logger.Error("http server failed", zap.Error(err))
		runErr = err
	case err := <-ingestDone:
		if err != nil {
			logger.Error("ingestion failed", zap.Error(err))
			runErr = err
		} else {
			logger.Info("measurement source drained")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	logger.Info("estimator stopped")
	return runErr
}

// ingest drives the session until the source drains or ctx is
// canceled. Rejected frames are skipped; a diverged filter is reset
// and ingestion continues from the initial covariance.
func ingest(ctx context.Context, logger *zap.Logger, sess *session.Session, src source.MeasurementSource) error {
	for {
		m, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}

		if _, err := sess.Ingest(m); err != nil {
			var rangeErr *telemetry.RangeError
			if errors.As(err, &rangeErr) {
				continue
			}
			var div *kalman.DivergenceError
			if errors.As(err, &div) {
				logger.Warn("resetting session after divergence")
				sess.Reset()
				continue
			}
			return err
		}
	}
}

// buildSource assembles the configured measurement source. The
// returned func releases whatever the source holds open.
func buildSource(cfg *config.Config) (source.MeasurementSource, func(), error) {
	switch cfg.Source.Kind {
	case config.SourceSimulator:
		simCfg := sim.Config{
			Scenario: sim.Scenario(cfg.Source.Scenario),
			Seed:     cfg.Source.Seed,
			Interval: cfg.Source.SampleInterval,
		}
		if cfg.Source.ScenarioFile != "" {
			params, err := sim.LoadScenarioFile(cfg.Source.ScenarioFile)
			if err != nil {
				return nil, nil, err
			}
			simCfg.Params = &params
		}
		s, err := sim.New(simCfg)
		if err != nil {
			return nil, nil, err
		}
		return source.NewSimulator(s, cfg.Source.SampleInterval), func() {}, nil

	case config.SourceReplay:
		f, err := os.Open(cfg.Source.ReplayPath)
		if err != nil {
			return nil, nil, err
		}
		return source.NewReplay(f), func() { _ = f.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}
