// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the configuration, the ingest pipeline, the
// detectors and the output sinks into runnable programs. The cmd
// binaries are thin wrappers around the Run functions here.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/relabs-tech/gnss_sentinel/internal/arbiter"
	"github.com/relabs-tech/gnss_sentinel/internal/config"
	"github.com/relabs-tech/gnss_sentinel/internal/detect"
	"github.com/relabs-tech/gnss_sentinel/internal/feed"
	"github.com/relabs-tech/gnss_sentinel/internal/indicator"
	"github.com/relabs-tech/gnss_sentinel/internal/ingest"
	"github.com/relabs-tech/gnss_sentinel/internal/logging"
	"github.com/relabs-tech/gnss_sentinel/internal/observability"
	"github.com/relabs-tech/gnss_sentinel/internal/publish"
	"github.com/relabs-tech/gnss_sentinel/internal/score"
)

// RunSentinel runs the live detection pipeline against the configured
// serial port until interrupted.
func RunSentinel(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, collector, hub, pub, err := buildController(cfg)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
	}

	pipeline := &pipelineService{
		name: "gnss-pipeline",
		open: func() (io.ReadCloser, error) {
			return ingest.OpenPort(cfg.Serial.Port, cfg.Serial.Baud)
		},
		ctrl:    ctrl,
		metrics: collector,
		pub:     pub,
		hub:     hub,
	}

	sup := suture.New("sentinel", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Str("event", e.String()).Msg("supervisor event")
		},
	})
	sup.Add(pipeline)

	if collector != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		sup.Add(&httpService{name: "metrics", addr: cfg.Metrics.Listen, handler: mux})
	}
	if hub != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/feed", hub.Handler())
		sup.Add(&httpService{name: "feed", addr: cfg.Feed.Listen, handler: mux})
	}

	logging.Info().
		Str("port", cfg.Serial.Port).
		Uint("baud", cfg.Serial.Baud).
		Msg("sentinel starting")

	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logging.Info().Str("mode", ctrl.Mode().String()).Msg("sentinel stopped")
	return err
}

// buildController assembles the detectors, the arbitration controller
// and every enabled sink. The collector, hub and publisher are nil when
// their sections are disabled.
func buildController(cfg *config.Config) (*arbiter.Controller, *observability.SentinelCollector, *feed.Hub, *publish.MQTTPublisher, error) {
	speed := detect.NewSpeedDetector(cfg.Detection.Speed)
	constellation := detect.NewConstellationDetector(cfg.Detection.Constellation)
	ctrl := arbiter.New(arbiter.Config{GracePeriod: cfg.Detection.GracePeriod}, speed, constellation)

	if cfg.Scorer.ArtifactPath != "" {
		scorer, err := score.Load(cfg.Scorer.ArtifactPath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ctrl.SetScorer(scorer)
		logging.Info().Str("artifact", cfg.Scorer.ArtifactPath).Msg("classifier artifact loaded")
	}

	var collector *observability.SentinelCollector
	if cfg.Metrics.Enabled {
		var err error
		collector, err = observability.NewSentinelCollector(nil)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ctrl.AddSink(collector)
	}

	var hub *feed.Hub
	if cfg.Feed.Enabled {
		hub = feed.NewHub()
		ctrl.AddSink(hub)
	}

	var pub *publish.MQTTPublisher
	if cfg.MQTT.Enabled {
		var err error
		pub, err = publish.NewMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ctrl.AddSink(pub)
	}

	if cfg.Indicator.Enabled {
		gpio, err := indicator.NewGPIO(cfg.Indicator.Pin)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		ctrl.AddSink(gpio)
	}

	return ctrl, collector, hub, pub, nil
}

// httpService runs one HTTP listener under the supervisor.
type httpService struct {
	name    string
	addr    string
	handler http.Handler
}

func (s *httpService) String() string { return s.name }

func (s *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.handler}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("service", s.name).Str("addr", s.addr).Msg("http listener up")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
