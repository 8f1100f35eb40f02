/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carverauto/mirrord/pkg/api"
	"github.com/carverauto/mirrord/pkg/capture"
	"github.com/carverauto/mirrord/pkg/config"
	"github.com/carverauto/mirrord/pkg/hls"
	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/metrics"
	"github.com/carverauto/mirrord/pkg/models"
	"github.com/carverauto/mirrord/pkg/presence"
	"github.com/carverauto/mirrord/pkg/qos"
	"github.com/carverauto/mirrord/pkg/runner"
	"github.com/carverauto/mirrord/pkg/session"
)

const heartbeatSweepInterval = 5 * time.Second

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/mirrord/mirrord.json", "Path to mirrord config file")
	flag.Parse()

	// Local overrides from .env, if one is present.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	mirrorLogger, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Pipeline: synthetic display source -> capture engine -> segment store.
	engine := capture.NewEngine(capture.NewDisplaySource(0, 0), mirrorLogger)
	engine.Initialize()

	frameRate := cfg.Streaming.FrameRate
	quality := cfg.Streaming.Quality

	if err = engine.UpdateSettings(models.CaptureSettingsUpdate{
		FrameRate: &frameRate,
		Quality:   &quality,
	}); err != nil {
		return fmt.Errorf("failed to apply capture settings: %w", err)
	}

	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))

	store := hls.NewStore(engine, mirrorLogger)
	if err = store.Initialize(hls.Options{
		SegmentDuration: time.Duration(cfg.Streaming.SegmentDuration) * time.Second,
		MaxSegments:     cfg.Streaming.MaxSegments,
		OutputDir:       cfg.Streaming.OutputDir,
		BaseURL:         baseURL,
	}); err != nil {
		return fmt.Errorf("failed to initialize segment store: %w", err)
	}

	controller := qos.NewController(engine, store, mirrorLogger)
	controller.Initialize(qos.Options{
		TargetFPS:      cfg.Optimization.TargetFPS,
		TargetQuality:  cfg.Optimization.TargetQuality,
		MinQuality:     cfg.Optimization.MinQuality,
		MaxQuality:     cfg.Optimization.MaxQuality,
		UpdateInterval: time.Duration(cfg.Optimization.UpdateInterval) * time.Second,
	})

	directory, err := openDirectory(ctx, cfg, mirrorLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := directory.Close(); err != nil {
			mirrorLogger.Error().Err(err).Msg("Error closing presence directory")
		}
	}()

	tracker := session.NewTracker(directory, nil, mirrorLogger)
	sampler := metrics.NewSampler(engine, mirrorLogger)

	if err = engine.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			mirrorLogger.Error().Err(err).Msg("Error closing capture engine")
		}
	}()

	if err = store.Start(); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer store.Stop()

	controller.Start()
	defer controller.Stop()

	runners := buildRunners(engine, store, controller, sampler, tracker, mirrorLogger)
	for _, r := range runners {
		go func(r *runner.Runner) {
			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mirrorLogger.Error().Err(err).Msg("Runner exited")
			}
		}(r)
	}
	defer func() {
		for _, r := range runners {
			r.Stop()
		}
	}()

	server := api.NewAPIServer(
		api.WithTracker(tracker),
		api.WithStore(store),
		api.WithOptimizer(controller),
		api.WithDirectory(directory),
		api.WithLogger(mirrorLogger),
	)

	errCh := make(chan error, 1)

	go func() {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err = <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	mirrorLogger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		mirrorLogger.Error().Err(err).Msg("Error shutting down API server")
	}

	return nil
}

// openDirectory connects the NATS-backed presence directory, or falls
// back to the in-process one when no NATS URL is configured.
func openDirectory(ctx context.Context, cfg *config.Config, log logger.Logger) (presence.Directory, error) {
	if cfg.Presence.NatsURL == "" {
		log.Warn().Msg("No NATS URL configured; device presence is process-local")
		return presence.NewMemoryDirectory(), nil
	}

	directory, err := presence.NewNatsDirectory(ctx, cfg.Presence.NatsURL, cfg.Presence.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open presence directory: %w", err)
	}

	return directory, nil
}

// buildRunners wires the four control loops. The capture runner's
// interval follows the engine's frame rate, so the QoS loop reloads it
// after every optimization pass.
func buildRunners(
	engine *capture.Engine,
	store *hls.Store,
	controller *qos.Controller,
	sampler *metrics.Sampler,
	tracker *session.Tracker,
	log logger.Logger,
) []*runner.Runner {
	captureRunner := runner.New("capture", engine.FrameInterval(), func(context.Context) error {
		if _, err := engine.CaptureFrame(); err != nil {
			return err
		}

		return nil
	}, nil, log)

	rotationRunner := runner.New("rotation", store.SegmentInterval(), func(context.Context) error {
		if _, err := store.CreateSegment(); err != nil {
			return err
		}

		return store.CleanupOldSegments()
	}, nil, log)

	qosRunner := runner.New("qos", controller.UpdateInterval(), func(ctx context.Context) error {
		controller.UpdateMetrics(sampler.Snapshot(ctx))

		if err := controller.OptimizeQuality(); err != nil {
			return err
		}

		if err := controller.OptimizeFrameRate(); err != nil {
			return err
		}

		captureRunner.Reload(engine.FrameInterval())

		return nil
	}, nil, log)

	heartbeatRunner := runner.New("heartbeat", heartbeatSweepInterval, func(ctx context.Context) error {
		timedOut, err := tracker.CheckConnectionTimeout(ctx, session.DefaultTimeout)
		if timedOut {
			log.Warn().Msg("Connection timed out; marked device offline")
		}

		return err
	}, nil, log)

	return []*runner.Runner{captureRunner, rotationRunner, qosRunner, heartbeatRunner}
}
