// modmesh - module orchestration daemon.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/comm"
	"github.com/jeranaias/modmesh/internal/config"
	"github.com/jeranaias/modmesh/internal/fallback"
	"github.com/jeranaias/modmesh/internal/logging"
	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/module"
	"github.com/jeranaias/modmesh/internal/routing"
	"github.com/jeranaias/modmesh/internal/security"
	"github.com/jeranaias/modmesh/internal/server"
	"github.com/jeranaias/modmesh/internal/telemetry"
	"github.com/jeranaias/modmesh/internal/transport"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (empty = defaults)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("modmesh %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "modmesh: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Encoding:   cfg.Logging.Encoding,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting modmesh",
		zap.String("version", Version),
		zap.String("component_id", cfg.ComponentID))

	// Security gate.
	limiter := security.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateWindow())
	gateOpts := []security.Option{
		security.WithRateLimiter(limiter),
	}
	if cfg.Security.SharedKey != "" {
		gateOpts = append(gateOpts, security.WithSharedKey(cfg.Security.SharedKey))
	}
	if cfg.Security.CipherPassphrase != "" {
		cipher, err := security.NewAESCipher(cfg.Security.CipherPassphrase)
		if err != nil {
			return fmt.Errorf("cipher setup failed: %w", err)
		}
		gateOpts = append(gateOpts, security.WithCipher(cipher))
	}
	gate := security.NewGate(gateOpts...)
	if err := gate.Authenticate(cfg.ComponentID, map[string]any{
		"api_key":        firstNonEmpty(cfg.Security.SharedKey, "local"),
		"component_type": "router",
		"permissions":    []string{security.PermCriticalOperations},
	}); err != nil {
		return fmt.Errorf("self authentication failed: %w", err)
	}

	// Transport channels and routes.
	manager := comm.NewManager(cfg.ComponentID, gate, logger)
	registry := module.NewRegistry()
	registry.Register(message.ModuleGeneral, module.NewGeneral())

	for component, baseURL := range cfg.Transport.HTTPPeers {
		channelID := "http-" + component
		manager.RegisterChannel(channelID, transport.NewHTTPChannel(baseURL, logger))
		manager.SetRoute(component, channelID)
		registerPeerModule(registry, manager, cfg.ComponentID, component, logger)
	}

	if cfg.Transport.StreamEndpoint != "" {
		stream := transport.NewStreamChannel(cfg.Transport.StreamEndpoint, cfg.ComponentID, logger)
		if err := stream.Connect(); err != nil {
			logger.Warn("stream channel unavailable", zap.Error(err))
		}
		manager.RegisterChannel("stream", stream)
	}

	if len(cfg.Transport.KafkaBrokers) > 0 {
		queue, err := transport.NewQueueChannel(cfg.Transport.KafkaBrokers, cfg.ComponentID, logger)
		if err != nil {
			logger.Warn("queue channel unavailable", zap.Error(err))
		} else {
			manager.RegisterChannel("queue", queue)
			for _, component := range cfg.Transport.QueuePeers {
				manager.SetRoute(component, "queue")
				registerPeerModule(registry, manager, cfg.ComponentID, component, logger)
			}
		}
	}

	// Fallback chains: every specialized type falls back to general.
	fb := fallback.New(logger)
	fb.SetThreshold(cfg.Router.FallbackThreshold)
	fb.SetHardCap(cfg.Router.FallbackHardCap())
	for _, mt := range registry.Types() {
		if mt != message.ModuleGeneral {
			fb.SetChain(mt, []message.ModuleType{message.ModuleGeneral})
		}
	}

	// Telemetry.
	routerOpts := routing.Options{
		Logger:         logger,
		DefaultTimeout: time.Duration(cfg.Router.DefaultTimeoutSecs) * time.Second,
	}
	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		recorder, err = telemetry.Open(cfg.Telemetry.Path)
		if err != nil {
			return fmt.Errorf("telemetry setup failed: %w", err)
		}
		defer recorder.Close()
		routerOpts.Recorder = recorder
		fb.SetRecorder(recorder)
	}

	// Dynamic provisioning brings up a remote module on demand for any
	// module type that already has a transport route.
	if cfg.Router.Provisioning {
		routerOpts.Provisioner = func(ctx context.Context, mt message.ModuleType) (module.Module, error) {
			component := mt.String()
			if !manager.HasRoute(component) {
				return nil, fmt.Errorf("no transport route for module type %s", component)
			}
			logger.Info("provisioning remote module", zap.String("module_type", component))
			return comm.NewRemoteModule(cfg.ComponentID, component, mt, manager), nil
		}
	}

	router := routing.New(registry, fb, routerOpts)

	// Idle rate-limiter sources are reclaimed on a fixed cadence.
	pruneDone := make(chan struct{})
	defer close(pruneDone)
	go func() {
		ticker := time.NewTicker(cfg.Security.RateWindow())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune()
			case <-pruneDone:
				return
			}
		}
	}()

	// Config hot reload adjusts the live fallback threshold and hard cap.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger, func(next *config.Config) {
			fb.SetThreshold(next.Router.FallbackThreshold)
			fb.SetHardCap(next.Router.FallbackHardCap())
		})
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else if err := watcher.Watch(); err != nil {
			logger.Warn("config watch failed", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// HTTP ingress.
	srv := server.New(router, server.Options{
		Addr:         cfg.Server.Addr,
		AuthToken:    cfg.Server.AuthToken,
		Manager:      manager,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("ingress failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("ingress shutdown incomplete", zap.Error(err))
	}
	if err := manager.Close(); err != nil {
		logger.Warn("channel shutdown incomplete", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}

// registerPeerModule registers a remote module for peers named after a
// module type (e.g. component "code_analysis" serves that type).
func registerPeerModule(registry *module.Registry, manager *comm.Manager, selfID, component string, logger *zap.Logger) {
	mt, err := message.ParseModuleType(component)
	if err != nil {
		logger.Debug("peer is not a module type, transport only",
			zap.String("component", component))
		return
	}
	registry.Register(mt, comm.NewRemoteModule(selfID, component, mt, manager))
	logger.Info("registered remote module",
		zap.String("module_type", mt.String()),
		zap.String("component", component))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
