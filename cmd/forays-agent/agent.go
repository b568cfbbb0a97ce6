// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/foray"
	"github.com/xivforays/forays-agent/lib/gatherer"
	"github.com/xivforays/forays-agent/lib/metrics"
	"github.com/xivforays/forays-agent/lib/sampler"
	"github.com/xivforays/forays-agent/lib/scheduler"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/world"
)

type agentOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// ConfigPath is watched for changes. Empty disables reloading.
	ConfigPath string

	// Source replaces the scenario named in the configuration.
	Source *world.Scenario

	// Registry defaults to a fresh registry with Go and process
	// collectors.
	Registry *prometheus.Registry
}

// module is the kind-independent view of a gatherer.Module.
type module interface {
	Kind() tracking.Kind
	LoadConfig(*config.Config) error
	Status() gatherer.Status
	Close() error
}

// Agent owns every long-lived component of the process.
type Agent struct {
	clock    clock.Clock
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	configPath string
	source     *world.Scenario
	primary    *scheduler.Primary
	scheduler  *scheduler.Scheduler
	sink       *switchSink
	modules    []module

	mu     sync.Mutex
	config *config.Config
}

func newAgent(cfg *config.Config, options agentOptions) (*Agent, error) {
	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	agentMetrics, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	source := options.Source
	if source == nil {
		source, err = loadSource(cfg, options.Logger)
		if err != nil {
			return nil, err
		}
	}

	agent := &Agent{
		clock:      options.Clock,
		logger:     options.Logger,
		registry:   registry,
		metrics:    agentMetrics,
		configPath: options.ConfigPath,
		source:     source,
		primary:    scheduler.NewPrimary(),
		sink:       &switchSink{},
		config:     cfg,
	}
	agent.scheduler = scheduler.New(scheduler.Options{
		Clock:           options.Clock,
		Logger:          options.Logger,
		Primary:         agent.primary,
		ShutdownTimeout: cfg.Scheduler.ShutdownTimeout,
		OnTaskFailure: func(name scheduler.TaskName, err error) {
			agentMetrics.TaskFailure(string(name))
		},
	})

	if err := agent.installSink(cfg); err != nil {
		return nil, err
	}

	enemies, err := gatherer.New(gatherer.Options[foray.Enemy]{
		Kind:      tracking.KindEnemy,
		Scheduler: agent.scheduler,
		Source:    source,
		Sink:      agent.sink,
		NewCollector: func() sampler.Collector[foray.Enemy] {
			return foray.NewEnemyCollector(options.Logger)
		},
		Settings: gatherer.SettingsFrom(cfg.Enemies),
		Clock:    options.Clock,
		Logger:   options.Logger,
		Metrics:  agentMetrics,
	})
	if err != nil {
		return nil, err
	}
	fates, err := gatherer.New(gatherer.Options[foray.Fate]{
		Kind:      tracking.KindFate,
		Scheduler: agent.scheduler,
		Source:    source,
		Sink:      agent.sink,
		NewCollector: func() sampler.Collector[foray.Fate] {
			return foray.NewFateCollector()
		},
		Settings: gatherer.SettingsFrom(cfg.Fates),
		Clock:    options.Clock,
		Logger:   options.Logger,
		Metrics:  agentMetrics,
	})
	if err != nil {
		return nil, err
	}
	agent.modules = []module{enemies, fates}
	return agent, nil
}

func loadSource(cfg *config.Config, logger *slog.Logger) (*world.Scenario, error) {
	if cfg.Host.Scenario == "" {
		logger.Warn("no host scenario configured, world stays ineligible")
		return world.NewScenario(world.ScenarioFile{}), nil
	}
	source, err := world.LoadScenario(cfg.Host.Scenario)
	if err != nil {
		return nil, fmt.Errorf("loading host scenario: %w", err)
	}
	return source, nil
}

func (a *Agent) installSink(cfg *config.Config) error {
	sink, closeSink, err := buildSink(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("creating %s sink: %w", cfg.Sink, err)
	}
	if err := a.sink.swap(sink, closeSink); err != nil {
		a.logger.Warn("closing previous sink", "error", err)
	}
	return nil
}

// Apply installs a new configuration: the sink first, then every
// module's settings and enabled signal. If the sink cannot be built
// nothing changes. Errors from one module do not stop the others.
func (a *Agent) Apply(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.installSink(cfg); err != nil {
		return err
	}
	a.config = cfg
	return a.loadModules(cfg)
}

func (a *Agent) loadModules(cfg *config.Config) error {
	var errs []error
	for _, m := range a.modules {
		if err := m.LoadConfig(cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// Statuses returns every module's status.
func (a *Agent) Statuses() []gatherer.Status {
	statuses := make([]gatherer.Status, 0, len(a.modules))
	for _, m := range a.modules {
		statuses = append(statuses, m.Status())
	}
	return statuses
}

// Run enables the modules the startup configuration asks for and
// drives the host frame loop until ctx is cancelled, then shuts
// everything down.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	cfg := a.config
	err := a.loadModules(cfg)
	a.mu.Unlock()
	if err != nil {
		a.Close()
		return fmt.Errorf("applying configuration: %w", err)
	}

	var background sync.WaitGroup
	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, config.WatcherOptions{
			Clock:    a.clock,
			Logger:   a.logger,
			OnReload: a.reload,
			OnError: func(err error) {
				a.metrics.ConfigReload("error")
				a.logger.Error("configuration reload rejected, keeping the previous configuration", "error", err)
			},
		})
		if err != nil {
			a.Close()
			return fmt.Errorf("watching configuration: %w", err)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("configuration watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Metrics.Listen != "" {
		listener, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			a.Close()
			return fmt.Errorf("metrics listener: %w", err)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			a.serveMetrics(ctx, listener)
		}()
	}

	a.runHost(ctx, cfg.Host.FrameInterval)

	a.logger.Info("shutting down")
	background.Wait()
	return a.Close()
}

func (a *Agent) reload(cfg *config.Config) {
	if err := a.Apply(cfg); err != nil {
		a.metrics.ConfigReload("error")
		a.logger.Error("applying reloaded configuration", "error", err)
		return
	}
	a.metrics.ConfigReload("ok")
	a.logger.Info("configuration reloaded",
		"crowdsource", cfg.Crowdsource,
		"enemies", cfg.Enabled(config.KindEnemy),
		"fates", cfg.Enabled(config.KindFate),
	)
}

// runHost advances the world one frame per tick and then runs the
// primary work submitted since the previous frame.
func (a *Agent) runHost(ctx context.Context, frameInterval time.Duration) {
	ticker := a.clock.NewTicker(frameInterval)
	defer ticker.Stop()

	scenarioDone := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !scenarioDone && !a.source.Advance() {
			scenarioDone = true
			a.logger.Info("host scenario finished, holding the last frame", "frame", a.source.FrameIndex())
		}
		a.primary.RunPending()
	}
}

func (a *Agent) serveMetrics(ctx context.Context, listener net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("metrics server listening", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("metrics server failed", "error", err)
	}
}

// Close disables every module, stops the scheduler, and closes the
// sink.
func (a *Agent) Close() error {
	var errs []error
	for _, m := range a.modules {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if abandoned := a.scheduler.Shutdown(); len(abandoned) > 0 {
		errs = append(errs, fmt.Errorf("tasks did not stop in time: %v", abandoned))
	}
	if err := a.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
