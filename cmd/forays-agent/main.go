// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// forays-agent samples enemy and fate state from a host world, keeps
// only significant changes, and uploads them to the XivForays
// collection API (or a Redis stream).
//
// The host world is replayed from a JSONC scenario file: each host
// frame applies the next world frame and then runs the sampling work
// queued for the primary executor, so sampling never observes a frame
// half-applied. Uploads run on their own goroutines.
//
// Sampling starts only when crowdsourcing is consented to in the
// configuration file. The file is watched; editing it toggles kinds on
// and off and retunes intervals without a restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xivforays/forays-agent/lib/clock"
	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/process"
	"github.com/xivforays/forays-agent/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath  string
	logLevel    slog.Level
	showVersion bool
	showHelp    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var parsed options
	var logLevel string

	flagSet := pflag.NewFlagSet("forays-agent", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&parsed.configPath, "config", "", "path to forays.yaml (default: $FORAYS_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level: debug, info, warn, or error")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&parsed.showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			parsed.showHelp = true
			return parsed, nil
		}
		return parsed, &process.UsageError{Err: err}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return parsed, &process.UsageError{Err: fmt.Errorf("unexpected arguments: %v", extra)}
	}
	if err := parsed.logLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return parsed, &process.UsageError{Err: fmt.Errorf("--log-level: %w", err)}
	}
	if parsed.configPath == "" {
		parsed.configPath = os.Getenv("FORAYS_CONFIG")
	}
	return parsed, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	parsed, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if parsed.showHelp {
		fmt.Fprintln(stdout, "usage: forays-agent [--config path] [--log-level level]")
		return nil
	}
	if parsed.showVersion {
		fmt.Fprintf(stdout, "forays-agent %s\n", version.Full())
		return nil
	}
	if parsed.configPath == "" {
		return &process.UsageError{Err: errors.New("no configuration: pass --config or set FORAYS_CONFIG")}
	}

	cfg, err := config.LoadFile(parsed.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration %s:\n%w", parsed.configPath, err)
	}

	logger := newLogger(stderr, parsed.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := newAgent(cfg, agentOptions{
		Clock:      clock.Real(),
		Logger:     logger,
		ConfigPath: parsed.configPath,
	})
	if err != nil {
		return err
	}

	logger.Info("forays agent running",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"config", parsed.configPath,
		"sink", string(cfg.Sink),
		"crowdsource", cfg.Crowdsource,
	)
	return agent.Run(ctx)
}
