// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/pkg/ux"
	"github.com/AleutianAI/AleutianConfidence/services/confidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/telemetry"
)

// errCheckFailed marks a negative verdict (gate failed, chain corrupted)
// that is not a runtime error. The verdict itself has already been printed.
var errCheckFailed = errors.New("check failed")

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	storePath  string
	inMemory   bool
	fixtures   string
	snapshot   string
	output     string
	logLevel   string
	metricsOut string
	timeout    time.Duration
}

// app is the per-invocation state built in PersistentPreRunE.
type app struct {
	flags    *globalFlags
	cfg      confidence.Config
	logger   *logging.Logger
	out      *ux.Printer
	svc      *confidence.Service
	fixtures *Fixtures
	shutdown func(context.Context) error
	cancel   context.CancelFunc

	// onGraphRefresh is installed by commands annotated with watchAnnotation.
	onGraphRefresh func(propagate.RefreshStats)
}

// watchAnnotation marks commands that keep the snapshot watcher running.
const watchAnnotation = "confidence/watch"

// newRootCmd returns the command tree and the app it populates. The caller
// must close the app after Execute, whatever the outcome.
func newRootCmd() (*cobra.Command, *app) {
	flags := &globalFlags{}
	a := &app{flags: flags}

	root := &cobra.Command{
		Use:           "confidence",
		Short:         "Score, propagate and gate code confidence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&flags.storePath, "store", "", "Store directory (overrides config)")
	pf.BoolVar(&flags.inMemory, "in-memory", false, "Keep all state in memory")
	pf.StringVarP(&flags.fixtures, "fixtures", "f", "", "YAML file of recorded evidence and developer signals")
	pf.StringVar(&flags.snapshot, "snapshot", "", "Dependency snapshot (overrides config)")
	pf.StringVarP(&flags.output, "output", "o", "", "Output mode: rich, plain or json (default: detect)")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file on exit")
	pf.DurationVar(&flags.timeout, "timeout", time.Minute, "Overall command timeout")

	root.AddCommand(
		newScoreCmd(a),
		newPropagateCmd(a),
		newGateCmd(a),
		newFeedbackCmd(a),
		newDeveloperCmd(a),
		newAuditCmd(a),
		newNavCmd(a),
		newWatchCmd(a),
		newMetricsCmd(a),
	)
	return root, a
}

// open loads config, logging, telemetry, fixtures and the service.
func (a *app) open(cmd *cobra.Command) error {
	f := a.flags

	mode := ux.DetectMode(os.Stdout)
	if f.output != "" {
		mode = ux.ParseMode(f.output)
	}
	a.out = ux.NewPrinter(cmd.OutOrStdout(), mode)
	a.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(f.logLevel),
		Service: "confidence",
		JSON:    mode == ux.ModeJSON,
		Output:  cmd.ErrOrStderr(),
	})

	cfg, err := confidence.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	switch {
	case f.inMemory:
		cfg.Store = confidence.StoreConfig{InMemory: true}
	case f.storePath != "":
		cfg.Store = confidence.StoreConfig{Path: f.storePath}
	case f.configPath == "" && os.Getenv("ALEUTIAN_CONFIDENCE_STORE") == "":
		cfg.Store = confidence.StoreConfig{Path: defaultStorePath()}
	}
	if f.snapshot != "" {
		cfg.Graph.Snapshot = f.snapshot
	}
	watching := cmd.Annotations[watchAnnotation] != ""
	if watching {
		cfg.Graph.Watch = true
	}
	if f.metricsOut != "" || cmd.Name() == "metrics" {
		cfg.Telemetry.MetricExporter = "prometheus"
	}
	a.cfg = cfg

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if !watching {
		ctx, a.cancel = context.WithTimeout(ctx, f.timeout)
	}
	cmd.SetContext(ctx)

	a.shutdown, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}

	opts := confidence.Options{Logger: a.logger.Slog()}
	if watching {
		opts.OnGraphRefresh = a.onGraphRefresh
	}
	if f.fixtures != "" {
		a.fixtures, err = LoadFixtures(f.fixtures)
		if err != nil {
			return err
		}
		opts.Sources, err = a.fixtures.Registrations()
		if err != nil {
			return err
		}
	}

	a.svc, err = confidence.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	if a.fixtures != nil {
		for _, d := range a.fixtures.Developers {
			a.svc.ObserveDeveloper(d.Developer, d.Module, d.Signals)
		}
	}
	return nil
}

// close releases everything open acquired. Safe to call when open failed
// part way or never ran.
func (a *app) close() error {
	ctx := context.Background()
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Close(ctx))
	}
	if a.flags.metricsOut != "" {
		errs = append(errs, writeMetrics(a.flags.metricsOut))
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	if a.cancel != nil {
		a.cancel()
	}
	return errors.Join(errs...)
}

func writeMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer f.Close()
	return telemetry.WriteText(f)
}

func defaultStorePath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.aleutian/confidence/store"
	}
	return ".aleutian/confidence/store"
}
