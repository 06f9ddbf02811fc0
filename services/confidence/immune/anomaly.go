// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package immune

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// AnomalyConfig tunes the AnomalyDetector.
type AnomalyConfig struct {
	// Window is the number of most recent actions considered per developer.
	// Default: 50.
	Window int `yaml:"window" validate:"gte=0"`

	// MinSamples is how many actions must be in the window before the
	// detector can fire. Default: 10.
	MinSamples int `yaml:"min_samples" validate:"gte=0"`

	// DismissThreshold is the dismiss-rate above which a stream is flagged.
	// Default: 0.8.
	DismissThreshold float64 `yaml:"dismiss_threshold" validate:"gte=0,lte=1"`
}

// DefaultAnomalyConfig returns the production defaults.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{Window: 50, MinSamples: 10, DismissThreshold: 0.8}
}

type stream struct {
	window    *ring[bool]
	suspended bool
}

// AnomalyDetector watches each developer's feedback stream for a
// dismiss-rate that suggests the stream is gaming the priors.
//
// # Thread Safety
//
// Safe for concurrent use.
type AnomalyDetector struct {
	cfg    AnomalyConfig
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

// NewAnomalyDetector creates a detector. Zero fields in cfg take defaults.
func NewAnomalyDetector(cfg AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	def := DefaultAnomalyConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinSamples > cfg.Window {
		cfg.MinSamples = cfg.Window
	}
	if cfg.DismissThreshold <= 0 {
		cfg.DismissThreshold = def.DismissThreshold
	}
	return &AnomalyDetector{
		cfg:     cfg,
		logger:  logging.OrDefault(logger),
		streams: make(map[string]*stream),
	}
}

// Observe records one action from developer and decides whether it may
// update priors.
//
// # Inputs
//
//   - developer: Stream identity.
//   - dismissal: True for actions that dismiss or ignore a warning.
//
// # Outputs
//
//   - error: Wraps ErrFeedbackPoisoning if the stream is (or has just
//     become) suspended. The action must not be applied in that case.
func (d *AnomalyDetector) Observe(developer string, dismissal bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.streams[developer]
	if !ok {
		s = &stream{window: newRing[bool](d.cfg.Window)}
		d.streams[developer] = s
	}
	if s.suspended {
		rejectedFeedbackTotal.Inc()
		return fmt.Errorf("%w: stream %q suspended pending review", ErrFeedbackPoisoning, developer)
	}

	s.window.push(dismissal)
	rate, n := dismissRate(s.window)
	if n >= d.cfg.MinSamples && rate > d.cfg.DismissThreshold {
		s.suspended = true
		poisoningTotal.Inc()
		d.logger.Warn("feedback stream suspended",
			slog.String("developer", developer),
			slog.Float64("dismiss_rate", rate),
			slog.Int("window", n),
		)
		return fmt.Errorf("%w: developer %q dismiss rate %.2f over %d actions",
			ErrFeedbackPoisoning, developer, rate, n)
	}
	return nil
}

// Suspended reports whether developer's stream is currently suspended.
func (d *AnomalyDetector) Suspended(developer string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[developer]
	return ok && s.suspended
}

// DismissRate returns developer's current dismiss-rate and window size.
func (d *AnomalyDetector) DismissRate(developer string) (float64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[developer]
	if !ok {
		return 0, 0
	}
	return dismissRate(s.window)
}

// Review lifts a suspension and clears the stream's window, so the stream
// starts over rather than immediately re-tripping on the same history.
func (d *AnomalyDetector) Review(developer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.streams[developer]; ok {
		d.streams[developer] = &stream{window: newRing[bool](d.cfg.Window)}
		d.logger.Info("feedback stream reviewed", slog.String("developer", developer))
	}
}

// Forget drops all state for developer.
func (d *AnomalyDetector) Forget(developer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streams, developer)
}

func dismissRate(w *ring[bool]) (float64, int) {
	n := w.len()
	if n == 0 {
		return 0, 0
	}
	dismissed := 0
	w.each(func(b bool) {
		if b {
			dismissed++
		}
	})
	return float64(dismissed) / float64(n), n
}
