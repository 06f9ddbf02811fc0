// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confidence

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/developer"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/feedback"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/immune"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/telemetry"
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the top-level service configuration, loadable from YAML.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after New.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Inference   InferenceConfig   `yaml:"inference"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Propagation propagate.Config  `yaml:"propagation"`
	Graph       GraphConfig       `yaml:"graph"`
	Feedback    feedback.Config   `yaml:"feedback"`
	Immune      ImmuneConfig      `yaml:"immune"`
	Developer   developer.Config  `yaml:"developer"`
	Gate        GateConfig        `yaml:"gate"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
}

// StoreConfig locates the local store.
type StoreConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path" validate:"required_without=InMemory"`

	// InMemory keeps all state in memory (tests, dry runs).
	InMemory bool `yaml:"in_memory"`
}

// InferenceConfig steers the Bayesian network engine.
type InferenceConfig struct {
	// Method is "auto", "ve", "bp" or "jt".
	Method string `yaml:"method" validate:"oneof=auto ve bp jt"`

	// MaxIter caps belief propagation iterations.
	MaxIter int `yaml:"max_iter" validate:"gte=1,lte=10000"`

	// Tolerance is the BP convergence threshold.
	Tolerance float64 `yaml:"tolerance" validate:"gt=0,lt=1"`

	// ChainCoupling is P(criterion holds | upstream fails) relative to the
	// prior, in [0,1]. 1 decouples the chain.
	ChainCoupling float64 `yaml:"chain_coupling" validate:"gte=0,lte=1"`
}

// AggregationConfig sets the CVaR level.
type AggregationConfig struct {
	Alpha float64 `yaml:"alpha" validate:"gt=0,lt=1"`
}

// EvidenceConfig bounds evidence collection.
type EvidenceConfig struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
}

// GraphConfig points at the static-analysis dependency snapshot.
type GraphConfig struct {
	// Snapshot is a YAML dependency export. Empty disables loading.
	Snapshot string `yaml:"snapshot"`

	// Watch reloads the snapshot when it changes.
	Watch bool `yaml:"watch"`

	// Debounce is the watcher's settle window.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// ImmuneConfig tunes the safety layer.
type ImmuneConfig struct {
	KillRateThreshold float64              `yaml:"kill_rate_threshold" validate:"gt=0,lte=1"`
	MLCap             float64              `yaml:"ml_cap" validate:"gte=0,lt=1"`
	MaxAge            time.Duration        `yaml:"max_age" validate:"gt=0"`
	Anomaly           immune.AnomalyConfig `yaml:"anomaly"`
}

// GateConfig configures ship gating.
type GateConfig struct {
	// Threshold is the minimum C(change) that passes.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`

	// UnknownDeveloper is C(dev, module) for a developer with no signals.
	UnknownDeveloper float64 `yaml:"unknown_developer" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the documented defaults with an in-memory store.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{InMemory: true},
		Inference: InferenceConfig{
			Method:        "auto",
			MaxIter:       50,
			Tolerance:     1e-4,
			ChainCoupling: 0.5,
		},
		Aggregation: AggregationConfig{Alpha: aggregate.DefaultAlpha},
		Evidence:    EvidenceConfig{Timeout: 2 * time.Second},
		Propagation: propagate.DefaultConfig(),
		Graph:       GraphConfig{Debounce: 200 * time.Millisecond},
		Feedback:    feedback.DefaultConfig(),
		Immune: ImmuneConfig{
			KillRateThreshold: immune.DefaultKillRateThreshold,
			MLCap:             immune.DefaultMLCap,
			MaxAge:            immune.DefaultMaxAge,
			Anomaly:           immune.DefaultAnomalyConfig(),
		},
		Developer: developer.DefaultConfig(),
		Gate:      GateConfig{Threshold: 0.6, UnknownDeveloper: 0.5},
		Telemetry: telemetry.Config{ServiceName: "aleutian-confidence", TraceExporter: "none", MetricExporter: "none"},
	}
}

var configValidate = validator.New()

// Validate checks every struct tag constraint.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads configPath over DefaultConfig, applies environment
// overrides and validates the result. An empty path skips the file.
//
// Environment overrides:
//   - ALEUTIAN_CONFIDENCE_STORE: store path (disables in-memory)
//   - ALEUTIAN_CONFIDENCE_METHOD: inference method
//   - ALEUTIAN_CONFIDENCE_GATE_THRESHOLD: ship gate threshold
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ALEUTIAN_CONFIDENCE_STORE"); v != "" {
		cfg.Store.Path = v
		cfg.Store.InMemory = false
	}
	if v := os.Getenv("ALEUTIAN_CONFIDENCE_METHOD"); v != "" {
		cfg.Inference.Method = v
	}
	if v := os.Getenv("ALEUTIAN_CONFIDENCE_GATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Gate.Threshold = f
		}
	}
}
