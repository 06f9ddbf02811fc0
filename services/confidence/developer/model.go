// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package developer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

// Combination selects how the seven signals become one value.
type Combination string

const (
	// CombineWeighted is the normalized weighted mean. Monotonic in every
	// signal with a positive weight.
	CombineWeighted Combination = "weighted"

	// CombineCVaR is the pessimistic CVaR rule used for code confidence.
	CombineCVaR Combination = "cvar"
)

// DefaultExpertThreshold is the C(dev, module) a developer must exceed to
// count toward the bus factor.
const DefaultExpertThreshold = 0.8

// Config configures a Model.
type Config struct {
	Combination     Combination `yaml:"combination" validate:"omitempty,oneof=weighted cvar"`
	Weights         Weights     `yaml:"weights"`
	Alpha           float64     `yaml:"alpha" validate:"omitempty,gt=0,lt=1"`
	ExpertThreshold float64     `yaml:"expert_threshold" validate:"omitempty,gt=0,lt=1"`
}

// DefaultConfig returns the weighted combination with DefaultWeights.
func DefaultConfig() Config {
	return Config{
		Combination:     CombineWeighted,
		Weights:         DefaultWeights(),
		Alpha:           aggregate.DefaultAlpha,
		ExpertThreshold: DefaultExpertThreshold,
	}
}

// FlowSource supplies the flow signal. The feedback engine satisfies it
// with its per-(developer, module) prior.
type FlowSource interface {
	Prior(developer, module string) float64
}

// Assessment is one computed C(developer, module).
type Assessment struct {
	Developer   string
	Module      string
	Value       float64
	Signals     Signals
	Combination Combination
}

// BusFactor is the expert count for one module.
type BusFactor struct {
	Module        string
	Experts       []string
	Count         int
	KnowledgeRisk bool
}

type key struct{ developer, module string }

// Model holds observed signals and computes developer confidence.
//
// # Thread Safety
//
// Safe for concurrent use.
type Model struct {
	cfg    Config
	flow   FlowSource
	logger *slog.Logger

	mu      sync.RWMutex
	signals map[key]Signals
}

// NewModel validates cfg and returns an empty model. flow may be nil, in
// which case the observed Flow signal is used as is.
func NewModel(cfg Config, flow FlowSource, logger *slog.Logger) (*Model, error) {
	def := DefaultConfig()
	if cfg.Combination == "" {
		cfg.Combination = def.Combination
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = def.Alpha
	}
	if cfg.ExpertThreshold == 0 {
		cfg.ExpertThreshold = def.ExpertThreshold
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}

	switch cfg.Combination {
	case CombineWeighted, CombineCVaR:
	default:
		return nil, fmt.Errorf("%w: combination %q", ErrInvalidConfig, cfg.Combination)
	}
	var total float64
	for _, w := range cfg.Weights.vector() {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight", ErrInvalidConfig)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidConfig)
	}

	return &Model{
		cfg:     cfg,
		flow:    flow,
		logger:  logging.OrDefault(logger),
		signals: make(map[key]Signals),
	}, nil
}

// Observe records the latest signals for (developer, module).
func (m *Model) Observe(developer, module string, s Signals) {
	m.mu.Lock()
	m.signals[key{developer, module}] = s
	m.mu.Unlock()
}

// Forget drops every signal recorded for developer.
func (m *Model) Forget(developer string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.signals {
		if k.developer == developer {
			delete(m.signals, k)
			n++
		}
	}
	return n
}

// Compute returns C(developer, module).
//
// # Outputs
//
//   - Assessment: Value in [0,1] plus the signals used, with Flow replaced
//     by the FlowSource prior when one is configured.
//   - error: Wraps ErrUnknownDeveloper if nothing was observed.
func (m *Model) Compute(developer, module string) (Assessment, error) {
	m.mu.RLock()
	s, ok := m.signals[key{developer, module}]
	m.mu.RUnlock()
	if !ok {
		return Assessment{}, fmt.Errorf("%w: %s in %s", ErrUnknownDeveloper, developer, module)
	}
	return m.assess(developer, module, s), nil
}

func (m *Model) assess(developer, module string, s Signals) Assessment {
	if m.flow != nil {
		s.Flow = m.flow.Prior(developer, module)
	}
	return Assessment{
		Developer:   developer,
		Module:      module,
		Value:       m.combine(s.Normalized()),
		Signals:     s,
		Combination: m.cfg.Combination,
	}
}

func (m *Model) combine(v [7]float64) float64 {
	if m.cfg.Combination == CombineCVaR {
		c, err := aggregate.CVaR(v[:], m.cfg.Alpha)
		if err != nil {
			return 0
		}
		return c
	}
	w := m.cfg.Weights.vector()
	var num, den float64
	for i := range v {
		num += w[i] * v[i]
		den += w[i]
	}
	return clamp01(num / den)
}

// Developers returns every developer with signals for module, sorted.
func (m *Model) Developers(module string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.signals {
		if k.module == module {
			out = append(out, k.developer)
		}
	}
	sort.Strings(out)
	return out
}

// BusFactor counts developers whose C(dev, module) strictly exceeds the
// expert threshold. A count of one or zero is a knowledge risk.
func (m *Model) BusFactor(module string) BusFactor {
	m.mu.RLock()
	snapshot := make(map[string]Signals)
	for k, s := range m.signals {
		if k.module == module {
			snapshot[k.developer] = s
		}
	}
	m.mu.RUnlock()

	bf := BusFactor{Module: module}
	for dev, s := range snapshot {
		if m.assess(dev, module, s).Value > m.cfg.ExpertThreshold {
			bf.Experts = append(bf.Experts, dev)
		}
	}
	sort.Strings(bf.Experts)
	bf.Count = len(bf.Experts)
	bf.KnowledgeRisk = bf.Count <= 1
	if bf.KnowledgeRisk {
		m.logger.Info("module has knowledge risk",
			slog.String("module", module),
			slog.Int("bus_factor", bf.Count),
		)
	}
	return bf
}

// ChangeConfidence is C(code) × C(developer, module), each clamped to [0,1].
func ChangeConfidence(code, dev float64) float64 {
	return clamp01(code) * clamp01(dev)
}
