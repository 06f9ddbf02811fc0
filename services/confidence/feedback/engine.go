// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/store"
)

const shardCount = 16

// Config tunes the EMA.
type Config struct {
	// Alpha is the EMA learning rate in (0,1]. Default: 0.1.
	Alpha float64 `yaml:"alpha" validate:"gte=0,lte=1"`

	// InitialPrior is the prior for a (developer, module) never seen.
	// Default: 0.5.
	InitialPrior float64 `yaml:"initial_prior" validate:"gte=0,lte=1"`
}

// DefaultConfig returns α = 0.1 and a 0.5 starting prior.
func DefaultConfig() Config {
	return Config{Alpha: DefaultAlpha, InitialPrior: DefaultInitialPrior}
}

// Persister is the slice of the local store the engine needs.
// *store.Store implements it.
type Persister interface {
	SavePriors(ctx context.Context, priors map[store.PriorKey]store.Prior) error
	LoadPriors(ctx context.Context) (map[store.PriorKey]store.Prior, error)
	DeletePriors(ctx context.Context, developer string) (int, error)
}

// Guard screens each action before it may move a prior.
// *immune.AnomalyDetector implements it.
type Guard interface {
	Observe(developer string, dismissal bool) error
	Review(developer string)
	Forget(developer string)
}

// Change describes one applied update.
type Change struct {
	Developer string
	Module    string
	Action    Action
	Old       float64
	New       float64
	Updates   uint64
}

// Options wires the engine's collaborators. All fields are optional.
type Options struct {
	Store  Persister
	Guard  Guard
	Logger *slog.Logger

	// OnChange is called after every applied update, outside engine locks.
	OnChange func(ctx context.Context, c Change)
}

type entry struct {
	value   float64
	updates uint64
	dirty   bool
}

type shard struct {
	mu     sync.Mutex
	priors map[store.PriorKey]*entry
}

// Engine holds the per-(developer, module) priors.
//
// # Thread Safety
//
// Safe for concurrent use. Updates to different keys proceed in parallel;
// keys are spread over independently locked shards.
type Engine struct {
	cfg    Config
	opts   Options
	logger *slog.Logger
	shards [shardCount]shard

	// persistMu orders Flush against Forget so a flush never writes back
	// priors deleted while it was saving.
	persistMu sync.Mutex
}

// New creates an engine and loads any priors held by opts.Store.
//
// # Inputs
//
//   - ctx: Used for the initial load.
//   - cfg: EMA parameters. Zero Alpha takes the default.
//   - opts: Store, guard, logger and change hook.
//
// # Outputs
//
//   - *Engine: Ready engine. Call Close to flush.
//   - error: Non-nil if stored priors cannot be read.
func New(ctx context.Context, cfg Config, opts Options) (*Engine, error) {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultAlpha
	}
	cfg.InitialPrior = clamp01(cfg.InitialPrior)

	e := &Engine{cfg: cfg, opts: opts, logger: logging.OrDefault(opts.Logger)}
	for i := range e.shards {
		e.shards[i].priors = make(map[store.PriorKey]*entry)
	}

	if opts.Store != nil {
		loaded, err := opts.Store.LoadPriors(ctx)
		if err != nil {
			return nil, fmt.Errorf("load priors: %w", err)
		}
		for k, p := range loaded {
			e.shardFor(k).priors[k] = &entry{value: clamp01(p.Value), updates: p.Updates}
		}
		e.logger.Debug("feedback priors loaded", slog.Int("count", len(loaded)))
	}
	return e, nil
}

func (e *Engine) shardFor(k store.PriorKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.Developer))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.Module))
	return &e.shards[h.Sum32()%shardCount]
}

// Alpha returns the configured learning rate.
func (e *Engine) Alpha() float64 { return e.cfg.Alpha }

// Record applies action to the (developer, module) prior.
//
// # Outputs
//
//   - Change: The applied update.
//   - error: Wraps immune.ErrFeedbackPoisoning when the guard suspends the
//     stream (non-fatal; the prior is unchanged), or ErrUnknownAction.
func (e *Engine) Record(ctx context.Context, developer, module string, action Action) (Change, error) {
	ev, err := action.Evidence()
	if err != nil {
		return Change{}, err
	}
	_ = initMetrics()

	if e.opts.Guard != nil {
		if err := e.opts.Guard.Observe(developer, action.Dismissal()); err != nil {
			if rejectedTotal != nil {
				rejectedTotal.Add(ctx, 1)
			}
			e.logger.Warn("feedback not applied",
				slog.String("developer", developer),
				slog.String("module", module),
				slog.String("action", action.String()),
				slog.String("error", err.Error()),
			)
			return Change{}, err
		}
	}

	k := store.PriorKey{Developer: developer, Module: module}
	s := e.shardFor(k)
	s.mu.Lock()
	ent, ok := s.priors[k]
	if !ok {
		ent = &entry{value: e.cfg.InitialPrior}
		s.priors[k] = ent
	}
	c := Change{Developer: developer, Module: module, Action: action, Old: ent.value}
	ent.value = Update(ent.value, ev, e.cfg.Alpha)
	ent.updates++
	ent.dirty = true
	c.New, c.Updates = ent.value, ent.updates
	s.mu.Unlock()

	if updatesTotal != nil {
		updatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action.String())))
	}
	if e.opts.OnChange != nil {
		e.opts.OnChange(ctx, c)
	}
	return c, nil
}

// Prior returns the current prior, or the initial prior if none exists.
func (e *Engine) Prior(developer, module string) float64 {
	k := store.PriorKey{Developer: developer, Module: module}
	s := e.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok := s.priors[k]; ok {
		return ent.value
	}
	return e.cfg.InitialPrior
}

// Updates returns how many actions have been folded into the prior.
func (e *Engine) Updates(developer, module string) uint64 {
	k := store.PriorKey{Developer: developer, Module: module}
	s := e.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok := s.priors[k]; ok {
		return ent.updates
	}
	return 0
}

// Personalized reports whether the prior has absorbed at least
// PersonalizedAbsorption of the developer's evidence.
func (e *Engine) Personalized(developer, module string) bool {
	return AbsorbedFraction(e.cfg.Alpha, int(e.Updates(developer, module))) >= PersonalizedAbsorption
}

// Snapshot returns the priors of developer, or of everyone when developer
// is empty.
func (e *Engine) Snapshot(developer string) map[store.PriorKey]store.Prior {
	out := make(map[store.PriorKey]store.Prior)
	for i := range e.shards {
		s := &e.shards[i]
		s.mu.Lock()
		for k, ent := range s.priors {
			if developer == "" || k.Developer == developer {
				out[k] = store.Prior{Value: ent.value, Updates: ent.updates}
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Review lifts a poisoning suspension for developer.
func (e *Engine) Review(developer string) {
	if e.opts.Guard != nil {
		e.opts.Guard.Review(developer)
	}
}

// Forget deletes the priors of developer (everyone when empty) from memory
// and from the store.
func (e *Engine) Forget(ctx context.Context, developer string) (int, error) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	removed := 0
	for i := range e.shards {
		s := &e.shards[i]
		s.mu.Lock()
		for k := range s.priors {
			if developer == "" || k.Developer == developer {
				delete(s.priors, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if e.opts.Guard != nil && developer != "" {
		e.opts.Guard.Forget(developer)
	}
	if e.opts.Store != nil {
		n, err := e.opts.Store.DeletePriors(ctx, developer)
		if err != nil {
			return removed, fmt.Errorf("delete stored priors: %w", err)
		}
		if n > removed {
			removed = n
		}
	}
	e.logger.Info("feedback priors deleted",
		slog.String("developer", developer),
		slog.Int("count", removed),
	)
	return removed, nil
}

// Flush writes every changed prior to the store.
func (e *Engine) Flush(ctx context.Context) error {
	if e.opts.Store == nil {
		return nil
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	dirty := make(map[store.PriorKey]store.Prior)
	for i := range e.shards {
		s := &e.shards[i]
		s.mu.Lock()
		for k, ent := range s.priors {
			if ent.dirty {
				dirty[k] = store.Prior{Value: ent.value, Updates: ent.updates}
			}
		}
		s.mu.Unlock()
	}
	if len(dirty) == 0 {
		return nil
	}
	if err := e.opts.Store.SavePriors(ctx, dirty); err != nil {
		return fmt.Errorf("flush priors: %w", err)
	}
	for i := range e.shards {
		s := &e.shards[i]
		s.mu.Lock()
		for k, ent := range s.priors {
			if p, ok := dirty[k]; ok && p.Updates == ent.updates {
				ent.dirty = false
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Close flushes priors to the store.
func (e *Engine) Close(ctx context.Context) error {
	return e.Flush(ctx)
}
