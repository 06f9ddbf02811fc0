// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

// Default reliabilities: P(source reports pass | criterion holds).
const (
	DefaultProvenReliability    = 0.95
	DefaultEstimatedReliability = 0.75
)

// Registration binds a Source to the criterion it informs.
type Registration struct {
	Source    Source
	Criterion aggregate.Criterion

	// Weight is the source's share of aggregation weight. Default: 1.
	Weight float64

	// Reliability in (0.5,1) shapes the source's observation CPT in the
	// Bayesian network. Default depends on the proof class.
	Reliability float64

	// Timeout overrides the collector's per-source timeout.
	Timeout time.Duration

	// RatePerSecond limits calls into the source. Zero means unlimited.
	RatePerSecond float64

	// Burst is the limiter burst. Default: 1.
	Burst int
}

// Name returns the bound source's name.
func (r Registration) Name() string { return r.Source.Name() }

// Record is the provenance of one evidence value used in a score.
type Record struct {
	Source      string              `json:"source"`
	Kind        Kind                `json:"kind"`
	Criterion   aggregate.Criterion `json:"criterion"`
	Proof       ProofClass          `json:"proof"`
	MLDerived   bool                `json:"ml_derived"`
	Weight      float64             `json:"weight"`
	Reliability float64             `json:"reliability"`

	// Available is false when neither a fresh nor a cached value exists.
	Available bool    `json:"available"`
	Value     float64 `json:"value"`

	HasKillRate bool    `json:"has_kill_rate,omitempty"`
	KillRate    float64 `json:"kill_rate,omitempty"`

	// Degraded marks a cached stand-in for a failed or timed-out source.
	// Degraded records are always Estimated.
	Degraded bool      `json:"degraded,omitempty"`
	Err      string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// CollectorConfig tunes a Collector.
type CollectorConfig struct {
	// Timeout bounds each source call. Default: 2s.
	Timeout time.Duration

	// Concurrency caps in-flight source calls per Collect. Zero is
	// unlimited.
	Concurrency int
}

type binding struct {
	Registration
	limiter *rate.Limiter
}

type fetched struct {
	value    float64
	killRate float64
	hasKill  bool
}

type cached struct {
	fetched
	at time.Time
}

// Collector queries registered sources concurrently.
//
// # Description
//
// Each Collect fans out one goroutine per source (errgroup). Every call is
// bounded by a timeout and an optional rate limiter; identical in-flight
// requests for the same (source, unit) are collapsed with singleflight.
// A failed call falls back to the last good value for that pair.
//
// # Thread Safety
//
// Safe for concurrent use.
type Collector struct {
	cfg    CollectorConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	bindings []*binding
	byName   map[string]int

	flight singleflight.Group

	cacheMu sync.RWMutex
	cache   map[string]cached
}

// NewCollector creates an empty collector.
func NewCollector(cfg CollectorConfig, logger *slog.Logger) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Collector{
		cfg:    cfg,
		logger: logging.OrDefault(logger),
		now:    time.Now,
		byName: make(map[string]int),
		cache:  make(map[string]cached),
	}
}

// Register adds a source binding.
//
// # Outputs
//
//   - error: ErrInvalidRegistration for a nil source, unknown criterion or
//     invalid weight; ErrDuplicateSource if the name is taken.
func (c *Collector) Register(reg Registration) error {
	if reg.Source == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidRegistration)
	}
	name := reg.Source.Name()
	if name == "" {
		return fmt.Errorf("%w: source has no name", ErrInvalidRegistration)
	}
	if !reg.Criterion.Valid() {
		return fmt.Errorf("%w: %s: unknown criterion %q", ErrInvalidRegistration, name, reg.Criterion)
	}
	if reg.Weight == 0 {
		reg.Weight = 1
	}
	if reg.Weight < 0 || math.IsNaN(reg.Weight) || math.IsInf(reg.Weight, 0) {
		return fmt.Errorf("%w: %s: weight %v", ErrInvalidRegistration, name, reg.Weight)
	}
	if reg.Reliability <= 0.5 || reg.Reliability >= 1 || math.IsNaN(reg.Reliability) {
		reg.Reliability = DefaultEstimatedReliability
		if reg.Source.ProofClass() == Proven {
			reg.Reliability = DefaultProvenReliability
		}
	}

	b := &binding{Registration: reg}
	if reg.RatePerSecond > 0 {
		burst := reg.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(reg.RatePerSecond), burst)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}
	c.byName[name] = len(c.bindings)
	c.bindings = append(c.bindings, b)
	return nil
}

// Registrations returns the bindings in registration order.
func (c *Collector) Registrations() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Registration, len(c.bindings))
	for i, b := range c.bindings {
		out[i] = b.Registration
	}
	return out
}

// Collect queries every registered source for unit.
//
// # Inputs
//
//   - ctx: Cancelling ctx aborts outstanding calls.
//   - unit: The code unit to score.
//
// # Outputs
//
//   - []Record: One record per registration, in registration order. Source
//     failures are reported in the records, never as an error.
//   - error: Non-nil only if ctx was cancelled.
func (c *Collector) Collect(ctx context.Context, unit Unit) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.Collector.Collect")
	defer span.End()
	span.SetAttributes(attribute.String("evidence.unit", unit.Key()))

	c.mu.RLock()
	bindings := append([]*binding(nil), c.bindings...)
	c.mu.RUnlock()

	records := make([]Record, len(bindings))
	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Concurrency > 0 {
		g.SetLimit(c.cfg.Concurrency)
	}
	for i, b := range bindings {
		g.Go(func() error {
			records[i] = c.collectOne(gctx, b, unit)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect evidence for %s: %w", unit, err)
	}

	degraded := 0
	for _, r := range records {
		if r.Degraded || !r.Available {
			degraded++
		}
	}
	span.SetAttributes(
		attribute.Int("evidence.sources", len(records)),
		attribute.Int("evidence.degraded", degraded),
	)
	return records, nil
}

func (c *Collector) collectOne(ctx context.Context, b *binding, unit Unit) Record {
	src := b.Source
	rec := Record{
		Source:      src.Name(),
		Kind:        src.Kind(),
		Criterion:   b.Criterion,
		Proof:       src.ProofClass(),
		MLDerived:   src.MLDerived(),
		Weight:      b.Weight,
		Reliability: b.Reliability,
		At:          c.now(),
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	key := src.Name() + "\x00" + unit.Key()

	start := time.Now()
	ch := c.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if b.limiter != nil {
			if err := b.limiter.Wait(fctx); err != nil {
				return nil, fmt.Errorf("rate limited: %w", err)
			}
		}
		res, err := fetch(fctx, src, unit)
		if err != nil {
			return nil, err
		}
		// A call that outlives its caller still refreshes the cache.
		c.cacheMu.Lock()
		c.cache[key] = cached{fetched: res, at: c.now()}
		c.cacheMu.Unlock()
		return res, nil
	})

	// The source may ignore ctx; the caller stops waiting at the deadline
	// and leaves the call to finish in the background.
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	var (
		v   any
		err error
	)
	select {
	case r := <-ch:
		v, err = r.Val, r.Err
	case <-wait.C:
		err = fmt.Errorf("source exceeded %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		err = ctx.Err()
	}
	elapsed := time.Since(start)

	if err == nil {
		res, ok := v.(fetched)
		if !ok {
			err = fmt.Errorf("unexpected type from singleflight: %T", v)
		} else {
			rec.Available = true
			rec.Value = res.value
			rec.HasKillRate = res.hasKill
			rec.KillRate = res.killRate
			recordFetch(ctx, rec.Source, "ok", elapsed)
			return rec
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		recordFetch(ctx, rec.Source, "timeout", elapsed)
	} else {
		recordFetch(ctx, rec.Source, "error", elapsed)
	}
	rec.Err = fmt.Errorf("%w: %s: %v", ErrEvidenceUnavailable, rec.Source, err).Error()

	c.cacheMu.RLock()
	last, ok := c.cache[key]
	c.cacheMu.RUnlock()
	if ok {
		rec.Available = true
		rec.Degraded = true
		rec.Proof = Estimated
		rec.Value = last.value
		rec.HasKillRate = last.hasKill
		rec.KillRate = last.killRate
	}
	c.logger.Warn("evidence source unavailable",
		slog.String("source", rec.Source),
		slog.String("unit", unit.Key()),
		slog.Bool("cached_fallback", ok),
		slog.String("error", err.Error()),
	)
	return rec
}

// fetch dispatches on the source's Kind tag.
func fetch(ctx context.Context, src Source, unit Unit) (fetched, error) {
	switch src.Kind() {
	case KindTestRunner:
		if tr, ok := src.(*TestRunner); ok {
			rep, err := tr.Report(ctx, unit)
			if err != nil {
				return fetched{}, err
			}
			return fetched{value: rep.PassRate, killRate: rep.KillRate, hasKill: !math.IsNaN(rep.KillRate)}, nil
		}
	case KindFixed:
		if fx, ok := src.(*Fixed); ok {
			v, err := fx.Value(ctx, unit)
			if err != nil {
				return fetched{}, err
			}
			kr, has := fx.KillRate(unit)
			return fetched{value: v, killRate: kr, hasKill: has}, nil
		}
	}
	v, err := src.Value(ctx, unit)
	if err != nil {
		return fetched{}, err
	}
	return fetched{value: clamp01(v)}, nil
}
