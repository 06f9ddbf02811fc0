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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/bayes"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/developer"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/feedback"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/field"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/immune"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/store"
)

// Options wires collaborators that do not belong in Config.
type Options struct {
	// Store is an open store. Nil opens one from Config.Store, which the
	// service then owns and closes.
	Store *store.Store

	// Logger for every component. Nil uses slog.Default().
	Logger *slog.Logger

	// Now is the clock used for ComputedAt and staleness. Nil uses time.Now.
	Now func() time.Time

	// Sources are registered before New returns.
	Sources []evidence.Registration

	// ModuleOf maps a file to its module. Default: the file's directory.
	ModuleOf func(file string) string

	// OnGraphRefresh is called after each snapshot reload when
	// Config.Graph.Watch is set.
	OnGraphRefresh func(propagate.RefreshStats)
}

// Service scores code units, propagates file score changes, gates changes
// and closes the feedback loop.
//
// # Thread Safety
//
// Safe for concurrent use.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	moduleOf func(string) string

	store    *store.Store
	ownStore bool

	collector  *evidence.Collector
	inference  *bayes.Engine
	mutation   immune.MutationValidator
	mlcap      immune.MLCap
	decay      immune.TemporalDecay
	anomaly    *immune.AnomalyDetector
	audit      *immune.AuditLog
	feedback   *feedback.Engine
	developers *developer.Model
	graph      *propagate.Graph
	propagator *propagate.Engine
	watcher    *propagate.SnapshotWatcher
	field      *field.Field

	mu     sync.RWMutex
	scores map[string]Score

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// New builds a service from cfg.
//
// # Description
//
// Opens (or adopts) the local store, resumes the audit chain and feedback
// priors from it, registers opts.Sources and loads the dependency snapshot
// when one is configured.
//
// # Outputs
//
//   - *Service: Running service. Caller must Close it.
//   - error: ErrInvalidConfig, or a store, audit or snapshot failure.
func New(ctx context.Context, cfg Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, err := bayes.ParseMethod(cfg.Inference.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := logging.OrDefault(opts.Logger)
	s := &Service{
		cfg:      cfg,
		logger:   logger,
		now:      opts.Now,
		moduleOf: opts.ModuleOf,
		store:    opts.Store,
		mutation: immune.NewMutationValidator(cfg.Immune.KillRateThreshold),
		mlcap:    immune.NewMLCap(cfg.Immune.MLCap),
		decay:    immune.NewTemporalDecay(cfg.Immune.MaxAge),
		field:    field.New(logger),
		scores:   make(map[string]Score),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.moduleOf == nil {
		s.moduleOf = defaultModuleOf
	}

	if s.store == nil {
		if cfg.Store.InMemory {
			s.store, err = store.OpenInMemory()
		} else {
			sc := store.DefaultConfig(cfg.Store.Path)
			sc.Logger = logger
			s.store, err = store.Open(sc)
		}
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.ownStore = true
	}

	s.collector = evidence.NewCollector(evidence.CollectorConfig{
		Timeout:     cfg.Evidence.Timeout,
		Concurrency: cfg.Evidence.Concurrency,
	}, logger)
	for _, reg := range opts.Sources {
		if err := s.collector.Register(reg); err != nil {
			s.abort()
			return nil, err
		}
	}

	s.inference = bayes.NewEngine(bayes.Options{
		Method:    method,
		MaxIter:   cfg.Inference.MaxIter,
		Tolerance: cfg.Inference.Tolerance,
	}, logger)

	s.anomaly = immune.NewAnomalyDetector(cfg.Immune.Anomaly, logger)
	s.audit, err = immune.NewAuditLog(ctx, immune.AuditLogOptions{
		Persister: s.store,
		Logger:    logger,
		Now:       s.now,
	})
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	s.feedback, err = feedback.New(ctx, cfg.Feedback, feedback.Options{
		Store:    s.store,
		Guard:    s.anomaly,
		Logger:   logger,
		OnChange: s.onFeedback,
	})
	if err != nil {
		s.abort()
		return nil, err
	}

	s.developers, err = developer.NewModel(cfg.Developer, s.feedback, logger)
	if err != nil {
		s.abort()
		return nil, err
	}

	s.graph = propagate.NewGraph(logger)
	s.propagator = propagate.NewEngine(s.graph, cfg.Propagation, propagate.Options{
		Logger:   logger,
		OnUpdate: s.onPropagated,
	})
	if cfg.Graph.Snapshot != "" {
		if err := s.loadGraph(ctx, opts.OnGraphRefresh); err != nil {
			s.abort()
			return nil, err
		}
	}

	logger.Info("confidence service started",
		slog.Bool("in_memory", s.store.InMemory()),
		slog.Int("sources", len(opts.Sources)),
		slog.Int("audit_entries", s.audit.Len()),
		slog.String("inference", method.String()),
	)
	return s, nil
}

func (s *Service) loadGraph(ctx context.Context, onRefresh func(propagate.RefreshStats)) error {
	if !s.cfg.Graph.Watch {
		snap, err := propagate.LoadSnapshotFile(s.cfg.Graph.Snapshot)
		if err != nil {
			return err
		}
		s.graph.Refresh(ctx, snap)
		return nil
	}
	w, err := propagate.NewSnapshotWatcher(s.cfg.Graph.Snapshot, s.graph, &propagate.WatcherOptions{
		Debounce:  s.cfg.Graph.Debounce,
		OnRefresh: onRefresh,
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// abort releases whatever New managed to open.
func (s *Service) abort() {
	if s.audit != nil {
		_ = s.audit.Close()
	}
	if s.ownStore && s.store != nil {
		_ = s.store.Close()
	}
}

func defaultModuleOf(file string) string {
	return filepath.ToSlash(filepath.Dir(file))
}

// Register adds an evidence source after construction.
func (s *Service) Register(reg evidence.Registration) error {
	return s.collector.Register(reg)
}

// Field returns the read-only score surface.
func (s *Service) Field() field.Reader { return s.field.Reader() }

// Graph returns the dependency graph.
func (s *Service) Graph() *propagate.Graph { return s.graph }

// ModuleOf returns the module a file belongs to.
func (s *Service) ModuleOf(file string) string { return s.moduleOf(file) }

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// =============================================================================
// Scoring
// =============================================================================

// ScoreUnit collects evidence for unit and commits a fresh score.
//
// # Description
//
// Evidence is gathered concurrently. Proven test-runner values pass the
// mutation gate; the remaining non-ML evidence conditions the Bayesian
// network whose priors come from the developer's feedback prior for the
// unit's module. ML-derived evidence is blended into each posterior under
// the ML cap, and the six criteria are reduced with CVaR. The score is
// audited and published.
//
// # Inputs
//
//   - ctx: Bounds evidence collection.
//   - developer: Whose priors apply. Empty uses the initial prior.
//   - unit: File or file:line.
//
// # Outputs
//
//   - Score: The committed score.
//   - error: Inference or audit failures; unavailable sources degrade the
//     score instead of failing it.
func (s *Service) ScoreUnit(ctx context.Context, developer string, unit evidence.Unit) (Score, error) {
	return s.scoreAndCommit(ctx, developer, unit, immune.CauseScore)
}

func (s *Service) scoreAndCommit(ctx context.Context, developer string, unit evidence.Unit, cause immune.Cause) (Score, error) {
	if err := s.checkOpen(); err != nil {
		return Score{}, err
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, "confidence.Service.ScoreUnit")
	defer span.End()
	span.SetAttributes(
		attribute.String("confidence.unit", unit.Key()),
		attribute.String("confidence.cause", string(cause)),
	)

	sc, err := s.compute(ctx, developer, unit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Score{}, err
	}
	if err := s.commit(ctx, sc, cause); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Score{}, err
	}
	span.SetAttributes(attribute.Float64("confidence.overall", sc.Overall))
	recordScore(ctx, string(cause), sc.Overall, time.Since(start))
	return sc, nil
}

func (s *Service) compute(ctx context.Context, dev string, unit evidence.Unit) (Score, error) {
	records, err := s.collector.Collect(ctx, unit)
	if err != nil {
		return Score{}, err
	}
	module := s.moduleOf(unit.File)

	sc := Score{
		Unit:       unit,
		Developer:  dev,
		Module:     module,
		Provenance: records,
		Degraded:   make(map[aggregate.Criterion]bool),
	}

	for i := range records {
		rec := &records[i]
		if !rec.Available {
			sc.Degraded[rec.Criterion] = true
			continue
		}
		if rec.Degraded {
			sc.Degraded[rec.Criterion] = true
		}
		if rec.Proof != evidence.Proven || !(rec.Kind == evidence.KindTestRunner || rec.HasKillRate) {
			continue
		}
		kr := math.NaN()
		if rec.HasKillRate {
			kr = rec.KillRate
		}
		if v := s.mutation.Validate(rec.Value, kr); v.Downgraded {
			s.logger.Debug("test evidence downgraded by mutation gate",
				slog.String("source", rec.Source),
				slog.String("unit", unit.Key()),
				slog.Float64("value", rec.Value),
				slog.Float64("kill_rate", kr),
			)
			rec.Value = v.Value
			rec.Proof = evidence.Estimated
		}
	}

	net, q, err := buildNetwork(s.feedback.Prior(dev, module), s.cfg.Inference.ChainCoupling, records)
	if err != nil {
		return Score{}, err
	}
	res, err := s.inference.Infer(ctx, net, q)
	if err != nil {
		return Score{}, fmt.Errorf("infer %s: %w", unit, err)
	}
	sc.Method = res.Method

	for _, c := range aggregate.AllCriteria {
		post := res.Probability(string(c), 1)
		sc.Posterior.Set(c, post)

		anchor := aggregate.Weighted{Value: post}
		var ml []aggregate.Weighted
		for _, rec := range records {
			if rec.Criterion != c || !rec.Available {
				continue
			}
			if rec.MLDerived {
				ml = append(ml, aggregate.Weighted{Value: rec.Value, Weight: rec.Weight})
			} else {
				anchor.Weight += rec.Weight
			}
		}
		capped := s.mlcap.Apply(anchor, ml...)
		sc.Criteria.Set(c, capped.Value)
		if len(ml) > 0 {
			if sc.MLShare == nil {
				sc.MLShare = make(map[aggregate.Criterion]float64)
			}
			sc.MLShare[c] = capped.MLShare
		}
	}

	overall, err := aggregate.CVaR(sc.Criteria.Values(), s.cfg.Aggregation.Alpha)
	if err != nil {
		return Score{}, err
	}
	sc.Overall = overall
	sc.ComputedAt = s.now()
	return sc, nil
}

// commit caches, audits and publishes sc. A first score is audited with
// Old = 0.
func (s *Service) commit(ctx context.Context, sc Score, cause immune.Cause) error {
	key := sc.Unit.Key()
	s.mu.Lock()
	prev, had := s.scores[key]
	s.scores[key] = sc
	s.mu.Unlock()

	old := 0.0
	if had {
		old = prev.Overall
	}
	if _, err := s.audit.Append(ctx, immune.Mutation{Subject: key, Old: old, New: sc.Overall, Cause: cause}); err != nil {
		return fmt.Errorf("audit %s: %w", key, err)
	}
	s.field.Publish(field.Entry{
		Unit:       key,
		Overall:    sc.Overall,
		Criteria:   sc.Criteria,
		Degraded:   sc.IsDegraded(),
		ComputedAt: sc.ComputedAt,
	}, string(cause))
	return nil
}

// Score returns the cached score of unit.
func (s *Service) Score(unit evidence.Unit) (Score, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[unit.Key()]
	return sc, ok
}

// IsStale reports whether sc must be re-verified before gating.
func (s *Service) IsStale(sc Score) bool {
	return s.decay.IsStale(sc.ComputedAt, s.now())
}

// FileScore is the result of scoring a whole file.
type FileScore struct {
	File    string
	Overall float64
	Lines   []Score
	Sweep   propagate.Sweep
}

// ScoreFile scores the given lines of file (the file unit when lines is
// empty), reduces them with CVaR into the file score and propagates the
// file's change through the dependency graph.
func (s *Service) ScoreFile(ctx context.Context, developer, file string, lines []int) (FileScore, error) {
	fs := FileScore{File: file}
	if len(lines) == 0 {
		sc, err := s.ScoreUnit(ctx, developer, evidence.Unit{File: file})
		if err != nil {
			return fs, err
		}
		fs.Lines = []Score{sc}
		fs.Overall = sc.Overall
	} else {
		overalls := make([]float64, 0, len(lines))
		for _, l := range lines {
			sc, err := s.ScoreUnit(ctx, developer, evidence.Unit{File: file, Line: l})
			if err != nil {
				return fs, err
			}
			fs.Lines = append(fs.Lines, sc)
			overalls = append(overalls, sc.Overall)
		}
		overall, err := aggregate.AggregateFile(overalls)
		if err != nil {
			return fs, err
		}
		fs.Overall = overall
		if err := s.commitFile(ctx, file, overall, immune.CauseScore); err != nil {
			return fs, err
		}
	}

	if _, ok := s.graph.Score(file); !ok {
		s.graph.AddNode(file, fs.Overall)
		return fs, nil
	}
	sw, err := s.propagator.Apply(ctx, propagate.Change{Path: file, Score: fs.Overall})
	if err != nil {
		return fs, err
	}
	fs.Sweep = sw
	return fs, nil
}

// commitFile audits and publishes a file-level score that has no Score of
// its own (an aggregate of line scores, or a manual set).
func (s *Service) commitFile(ctx context.Context, file string, overall float64, cause immune.Cause) error {
	old := 0.0
	if e, ok := s.field.Get(file); ok {
		old = e.Overall
	} else if g, ok := s.graph.Score(file); ok {
		old = g
	}
	if _, err := s.audit.Append(ctx, immune.Mutation{Subject: file, Old: old, New: overall, Cause: cause}); err != nil {
		return fmt.Errorf("audit %s: %w", file, err)
	}
	s.overrideOverall(file, overall)
	s.field.Publish(field.Entry{Unit: file, Overall: overall, ComputedAt: s.now()}, string(cause))
	return nil
}

// overrideOverall replaces the overall of a cached file-unit score so the
// cache agrees with the field after a file-level write.
func (s *Service) overrideOverall(file string, overall float64) {
	key := evidence.Unit{File: file}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scores[key]; ok {
		sc.Overall = overall
		s.scores[key] = sc
	}
}

// =============================================================================
// Propagation
// =============================================================================

// SetFileScore sets a file's score directly and propagates the delta.
func (s *Service) SetFileScore(ctx context.Context, file string, score float64) (propagate.Sweep, error) {
	if err := s.checkOpen(); err != nil {
		return propagate.Sweep{}, err
	}
	if _, ok := s.graph.Score(file); !ok {
		return propagate.Sweep{}, fmt.Errorf("%w: %s", propagate.ErrUnknownFile, file)
	}
	if err := s.commitFile(ctx, file, score, immune.CauseScore); err != nil {
		return propagate.Sweep{}, err
	}
	return s.propagator.Apply(ctx, propagate.Change{Path: file, Score: score})
}

// ApplyBatch sets several file scores at once, propagating in parallel
// across independent components.
func (s *Service) ApplyBatch(ctx context.Context, changes []propagate.Change) ([]propagate.Sweep, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	for _, c := range changes {
		if _, ok := s.graph.Score(c.Path); !ok {
			return nil, fmt.Errorf("%w: %s", propagate.ErrUnknownFile, c.Path)
		}
	}
	sweeps, err := s.propagator.ApplyBatch(ctx, changes)
	if err != nil {
		return nil, err
	}
	for _, sw := range sweeps {
		if len(sw.Updates) == 0 {
			continue
		}
		origin := sw.Updates[0]
		if _, err := s.audit.Append(ctx, immune.Mutation{Subject: origin.Path, Old: origin.Old, New: origin.New, Cause: immune.CauseScore}); err != nil {
			return sweeps, fmt.Errorf("audit %s: %w", origin.Path, err)
		}
		s.overrideOverall(origin.Path, origin.New)
		s.field.Publish(field.Entry{Unit: origin.Path, Overall: origin.New, ComputedAt: s.now()}, string(immune.CauseScore))
	}
	return sweeps, nil
}

// onPropagated audits and publishes every neighbour update. Origins
// (depth 0) are committed by the caller.
func (s *Service) onPropagated(ctx context.Context, u propagate.Update) {
	if u.Depth == 0 {
		return
	}
	if _, err := s.audit.Append(ctx, immune.Mutation{Subject: u.Path, Old: u.Old, New: u.New, Cause: immune.CausePropagation}); err != nil {
		s.logger.Error("audit propagation failed", slog.String("file", u.Path), slog.String("error", err.Error()))
	}

	computedAt := s.now()
	if e, ok := s.field.Get(u.Path); ok && !e.ComputedAt.IsZero() {
		computedAt = e.ComputedAt
	}
	s.overrideOverall(u.Path, u.New)
	s.field.Publish(field.Entry{Unit: u.Path, Overall: u.New, ComputedAt: computedAt}, string(immune.CausePropagation))
}

// =============================================================================
// Ship gate
// =============================================================================

// GateResult is the outcome of a ship gate check.
type GateResult struct {
	Developer           string
	Files               []string
	Code                float64
	DeveloperConfidence float64
	Change              float64
	Threshold           float64
	Pass                bool
	Band                aggregate.Band

	// Rescored lists units scored for the first time by this gate.
	Rescored []string

	// Reverified lists stale units re-queried before gating.
	Reverified []string
}

// ShipGate decides whether a unified diff by developer may ship.
//
// # Description
//
// Every touched line (or the file unit for files with no touched lines)
// must have a fresh score: unscored units are scored and stale ones are
// re-verified against their sources. C(code) is the CVaR over the touched
// lines' scores. C(dev) is the lowest developer confidence over the
// touched modules. C(change) = C(code) × C(dev).
func (s *Service) ShipGate(ctx context.Context, dev string, diff []byte) (GateResult, error) {
	if err := s.checkOpen(); err != nil {
		return GateResult{}, err
	}
	ctx, span := tracer.Start(ctx, "confidence.Service.ShipGate")
	defer span.End()

	change, err := developer.ParseChange(diff)
	if err != nil {
		return GateResult{}, err
	}

	res := GateResult{Developer: dev, Threshold: s.cfg.Gate.Threshold, Files: change.Paths()}
	modules := make(map[string]struct{})
	for _, f := range change.Files {
		if f.Deleted {
			continue
		}
		modules[s.moduleOf(f.Path)] = struct{}{}
		units := []evidence.Unit{{File: f.Path}}
		if len(f.Lines) > 0 {
			units = units[:0]
			for _, l := range f.Lines {
				units = append(units, evidence.Unit{File: f.Path, Line: l})
			}
		}
		for _, u := range units {
			sc, ok := s.Score(u)
			switch {
			case !ok:
				if _, err := s.scoreAndCommit(ctx, dev, u, immune.CauseScore); err != nil {
					return res, err
				}
				res.Rescored = append(res.Rescored, u.Key())
			case s.IsStale(sc):
				if _, err := s.scoreAndCommit(ctx, dev, u, immune.CauseReverify); err != nil {
					return res, err
				}
				res.Reverified = append(res.Reverified, u.Key())
			}
		}
	}

	res.Code, err = developer.CodeConfidence(change, gateScorer{s})
	if err != nil {
		return res, err
	}

	res.DeveloperConfidence = 1
	if len(modules) == 0 {
		res.DeveloperConfidence = s.cfg.Gate.UnknownDeveloper
	}
	for m := range modules {
		c := s.cfg.Gate.UnknownDeveloper
		if a, err := s.developers.Compute(dev, m); err == nil {
			c = a.Value
		} else if !errors.Is(err, developer.ErrUnknownDeveloper) {
			return res, err
		}
		res.DeveloperConfidence = math.Min(res.DeveloperConfidence, c)
	}

	res.Change = developer.ChangeConfidence(res.Code, res.DeveloperConfidence)
	res.Pass = res.Change >= res.Threshold
	res.Band = aggregate.BandOf(res.Change)

	span.SetAttributes(
		attribute.Float64("confidence.change", res.Change),
		attribute.Bool("confidence.pass", res.Pass),
		attribute.Int("confidence.reverified", len(res.Reverified)),
	)
	recordGate(ctx, res.Pass)
	s.logger.Info("ship gate evaluated",
		slog.String("developer", dev),
		slog.Int("files", len(res.Files)),
		slog.Float64("code", res.Code),
		slog.Float64("developer_confidence", res.DeveloperConfidence),
		slog.Float64("change", res.Change),
		slog.Bool("pass", res.Pass),
		slog.Int("reverified", len(res.Reverified)),
	)
	return res, nil
}

type gateScorer struct{ s *Service }

func (g gateScorer) LineScore(file string, line int) (float64, bool) {
	sc, ok := g.s.Score(evidence.Unit{File: file, Line: line})
	return sc.Overall, ok
}

func (g gateScorer) FileScore(file string) (float64, bool) {
	if sc, ok := g.s.Score(evidence.Unit{File: file}); ok {
		return sc.Overall, true
	}
	return g.s.graph.Score(file)
}

// =============================================================================
// Feedback and developer confidence
// =============================================================================

// RecordFeedback applies a developer action to the (developer, module)
// prior. A suspended stream returns an error wrapping
// ErrFeedbackPoisoning and leaves the prior unchanged.
func (s *Service) RecordFeedback(ctx context.Context, dev, module string, action feedback.Action) (feedback.Change, error) {
	if err := s.checkOpen(); err != nil {
		return feedback.Change{}, err
	}
	return s.feedback.Record(ctx, dev, module, action)
}

func (s *Service) onFeedback(ctx context.Context, c feedback.Change) {
	subject := "prior:" + c.Developer + "/" + c.Module
	if _, err := s.audit.Append(ctx, immune.Mutation{Subject: subject, Old: c.Old, New: c.New, Cause: immune.CauseFeedback}); err != nil {
		s.logger.Error("audit feedback failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

// Prior returns the feedback prior for (developer, module).
func (s *Service) Prior(dev, module string) float64 { return s.feedback.Prior(dev, module) }

// Priors returns every stored prior of developer.
func (s *Service) Priors(dev string) map[store.PriorKey]store.Prior { return s.feedback.Snapshot(dev) }

// Personalized reports whether the prior has absorbed enough feedback.
func (s *Service) Personalized(dev, module string) bool { return s.feedback.Personalized(dev, module) }

// Review lifts a feedback-poisoning suspension after human review.
func (s *Service) Review(dev string) { s.feedback.Review(dev) }

// DismissRate returns the developer's rolling dismiss rate and sample count.
func (s *Service) DismissRate(dev string) (float64, int) { return s.anomaly.DismissRate(dev) }

// ForgetDeveloper deletes every prior and signal of dev (everyone's priors
// when dev is empty).
func (s *Service) ForgetDeveloper(ctx context.Context, dev string) (int, error) {
	n, err := s.feedback.Forget(ctx, dev)
	if dev != "" {
		s.developers.Forget(dev)
	}
	return n, err
}

// ObserveDeveloper records the raw signals for (developer, module).
func (s *Service) ObserveDeveloper(dev, module string, sig developer.Signals) {
	s.developers.Observe(dev, module, sig)
}

// DeveloperConfidence returns C(developer, module).
func (s *Service) DeveloperConfidence(dev, module string) (developer.Assessment, error) {
	return s.developers.Compute(dev, module)
}

// BusFactor returns the expert count for module.
func (s *Service) BusFactor(module string) developer.BusFactor {
	return s.developers.BusFactor(module)
}

// =============================================================================
// Navigation statistics
// =============================================================================

// RecordNavigation counts a switch from one open file to another.
func (s *Service) RecordNavigation(ctx context.Context, from, to string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.store.RecordTransition(ctx, from, to)
}

// LikelyNext returns up to n files most often opened after from.
func (s *Service) LikelyNext(ctx context.Context, from string, n int) ([]store.Transition, error) {
	ts, err := s.store.TransitionsFrom(ctx, from)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(ts) > n {
		ts = ts[:n]
	}
	return ts, nil
}

// Prescore scores the file units most likely to be opened after from.
// Failures are logged and skipped.
func (s *Service) Prescore(ctx context.Context, dev, from string, n int) ([]Score, error) {
	next, err := s.LikelyNext(ctx, from, n)
	if err != nil {
		return nil, err
	}
	out := make([]Score, 0, len(next))
	for _, t := range next {
		sc, err := s.ScoreUnit(ctx, dev, evidence.Unit{File: t.To})
		if err != nil {
			s.logger.Warn("prescore failed", slog.String("file", t.To), slog.String("error", err.Error()))
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

// =============================================================================
// Audit and lifecycle
// =============================================================================

// VerifyAudit recomputes the whole audit chain. Returns an error wrapping
// ErrAuditChainCorrupted, with the failing index, on any break.
func (s *Service) VerifyAudit() error { return s.audit.VerifyChain() }

// AuditEntries returns a copy of the audit chain.
func (s *Service) AuditEntries() []immune.AuditEntry { return s.audit.Entries() }

// Close stops the snapshot watcher, flushes priors, drains the audit log
// and closes the store if the service opened it.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var errs []error
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if err := s.feedback.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.audit.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.ownStore {
			if err := s.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("confidence service stopped")
	})
	return s.closeErr
}
