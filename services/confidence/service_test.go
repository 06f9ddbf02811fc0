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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/developer"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/feedback"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/field"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/immune"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, clock *fakeClock, sources ...evidence.Registration) *Service {
	t.Helper()
	if clock == nil {
		clock = newFakeClock()
	}
	s, err := New(context.Background(), DefaultConfig(), Options{
		Logger:  quietLogger(),
		Now:     clock.Now,
		Sources: sources,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// provenAll registers one proven fixed source per criterion, each answering
// v for every unit of file.
func provenAll(file string, v float64) []evidence.Registration {
	regs := make([]evidence.Registration, 0, len(aggregate.AllCriteria))
	for _, c := range aggregate.AllCriteria {
		regs = append(regs, evidence.Registration{
			Source: evidence.NewFixed(evidence.FixedSpec{
				Name:   "fixed-" + string(c),
				Proven: true,
				Values: map[string]float64{file: v},
			}),
			Criterion: c,
		})
	}
	return regs
}

const gateDiff = `diff --git a/pkg/x.go b/pkg/x.go
--- a/pkg/x.go
+++ b/pkg/x.go
@@ -1,2 +1,3 @@
 package x
+var A = 1
 var B = 2
`

// =============================================================================
// Scoring
// =============================================================================

func TestScoreUnit_StrongAndWeakEvidence(t *testing.T) {
	ctx := context.Background()

	strong := newTestService(t, nil, provenAll("good.go", 1)...)
	sc, err := strong.ScoreUnit(ctx, "", evidence.Unit{File: "good.go"})
	require.NoError(t, err)
	assert.Greater(t, sc.Overall, 0.85)
	assert.Equal(t, aggregate.BandOf(sc.Overall), sc.Band())
	assert.Len(t, sc.Provenance, len(aggregate.AllCriteria))
	assert.False(t, sc.IsDegraded())
	assert.Equal(t, ".", sc.Module)

	weak := newTestService(t, nil, provenAll("bad.go", 0)...)
	sc, err = weak.ScoreUnit(ctx, "", evidence.Unit{File: "bad.go"})
	require.NoError(t, err)
	assert.Less(t, sc.Overall, 0.15)
}

func TestScoreUnit_OverallIsTailOfCriteria(t *testing.T) {
	regs := provenAll("f.go", 1)
	regs[len(regs)-1] = evidence.Registration{
		Source: evidence.NewFixed(evidence.FixedSpec{
			Name: "security-scan", Proven: true, Values: map[string]float64{"f.go": 0},
		}),
		Criterion: aggregate.Security,
	}
	s := newTestService(t, nil, regs...)

	sc, err := s.ScoreUnit(context.Background(), "", evidence.Unit{File: "f.go"})
	require.NoError(t, err)

	want, err := aggregate.CVaR(sc.Criteria.Values(), DefaultConfig().Aggregation.Alpha)
	require.NoError(t, err)
	assert.InDelta(t, want, sc.Overall, 1e-12)
	worst, _ := sc.Criteria.Worst()
	assert.Equal(t, aggregate.Security, worst)
	assert.Less(t, sc.Overall, sc.Criteria.Get(aggregate.Syntax))
}

func TestScoreUnit_MLShareIsCapped(t *testing.T) {
	s := newTestService(t, nil,
		evidence.Registration{
			Source:    evidence.NewFixed(evidence.FixedSpec{Name: "tests", Proven: true, Values: map[string]float64{"m.go": 0.3}}),
			Criterion: aggregate.Behavior,
		},
		evidence.Registration{
			Source:    evidence.NewFixed(evidence.FixedSpec{Name: "embedding", MLDerived: true, Values: map[string]float64{"m.go": 0.95}}),
			Criterion: aggregate.Behavior,
			Weight:    10,
		},
	)

	sc, err := s.ScoreUnit(context.Background(), "", evidence.Unit{File: "m.go"})
	require.NoError(t, err)

	share := sc.MLShare[aggregate.Behavior]
	assert.LessOrEqual(t, share, immune.DefaultMLCap+1e-9)
	post := sc.Posterior.Get(aggregate.Behavior)
	want := (1-immune.DefaultMLCap)*post + immune.DefaultMLCap*0.95
	assert.InDelta(t, want, sc.Criteria.Get(aggregate.Behavior), 1e-9)

	_, hasOther := sc.MLShare[aggregate.Syntax]
	assert.False(t, hasOther, "criteria without ML evidence carry no share")
}

func TestScoreUnit_WeakMutationKillRateDowngrades(t *testing.T) {
	report := func(kill float64) func(context.Context, evidence.Unit) (evidence.TestReport, error) {
		return func(context.Context, evidence.Unit) (evidence.TestReport, error) {
			return evidence.TestReport{PassRate: 1, KillRate: kill}, nil
		}
	}

	weak := newTestService(t, nil, evidence.Registration{
		Source: evidence.NewTestRunner("go-test", report(0.2)), Criterion: aggregate.Behavior,
	})
	sc, err := weak.ScoreUnit(context.Background(), "", evidence.Unit{File: "t.go"})
	require.NoError(t, err)
	require.Len(t, sc.Provenance, 1)
	assert.Equal(t, evidence.Estimated, sc.Provenance[0].Proof)
	assert.InDelta(t, 0.2, sc.Provenance[0].Value, 1e-12)

	strong := newTestService(t, nil, evidence.Registration{
		Source: evidence.NewTestRunner("go-test", report(0.9)), Criterion: aggregate.Behavior,
	})
	sc2, err := strong.ScoreUnit(context.Background(), "", evidence.Unit{File: "t.go"})
	require.NoError(t, err)
	assert.Equal(t, evidence.Proven, sc2.Provenance[0].Proof)
	assert.Greater(t, sc2.Criteria.Get(aggregate.Behavior), sc.Criteria.Get(aggregate.Behavior))
}

func TestScoreUnit_UnavailableSourceDegrades(t *testing.T) {
	var fail atomic.Bool
	checker := evidence.NewChecker("tsc", func(context.Context, evidence.Unit) (float64, error) {
		if fail.Load() {
			return 0, errors.New("checker crashed")
		}
		return 1, nil
	})
	s := newTestService(t, nil, evidence.Registration{Source: checker, Criterion: aggregate.TypeSafety})
	ctx := context.Background()
	unit := evidence.Unit{File: "d.go"}

	first, err := s.ScoreUnit(ctx, "", unit)
	require.NoError(t, err)
	assert.False(t, first.IsDegraded())

	fail.Store(true)
	second, err := s.ScoreUnit(ctx, "", unit)
	require.NoError(t, err, "a failing source degrades instead of failing")
	assert.True(t, second.IsDegraded())
	assert.True(t, second.Degraded[aggregate.TypeSafety])
	assert.True(t, second.Provenance[0].Degraded)
	assert.NotEmpty(t, second.Provenance[0].Err)

	e, ok := s.Field().Get(unit.Key())
	require.True(t, ok)
	assert.True(t, e.Degraded)
}

func TestScoreUnit_FeedbackPriorShiftsScore(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	unit := evidence.Unit{File: "svc/a.go"}

	base, err := s.ScoreUnit(ctx, "ana", unit)
	require.NoError(t, err)
	for range 20 {
		_, err := s.RecordFeedback(ctx, "ana", "svc", feedback.AddTest)
		require.NoError(t, err)
	}
	after, err := s.ScoreUnit(ctx, "ana", unit)
	require.NoError(t, err)
	assert.Greater(t, after.Overall, base.Overall)
	assert.Equal(t, "svc", after.Module)
}

func TestScoreFile_AggregatesLines(t *testing.T) {
	s := newTestService(t, nil, evidence.Registration{
		Source: evidence.NewFixed(evidence.FixedSpec{
			Name:   "lint",
			Proven: true,
			Values: map[string]float64{"f.go:1": 1, "f.go:2": 1, "f.go:3": 0},
		}),
		Criterion: aggregate.Lint,
	})
	ctx := context.Background()

	fs, err := s.ScoreFile(ctx, "", "f.go", []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, fs.Lines, 3)

	overalls := []float64{fs.Lines[0].Overall, fs.Lines[1].Overall, fs.Lines[2].Overall}
	want, err := aggregate.AggregateFile(overalls)
	require.NoError(t, err)
	assert.InDelta(t, want, fs.Overall, 1e-12)

	g, ok := s.Graph().Score("f.go")
	require.True(t, ok, "scored file joins the graph")
	assert.InDelta(t, fs.Overall, g, 1e-12)

	e, ok := s.Field().Get("f.go")
	require.True(t, ok)
	assert.InDelta(t, fs.Overall, e.Overall, 1e-12)
}

// =============================================================================
// Propagation and audit
// =============================================================================

func TestSetFileScore_PropagatesAndAudits(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	g := s.Graph()
	g.AddNode("a.go", 0.9)
	g.AddNode("b.go", 0.9)
	require.NoError(t, g.AddImport("a.go", "b.go", 1))

	var events []field.Event
	var mu sync.Mutex
	id := s.Field().Subscribe(func(e field.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, "a.go")
	defer s.Field().Unsubscribe(id)

	sw, err := s.SetFileScore(ctx, "b.go", 0.6)
	require.NoError(t, err)
	require.Len(t, sw.Updates, 2)

	want := 0.9 - 0.3*DefaultConfig().Propagation.Damping
	a, _ := g.Score("a.go")
	assert.InDelta(t, want, a, 1e-9)

	entries := s.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b.go", entries[0].Subject)
	assert.Equal(t, immune.CauseScore, entries[0].Cause)
	assert.InDelta(t, 0.9, entries[0].Old, 1e-12)
	assert.Equal(t, "a.go", entries[1].Subject)
	assert.Equal(t, immune.CausePropagation, entries[1].Cause)
	require.NoError(t, s.VerifyAudit())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, string(immune.CausePropagation), events[0].Cause)
	assert.InDelta(t, want, events[0].New.Overall, 1e-9)
}

func TestSetFileScore_UnknownFile(t *testing.T) {
	s := newTestService(t, nil)
	_, err := s.SetFileScore(context.Background(), "nope.go", 0.5)
	assert.ErrorIs(t, err, propagate.ErrUnknownFile)
	assert.Empty(t, s.AuditEntries())
}

func TestApplyBatch_AuditsOrigins(t *testing.T) {
	s := newTestService(t, nil)
	g := s.Graph()
	for _, p := range []string{"a.go", "b.go", "c.go", "d.go"} {
		g.AddNode(p, 0.8)
	}
	require.NoError(t, g.AddImport("a.go", "b.go", 1))
	require.NoError(t, g.AddImport("c.go", "d.go", 1))

	sweeps, err := s.ApplyBatch(context.Background(), []propagate.Change{
		{Path: "b.go", Score: 0.4},
		{Path: "d.go", Score: 0.6},
	})
	require.NoError(t, err)
	require.Len(t, sweeps, 2)

	causes := map[immune.Cause]int{}
	for _, e := range s.AuditEntries() {
		causes[e.Cause]++
	}
	assert.Equal(t, 2, causes[immune.CauseScore])
	assert.Equal(t, 2, causes[immune.CausePropagation])
	require.NoError(t, s.VerifyAudit())
}

func TestFileWrites_RefreshCachedScoreAndGate(t *testing.T) {
	regs := make([]evidence.Registration, 0, len(aggregate.AllCriteria))
	for _, c := range aggregate.AllCriteria {
		regs = append(regs, evidence.Registration{
			Source: evidence.NewFixed(evidence.FixedSpec{
				Name:   "fixed-" + string(c),
				Proven: true,
				Values: map[string]float64{"pkg/x.go": 1, "pkg/y.go": 1},
			}),
			Criterion: c,
		})
	}
	s := newTestService(t, nil, regs...)
	ctx := context.Background()
	unit := func(f string) evidence.Unit { return evidence.Unit{File: f} }
	whole := func(f string) *developer.Change {
		return &developer.Change{Files: []developer.TouchedFile{{Path: f}}}
	}

	for _, f := range []string{"pkg/x.go", "pkg/y.go"} {
		fs, err := s.ScoreFile(ctx, "", f, nil)
		require.NoError(t, err)
		require.Greater(t, fs.Overall, 0.85)
	}

	_, err := s.SetFileScore(ctx, "pkg/x.go", 0.1)
	require.NoError(t, err)
	sc, ok := s.Score(unit("pkg/x.go"))
	require.True(t, ok)
	assert.InDelta(t, 0.1, sc.Overall, 1e-12)
	e, _ := s.Field().Get("pkg/x.go")
	assert.InDelta(t, e.Overall, sc.Overall, 1e-12)
	code, err := developer.CodeConfidence(whole("pkg/x.go"), gateScorer{s})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, code, 1e-12)

	_, err = s.ApplyBatch(ctx, []propagate.Change{{Path: "pkg/y.go", Score: 0.2}})
	require.NoError(t, err)
	sc, ok = s.Score(unit("pkg/y.go"))
	require.True(t, ok)
	assert.InDelta(t, 0.2, sc.Overall, 1e-12)
	code, err = developer.CodeConfidence(whole("pkg/y.go"), gateScorer{s})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, code, 1e-12)
}

// =============================================================================
// Ship gate
// =============================================================================

func TestShipGate_ScoresThenReverifiesStaleUnits(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	checker := evidence.NewChecker("tsc", func(context.Context, evidence.Unit) (float64, error) {
		calls.Add(1)
		return 1, nil
	})
	s := newTestService(t, clock, evidence.Registration{Source: checker, Criterion: aggregate.TypeSafety})
	ctx := context.Background()

	first, err := s.ShipGate(ctx, "ana", []byte(gateDiff))
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/x.go:2"}, first.Rescored)
	assert.Empty(t, first.Reverified)
	assert.Equal(t, int32(1), calls.Load())

	again, err := s.ShipGate(ctx, "ana", []byte(gateDiff))
	require.NoError(t, err)
	assert.Empty(t, again.Rescored)
	assert.Empty(t, again.Reverified)
	assert.Equal(t, int32(1), calls.Load(), "fresh scores are reused")

	clock.Advance(immune.DefaultMaxAge + 24*time.Hour)
	stale, err := s.ShipGate(ctx, "ana", []byte(gateDiff))
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/x.go:2"}, stale.Reverified)
	assert.Equal(t, int32(2), calls.Load())

	sc, ok := s.Score(evidence.Unit{File: "pkg/x.go", Line: 2})
	require.True(t, ok)
	assert.Equal(t, clock.Now(), sc.ComputedAt)
	assert.False(t, s.IsStale(sc))

	last := s.AuditEntries()[len(s.AuditEntries())-1]
	assert.Equal(t, immune.CauseReverify, last.Cause)
}

func TestShipGate_DeveloperConfidenceGates(t *testing.T) {
	s := newTestService(t, nil, provenAll("pkg/x.go", 1)...)
	ctx := context.Background()

	unknown, err := s.ShipGate(ctx, "newcomer", []byte(gateDiff))
	require.NoError(t, err)
	assert.InDelta(t, DefaultConfig().Gate.UnknownDeveloper, unknown.DeveloperConfidence, 1e-12)
	assert.InDelta(t, unknown.Code*unknown.DeveloperConfidence, unknown.Change, 1e-12)
	assert.False(t, unknown.Pass)

	s.ObserveDeveloper("veteran", "pkg", developer.Signals{
		CommitHistory: 1, ReviewAcceptance: 1, Recency: 1, DomainExpertise: 1, Flow: 1,
	})
	expert, err := s.ShipGate(ctx, "veteran", []byte(gateDiff))
	require.NoError(t, err)
	assert.Greater(t, expert.DeveloperConfidence, 0.8)
	assert.True(t, expert.Pass)
	assert.Equal(t, aggregate.BandOf(expert.Change), expert.Band)
}

func TestShipGate_EmptyDiff(t *testing.T) {
	s := newTestService(t, nil)
	_, err := s.ShipGate(context.Background(), "ana", nil)
	assert.ErrorIs(t, err, developer.ErrEmptyChange)
}

// =============================================================================
// Feedback
// =============================================================================

func TestRecordFeedback_AuditedAndPoisoningContained(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	c, err := s.RecordFeedback(ctx, "ana", "svc", feedback.FixFlaggedLine)
	require.NoError(t, err)
	assert.Greater(t, c.New, c.Old)

	entries := s.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "prior:ana/svc", entries[0].Subject)
	assert.Equal(t, immune.CauseFeedback, entries[0].Cause)

	var poisoned bool
	for range 30 {
		if _, err := s.RecordFeedback(ctx, "mallory", "svc", feedback.DismissSuggestion); err != nil {
			require.ErrorIs(t, err, ErrFeedbackPoisoning)
			poisoned = true
			break
		}
	}
	require.True(t, poisoned)

	frozen := s.Prior("mallory", "svc")
	_, err = s.RecordFeedback(ctx, "mallory", "svc", feedback.DismissSuggestion)
	assert.ErrorIs(t, err, ErrFeedbackPoisoning)
	assert.Equal(t, frozen, s.Prior("mallory", "svc"))

	// Other developers are unaffected.
	_, err = s.RecordFeedback(ctx, "ana", "svc", feedback.AddTest)
	assert.NoError(t, err)

	s.Review("mallory")
	_, err = s.RecordFeedback(ctx, "mallory", "svc", feedback.FixFlaggedLine)
	assert.NoError(t, err)
	require.NoError(t, s.VerifyAudit())
}

func TestForgetDeveloper(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()
	_, err := s.RecordFeedback(ctx, "ana", "svc", feedback.AddTest)
	require.NoError(t, err)
	s.ObserveDeveloper("ana", "svc", developer.Signals{CommitHistory: 1})

	_, err = s.ForgetDeveloper(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, s.Priors("ana"))
	_, err = s.DeveloperConfidence("ana", "svc")
	assert.ErrorIs(t, err, developer.ErrUnknownDeveloper)
}

// =============================================================================
// Navigation and lifecycle
// =============================================================================

func TestNavigation_PrescoresLikelyFiles(t *testing.T) {
	s := newTestService(t, nil, evidence.Registration{
		Source: evidence.NewFixed(evidence.FixedSpec{
			Name: "lint", Proven: true, Values: map[string]float64{"b.go": 1, "c.go": 1},
		}),
		Criterion: aggregate.Lint,
	})
	ctx := context.Background()
	require.NoError(t, s.RecordNavigation(ctx, "a.go", "b.go"))
	require.NoError(t, s.RecordNavigation(ctx, "a.go", "b.go"))
	require.NoError(t, s.RecordNavigation(ctx, "a.go", "c.go"))

	next, err := s.LikelyNext(ctx, "a.go", 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "b.go", next[0].To)
	assert.Equal(t, uint64(2), next[0].Count)

	scores, err := s.Prescore(ctx, "", "a.go", 2)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	_, ok := s.Score(evidence.Unit{File: "c.go"})
	assert.True(t, ok)
}

func TestClose_RejectsFurtherWork(t *testing.T) {
	s := newTestService(t, nil)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "close is idempotent")

	_, err := s.ScoreUnit(context.Background(), "", evidence.Unit{File: "x.go"})
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inference.Method = "magic"
	_, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_ResumesAuditChainFromDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Path: dir}
	ctx := context.Background()

	s, err := New(ctx, cfg, Options{Logger: quietLogger(), Sources: provenAll("p.go", 1)})
	require.NoError(t, err)
	_, err = s.ScoreUnit(ctx, "", evidence.Unit{File: "p.go"})
	require.NoError(t, err)
	_, err = s.RecordFeedback(ctx, "ana", "svc", feedback.AddTest)
	require.NoError(t, err)
	prior := s.Prior("ana", "svc")
	require.NoError(t, s.Close(ctx))

	s, err = New(ctx, cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer s.Close(ctx)
	assert.Len(t, s.AuditEntries(), 2)
	assert.NoError(t, s.VerifyAudit())
	assert.InDelta(t, prior, s.Prior("ana", "svc"), 1e-12)
}

func TestNew_LoadsDependencySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
files:
  - path: api.go
    score: 0.9
  - path: db.go
    score: 0.9
dependencies:
  - file: api.go
    depends_on: db.go
`), 0o600))

	cfg := DefaultConfig()
	cfg.Graph.Snapshot = path
	s, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.Equal(t, 2, s.Graph().Len())
	assert.Equal(t, []string{"api.go"}, s.Graph().Dependents("db.go"))

	_, err = s.SetFileScore(context.Background(), "db.go", 0.5)
	require.NoError(t, err)
	api, _ := s.Graph().Score("api.go")
	assert.Less(t, api, 0.9)
}

func TestNew_MissingSnapshotFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.Snapshot = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
	assert.Error(t, err)
}
