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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perfect() Signals {
	return Signals{CommitHistory: 1, ReviewAcceptance: 1, Recency: 1, DomainExpertise: 1, Flow: 1}
}

type flowStub map[string]float64

func (f flowStub) Prior(dev, module string) float64 { return f[dev+"/"+module] }

func TestNormalized_InvertsNegativeSignals(t *testing.T) {
	s := Signals{BugIntroductionRate: 0.2, Fatigue: 0.7, CommitHistory: 1.5, Recency: -1}
	v := s.Normalized()
	assert.Equal(t, 1.0, v[0])
	assert.InDelta(t, 0.8, v[1], 1e-12)
	assert.Equal(t, 0.0, v[3])
	assert.InDelta(t, 0.3, v[6], 1e-12)
}

func TestCompute_Weighted(t *testing.T) {
	m, err := NewModel(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	m.Observe("alice", "core", perfect())
	a, err := m.Compute("alice", "core")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.Value, 1e-12)
	assert.Equal(t, CombineWeighted, a.Combination)

	m.Observe("bob", "core", Signals{})
	b, err := m.Compute("bob", "core")
	require.NoError(t, err)
	// Only the two inverted signals contribute.
	assert.InDelta(t, 0.25, b.Value, 1e-12)
}

func TestCompute_MonotonicInEachSignal(t *testing.T) {
	for _, comb := range []Combination{CombineWeighted, CombineCVaR} {
		t.Run(string(comb), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Combination = comb
			m, err := NewModel(cfg, nil, nil)
			require.NoError(t, err)

			base := Signals{CommitHistory: 0.5, BugIntroductionRate: 0.5, ReviewAcceptance: 0.5, Recency: 0.5, DomainExpertise: 0.5, Flow: 0.5, Fatigue: 0.5}
			m.Observe("d", "m", base)
			before, err := m.Compute("d", "m")
			require.NoError(t, err)

			bumps := []func(*Signals){
				func(s *Signals) { s.CommitHistory = 0.9 },
				func(s *Signals) { s.BugIntroductionRate = 0.1 },
				func(s *Signals) { s.ReviewAcceptance = 0.9 },
				func(s *Signals) { s.Recency = 0.9 },
				func(s *Signals) { s.DomainExpertise = 0.9 },
				func(s *Signals) { s.Flow = 0.9 },
				func(s *Signals) { s.Fatigue = 0.1 },
			}
			for i, bump := range bumps {
				s := base
				bump(&s)
				m.Observe("d", "m", s)
				after, err := m.Compute("d", "m")
				require.NoError(t, err)
				assert.GreaterOrEqual(t, after.Value, before.Value, "signal %d", i)
			}
		})
	}
}

func TestCompute_CVaRIsWorstSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Combination = CombineCVaR
	m, err := NewModel(cfg, nil, nil)
	require.NoError(t, err)

	s := perfect()
	s.Fatigue = 0.9
	m.Observe("d", "m", s)
	a, err := m.Compute("d", "m")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, a.Value, 1e-12)
}

func TestCompute_FlowFromFeedback(t *testing.T) {
	m, err := NewModel(DefaultConfig(), flowStub{"alice/core": 0.2}, nil)
	require.NoError(t, err)
	m.Observe("alice", "core", perfect())

	a, err := m.Compute("alice", "core")
	require.NoError(t, err)
	assert.Equal(t, 0.2, a.Signals.Flow)
	assert.InDelta(t, 1-0.15*0.8, a.Value, 1e-12)
}

func TestCompute_Unknown(t *testing.T) {
	m, err := NewModel(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	_, err = m.Compute("ghost", "core")
	assert.ErrorIs(t, err, ErrUnknownDeveloper)
}

func TestNewModel_InvalidConfig(t *testing.T) {
	_, err := NewModel(Config{Combination: "median"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewModel(Config{Weights: Weights{Flow: -1, Recency: 2}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBusFactor(t *testing.T) {
	m, err := NewModel(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	m.Observe("alice", "core", perfect())
	bf := m.BusFactor("core")
	assert.Equal(t, 1, bf.Count)
	assert.True(t, bf.KnowledgeRisk)

	m.Observe("bob", "core", perfect())
	m.Observe("carol", "core", Signals{CommitHistory: 0.3})
	m.Observe("dave", "ui", perfect())
	bf = m.BusFactor("core")
	assert.Equal(t, []string{"alice", "bob"}, bf.Experts)
	assert.Equal(t, 2, bf.Count)
	assert.False(t, bf.KnowledgeRisk)

	assert.Equal(t, []string{"alice", "bob", "carol"}, m.Developers("core"))
	assert.Equal(t, 1, m.Forget("bob"))
	assert.True(t, m.BusFactor("core").KnowledgeRisk)

	assert.Equal(t, 0, m.BusFactor("empty").Count)
	assert.True(t, m.BusFactor("empty").KnowledgeRisk)
}

func TestChangeConfidence(t *testing.T) {
	assert.Equal(t, 1.0, ChangeConfidence(1, 1))
	assert.InDelta(t, 0.5, ChangeConfidence(1, 0.5), 1e-12)
	assert.Equal(t, 0.0, ChangeConfidence(2, -1))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, 0.0, Saturating(0, 10))
	assert.InDelta(t, 0.632, Saturating(10, 10), 1e-3)
	assert.Equal(t, 0.5, Ratio(1, 2))
	assert.Equal(t, 0.0, Ratio(1, 0))

	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 0.5, RecencyScore(now.Add(-14*24*time.Hour), now, 14*24*time.Hour), 1e-12)
	assert.Equal(t, 1.0, RecencyScore(now, now, time.Hour))
	assert.Equal(t, 0.0, RecencyScore(time.Time{}, now, time.Hour))
}

const sampleDiff = `diff --git a/pkg/a.go b/pkg/a.go
index 1111111..2222222 100644
--- a/pkg/a.go
+++ b/pkg/a.go
@@ -10,4 +10,5 @@ func A() {
 	x := 1
-	y := 2
+	y := 3
+	z := 4
 	return
 }
diff --git a/pkg/old.go b/pkg/old.go
deleted file mode 100644
index 3333333..0000000
--- a/pkg/old.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package pkg
-var Old = 1
diff --git a/pkg/b.go b/pkg/b.go
index 4444444..5555555 100644
--- a/pkg/b.go
+++ b/pkg/b.go
@@ -3,3 +3,2 @@
 a
-b
 c
`

func TestParseChange(t *testing.T) {
	c, err := ParseChange([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, c.Files, 3)
	assert.Equal(t, []string{"pkg/a.go", "pkg/old.go", "pkg/b.go"}, c.Paths())

	a := c.Files[0]
	assert.Equal(t, []int{11, 12}, a.Lines)
	assert.Equal(t, 2, a.Added)
	assert.Equal(t, 1, a.Removed)

	assert.True(t, c.Files[1].Deleted)
	assert.Empty(t, c.Files[1].Lines)

	assert.Equal(t, []int{4}, c.Files[2].Lines, "deletion touches the following line")
}

func TestParseChange_Empty(t *testing.T) {
	_, err := ParseChange(nil)
	assert.ErrorIs(t, err, ErrEmptyChange)
}

type scorerStub struct {
	lines map[string]map[int]float64
	files map[string]float64
}

func (s scorerStub) LineScore(file string, line int) (float64, bool) {
	v, ok := s.lines[file][line]
	return v, ok
}

func (s scorerStub) FileScore(file string) (float64, bool) {
	v, ok := s.files[file]
	return v, ok
}

func TestCodeConfidence(t *testing.T) {
	c, err := ParseChange([]byte(sampleDiff))
	require.NoError(t, err)

	s := scorerStub{
		lines: map[string]map[int]float64{"pkg/a.go": {11: 0.9, 12: 0.2}},
		files: map[string]float64{"pkg/b.go": 0.7},
	}
	code, err := CodeConfidence(c, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, code, 1e-12, "worst touched line dominates")

	_, err = CodeConfidence(c, scorerStub{})
	assert.ErrorIs(t, err, ErrUnscoredChange)
}
