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
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

func constant(v float64) ValueFunc {
	return func(context.Context, Unit) (float64, error) { return v, nil }
}

func TestUnitKey(t *testing.T) {
	assert.Equal(t, "a.go", Unit{File: "a.go"}.Key())
	assert.Equal(t, "a.go:12", Unit{File: "a.go", Line: 12}.Key())
	assert.Equal(t, Unit{File: "a.go"}, Unit{File: "a.go", Line: 3}.FileUnit())
}

func TestSources_Tags(t *testing.T) {
	tests := []struct {
		src   Source
		kind  Kind
		proof ProofClass
		ml    bool
	}{
		{NewChecker("types", constant(1)), KindChecker, Proven, false},
		{NewTestRunner("tests", nil), KindTestRunner, Proven, false},
		{NewEmbedding("sim", constant(1)), KindEmbedding, Estimated, true},
		{NewBugPredictor("bugs", constant(0)), KindBugPredictor, Estimated, true},
		{NewHeuristic("taint", constant(1)), KindHeuristic, Estimated, false},
		{NewFixed(FixedSpec{Name: "replay", Proven: true}), KindFixed, Proven, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.src.Kind())
			assert.Equal(t, tt.proof, tt.src.ProofClass())
			assert.Equal(t, tt.ml, tt.src.MLDerived())
		})
	}
}

func TestSources_Values(t *testing.T) {
	ctx := context.Background()
	u := Unit{File: "x.go", Line: 4}

	v, err := NewBugPredictor("bugs", constant(0.2)).Value(ctx, u)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, v, 1e-12)

	v, err = NewHeuristic("h", constant(1.7)).Value(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = NewEmbedding("e", constant(math.NaN())).Value(ctx, u)
	assert.ErrorIs(t, err, ErrEvidenceUnavailable)

	fx := NewFixed(FixedSpec{
		Name:      "replay",
		Values:    map[string]float64{"x.go": 0.6, "x.go:4": 0.9},
		KillRates: map[string]float64{"x.go": 0.5},
	})
	v, err = fx.Value(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)
	v, err = fx.Value(ctx, Unit{File: "x.go", Line: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.6, v, "falls back to the file-level value")
	_, err = fx.Value(ctx, Unit{File: "y.go"})
	assert.ErrorIs(t, err, ErrEvidenceUnavailable)
	kr, ok := fx.KillRate(u)
	assert.True(t, ok)
	assert.Equal(t, 0.5, kr)
}

func TestCollector_RegisterValidation(t *testing.T) {
	c := NewCollector(CollectorConfig{}, nil)

	assert.ErrorIs(t, c.Register(Registration{}), ErrInvalidRegistration)
	assert.ErrorIs(t, c.Register(Registration{Source: NewChecker("s", constant(1)), Criterion: "vibes"}), ErrInvalidRegistration)
	assert.ErrorIs(t, c.Register(Registration{Source: NewChecker("s", constant(1)), Criterion: aggregate.Syntax, Weight: -1}), ErrInvalidRegistration)

	require.NoError(t, c.Register(Registration{Source: NewChecker("s", constant(1)), Criterion: aggregate.Syntax}))
	assert.ErrorIs(t, c.Register(Registration{Source: NewHeuristic("s", constant(1)), Criterion: aggregate.Security}), ErrDuplicateSource)

	regs := c.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, 1.0, regs[0].Weight)
	assert.Equal(t, DefaultProvenReliability, regs[0].Reliability)
}

func TestCollector_CollectInOrder(t *testing.T) {
	c := NewCollector(CollectorConfig{}, nil)
	require.NoError(t, c.Register(Registration{Source: NewChecker("syntax", constant(1)), Criterion: aggregate.Syntax}))
	require.NoError(t, c.Register(Registration{
		Source: NewTestRunner("tests", func(context.Context, Unit) (TestReport, error) {
			return TestReport{PassRate: 1, KillRate: 0.4}, nil
		}),
		Criterion: aggregate.Behavior,
		Weight:    2,
	}))
	require.NoError(t, c.Register(Registration{Source: NewEmbedding("sim", constant(0.7)), Criterion: aggregate.Runtime}))

	recs, err := c.Collect(context.Background(), Unit{File: "a.go", Line: 1})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "syntax", recs[0].Source)
	assert.True(t, recs[0].Available)
	assert.Equal(t, Proven, recs[0].Proof)

	assert.Equal(t, KindTestRunner, recs[1].Kind)
	assert.True(t, recs[1].HasKillRate)
	assert.Equal(t, 0.4, recs[1].KillRate)
	assert.Equal(t, 2.0, recs[1].Weight)

	assert.True(t, recs[2].MLDerived)
	assert.Equal(t, 0.7, recs[2].Value)
}

// flaky is a heuristic whose behaviour can be switched between healthy,
// failing and hanging.
type flaky struct {
	mu    sync.Mutex
	mode  string
	value float64
}

func (f *flaky) set(mode string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode, f.value = mode, v
}

func (f *flaky) fn(ctx context.Context, _ Unit) (float64, error) {
	f.mu.Lock()
	mode, v := f.mode, f.value
	f.mu.Unlock()
	switch mode {
	case "fail":
		return 0, errors.New("service down")
	case "hang":
		<-ctx.Done()
		return 0, ctx.Err()
	default:
		return v, nil
	}
}

func TestCollector_DegradesToCachedValue(t *testing.T) {
	f := &flaky{}
	c := NewCollector(CollectorConfig{Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, c.Register(Registration{Source: NewHeuristic("sec", f.fn), Criterion: aggregate.Security}))
	u := Unit{File: "svc.go"}
	ctx := context.Background()

	// No cache yet: unavailable but not an error.
	f.set("hang", 0)
	recs, err := c.Collect(ctx, u)
	require.NoError(t, err)
	assert.False(t, recs[0].Available)
	assert.Contains(t, recs[0].Err, ErrEvidenceUnavailable.Error())

	f.set("ok", 0.66)
	recs, err = c.Collect(ctx, u)
	require.NoError(t, err)
	assert.True(t, recs[0].Available)
	assert.False(t, recs[0].Degraded)

	for _, mode := range []string{"fail", "hang"} {
		f.set(mode, 0)
		start := time.Now()
		recs, err = c.Collect(ctx, u)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second, "a hanging source must not block")
		assert.True(t, recs[0].Available, mode)
		assert.True(t, recs[0].Degraded, mode)
		assert.Equal(t, Estimated, recs[0].Proof, mode)
		assert.Equal(t, 0.66, recs[0].Value, mode)
	}
}

func TestCollector_SourceIgnoringContextFallsBack(t *testing.T) {
	var stuck atomic.Bool
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	src := NewChecker("blind", func(context.Context, Unit) (float64, error) {
		if stuck.Load() {
			<-release
			return 0.1, nil
		}
		return 0.9, nil
	})
	c := NewCollector(CollectorConfig{Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, c.Register(Registration{Source: src, Criterion: aggregate.Behavior}))
	u := Unit{File: "blind.go"}

	recs, err := c.Collect(context.Background(), u)
	require.NoError(t, err)
	require.False(t, recs[0].Degraded)

	stuck.Store(true)
	start := time.Now()
	recs, err = c.Collect(context.Background(), u)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, recs[0].Available)
	assert.True(t, recs[0].Degraded)
	assert.Equal(t, Estimated, recs[0].Proof)
	assert.Equal(t, 0.9, recs[0].Value)
	assert.Contains(t, recs[0].Err, ErrEvidenceUnavailable.Error())
}

func TestCollector_DeduplicatesInFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	src := NewChecker("slow", func(ctx context.Context, _ Unit) (float64, error) {
		calls.Add(1)
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	c := NewCollector(CollectorConfig{Timeout: 5 * time.Second}, nil)
	require.NoError(t, c.Register(Registration{Source: src, Criterion: aggregate.TypeSafety}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := c.Collect(context.Background(), Unit{File: "same.go"})
			assert.NoError(t, err)
			assert.Equal(t, 1.0, recs[0].Value)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCollector_RateLimitFallsBack(t *testing.T) {
	var calls atomic.Int32
	src := NewHeuristic("metered", func(context.Context, Unit) (float64, error) {
		calls.Add(1)
		return 0.8, nil
	})
	c := NewCollector(CollectorConfig{Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, c.Register(Registration{Source: src, Criterion: aggregate.Runtime, RatePerSecond: 0.001}))

	u := Unit{File: "m.go"}
	first, err := c.Collect(context.Background(), u)
	require.NoError(t, err)
	assert.False(t, first[0].Degraded)

	second, err := c.Collect(context.Background(), u)
	require.NoError(t, err)
	assert.True(t, second[0].Degraded)
	assert.Equal(t, 0.8, second[0].Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollector_CancelledContext(t *testing.T) {
	c := NewCollector(CollectorConfig{}, nil)
	require.NoError(t, c.Register(Registration{Source: NewChecker("s", constant(1)), Criterion: aggregate.Syntax}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Collect(ctx, Unit{File: "a.go"})
	assert.ErrorIs(t, err, context.Canceled)
}
