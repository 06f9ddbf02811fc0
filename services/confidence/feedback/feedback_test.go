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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/immune"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/store"
)

func TestAction_Evidence(t *testing.T) {
	tests := []struct {
		action    Action
		want      float64
		dismissal bool
	}{
		{IgnoreWarning, 0.2, true},
		{FixFlaggedLine, 1.0, false},
		{DismissSuggestion, 0.3, true},
		{AddTest, 0.9, false},
		{CommitLowConfidenceCode, 0.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.action.String(), func(t *testing.T) {
			got, err := tt.action.Evidence()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.dismissal, tt.action.Dismissal())

			parsed, err := ParseAction(tt.action.String())
			require.NoError(t, err)
			assert.Equal(t, tt.action, parsed)
		})
	}

	_, err := Action(99).Evidence()
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = ParseAction("rage_quit")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEMA_FiftyFixesPersonalize(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, DefaultConfig(), Options{})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := e.Record(ctx, "dana", "pkg/auth", FixFlaggedLine)
		require.NoError(t, err)
	}
	got := e.Prior("dana", "pkg/auth")
	assert.GreaterOrEqual(t, got, 0.995)
	assert.InDelta(t, ClosedForm(0.5, 1, 0.1, 50), got, 1e-12)
	assert.Equal(t, uint64(50), e.Updates("dana", "pkg/auth"))
}

func TestEMA_MatchesClosedFormForAnyAction(t *testing.T) {
	ctx := context.Background()
	for _, a := range []Action{AddTest, CommitLowConfidenceCode} {
		e, err := New(ctx, DefaultConfig(), Options{})
		require.NoError(t, err)
		ev, _ := a.Evidence()
		for n := 1; n <= 30; n++ {
			c, err := e.Record(ctx, "eve", "m", a)
			require.NoError(t, err)
			assert.InDelta(t, ClosedForm(0.5, ev, 0.1, n), c.New, 1e-12)
		}
	}
}

func TestAbsorbedFraction(t *testing.T) {
	assert.Equal(t, 0.0, AbsorbedFraction(0.1, 0))
	assert.InDelta(t, 0.1, AbsorbedFraction(0.1, 1), 1e-12)
	assert.Less(t, AbsorbedFraction(0.1, 50), PersonalizedAbsorption)
	assert.GreaterOrEqual(t, AbsorbedFraction(0.1, 51), PersonalizedAbsorption)
	assert.Equal(t, 51, UpdatesToPersonalize(0.1))
}

func TestEngine_UnseenKeyUsesInitialPrior(t *testing.T) {
	e, err := New(context.Background(), Config{Alpha: 0.2, InitialPrior: 0.7}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.7, e.Prior("nobody", "nowhere"))
	assert.Equal(t, 0.2, e.Alpha())
	assert.False(t, e.Personalized("nobody", "nowhere"))
}

func TestEngine_PoisonedStreamIsSuspended(t *testing.T) {
	ctx := context.Background()
	guard := immune.NewAnomalyDetector(immune.DefaultAnomalyConfig(), nil)
	e, err := New(ctx, DefaultConfig(), Options{Guard: guard})
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = e.Record(ctx, "mallory", "pkg/auth", IgnoreWarning)
	}
	require.ErrorIs(t, lastErr, immune.ErrFeedbackPoisoning)

	before := e.Prior("mallory", "pkg/auth")
	_, err = e.Record(ctx, "mallory", "pkg/auth", IgnoreWarning)
	assert.ErrorIs(t, err, immune.ErrFeedbackPoisoning)
	assert.Equal(t, before, e.Prior("mallory", "pkg/auth"), "suspended stream must not move priors")
	assert.Equal(t, uint64(9), e.Updates("mallory", "pkg/auth"))

	// Another developer on the same module is unaffected.
	_, err = e.Record(ctx, "alice", "pkg/auth", FixFlaggedLine)
	assert.NoError(t, err)

	e.Review("mallory")
	_, err = e.Record(ctx, "mallory", "pkg/auth", AddTest)
	assert.NoError(t, err)
}

func TestEngine_OnChangeHook(t *testing.T) {
	var got []Change
	e, err := New(context.Background(), DefaultConfig(), Options{
		OnChange: func(_ context.Context, c Change) { got = append(got, c) },
	})
	require.NoError(t, err)

	_, err = e.Record(context.Background(), "f", "m", FixFlaggedLine)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.5, got[0].Old)
	assert.InDelta(t, 0.55, got[0].New, 1e-12)
}

func TestEngine_PersistAndForget(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	e, err := New(ctx, DefaultConfig(), Options{Store: s})
	require.NoError(t, err)
	for _, dev := range []string{"gus", "hal"} {
		for i := 0; i < 3; i++ {
			_, err := e.Record(ctx, dev, "svc", AddTest)
			require.NoError(t, err)
		}
	}
	want := e.Prior("gus", "svc")
	require.NoError(t, e.Close(ctx))

	reloaded, err := New(ctx, DefaultConfig(), Options{Store: s})
	require.NoError(t, err)
	assert.Equal(t, want, reloaded.Prior("gus", "svc"))
	assert.Equal(t, uint64(3), reloaded.Updates("gus", "svc"))
	assert.Len(t, reloaded.Snapshot(""), 2)
	assert.Len(t, reloaded.Snapshot("hal"), 1)

	n, err := reloaded.Forget(ctx, "gus")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, DefaultInitialPrior, reloaded.Prior("gus", "svc"))

	stored, err := s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.NotContains(t, stored, store.PriorKey{Developer: "gus", Module: "svc"})
	assert.Contains(t, stored, store.PriorKey{Developer: "hal", Module: "svc"})
}

// gatedStore blocks SavePriors until released.
type gatedStore struct {
	Persister
	saving  chan struct{}
	release chan struct{}
}

func (g *gatedStore) SavePriors(ctx context.Context, p map[store.PriorKey]store.Prior) error {
	close(g.saving)
	<-g.release
	return g.Persister.SavePriors(ctx, p)
}

func TestEngine_ForgetDuringFlushStaysDeleted(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	gs := &gatedStore{Persister: s, saving: make(chan struct{}), release: make(chan struct{})}
	e, err := New(ctx, DefaultConfig(), Options{Store: gs})
	require.NoError(t, err)
	_, err = e.Record(ctx, "gus", "svc", AddTest)
	require.NoError(t, err)

	flushed := make(chan error, 1)
	go func() { flushed <- e.Flush(ctx) }()
	<-gs.saving

	forgot := make(chan error, 1)
	go func() {
		_, err := e.Forget(ctx, "gus")
		forgot <- err
	}()
	select {
	case <-forgot:
		t.Fatal("forget finished while a flush was saving")
	case <-time.After(50 * time.Millisecond):
	}

	close(gs.release)
	require.NoError(t, <-flushed)
	require.NoError(t, <-forgot)

	stored, err := s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, DefaultInitialPrior, e.Prior("gus", "svc"))
}

func TestEngine_ConcurrentKeys(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, DefaultConfig(), Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for d := 0; d < 8; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := e.Record(ctx, fmt.Sprintf("dev%d", d), "shared", FixFlaggedLine)
				assert.NoError(t, err)
			}
		}(d)
	}
	wg.Wait()

	for d := 0; d < 8; d++ {
		assert.InDelta(t, ClosedForm(0.5, 1, 0.1, 50), e.Prior(fmt.Sprintf("dev%d", d), "shared"), 1e-12)
		assert.False(t, e.Personalized(fmt.Sprintf("dev%d", d), "shared"), "50 updates absorb just under the threshold")
	}
}
