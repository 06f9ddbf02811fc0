// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestPriors_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	in := map[PriorKey]Prior{
		{Developer: "alice", Module: "pkg/auth"}: {Value: 0.81, Updates: 12},
		{Developer: "alice", Module: "pkg/db"}:   {Value: 0.42, Updates: 3},
		{Developer: "alicia", Module: "pkg/db"}:  {Value: 0.66, Updates: 1},
		{Developer: "bob", Module: "pkg/auth"}:   {Value: 0.5},
	}
	require.NoError(t, s.SavePriors(ctx, in))

	got, err := s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	n, err := s.DeletePriors(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "prefix must not catch alicia")

	got, err = s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, PriorKey{Developer: "alicia", Module: "pkg/db"})

	n, err = s.DeletePriors(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err = s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPriors_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	key := PriorKey{Developer: "carol", Module: "svc"}
	require.NoError(t, s.SavePriors(ctx, map[PriorKey]Prior{key: {Value: 0.995, Updates: 51}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, err = s.LoadPriors(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Equal(t, Prior{Value: 0.995, Updates: 51}, got[key])
}

func TestAudit_AppendOnlyInOrder(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	for _, seq := range []uint64{0, 1, 2, 256} {
		require.NoError(t, s.AppendAudit(ctx, seq, []byte{byte(seq), 'x'}))
	}
	assert.Error(t, s.AppendAudit(ctx, 1, []byte("rewrite")))

	entries, err := s.AuditEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []byte{1, 'x'}, entries[1])
	assert.Equal(t, []byte{0, 'x'}, entries[3], "seq 256 sorts last")
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	for _, to := range []string{"b.go", "c.go", "b.go", "d.go", "c.go", "b.go"} {
		require.NoError(t, s.RecordTransition(ctx, "a.go", to))
	}
	require.NoError(t, s.RecordTransition(ctx, "a.go.bak", "z.go"))
	require.NoError(t, s.RecordTransition(ctx, "a.go", "a.go"))

	got, err := s.TransitionsFrom(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, []Transition{
		{From: "a.go", To: "b.go", Count: 3},
		{From: "a.go", To: "c.go", Count: 2},
		{From: "a.go", To: "d.go", Count: 1},
	}, got)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	require.NoError(t, s.SavePriors(ctx, map[PriorKey]Prior{{Developer: "d", Module: "m"}: {Value: 0.3}}))
	require.NoError(t, s.AppendAudit(ctx, 0, []byte("{}")))
	require.NoError(t, s.RecordTransition(ctx, "x", "y"))
	require.NoError(t, s.Purge(ctx))

	priors, err := s.LoadPriors(ctx)
	require.NoError(t, err)
	assert.Empty(t, priors)
	entries, err := s.AuditEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelledContext(t *testing.T) {
	s := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.LoadPriors(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
