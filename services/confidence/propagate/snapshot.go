// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Snapshot is a static-analysis export of the dependency graph.
//
// # Format
//
//	files:
//	  - path: pkg/a.go
//	    score: 0.9      # optional; new files default to DefaultScore
//	  - path: pkg/b.go
//	dependencies:
//	  - file: pkg/a.go
//	    depends_on: pkg/b.go
//	    kind: import
//	    weight: 1.0
//
// A dependency "a depends on b" becomes the influence edge b → a.
type Snapshot struct {
	Files        []SnapshotFile `yaml:"files"`
	Dependencies []Dependency   `yaml:"dependencies"`
}

// SnapshotFile is one file in a Snapshot.
type SnapshotFile struct {
	Path  string   `yaml:"path"`
	Score *float64 `yaml:"score,omitempty"`
}

// Dependency states that File depends on DependsOn.
type Dependency struct {
	File      string   `yaml:"file"`
	DependsOn string   `yaml:"depends_on"`
	Kind      EdgeKind `yaml:"kind,omitempty"`
	Weight    float64  `yaml:"weight,omitempty"`
}

// Edge converts the dependency to its influence edge. Zero weight means 1.
func (d Dependency) Edge() Edge {
	w := d.Weight
	if w == 0 {
		w = 1
	}
	return Edge{From: d.DependsOn, To: d.File, Kind: d.Kind, Weight: w}
}

// ParseSnapshot decodes a YAML snapshot.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &s, nil
}

// LoadSnapshotFile reads and decodes a YAML snapshot from path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// RefreshStats summarizes a Refresh.
type RefreshStats struct {
	Files   int
	Edges   int
	Added   int
	Removed int
	Kept    int
	Dropped int
}

// Refresh replaces the graph structure with snap.
//
// # Description
//
// Files present both before and after keep their current score; the
// snapshot score only seeds new files. Files absent from snap are removed
// with their edges. Malformed dependencies are dropped and counted.
func (g *Graph) Refresh(ctx context.Context, snap *Snapshot) RefreshStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := make(map[string]float64, len(g.paths))
	for i, p := range g.paths {
		prev[p] = g.scores[i]
	}

	g.paths = g.paths[:0]
	g.scores = g.scores[:0]
	g.out = g.out[:0]
	g.index = make(map[string]int, len(snap.Files))
	g.comp = nil

	var st RefreshStats
	for _, f := range snap.Files {
		if f.Path == "" {
			continue
		}
		if _, dup := g.index[f.Path]; dup {
			continue
		}
		score, existed := prev[f.Path]
		switch {
		case existed:
			st.Kept++
		case f.Score != nil:
			score = *f.Score
			st.Added++
		default:
			score = DefaultScore
			st.Added++
		}
		g.addNodeLocked(f.Path, score)
	}
	st.Removed = len(prev) - st.Kept

	for _, d := range snap.Dependencies {
		if err := g.addEdgeLocked(d.Edge()); err != nil {
			st.Dropped++
		}
	}
	for _, arcs := range g.out {
		st.Edges += len(arcs)
	}
	st.Files = len(g.paths)

	recordRefresh(ctx, true)
	g.logger.Info("dependency graph refreshed",
		slog.Int("files", st.Files),
		slog.Int("edges", st.Edges),
		slog.Int("added", st.Added),
		slog.Int("removed", st.Removed),
		slog.Int("dropped_edges", st.Dropped),
	)
	return st
}
