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
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// DefaultScore is the score of a file added without one.
const DefaultScore = 0.5

// EdgeKind classifies a dependency.
type EdgeKind string

const (
	EdgeImport EdgeKind = "import"
	EdgeCall   EdgeKind = "call"
	EdgeTest   EdgeKind = "test"
)

// FileNode is a file and its current confidence.
type FileNode struct {
	Path  string  `json:"path" yaml:"path"`
	Score float64 `json:"score" yaml:"score"`
}

// Edge is an influence edge: a change at From flows to To.
type Edge struct {
	From   string   `json:"from" yaml:"from"`
	To     string   `json:"to" yaml:"to"`
	Kind   EdgeKind `json:"kind" yaml:"kind"`
	Weight float64  `json:"weight" yaml:"weight"`
}

type arc struct {
	to     int
	weight float64
	kind   EdgeKind
}

// Graph is an index-addressed arena of files and influence edges.
//
// # Thread Safety
//
// Safe for concurrent use. Propagation takes the write lock for the
// duration of a sweep or batch.
type Graph struct {
	logger *slog.Logger

	mu      sync.RWMutex
	paths   []string
	scores  []float64
	out     [][]arc
	index   map[string]int
	dropped int

	// comp caches the weakly connected component of each node; nil when
	// the structure changed since it was computed.
	comp []int
}

// NewGraph returns an empty graph.
func NewGraph(logger *slog.Logger) *Graph {
	return &Graph{
		logger: logging.OrDefault(logger),
		index:  make(map[string]int),
	}
}

// AddNode adds path with score, or updates the score of an existing node.
// Returns the node's arena index.
func (g *Graph) AddNode(path string, score float64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNodeLocked(path, score)
}

func (g *Graph) addNodeLocked(path string, score float64) int {
	if i, ok := g.index[path]; ok {
		g.scores[i] = clamp01(score)
		return i
	}
	i := len(g.paths)
	g.paths = append(g.paths, path)
	g.scores = append(g.scores, clamp01(score))
	g.out = append(g.out, nil)
	g.index[path] = i
	g.comp = nil
	return i
}

// AddEdge adds the influence edge from → to.
//
// # Outputs
//
//   - error: Wraps ErrMalformedEdge if an endpoint is unknown, from == to,
//     or weight is outside (0,1]. The edge is dropped, a warning logged and
//     the drop counted; the graph is left unchanged.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(e)
}

func (g *Graph) addEdgeLocked(e Edge) error {
	from, okFrom := g.index[e.From]
	to, okTo := g.index[e.To]

	var reason string
	switch {
	case !okFrom || !okTo:
		reason = "unknown endpoint"
	case from == to:
		reason = "self loop"
	case math.IsNaN(e.Weight) || e.Weight <= 0 || e.Weight > 1:
		reason = fmt.Sprintf("weight %v outside (0,1]", e.Weight)
	}
	if reason != "" {
		g.dropped++
		recordDroppedEdge()
		g.logger.Warn("dropping dependency edge",
			slog.String("from", e.From),
			slog.String("to", e.To),
			slog.String("reason", reason),
		)
		return fmt.Errorf("%w: %s → %s: %s", ErrMalformedEdge, e.From, e.To, reason)
	}

	if e.Kind == "" {
		e.Kind = EdgeImport
	}
	for k, a := range g.out[from] {
		if a.to == to {
			g.out[from][k] = arc{to: to, weight: e.Weight, kind: e.Kind}
			return nil
		}
	}
	g.out[from] = append(g.out[from], arc{to: to, weight: e.Weight, kind: e.Kind})
	g.comp = nil
	return nil
}

// AddImport records that importer imports imported: changes to imported
// flow to importer.
func (g *Graph) AddImport(importer, imported string, weight float64) error {
	return g.AddEdge(Edge{From: imported, To: importer, Kind: EdgeImport, Weight: weight})
}

// Score returns the current score of path.
func (g *Graph) Score(path string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index[path]
	if !ok {
		return 0, false
	}
	return g.scores[i], true
}

// Len returns the number of files.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.paths)
}

// EdgeCount returns the number of influence edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, arcs := range g.out {
		n += len(arcs)
	}
	return n
}

// Dropped returns how many malformed edges have been rejected.
func (g *Graph) Dropped() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dropped
}

// Nodes returns every file sorted by path.
func (g *Graph) Nodes() []FileNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]FileNode, len(g.paths))
	for i, p := range g.paths {
		out[i] = FileNode{Path: p, Score: g.scores[i]}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Dependents returns the files directly influenced by path.
func (g *Graph) Dependents(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index[path]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.out[i]))
	for _, a := range g.out[i] {
		out = append(out, g.paths[a.to])
	}
	sort.Strings(out)
	return out
}

// components returns the weakly connected component id of every node.
// Caller holds the write lock.
func (g *Graph) components() []int {
	if g.comp != nil && len(g.comp) == len(g.paths) {
		return g.comp
	}
	parent := make([]int, len(g.paths))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for from, arcs := range g.out {
		for _, a := range arcs {
			ra, rb := find(from), find(a.to)
			if ra != rb {
				parent[ra] = rb
			}
		}
	}
	comp := make([]int, len(g.paths))
	for i := range comp {
		comp[i] = find(i)
	}
	g.comp = comp
	return comp
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
