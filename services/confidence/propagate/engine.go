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
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// Config bounds a sweep.
type Config struct {
	// MaxDepth is the largest hop distance a sweep reaches. Default: 5.
	MaxDepth int `yaml:"max_depth" validate:"gte=0,lte=64"`

	// Damping is the per-hop attenuation in (0,1). Default: 0.7.
	Damping float64 `yaml:"damping" validate:"gte=0,lt=1"`

	// Epsilon is the effective-delta magnitude below which a branch stops.
	// Default: 1e-4.
	Epsilon float64 `yaml:"epsilon" validate:"gte=0"`
}

// DefaultConfig returns depth 5, damping 0.7 and epsilon 1e-4.
func DefaultConfig() Config {
	return Config{MaxDepth: 5, Damping: 0.7, Epsilon: 1e-4}
}

// Update is one neighbour score written by a sweep.
type Update struct {
	Path  string
	Old   float64
	New   float64
	Depth int
}

// Sweep is the outcome of propagating one change.
type Sweep struct {
	Origin  string
	Delta   float64
	Updates []Update

	// Depth is the deepest hop that received an update.
	Depth int
}

// Change sets Path to Score and propagates the resulting delta.
type Change struct {
	Path  string  `json:"path" yaml:"path"`
	Score float64 `json:"score" yaml:"score"`
}

// Options wires optional collaborators.
type Options struct {
	Logger *slog.Logger

	// OnUpdate observes every score write, including the origin's (depth
	// 0). Called after the sweep, outside graph locks, in write order.
	OnUpdate func(ctx context.Context, u Update)
}

// Engine runs bounded, damped sweeps over a Graph.
//
// # Thread Safety
//
// Safe for concurrent use; sweeps over the same graph serialize on the
// graph lock.
type Engine struct {
	cfg    Config
	graph  *Graph
	logger *slog.Logger
	onUp   func(ctx context.Context, u Update)
}

// NewEngine creates an engine over g. Zero config fields take defaults.
func NewEngine(g *Graph, cfg Config, opts Options) *Engine {
	def := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = def.Damping
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	return &Engine{cfg: cfg, graph: g, logger: logging.OrDefault(opts.Logger), onUp: opts.OnUpdate}
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Propagate spreads delta outward from path without changing path itself.
// Use it when the origin's score was already written elsewhere.
func (e *Engine) Propagate(ctx context.Context, path string, delta float64) (Sweep, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "propagate.Engine.Propagate")
	defer span.End()

	e.graph.mu.Lock()
	origin, ok := e.graph.index[path]
	if !ok {
		e.graph.mu.Unlock()
		return Sweep{}, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	sw := e.sweep(origin, delta)
	e.graph.mu.Unlock()

	e.notify(ctx, sw.Updates)
	recordSweep(ctx, span, sw, time.Since(start))
	return sw, nil
}

// Apply sets path to score and propagates the delta (score - old).
//
// # Outputs
//
//   - Sweep: The origin update first, then every neighbour update in BFS
//     order.
//   - error: Wraps ErrUnknownFile if path is not in the graph.
func (e *Engine) Apply(ctx context.Context, c Change) (Sweep, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "propagate.Engine.Apply")
	defer span.End()

	e.graph.mu.Lock()
	origin, ok := e.graph.index[c.Path]
	if !ok {
		e.graph.mu.Unlock()
		return Sweep{}, fmt.Errorf("%w: %s", ErrUnknownFile, c.Path)
	}
	sw := e.applyLocked(origin, c.Score)
	e.graph.mu.Unlock()

	e.notify(ctx, sw.Updates)
	recordSweep(ctx, span, sw, time.Since(start))
	return sw, nil
}

// ApplyBatch applies changes, in parallel across weakly connected
// components and in input order within each component.
//
// # Description
//
// Components are computed with union-find over the current edges. Each
// component that has at least one change is owned by one goroutine, which
// is the only writer of that component's scores, so the result equals
// applying the changes one by one in input order.
//
// # Outputs
//
//   - []Sweep: One sweep per change, aligned with changes.
//   - error: Wraps ErrUnknownFile if any path is unknown; nothing is
//     applied in that case.
func (e *Engine) ApplyBatch(ctx context.Context, changes []Change) ([]Sweep, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "propagate.Engine.ApplyBatch")
	defer span.End()

	e.graph.mu.Lock()
	origins := make([]int, len(changes))
	for i, c := range changes {
		idx, ok := e.graph.index[c.Path]
		if !ok {
			e.graph.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownFile, c.Path)
		}
		origins[i] = idx
	}

	comp := e.graph.components()
	groups := make(map[int][]int)
	var order []int
	for i, o := range origins {
		root := comp[o]
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	sweeps := make([]Sweep, len(changes))
	var g errgroup.Group
	for _, root := range order {
		members := groups[root]
		g.Go(func() error {
			for _, i := range members {
				sweeps[i] = e.applyLocked(origins[i], changes[i].Score)
			}
			return nil
		})
	}
	_ = g.Wait()
	e.graph.mu.Unlock()

	for _, sw := range sweeps {
		e.notify(ctx, sw.Updates)
	}
	recordBatch(ctx, span, len(changes), len(order), time.Since(start))
	return sweeps, nil
}

// applyLocked writes the origin and sweeps. Caller holds the graph write
// lock or owns origin's component exclusively.
func (e *Engine) applyLocked(origin int, score float64) Sweep {
	g := e.graph
	old := g.scores[origin]
	score = clamp01(score)
	g.scores[origin] = score

	sw := e.sweep(origin, score-old)
	sw.Updates = append([]Update{{Path: g.paths[origin], Old: old, New: score}}, sw.Updates...)
	return sw
}

// hop is one BFS frontier entry.
//
// factor is damping^depth times the product of every edge weight on the
// BFS path, not only the last edge's weight. The two agree when upstream
// edges have weight 1; otherwise a weak import also weakens everything
// reached through it.
type hop struct {
	node   int
	depth  int
	factor float64
}

// sweep is one bounded BFS. It touches only nodes reachable from origin,
// which all lie in origin's component.
func (e *Engine) sweep(origin int, delta float64) Sweep {
	g := e.graph
	sw := Sweep{Origin: g.paths[origin], Delta: delta}
	if delta == 0 || math.IsNaN(delta) {
		return sw
	}

	visited := map[int]struct{}{origin: {}}
	queue := []hop{{node: origin, factor: 1}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= e.cfg.MaxDepth {
			continue
		}
		for _, a := range g.out[cur.node] {
			if _, seen := visited[a.to]; seen {
				continue
			}
			factor := cur.factor * e.cfg.Damping * a.weight
			eff := delta * factor
			if math.Abs(eff) < e.cfg.Epsilon {
				continue
			}
			visited[a.to] = struct{}{}

			old := g.scores[a.to]
			g.scores[a.to] = clamp01(old + eff)
			d := cur.depth + 1
			sw.Updates = append(sw.Updates, Update{Path: g.paths[a.to], Old: old, New: g.scores[a.to], Depth: d})
			if d > sw.Depth {
				sw.Depth = d
			}
			queue = append(queue, hop{node: a.to, depth: d, factor: factor})
		}
	}
	return sw
}

func (e *Engine) notify(ctx context.Context, updates []Update) {
	if e.onUp == nil {
		return
	}
	for _, u := range updates {
		e.onUp(ctx, u)
	}
}
