// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/pkg/ux"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
)

func newPropagateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "propagate <file> <score> [<file> <score>...]",
		Short: "Set file scores and propagate the changes through the dependency graph",
		Long: `Set one or more file scores and push each delta to dependent files,
damped per hop. Several changes are applied as one batch: independent
parts of the graph are swept in parallel.

Requires a dependency snapshot (--snapshot or graph.snapshot in config).

Examples:
  confidence propagate --snapshot deps.yaml pkg/db/conn.go 0.4
  confidence propagate --snapshot deps.yaml a.go 0.2 b.go 0.9`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected <file> <score> pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.svc.Graph().Len() == 0 {
				return fmt.Errorf("dependency graph is empty: pass --snapshot")
			}
			changes := make([]propagate.Change, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				v, err := strconv.ParseFloat(args[i+1], 64)
				if err != nil || v < 0 || v > 1 {
					return fmt.Errorf("score for %s must be in [0,1], got %q", args[i], args[i+1])
				}
				changes = append(changes, propagate.Change{Path: args[i], Score: v})
			}

			var sweeps []propagate.Sweep
			if len(changes) == 1 {
				sw, err := a.svc.SetFileScore(cmd.Context(), changes[0].Path, changes[0].Score)
				if err != nil {
					return err
				}
				sweeps = []propagate.Sweep{sw}
			} else {
				var err error
				if sweeps, err = a.svc.ApplyBatch(cmd.Context(), changes); err != nil {
					return err
				}
			}

			if err := a.out.JSON(sweeps); err != nil {
				return err
			}
			for _, sw := range sweeps {
				a.out.Title(fmt.Sprintf("%s  Δ%+.3f  depth %d", sw.Origin, sw.Delta, sw.Depth))
				printSweep(a.out, sw.Updates)
			}
			return nil
		},
	}
}

func printSweep(out *ux.Printer, updates []propagate.Update) {
	for _, u := range updates {
		if u.Depth == 0 {
			continue
		}
		out.Field(fmt.Sprintf("%s (hop %d)", u.Path, u.Depth), fmt.Sprintf("%.3f %s %s",
			u.Old, ux.IconArrow, out.Badge(fmt.Sprintf("%.3f", u.New), aggregate.ColorFromConfidence(u.New).Hex())))
	}
}
