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
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/pkg/ux"
	"github.com/AleutianAI/AleutianConfidence/services/confidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		dev     string
		lines   []int
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "score <file[:line]>...",
		Short: "Score code units from recorded evidence",
		Long: `Collect evidence for each unit, run Bayesian inference over the six
criteria and reduce them with CVaR.

With --lines and a single file, each line is scored and the file score is
the CVaR over the line scores; the change is then propagated to dependents.

Examples:
  confidence score -f evidence.yaml pkg/a.go:12 pkg/a.go:13
  confidence score -f evidence.yaml --lines 10,11,12 pkg/a.go
  confidence score -f evidence.yaml -o json pkg/a.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(lines) > 0 {
				if len(args) != 1 {
					return fmt.Errorf("--lines takes exactly one file")
				}
				fs, err := a.svc.ScoreFile(ctx, dev, args[0], lines)
				if err != nil {
					return err
				}
				if err := a.out.JSON(fs); err != nil {
					return err
				}
				for _, sc := range fs.Lines {
					printScore(a.out, sc, explain)
				}
				a.out.Title(fmt.Sprintf("%s  %s", a.out.Badge(fmt.Sprintf("%.3f", fs.Overall), aggregate.ColorFromConfidence(fs.Overall).Hex()), fs.File))
				printSweep(a.out, fs.Sweep.Updates)
				return nil
			}

			scores := make([]confidence.Score, 0, len(args))
			for _, arg := range args {
				unit, err := parseUnit(arg)
				if err != nil {
					return err
				}
				sc, err := a.svc.ScoreUnit(ctx, dev, unit)
				if err != nil {
					return err
				}
				scores = append(scores, sc)
				printScore(a.out, sc, explain)
			}
			return a.out.JSON(scores)
		},
	}
	cmd.Flags().StringVarP(&dev, "developer", "d", "", "Developer whose priors apply")
	cmd.Flags().IntSliceVar(&lines, "lines", nil, "Score these lines of a single file")
	cmd.Flags().BoolVar(&explain, "explain", false, "Show per-source provenance")
	return cmd
}

// parseUnit accepts "file" or "file:line".
func parseUnit(s string) (evidence.Unit, error) {
	if i := strings.LastIndexByte(s, ':'); i > 0 {
		if line, err := strconv.Atoi(s[i+1:]); err == nil {
			if line <= 0 {
				return evidence.Unit{}, fmt.Errorf("invalid line in %q", s)
			}
			return evidence.Unit{File: s[:i], Line: line}, nil
		}
	}
	if s == "" {
		return evidence.Unit{}, fmt.Errorf("empty unit")
	}
	return evidence.Unit{File: s}, nil
}

func printScore(out *ux.Printer, sc confidence.Score, explain bool) {
	hex := sc.Color().Hex()
	head := fmt.Sprintf("%s  %s  %s", out.Badge(fmt.Sprintf("%.3f", sc.Overall), hex), sc.Unit.Key(), sc.Band())
	if sc.IsDegraded() {
		head += "  (degraded)"
	}
	out.Title(head)
	for _, c := range aggregate.AllCriteria {
		v := sc.Criteria.Get(c)
		label := string(c)
		if share, ok := sc.MLShare[c]; ok && share > 0 {
			label = fmt.Sprintf("%s (ml %.0f%%)", c, share*100)
		}
		if sc.Degraded[c] {
			label += " *"
		}
		out.Field(label, out.Bar(v, 20, aggregate.ColorFromConfidence(v).Hex()))
	}
	if !explain {
		return
	}
	recs := append([]evidence.Record(nil), sc.Provenance...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Criterion < recs[j].Criterion })
	for _, r := range recs {
		switch {
		case !r.Available:
			out.Warning(fmt.Sprintf("%s → %s unavailable: %s", r.Source, r.Criterion, r.Err))
		case r.Degraded:
			out.Warning(fmt.Sprintf("%s → %s %.3f from cache", r.Source, r.Criterion, r.Value))
		default:
			out.Info(fmt.Sprintf("%s → %s %.3f (%s)", r.Source, r.Criterion, r.Value, r.Proof))
		}
	}
}
