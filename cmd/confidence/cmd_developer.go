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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

func newDeveloperCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "developer",
		Short: "Inspect developer confidence and module bus factor",
		Long: `Developer signals come from the fixtures file (--fixtures). The flow
signal is always the developer's feedback prior for the module.`,
	}

	show := &cobra.Command{
		Use:   "show <developer> <module>",
		Short: "Compute C(developer, module)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			as, err := a.svc.DeveloperConfidence(args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.out.JSON(as); err != nil {
				return err
			}
			a.out.Title(fmt.Sprintf("%s  %s in %s (%s)",
				a.out.Badge(fmt.Sprintf("%.3f", as.Value), aggregate.ColorFromConfidence(as.Value).Hex()),
				as.Developer, as.Module, as.Combination))
			s := as.Signals
			for _, f := range []struct {
				label string
				v     float64
			}{
				{"commit history", s.CommitHistory},
				{"bug introduction rate", s.BugIntroductionRate},
				{"review acceptance", s.ReviewAcceptance},
				{"recency", s.Recency},
				{"domain expertise", s.DomainExpertise},
				{"flow", s.Flow},
				{"fatigue", s.Fatigue},
			} {
				a.out.Field(f.label, fmt.Sprintf("%.3f", f.v))
			}
			return nil
		},
	}

	busFactor := &cobra.Command{
		Use:   "busfactor <module>...",
		Short: "Count the experts of each module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, m := range args {
				bf := a.svc.BusFactor(m)
				if err := a.out.JSON(bf); err != nil {
					return err
				}
				line := fmt.Sprintf("%s: bus factor %d", m, bf.Count)
				if len(bf.Experts) > 0 {
					line += " (" + strings.Join(bf.Experts, ", ") + ")"
				}
				if bf.KnowledgeRisk {
					a.out.Warning(line + "  knowledge risk")
				} else {
					a.out.Success(line)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(show, busFactor)
	return cmd
}
