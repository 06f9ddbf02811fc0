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
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/services/confidence"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/feedback"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/store"
)

func newFeedbackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect developer feedback priors",
	}
	cmd.AddCommand(
		newFeedbackRecordCmd(a),
		newFeedbackShowCmd(a),
		newFeedbackReviewCmd(a),
		newFeedbackForgetCmd(a),
	)
	return cmd
}

func newFeedbackRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record <developer> <module> <action>",
		Short: "Apply a developer action to the (developer, module) prior",
		Long: `Actions: ignore_warning, fix_flagged_line, dismiss_suggestion, add_test,
commit_low_confidence_code.

A stream dominated by dismissals is suspended until reviewed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := feedback.ParseAction(args[2])
			if err != nil {
				return err
			}
			c, err := a.svc.RecordFeedback(cmd.Context(), args[0], args[1], action)
			if errors.Is(err, confidence.ErrFeedbackPoisoning) {
				rate, n := a.svc.DismissRate(args[0])
				a.out.WarningBox("Feedback suspended",
					fmt.Sprintf("%s dismissed %.0f%% of the last %d actions.\nRun `confidence feedback review %s` after checking.", args[0], rate*100, n, args[0]))
				return errCheckFailed
			}
			if err != nil {
				return err
			}
			if err := a.out.JSON(c); err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("%s/%s %s: prior %.4f → %.4f (%d updates)", c.Developer, c.Module, c.Action, c.Old, c.New, c.Updates))
			return nil
		},
	}
}

type priorView struct {
	Developer    string  `json:"developer"`
	Module       string  `json:"module"`
	Prior        float64 `json:"prior"`
	Updates      uint64  `json:"updates"`
	Personalized bool    `json:"personalized"`
}

func newFeedbackShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <developer>",
		Short: "List a developer's priors",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dev := args[0]
			priors := a.svc.Priors(dev)
			keys := make([]store.PriorKey, 0, len(priors))
			for k := range priors {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i].Module < keys[j].Module })

			views := make([]priorView, 0, len(keys))
			for _, k := range keys {
				p := priors[k]
				views = append(views, priorView{
					Developer:    k.Developer,
					Module:       k.Module,
					Prior:        p.Value,
					Updates:      p.Updates,
					Personalized: a.svc.Personalized(k.Developer, k.Module),
				})
			}
			if err := a.out.JSON(views); err != nil {
				return err
			}
			if len(views) == 0 {
				a.out.Info(fmt.Sprintf("no priors for %s", dev))
				return nil
			}
			a.out.Title("Priors for " + dev)
			for _, v := range views {
				note := ""
				if v.Personalized {
					note = "  personalized"
				}
				a.out.Field(v.Module, fmt.Sprintf("%.4f  (%d updates)%s", v.Prior, v.Updates, note))
			}
			return nil
		},
	}
}

func newFeedbackReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review <developer>",
		Short: "Lift a feedback suspension after human review",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a.svc.Review(args[0])
			a.out.Success("feedback stream reviewed for " + args[0])
			return nil
		},
	}
}

func newFeedbackForgetCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "forget [developer]",
		Short: "Delete a developer's priors (or everyone's with --all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := ""
			switch {
			case len(args) == 1:
				dev = args[0]
			case !all:
				return fmt.Errorf("name a developer or pass --all")
			}
			n, err := a.svc.ForgetDeveloper(cmd.Context(), dev)
			if err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("deleted %d priors", n))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every developer's priors")
	return cmd
}
