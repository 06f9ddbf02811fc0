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

	"github.com/spf13/cobra"
)

func newNavCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Record file navigation and pre-score likely next files",
	}

	record := &cobra.Command{
		Use:   "record <from> <to>",
		Short: "Count a switch from one file to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.RecordNavigation(cmd.Context(), args[0], args[1])
		},
	}

	var (
		n        int
		prescore bool
		dev      string
	)
	next := &cobra.Command{
		Use:   "next <from>",
		Short: "List the files most often opened after <from>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := a.svc.LikelyNext(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			if err := a.out.JSON(ts); err != nil {
				return err
			}
			for _, t := range ts {
				a.out.Field(t.To, fmt.Sprintf("%d", t.Count))
			}
			if !prescore {
				return nil
			}
			scores, err := a.svc.Prescore(cmd.Context(), dev, args[0], n)
			if err != nil {
				return err
			}
			for _, sc := range scores {
				printScore(a.out, sc, false)
			}
			return nil
		},
	}
	next.Flags().IntVarP(&n, "limit", "n", 5, "Maximum files to list")
	next.Flags().BoolVar(&prescore, "prescore", false, "Score the listed files now")
	next.Flags().StringVarP(&dev, "developer", "d", "", "Developer whose priors apply when pre-scoring")

	cmd.AddCommand(record, next)
	return cmd
}
