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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/services/confidence"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the hash-chained score audit log",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Recompute every link of the audit chain",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			n := len(a.svc.AuditEntries())
			err := a.svc.VerifyAudit()
			if jerr := a.out.JSON(map[string]any{"entries": n, "intact": err == nil}); jerr != nil {
				return jerr
			}
			if errors.Is(err, confidence.ErrAuditChainCorrupted) {
				a.out.ErrorBox("Audit chain corrupted", err.Error())
				return errCheckFailed
			}
			if err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("audit chain intact (%d entries)", n))
			return nil
		},
	}

	var tail int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print audit entries, newest last",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			entries := a.svc.AuditEntries()
			if tail > 0 && len(entries) > tail {
				entries = entries[len(entries)-tail:]
			}
			if err := a.out.JSON(entries); err != nil {
				return err
			}
			for _, e := range entries {
				a.out.Field(fmt.Sprintf("#%d %s", e.Seq, e.Cause),
					fmt.Sprintf("%s %.3f → %.3f  %s", e.Subject, e.Old, e.New, e.Timestamp.Format("2006-01-02 15:04:05")))
			}
			return nil
		},
	}
	list.Flags().IntVarP(&tail, "tail", "n", 20, "Show only the last n entries (0 for all)")

	cmd.AddCommand(verify, list)
	return cmd
}
