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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newGateCmd(a *app) *cobra.Command {
	var (
		dev      string
		diffPath string
	)
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Decide whether a change may ship",
		Long: `Score every line a unified diff touches (re-verifying stale scores)
and compute C(change) = C(code) × C(developer). The command exits 1 when
C(change) is below the gate threshold.

Examples:
  git diff main | confidence gate -f evidence.yaml -d ana
  confidence gate -f evidence.yaml -d ana --diff change.diff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				diff []byte
				err  error
			)
			if diffPath == "" || diffPath == "-" {
				diff, err = io.ReadAll(cmd.InOrStdin())
			} else {
				diff, err = os.ReadFile(diffPath)
			}
			if err != nil {
				return fmt.Errorf("read diff: %w", err)
			}

			res, err := a.svc.ShipGate(cmd.Context(), dev, diff)
			if err != nil {
				return err
			}
			if err := a.out.JSON(res); err != nil {
				return err
			}

			body := strings.Join([]string{
				fmt.Sprintf("C(code)      %.3f", res.Code),
				fmt.Sprintf("C(developer) %.3f", res.DeveloperConfidence),
				fmt.Sprintf("C(change)    %.3f  (threshold %.2f, %s)", res.Change, res.Threshold, res.Band),
				fmt.Sprintf("files        %d", len(res.Files)),
			}, "\n")
			if len(res.Reverified) > 0 {
				body += fmt.Sprintf("\nre-verified  %s", strings.Join(res.Reverified, ", "))
			}
			if res.Pass {
				a.out.Box("Ship gate passed", body)
				return nil
			}
			a.out.ErrorBox("Ship gate failed", body)
			return errCheckFailed
		},
	}
	cmd.Flags().StringVarP(&dev, "developer", "d", "", "Author of the change")
	cmd.Flags().StringVar(&diffPath, "diff", "", "Unified diff file (default: stdin)")
	return cmd
}
