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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/field"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/propagate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/telemetry"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the dependency snapshot on change and stream score events",
		Long: `Keep the dependency graph in sync with its snapshot file and print
every refresh and score event until interrupted.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{watchAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Graph.Snapshot == "" {
				return fmt.Errorf("nothing to watch: pass --snapshot")
			}
			id := a.svc.Field().Subscribe(func(e field.Event) {
				a.out.Info(fmt.Sprintf("%s %s %.3f → %.3f", e.Cause, e.Unit, e.Old.Overall, e.New.Overall))
			})
			defer a.svc.Field().Unsubscribe(id)

			a.out.Success(fmt.Sprintf("watching %s (%d files)", a.cfg.Graph.Snapshot, a.svc.Graph().Len()))
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	a.onGraphRefresh = func(st propagate.RefreshStats) {
		a.out.Info(fmt.Sprintf("graph refreshed: %d files, %d edges (+%d -%d, %d dropped)",
			st.Files, st.Edges, st.Added, st.Removed, st.Dropped))
	}
	return cmd
}

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the Prometheus exposition of every registered metric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return telemetry.WriteText(cmd.OutOrStdout())
		},
	}
}
