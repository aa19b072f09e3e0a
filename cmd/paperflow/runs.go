// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperflow/internal/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()

		list, err := l.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		writeRunTable(cmd.OutOrStdout(), list)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the full result of one run as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()

		r, err := l.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding run: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list (0 for all)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func writeRunTable(w io.Writer, list []ledger.RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run ID", "State", "Domain", "Failed Stage", "Started", "Duration", "URL"})
	for _, r := range list {
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		table.Append([]string{
			r.RunID,
			string(r.State),
			string(r.Domain),
			string(r.FailedStage),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			r.URL,
		})
	}
	table.Render()
}
