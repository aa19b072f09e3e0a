// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperflow/internal/ledger"
	"github.com/pdiddy/paperflow/internal/pipeline"
	"github.com/pdiddy/paperflow/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process <url>...",
	Short: "Run the paper pipeline for one or more source URLs",
	Long: `Process downloads each URL (http, https or s3://bucket/key), converts PDFs to
Markdown, extracts metadata, stores the paper and publishes the Markdown to
the FastGPT dataset. URLs run concurrently up to --concurrency.

A run whose record was stored but whose publish failed is reported as
partial. The command exits non-zero when any run did not complete.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Int("concurrency", 0, "maximum concurrent runs (default from runner.concurrency)")
	processCmd.Flags().StringP("output", "o", "", "also dump full results: yaml or json")
	viper.BindPFlag("runner.concurrency", processCmd.Flags().Lookup("concurrency"))

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != "" && output != "yaml" && output != "json" {
		return fmt.Errorf("--output must be yaml or json, got %q", output)
	}

	runs, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer runs.Close()

	p, err := pipeline.New(cfg, pipeline.WithRecorder(runs), pipeline.WithLogger(logEntry(cmd)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := pipeline.RunBatch(ctx, p, args, cfg.Runner.Concurrency)

	w := cmd.OutOrStdout()
	for _, r := range results {
		writeRunLine(w, r)
	}
	summary := pipeline.Summarize(results)
	pipeline.WriteSummary(w, summary)

	if err := writeResults(w, output, results); err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d run(s) did not complete", summary.Failed+summary.Partial)
	}
	return nil
}

// writeRunLine prints one status line per run.
func writeRunLine(w io.Writer, r *types.RunResult) {
	switch {
	case r.Succeeded():
		color.New(color.FgGreen).Fprint(w, "done   ")
		fmt.Fprintf(w, " %-12s %s (record %d)\n", r.Domain, r.URL, r.Record.ID)
	case r.Persisted():
		color.New(color.FgYellow).Fprint(w, "partial")
		fmt.Fprintf(w, " %-12s %s (record %d, publish failed: %s)\n", r.Domain, r.URL, r.Record.ID, r.PublishError)
	default:
		color.New(color.FgRed).Fprint(w, "failed ")
		fmt.Fprintf(w, " %-12s %s (%s)\n", r.Domain, r.URL, r.Error)
	}
}

func writeResults(w io.Writer, format string, results []*types.RunResult) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
	}
	return nil
}
