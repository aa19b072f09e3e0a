// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperflow/internal/jobs"
	"github.com/pdiddy/paperflow/internal/ledger"
	"github.com/pdiddy/paperflow/internal/papers"
	"github.com/pdiddy/paperflow/internal/pipeline"
	"github.com/pdiddy/paperflow/internal/server"
	"github.com/pdiddy/paperflow/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the papers API and process object-created events",
	Long: `Serve hosts the papers storage API, the FastGPT file API and the object
event webhook. Each accepted event starts a pipeline run in the background;
when every worker is busy the webhook answers 503 so the producer retries.
A cron job sweeps scratch workspaces left behind by crashed processes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logEntry(cmd)
	gin.SetMode(gin.ReleaseMode)

	db, err := papers.Open(cfg.Server.DatabaseDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := papers.Migrate(db); err != nil {
		return err
	}
	store := papers.NewStore(db, log)

	runs, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer runs.Close()

	p, err := pipeline.New(cfg, pipeline.WithRecorder(runs), pipeline.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Runs outlive the signal so shutdown drains them instead of failing them.
	pool := pipeline.NewPool(context.WithoutCancel(ctx), p, cfg.Runner.Concurrency,
		pipeline.WithPoolLogger(log),
		pipeline.WithResultHook(func(r *types.RunResult, err error) {
			if err != nil {
				log.WithFields(logrus.Fields{
					"run_id":       r.RunID,
					"failed_stage": r.FailedStage,
				}).WithError(err).Warn("run did not complete")
			}
		}))

	executor := jobs.NewExecutor(log,
		jobs.NewScratchSweeper(cfg.Runner.ScratchDir, cfg.Runner.ScratchMaxAge, log))
	if err := executor.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer executor.Stop()

	srv := server.New(cfg.Server, store, server.WithSubmitter(pool), server.WithLogger(log))
	serveErr := srv.ListenAndServe(ctx)

	if inflight := pool.InFlight(); len(inflight) > 0 {
		log.WithField("runs", len(inflight)).Info("waiting for in-flight runs")
	}
	pool.Wait()
	return serveErr
}
