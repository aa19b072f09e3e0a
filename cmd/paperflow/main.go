// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperflow CLI. paperflow turns
// uploaded research papers into searchable records: it downloads each
// source, converts PDFs to Markdown, extracts bibliographic metadata,
// stores the paper and publishes the Markdown to a FastGPT dataset.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperflow/internal/config"
	"github.com/pdiddy/paperflow/internal/secrets"
	"github.com/pdiddy/paperflow/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the validated configuration, available to every subcommand.
	cfg *types.Config

	// logger is built from cfg.Log once configuration is loaded.
	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "paperflow",
	Short: "Ingest research papers into the papers store and FastGPT",
	Long: `paperflow processes research papers uploaded to object storage. Each source
URL is downloaded, classified into a research domain by its directory,
converted to Markdown, mined for bibliographic metadata, stored through the
papers API, and published to a FastGPT dataset.

Run "paperflow process <url>..." for one-off batches or "paperflow serve" to
host the papers API and accept object-created events.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}

		v := viper.GetViper()
		if err := config.Setup(v, s); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded

		l, err := config.NewLogger(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		if len(s) > 0 {
			logger.WithField("count", len(s)).Debug("loaded secrets")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperflow.yaml or ~/.config/paperflow/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperflow"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// logEntry returns a log entry tagged with the running subcommand.
func logEntry(cmd *cobra.Command) *logrus.Entry {
	return logrus.NewEntry(logger).WithField("cmd", cmd.Name())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
