// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config turns viper settings into a types.Config. Every key has a
// default so environment variables (PAPERFLOW_<SECTION>_<KEY>) can set any
// of them without a config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/paperflow/internal/secrets"
	"github.com/pdiddy/paperflow/pkg/types"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAPERFLOW"

// Defaults lists every configuration key with its default value.
var Defaults = map[string]any{
	"runner.concurrency":     5,
	"runner.scratch_dir":     "",
	"runner.scratch_max_age": 24 * time.Hour,

	"fetch.timeout":                 60 * time.Second,
	"fetch.user_agent":              "paperflow/1.0",
	"fetch.object_store.endpoint":   "",
	"fetch.object_store.access_key": "",
	"fetch.object_store.secret_key": "",
	"fetch.object_store.region":     "auto",
	"fetch.object_store.use_ssl":    true,

	"parser.url":        "https://yfb222333--pdf-parser-parse-pdf-upload.modal.run",
	"parser.engine":     "marker",
	"parser.timeout":    300 * time.Second,
	"parser.user_agent": "",

	"extraction.url":         "https://yfb222333--paper-metadata-agent-analyze-paper-raw-llm-output.modal.run",
	"extraction.timeout":     120 * time.Second,
	"extraction.user_agent":  "",
	"extraction.max_retries": 2,
	"extraction.retry_delay": 10 * time.Second,

	"storage.api_url":    "https://ai4s-papers-service.deepmd.us/api",
	"storage.timeout":    120 * time.Second,
	"storage.user_agent": "",

	"dataset.base_url":    "https://zqibhdki.sealosbja.site",
	"dataset.api_key":     "",
	"dataset.dataset_id":  "684897a43609eeebb2bc7391",
	"dataset.timeout":     120 * time.Second,
	"dataset.user_agent":  "",
	"dataset.max_retries": 3,
	"dataset.retry_delay": 600 * time.Second,

	"ledger.backend":    string(types.LedgerSQLite),
	"ledger.path":       "paperflow.db",
	"ledger.redis_addr": "",
	"ledger.redis_db":   0,

	"server.addr":            ":8080",
	"server.database_dsn":    "sqlite://papers.db",
	"server.public_base_url": "https://deepmodeling-docs-r2.deepmd.us",
	"server.allowed_origins": []string{"*"},

	"log.level":  "info",
	"log.format": "text",
}

// legacyEnv binds the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"storage.api_url":    "DJANGO_API_ENDPOINT",
	"dataset.base_url":   "FASTGPT_WEBURL",
	"dataset.api_key":    "FASTGPT_DEVELOPER_API_KEY",
	"dataset.dataset_id": "DATASET_ID",
	"extraction.url":     "MODAL_MARKDOWN_METADATA_AGENT_URL",
}

// Setup registers defaults, secrets and environment bindings on v. Secrets
// act as defaults: a config file or environment variable overrides them.
func Setup(v *viper.Viper, loaded map[string]string) error {
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	for k, val := range secrets.Settings(loaded) {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, legacy); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with cfg at once.
func Validate(cfg *types.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.Runner.Concurrency > 0, "runner.concurrency must be positive, got %d", cfg.Runner.Concurrency)
	check(cfg.Parser.URL != "", "parser.url is required")
	check(cfg.Parser.Engine == "marker" || cfg.Parser.Engine == "docling",
		"parser.engine must be marker or docling, got %q", cfg.Parser.Engine)
	check(cfg.Extraction.URL != "", "extraction.url is required")
	check(cfg.Extraction.MaxRetries >= 0, "extraction.max_retries must not be negative")
	check(cfg.Storage.APIURL != "", "storage.api_url is required")
	check(cfg.Dataset.BaseURL != "", "dataset.base_url is required")
	check(cfg.Dataset.DatasetID != "", "dataset.dataset_id is required")
	check(cfg.Dataset.MaxRetries >= 0, "dataset.max_retries must not be negative")

	switch cfg.Ledger.Backend {
	case types.LedgerNone, types.LedgerSQLite, types.LedgerRedis:
	default:
		errs = append(errs, fmt.Errorf("ledger.backend must be none, sqlite or redis, got %q", cfg.Ledger.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
