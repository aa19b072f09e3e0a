// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperflow/pkg/types"
)

// clearEnv unsets every variable Load could read so the host environment
// does not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for k := range Defaults {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(k, ".", "_")), "")
		os.Unsetenv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_")))
	}
	for _, legacy := range legacyEnv {
		t.Setenv(legacy, "")
		os.Unsetenv(legacy)
	}
}

func load(t *testing.T, loaded map[string]string) (*types.Config, error) {
	t.Helper()
	v := viper.New()
	require.NoError(t, Setup(v, loaded))
	return Load(v)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runner.Concurrency)
	assert.Equal(t, 24*time.Hour, cfg.Runner.ScratchMaxAge)
	assert.Equal(t, 60*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "paperflow/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, "marker", cfg.Parser.Engine)
	assert.Equal(t, 300*time.Second, cfg.Parser.Timeout)
	assert.Equal(t, 2, cfg.Extraction.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Extraction.RetryDelay)
	assert.Equal(t, 120*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, "https://ai4s-papers-service.deepmd.us/api", cfg.Storage.APIURL)
	assert.Equal(t, 3, cfg.Dataset.MaxRetries)
	assert.Equal(t, 600*time.Second, cfg.Dataset.RetryDelay)
	assert.Equal(t, "684897a43609eeebb2bc7391", cfg.Dataset.DatasetID)
	assert.Equal(t, types.LedgerSQLite, cfg.Ledger.Backend)
	assert.Equal(t, "paperflow.db", cfg.Ledger.Path)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite://papers.db", cfg.Server.DatabaseDSN)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "paperflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  concurrency: 2
parser:
  engine: docling
  timeout: 90s
dataset:
  retry_delay: 1m
  max_retries: 0
ledger:
  backend: redis
  redis_addr: localhost:6379
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, Setup(v, nil))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Runner.Concurrency)
	assert.Equal(t, "docling", cfg.Parser.Engine)
	assert.Equal(t, 90*time.Second, cfg.Parser.Timeout)
	assert.Equal(t, time.Minute, cfg.Dataset.RetryDelay)
	assert.Equal(t, 0, cfg.Dataset.MaxRetries)
	assert.Equal(t, types.LedgerRedis, cfg.Ledger.Backend)
	assert.Equal(t, "localhost:6379", cfg.Ledger.RedisAddr)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAPERFLOW_RUNNER_CONCURRENCY", "9")
	t.Setenv("PAPERFLOW_EXTRACTION_RETRY_DELAY", "250ms")
	t.Setenv("PAPERFLOW_SERVER_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := load(t, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Runner.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Extraction.RetryDelay)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DJANGO_API_ENDPOINT", "http://localhost:8000/api")
	t.Setenv("FASTGPT_WEBURL", "http://fastgpt.local")
	t.Setenv("FASTGPT_DEVELOPER_API_KEY", "fastgpt-legacy")
	t.Setenv("DATASET_ID", "ds-1")
	t.Setenv("MODAL_MARKDOWN_METADATA_AGENT_URL", "http://agent.local")

	cfg, err := load(t, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.Storage.APIURL)
	assert.Equal(t, "http://fastgpt.local", cfg.Dataset.BaseURL)
	assert.Equal(t, "fastgpt-legacy", cfg.Dataset.APIKey)
	assert.Equal(t, "ds-1", cfg.Dataset.DatasetID)
	assert.Equal(t, "http://agent.local", cfg.Extraction.URL)

	t.Setenv("PAPERFLOW_STORAGE_API_URL", "http://new.local/api")
	cfg, err = load(t, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://new.local/api", cfg.Storage.APIURL, "prefixed name wins over the legacy one")
}

func TestLoad_SecretsAreDefaults(t *testing.T) {
	clearEnv(t)
	loaded := map[string]string{"fastgpt-api-key": "fastgpt-from-file", "s3-access-key": "AKIA"}

	cfg, err := load(t, loaded)
	require.NoError(t, err)
	assert.Equal(t, "fastgpt-from-file", cfg.Dataset.APIKey)
	assert.Equal(t, "AKIA", cfg.Fetch.ObjectStore.AccessKey)

	t.Setenv("PAPERFLOW_DATASET_API_KEY", "fastgpt-from-env")
	cfg, err = load(t, loaded)
	require.NoError(t, err)
	assert.Equal(t, "fastgpt-from-env", cfg.Dataset.APIKey)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := load(t, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*types.Config)
		errMsg string
	}{
		{"zero concurrency", func(c *types.Config) { c.Runner.Concurrency = 0 }, "runner.concurrency"},
		{"missing parser", func(c *types.Config) { c.Parser.URL = "" }, "parser.url"},
		{"bad engine", func(c *types.Config) { c.Parser.Engine = "tesseract" }, "parser.engine"},
		{"missing agent", func(c *types.Config) { c.Extraction.URL = "" }, "extraction.url"},
		{"negative retries", func(c *types.Config) { c.Dataset.MaxRetries = -1 }, "dataset.max_retries"},
		{"missing dataset", func(c *types.Config) { c.Dataset.DatasetID = "" }, "dataset.dataset_id"},
		{"bad ledger", func(c *types.Config) { c.Ledger.Backend = "etcd" }, "ledger.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	cfg := *base
	cfg.Runner.Concurrency = 0
	cfg.Storage.APIURL = ""
	err = Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner.concurrency")
	assert.Contains(t, err.Error(), "storage.api_url")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(types.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.WithField("run_id", "r1").Debug("hello")
	assert.Contains(t, buf.String(), `"run_id":"r1"`)

	log, err = NewLogger(types.LogConfig{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	_, err = NewLogger(types.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(types.LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
