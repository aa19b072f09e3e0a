// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds a single request, including reading the response body.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig is a fixed-delay retry policy. MaxRetries counts retries after
// the first attempt, so the total number of attempts is MaxRetries+1.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

// ObjectStoreConfig describes the S3-compatible store used for s3:// sources.
type ObjectStoreConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" mapstructure:"secret_key"`
	Region    string `json:"region" yaml:"region" mapstructure:"region"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl" mapstructure:"use_ssl"`
}

// FetchConfig holds settings for the download stage.
type FetchConfig struct {
	HTTPConfig  `yaml:",inline" mapstructure:",squash"`
	ObjectStore ObjectStoreConfig `json:"object_store" yaml:"object_store" mapstructure:"object_store"`
}

// ParserConfig holds settings for the remote PDF-to-Markdown service.
type ParserConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// URL is the upload endpoint of the parsing service.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// Engine selects the parsing engine: "marker" or "docling".
	Engine string `json:"engine" yaml:"engine" mapstructure:"engine"`
}

// ExtractionConfig holds settings for the metadata agent.
type ExtractionConfig struct {
	HTTPConfig  `yaml:",inline" mapstructure:",squash"`
	RetryConfig `yaml:",inline" mapstructure:",squash"`

	// URL is the agent endpoint returning raw LLM output.
	URL string `json:"url" yaml:"url" mapstructure:"url"`
}

// StorageConfig points at the papers storage API.
type StorageConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIURL is the API base; records are created at APIURL + "/papers".
	APIURL string `json:"api_url" yaml:"api_url" mapstructure:"api_url"`
}

// DatasetConfig holds settings for the FastGPT dataset upload.
type DatasetConfig struct {
	HTTPConfig  `yaml:",inline" mapstructure:",squash"`
	RetryConfig `yaml:",inline" mapstructure:",squash"`

	BaseURL   string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	DatasetID string `json:"dataset_id" yaml:"dataset_id" mapstructure:"dataset_id"`
}

// LedgerBackend selects where run and stage results are recorded.
type LedgerBackend string

const (
	LedgerNone   LedgerBackend = "none"
	LedgerSQLite LedgerBackend = "sqlite"
	LedgerRedis  LedgerBackend = "redis"
)

// LedgerConfig holds settings for the run ledger.
type LedgerConfig struct {
	Backend   LedgerBackend `json:"backend" yaml:"backend" mapstructure:"backend"`
	Path      string        `json:"path" yaml:"path" mapstructure:"path"`
	RedisAddr string        `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB   int           `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
}

// RunnerConfig holds settings shared by all pipeline runs.
type RunnerConfig struct {
	// Concurrency is the maximum number of runs executing at once.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// ScratchDir is the parent of per-run workspaces (default: os.TempDir()).
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir" mapstructure:"scratch_dir"`

	// ScratchMaxAge is how old an orphaned workspace must be before the
	// sweeper removes it.
	ScratchMaxAge time.Duration `json:"scratch_max_age" yaml:"scratch_max_age" mapstructure:"scratch_max_age"`
}

// ServerConfig holds settings for `paperflow serve`.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// DatabaseDSN is "sqlite://<path>" or a postgres:// URL.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn" mapstructure:"database_dsn"`

	// PublicBaseURL prefixes object keys from storage events to build source URLs.
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url" mapstructure:"public_base_url"`

	// AllowedOrigins configures CORS for the file API.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups every setting the pipeline and its surfaces need. It is
// passed explicitly; nothing reads configuration from globals.
type Config struct {
	Runner     RunnerConfig     `json:"runner" yaml:"runner" mapstructure:"runner"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Parser     ParserConfig     `json:"parser" yaml:"parser" mapstructure:"parser"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Storage    StorageConfig    `json:"storage" yaml:"storage" mapstructure:"storage"`
	Dataset    DatasetConfig    `json:"dataset" yaml:"dataset" mapstructure:"dataset"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
