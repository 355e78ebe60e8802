// Package config loads and validates the recognized options from
// spec.md §6.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize accepts either a plain integer or a human-readable size string
// ("5GiB", "500MB") in YAML, so operators can write max_file_bytes the way
// they'd type it rather than spelling out the integer.
//
// Grounded on cmd/dupedog's own parseSize flag parser, which wraps the
// same humanize.ParseBytes call for its --min-size flag.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("parse byte size %q: %w", s, err)
		}
		*b = ByteSize(n)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// Config is the full set of recognized options.
type Config struct {
	Remote  Remote  `yaml:"remote"`
	Scan    Scan    `yaml:"scan"`
	Storage Storage `yaml:"storage"`
	Filters Filters `yaml:"filters"`
	Output  Output  `yaml:"output"`
}

type Remote struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	VerifySSL *bool  `yaml:"verify_ssl"`
}

type Scan struct {
	PageSize               int      `yaml:"page_size"`
	WorkerCount            int      `yaml:"worker_count"`
	MaxFileBytes           ByteSize `yaml:"max_file_bytes"`
	DownloadTimeoutSeconds int      `yaml:"download_timeout_seconds"`
	RateLimitPerSecond     float64  `yaml:"rate_limit_per_second"`
	UseContentHash         *bool    `yaml:"use_content_hash"`
}

type Storage struct {
	DatabasePath       string `yaml:"database_path"`
	CheckpointInterval int    `yaml:"checkpoint_interval"`
}

type Filters struct {
	CustomPredicate string   `yaml:"custom_predicate"`
	Projects        []string `yaml:"projects"`
	DateFrom        string   `yaml:"date_from"`
	DateTo          string   `yaml:"date_to"`
}

type Output struct {
	OutputDir string `yaml:"output_dir"`
}

// defaults mirror spec.md §6 exactly.
const (
	defaultPageSize                 = 100
	defaultWorkerCount              = 12
	defaultMaxFileBytes             = 5 * 1 << 30 // 5 GiB
	defaultDownloadTimeoutSeconds   = 300
	defaultRateLimitPerSecond       = 50
	defaultCheckpointInterval       = 100
	defaultLookbackYears            = 20
)

func boolPtr(b bool) *bool { return &b }

// applyDefaults fills in every option spec.md §6 documents a default for,
// leaving explicitly configured values untouched.
func (c *Config) applyDefaults() {
	if c.Remote.VerifySSL == nil {
		c.Remote.VerifySSL = boolPtr(true)
	}
	if c.Scan.PageSize == 0 {
		c.Scan.PageSize = defaultPageSize
	}
	if c.Scan.WorkerCount == 0 {
		c.Scan.WorkerCount = defaultWorkerCount
	}
	if c.Scan.MaxFileBytes == 0 {
		c.Scan.MaxFileBytes = defaultMaxFileBytes
	}
	if c.Scan.DownloadTimeoutSeconds == 0 {
		c.Scan.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Scan.RateLimitPerSecond == 0 {
		c.Scan.RateLimitPerSecond = defaultRateLimitPerSecond
	}
	if c.Scan.UseContentHash == nil {
		c.Scan.UseContentHash = boolPtr(true)
	}
	if c.Storage.CheckpointInterval == 0 {
		c.Storage.CheckpointInterval = defaultCheckpointInterval
	}
}

// Load reads and validates a YAML config file at path, applying defaults
// and environment-variable credential overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets credentials come from the environment instead of
// the config file, so they never need to be written to disk.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATTACHMENTSCAN_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv("ATTACHMENTSCAN_REMOTE_USERNAME"); v != "" {
		cfg.Remote.Username = v
	}
	if v := os.Getenv("ATTACHMENTSCAN_REMOTE_PASSWORD"); v != "" {
		cfg.Remote.Password = v
	}
}

// Validate checks the cross-field constraints spec.md §6 requires:
// exactly one credential form, and at most one predicate form (with
// neither set, the predicate is assembled from the default lookback).
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}

	hasToken := c.Remote.Token != ""
	hasBasic := c.Remote.Username != "" || c.Remote.Password != ""
	if hasToken == hasBasic {
		return fmt.Errorf("exactly one of remote.token or remote.username+remote.password must be set")
	}

	hasCustom := c.Filters.CustomPredicate != ""
	hasAssembled := len(c.Filters.Projects) > 0 || c.Filters.DateFrom != "" || c.Filters.DateTo != ""
	if hasCustom && hasAssembled {
		return fmt.Errorf("filters.custom_predicate is mutually exclusive with filters.projects/date_from/date_to")
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}

	return nil
}

// DownloadTimeout returns the configured per-request download timeout as
// a time.Duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Scan.DownloadTimeoutSeconds) * time.Second
}

// DefaultLookbackYears is the fallback lookback window used when
// assembling a predicate from filters without an explicit date_from.
const DefaultLookbackYears = defaultLookbackYears
