package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents a hoist.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Project ProjectConfig `yaml:"project"`
	Deploy  DeployConfig  `yaml:"deploy"`
	Retry   RetryConfig   `yaml:"retry"`
	Archive ArchiveConfig `yaml:"archive"`
	Upload  UploadConfig  `yaml:"upload"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// APIConfig locates the deployment API.
type APIConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// ProjectConfig identifies what is being deployed.
type ProjectConfig struct {
	ID        string `yaml:"id"`
	AccountID string `yaml:"account_id"`
	Dir       string `yaml:"dir"`
}

// DeployConfig holds defaults for hoist deploy.
type DeployConfig struct {
	BuildCommand  string            `yaml:"build_command"`
	BuildEnv      map[string]string `yaml:"build_env,omitempty"`
	NoWait        bool              `yaml:"no_wait"`
	NoLogs        bool              `yaml:"no_logs"`
	Timeout       Duration          `yaml:"timeout"`
	Interval      Duration          `yaml:"interval"`
	RetainArchive bool              `yaml:"retain_archive"`
}

// RetryConfig overrides the default network retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Multiplier  float64  `yaml:"multiplier"`
}

// ArchiveConfig holds archive defaults.
type ArchiveConfig struct {
	Excludes  []string `yaml:"excludes"`
	OutputDir string   `yaml:"output_dir"`
}

// UploadConfig configures s3:// upload destinations.
type UploadConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config holds AWS client settings shared by the S3 consumers.
type S3Config struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// HistoryConfig selects where finished deployments are recorded.
type HistoryConfig struct {
	Disabled bool     `yaml:"disabled"`
	Backend  string   `yaml:"backend"`
	Path     string   `yaml:"path"`
	Dataset  string   `yaml:"dataset"`
	S3       S3Config `yaml:"s3"`
}

// NotifyConfig holds deployment-completed notification targets.
type NotifyConfig struct {
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
	Redis   *RedisConfig   `yaml:"redis,omitempty"`
}

// WebhookConfig holds webhook notifier settings.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig holds redis pub/sub notifier settings.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// History backends.
const (
	HistoryBackendFS = "fs"
	HistoryBackendS3 = "s3"
)

// Validate checks values that cannot be checked by YAML decoding alone.
func (c *Config) Validate() error {
	var errs []error
	switch c.History.Backend {
	case "", HistoryBackendFS:
	case HistoryBackendS3:
		if strings.TrimSpace(c.History.S3.Bucket) == "" {
			errs = append(errs, errors.New("history.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.backend must be fs or s3, got %q", c.History.Backend))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be >= 1, got %v", c.Retry.Multiplier))
	}
	if w := c.Notify.Webhook; w != nil && w.URL == "" {
		errs = append(errs, errors.New("notify.webhook.url is required"))
	}
	if r := c.Notify.Redis; r != nil && r.URL == "" {
		errs = append(errs, errors.New("notify.redis.url is required"))
	}
	return errors.Join(errs...)
}
