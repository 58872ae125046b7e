// Package config loads the harvester configuration from YAML.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Source modes.
const (
	ModeJSON = "json"
	ModeHTML = "html"
)

// Default URL templates per mode.
const (
	DefaultJSONTemplate = "https://surechembl.org/api/document/{id}/contents"
	DefaultHTMLTemplate = "https://patents.google.com/patent/{id}/en"
)

// Config represents the top-level configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Run     RunConfig     `yaml:"run"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SourceConfig describes where documents come from.
type SourceConfig struct {
	Mode        string            `yaml:"mode"`         // json, html
	URLTemplate string            `yaml:"url_template"` // must contain {id}
	Lang        string            `yaml:"lang"`         // section language tag (json mode)
	RequireLang string            `yaml:"require_lang"` // ISO 639-3, drops other-language sections (html mode)
	UserAgent   string            `yaml:"user_agent"`
	Headers     map[string]string `yaml:"headers"`
}

// FetchConfig holds the retry and concurrency policy.
type FetchConfig struct {
	Concurrency    int     `yaml:"concurrency"`
	MaxAttempts    int     `yaml:"max_attempts"`
	BaseDelay      float64 `yaml:"base_delay"`      // seconds
	AttemptTimeout float64 `yaml:"attempt_timeout"` // seconds
}

// RunConfig holds batch and filter settings.
type RunConfig struct {
	BatchSize int    `yaml:"batch_size"`
	Pattern   string `yaml:"pattern"` // empty selects the default potency pattern
}

// InputConfig describes the identifier CSV.
type InputConfig struct {
	Path         string `yaml:"path"`
	Column       string `yaml:"column"`
	Offset       int    `yaml:"offset"`
	Limit        int    `yaml:"limit"` // 0 = no limit
	StripHyphens bool   `yaml:"strip_hyphens"`
}

// OutputConfig holds output file locations.
type OutputConfig struct {
	Checkpoint string `yaml:"checkpoint"`
	Final      string `yaml:"final"`
	SuccessLog string `yaml:"success_log"`
	ErrorLog   string `yaml:"error_log"`
}

// CacheConfig configures the optional Redis payload cache.
type CacheConfig struct {
	RedisURL string  `yaml:"redis_url"` // empty disables the cache
	TTL      float64 `yaml:"ttl"`       // seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"` // optional rotating log file
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Mode: ModeJSON,
			Lang: "EN",
		},
		Fetch: FetchConfig{
			Concurrency:    25,
			MaxAttempts:    5,
			BaseDelay:      10,
			AttemptTimeout: 60,
		},
		Run: RunConfig{
			BatchSize: 100,
		},
		Input: InputConfig{
			Column: "patent_number",
		},
		Output: OutputConfig{
			Checkpoint: "found_chunks_checkpoint.json",
			Final:      "found_chunks.json",
			SuccessLog: "success.log",
			ErrorLog:   "error.log",
		},
		Cache: CacheConfig{
			TTL: (24 * time.Hour).Seconds(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyModeDefaults fills settings whose default depends on the mode.
func (c *Config) applyModeDefaults() {
	c.Source.Mode = strings.ToLower(strings.TrimSpace(c.Source.Mode))
	switch c.Source.Mode {
	case ModeJSON:
		if c.Source.URLTemplate == "" {
			c.Source.URLTemplate = DefaultJSONTemplate
		}
		if len(c.Source.Headers) == 0 {
			c.Source.Headers = map[string]string{"Content-Type": "application/json"}
		}
	case ModeHTML:
		if c.Source.URLTemplate == "" {
			c.Source.URLTemplate = DefaultHTMLTemplate
		}
		if c.Source.UserAgent == "" {
			c.Source.UserAgent = "Mozilla/5.0"
		}
	}
}

// Validate checks the configuration before any work starts.
func (c *Config) Validate() error {
	if c.Source.Mode != ModeJSON && c.Source.Mode != ModeHTML {
		return fmt.Errorf("source.mode must be %q or %q (got %q)", ModeJSON, ModeHTML, c.Source.Mode)
	}
	if !strings.Contains(c.Source.URLTemplate, "{id}") {
		return fmt.Errorf("source.url_template must contain {id} (got %q)", c.Source.URLTemplate)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be >= 1 (got %d)", c.Fetch.Concurrency)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be >= 1 (got %d)", c.Fetch.MaxAttempts)
	}
	if c.Fetch.BaseDelay < 0 {
		return fmt.Errorf("fetch.base_delay must be >= 0 (got %v)", c.Fetch.BaseDelay)
	}
	if c.Fetch.AttemptTimeout <= 0 {
		return fmt.Errorf("fetch.attempt_timeout must be > 0 (got %v)", c.Fetch.AttemptTimeout)
	}
	if c.Run.BatchSize < 1 {
		return fmt.Errorf("run.batch_size must be >= 1 (got %d)", c.Run.BatchSize)
	}
	if c.Input.Offset < 0 || c.Input.Limit < 0 {
		return fmt.Errorf("input.offset and input.limit must be >= 0")
	}
	if c.Output.Checkpoint == "" || c.Output.Final == "" {
		return fmt.Errorf("output.checkpoint and output.final are required")
	}
	if c.Output.SuccessLog == "" || c.Output.ErrorLog == "" {
		return fmt.Errorf("output.success_log and output.error_log are required")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0 (got %v)", c.Cache.TTL)
	}
	return nil
}

// BaseDelay returns fetch.base_delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return seconds(c.Fetch.BaseDelay)
}

// AttemptTimeout returns fetch.attempt_timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return seconds(c.Fetch.AttemptTimeout)
}

// CacheTTL returns cache.ttl as a duration.
func (c *Config) CacheTTL() time.Duration {
	return seconds(c.Cache.TTL)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
