// Package config provides YAML-based configuration loading for lectern.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level lectern configuration, loaded from config.yaml.
type Config struct {
	Database    DatabaseConfig   `yaml:"database"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Transcripts TranscriptConfig `yaml:"transcripts"`
	Ollama      OllamaConfig     `yaml:"ollama"`
	Bias        BiasConfig       `yaml:"bias"`
	Optimize    OptimizeConfig   `yaml:"optimize"`
	Categories  []string         `yaml:"categories"`
	Dashboard   DashboardConfig  `yaml:"dashboard"`
	Schedule    ScheduleConfig   `yaml:"schedule"`
	Notify      NotifyConfig     `yaml:"notify"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig selects the storage backend. The sqlite driver stores
// everything in a single file; the mysql driver targets MySQL or Dolt.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// PipelineConfig controls ingestion concurrency, retries and chunking.
type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	MaxConcurrentCalls int           `yaml:"max_concurrent_calls"`
	RequestsPerMinute  int           `yaml:"requests_per_minute"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
	ChunkTargetWords   int           `yaml:"chunk_target_words"`
	ChunkOverlapWords  int           `yaml:"chunk_overlap_words"`
}

// TranscriptConfig locates transcript files on disk.
type TranscriptConfig struct {
	Dir                string   `yaml:"dir"`
	PreferredLanguages []string `yaml:"preferred_languages"`
}

// OllamaConfig points at the local model server used for analysis and bias
// detection.
type OllamaConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// BiasConfig tunes the bias scanner.
type BiasConfig struct {
	Brands    []string `yaml:"brands"`
	BatchSize int      `yaml:"batch_size"`
}

// OptimizeConfig holds optimizer thresholds.
type OptimizeConfig struct {
	MinEntries           int     `yaml:"min_entries"`
	MinAvgConfidence     float64 `yaml:"min_avg_confidence"`
	GarbageMaxConfidence float64 `yaml:"garbage_max_confidence"`
	GarbageMaxChars      int     `yaml:"garbage_max_chars"`
	BoostPerVideo        float64 `yaml:"boost_per_video"`
	MaxBoost             float64 `yaml:"max_boost"`
	ConfidenceCeiling    float64 `yaml:"confidence_ceiling"`
	TaxonomyBatchSize    int     `yaml:"taxonomy_batch_size"`
}

// DashboardConfig configures the HTTP API.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// ScheduleConfig holds 5-field cron expressions for the daemon. An empty
// expression disables the job.
type ScheduleConfig struct {
	Ingest   string `yaml:"ingest"`
	BiasScan string `yaml:"bias_scan"`
	Optimize string `yaml:"optimize"`
}

// NotifyConfig holds chat notification targets.
type NotifyConfig struct {
	Slack   ChatTarget `yaml:"slack"`
	Discord ChatTarget `yaml:"discord"`
}

// ChatTarget is a bot token plus the channel it posts to.
type ChatTarget struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether the target is fully configured.
func (t ChatTarget) Enabled() bool { return t.BotToken != "" && t.ChannelID != "" }

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, as if parsed from an
// empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// DefaultCategories are seeded when the config does not list any.
var DefaultCategories = []string{
	"Programming", "Health", "Finance", "Science", "Productivity",
	"Business", "Education", "Technology", "Outdoors", "Other",
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/lectern.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "lectern"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}

	p := &c.Pipeline
	if p.Workers == 0 {
		p.Workers = 4
	}
	if p.MaxConcurrentCalls == 0 {
		p.MaxConcurrentCalls = 2
	}
	if p.RequestsPerMinute == 0 {
		p.RequestsPerMinute = 30
	}
	if p.CallTimeout == 0 {
		p.CallTimeout = 5 * time.Minute
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryBaseDelay == 0 {
		p.RetryBaseDelay = 2 * time.Second
	}
	if p.RetryMaxDelay == 0 {
		p.RetryMaxDelay = time.Minute
	}
	if p.ChunkTargetWords == 0 {
		p.ChunkTargetWords = 2000
	}
	if p.ChunkOverlapWords == 0 {
		p.ChunkOverlapWords = 100
	}

	if c.Transcripts.Dir == "" {
		c.Transcripts.Dir = "data/transcripts"
	}
	if len(c.Transcripts.PreferredLanguages) == 0 {
		c.Transcripts.PreferredLanguages = []string{"en", "en-US", "en-GB"}
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = "llama3.2"
	}
	if c.Ollama.Timeout == 0 {
		c.Ollama.Timeout = c.Pipeline.CallTimeout
	}

	if c.Bias.BatchSize == 0 {
		c.Bias.BatchSize = 15
	}

	o := &c.Optimize
	if o.MinEntries == 0 {
		o.MinEntries = 3
	}
	if o.MinAvgConfidence == 0 {
		o.MinAvgConfidence = 0.5
	}
	if o.GarbageMaxConfidence == 0 {
		o.GarbageMaxConfidence = 0.3
	}
	if o.GarbageMaxChars == 0 {
		o.GarbageMaxChars = 50
	}
	if o.BoostPerVideo == 0 {
		o.BoostPerVideo = 0.05
	}
	if o.MaxBoost == 0 {
		o.MaxBoost = 0.15
	}
	if o.ConfidenceCeiling == 0 {
		o.ConfidenceCeiling = 0.95
	}
	if o.TaxonomyBatchSize == 0 {
		o.TaxonomyBatchSize = 10
	}

	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), DefaultCategories...)
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}

	p := c.Pipeline
	if p.Workers < 1 {
		errs = append(errs, "pipeline.workers must be at least 1")
	}
	if p.MaxConcurrentCalls < 1 {
		errs = append(errs, "pipeline.max_concurrent_calls must be at least 1")
	}
	if p.RequestsPerMinute < 1 {
		errs = append(errs, "pipeline.requests_per_minute must be at least 1")
	}
	if p.CallTimeout <= 0 {
		errs = append(errs, "pipeline.call_timeout must be positive")
	}
	if p.MaxRetries < 0 {
		errs = append(errs, "pipeline.max_retries must not be negative")
	}
	if p.RetryMaxDelay < p.RetryBaseDelay {
		errs = append(errs, "pipeline.retry_max_delay must not be less than retry_base_delay")
	}
	if p.ChunkTargetWords < 1 {
		errs = append(errs, "pipeline.chunk_target_words must be at least 1")
	}
	if p.ChunkOverlapWords < 0 || p.ChunkOverlapWords >= p.ChunkTargetWords {
		errs = append(errs, "pipeline.chunk_overlap_words must be between 0 and chunk_target_words")
	}

	o := c.Optimize
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"optimize.min_avg_confidence", o.MinAvgConfidence},
		{"optimize.garbage_max_confidence", o.GarbageMaxConfidence},
		{"optimize.confidence_ceiling", o.ConfidenceCeiling},
	} {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", f.name))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
