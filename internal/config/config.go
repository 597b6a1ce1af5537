package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"SignalPipeline/internal/domain"
)

const (
	configPathEnv      = "SIGNAL_PIPELINE_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	natsURLEnv         = "NATS_URL"
	sentimentURLEnv    = "SENTIMENT_API_URL"
	sentimentAPIKeyEnv = "SENTIMENT_API_KEY"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Teams     []TeamConfig    `yaml:"teams"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// EventsConfig wires the optional NATS day-summary publisher.
type EventsConfig struct {
	NATSURL     string `yaml:"natsUrl"`
	SubjectRoot string `yaml:"subjectRoot"`
	TopSignals  int    `yaml:"topSignals"`
}

// SentimentConfig describes the optional remote sentiment service.
type SentimentConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// SchedulerConfig defines how often batch runs execute. A zero interval means
// single-shot mode.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PipelineConfig holds batch-level tunables shared by all teams.
type PipelineConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	WorkerCount   int           `yaml:"workerCount"`
	MethodTimeout time.Duration `yaml:"methodTimeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBaseWait time.Duration `yaml:"retryBaseWait"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TeamConfig carries the per-team tunables, read-only per run.
type TeamConfig struct {
	Key                string             `yaml:"key"`
	RelevanceThreshold float64            `yaml:"relevanceThreshold"`
	MinFrequency       int                `yaml:"minFrequency"`
	MaxKeywordsPerDay  int                `yaml:"maxKeywordsPerDay"`
	EnabledMethods     []string           `yaml:"enabledMethods"`
	MaxPhraseLength    int                `yaml:"maxPhraseLength"`
	EnableSentiment    bool               `yaml:"enableSentiment"`
	SentimentMethod    string             `yaml:"sentimentMethod"`
	WeightOverrides    map[string]float64 `yaml:"importanceWeightOverrides"`
	TrendWindow        int                `yaml:"trendWindow"`
	TrendThreshold     float64            `yaml:"trendThreshold"`
	VelocityLookback   int                `yaml:"velocityLookback"`
	RetentionDays      int                `yaml:"retentionDays"`
}

// Validate reports the first problem that makes the team unrunnable. A failed
// team aborts only its own run.
func (t TeamConfig) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("%w: team key is empty", domain.ErrConfiguration)
	}
	if len(t.EnabledMethods) == 0 {
		return fmt.Errorf("%w: team %s has no enabled extraction methods", domain.ErrConfiguration, t.Key)
	}
	if t.MinFrequency < 0 {
		return fmt.Errorf("%w: team %s: minFrequency must not be negative", domain.ErrConfiguration, t.Key)
	}
	if t.MaxPhraseLength < 1 {
		return fmt.Errorf("%w: team %s: maxPhraseLength must be at least 1", domain.ErrConfiguration, t.Key)
	}
	for name, w := range t.WeightOverrides {
		if w < 0 {
			return fmt.Errorf("%w: team %s: weight override %s is negative", domain.ErrConfiguration, t.Key, name)
		}
	}
	if t.EnableSentiment && t.SentimentMethod == "" {
		return fmt.Errorf("%w: team %s: sentiment enabled without a sentimentMethod", domain.ErrConfiguration, t.Key)
	}
	return nil
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyTeamDefaults()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv(sentimentURLEnv); v != "" {
		c.Sentiment.InferenceURL = v
	}
	if v := os.Getenv(sentimentAPIKeyEnv); v != "" {
		c.Sentiment.APIKey = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// applyTeamDefaults fills zero-valued team tunables so that a minimal YAML
// team entry (just a key) is runnable.
func (c *Config) applyTeamDefaults() {
	for i := range c.Teams {
		t := &c.Teams[i]
		if len(t.EnabledMethods) == 0 {
			t.EnabledMethods = []string{"frequency", "phrase", "entity"}
		}
		if t.MinFrequency == 0 {
			t.MinFrequency = 2
		}
		if t.MaxKeywordsPerDay == 0 {
			t.MaxKeywordsPerDay = 100
		}
		if t.MaxPhraseLength == 0 {
			t.MaxPhraseLength = 4
		}
		if t.SentimentMethod == "" {
			t.SentimentMethod = "lexicon"
		}
		if t.TrendWindow == 0 {
			t.TrendWindow = 7
		}
		if t.TrendThreshold == 0 {
			t.TrendThreshold = 1.5
		}
		if t.VelocityLookback == 0 {
			t.VelocityLookback = 3
		}
		if t.RetentionDays == 0 {
			t.RetentionDays = 90
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Events.NATSURL != "" {
		base.Events.NATSURL = override.Events.NATSURL
	}
	if override.Events.SubjectRoot != "" {
		base.Events.SubjectRoot = override.Events.SubjectRoot
	}
	if override.Events.TopSignals != 0 {
		base.Events.TopSignals = override.Events.TopSignals
	}

	if override.Sentiment.InferenceURL != "" {
		base.Sentiment.InferenceURL = override.Sentiment.InferenceURL
	}
	if override.Sentiment.APIKey != "" {
		base.Sentiment.APIKey = override.Sentiment.APIKey
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}

	if override.Pipeline.BatchSize != 0 {
		base.Pipeline.BatchSize = override.Pipeline.BatchSize
	}
	if override.Pipeline.WorkerCount != 0 {
		base.Pipeline.WorkerCount = override.Pipeline.WorkerCount
	}
	if override.Pipeline.MethodTimeout != 0 {
		base.Pipeline.MethodTimeout = override.Pipeline.MethodTimeout
	}
	if override.Pipeline.RetryAttempts != 0 {
		base.Pipeline.RetryAttempts = override.Pipeline.RetryAttempts
	}
	if override.Pipeline.RetryBaseWait != 0 {
		base.Pipeline.RetryBaseWait = override.Pipeline.RetryBaseWait
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if len(override.Teams) > 0 {
		base.Teams = override.Teams
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: ""},
		Events: EventsConfig{
			SubjectRoot: "signals",
			TopSignals:  10,
		},
		Scheduler: SchedulerConfig{Interval: 0},
		Pipeline: PipelineConfig{
			BatchSize:     200,
			WorkerCount:   4,
			MethodTimeout: 5 * time.Second,
			RetryAttempts: 4,
			RetryBaseWait: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
		Teams: []TeamConfig{
			{
				Key:             "default",
				EnableSentiment: true,
			},
		},
	}
}
