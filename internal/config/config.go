// Package config loads the csvpipe configuration.
//
// Precedence: explicit flags (applied by the command layer) > environment
// variables (CSVPIPE_ prefix) > config file (csvpipe.yaml) > defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/threeoaks/csvpipe/pkg/pipeline"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Jobs     JobsConfig     `mapstructure:"jobs" yaml:"jobs"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	// Backend is "s3" or "file".
	Backend string `mapstructure:"backend" yaml:"backend"`
	Bucket  string `mapstructure:"bucket" yaml:"bucket"`

	// S3 backend settings.
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	Profile        string `mapstructure:"profile" yaml:"profile"`

	// File backend settings.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// QueueConfig selects and configures the job queue backend.
type QueueConfig struct {
	// Backend is "sqs" or "memory".
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	URL               string        `mapstructure:"url" yaml:"url"`
	Region            string        `mapstructure:"region" yaml:"region"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	WaitTime          time.Duration `mapstructure:"wait_time" yaml:"wait_time"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
}

// JobsConfig selects and configures the job status store.
type JobsConfig struct {
	// Backend is "dynamodb" or "sqlite".
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Table    string `mapstructure:"table" yaml:"table"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Path is the sqlite database file; ":memory:" for ephemeral runs.
	Path string `mapstructure:"path" yaml:"path"`
}

// PipelineConfig configures the stages and the uploads watcher.
type PipelineConfig struct {
	UploadsPrefix   string        `mapstructure:"uploads_prefix" yaml:"uploads_prefix"`
	ProcessedPrefix string        `mapstructure:"processed_prefix" yaml:"processed_prefix"`
	Include         []string      `mapstructure:"include" yaml:"include"`
	Exclude         []string      `mapstructure:"exclude" yaml:"exclude"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ListRate        float64       `mapstructure:"list_rate" yaml:"list_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.force_path_style", false)

	v.SetDefault("queue.backend", "sqs")
	v.SetDefault("queue.wait_time", 20*time.Second)

	v.SetDefault("jobs.backend", "dynamodb")
	v.SetDefault("jobs.table", "csvpipe-jobs")
	v.SetDefault("jobs.path", "csvpipe.db")

	v.SetDefault("pipeline.uploads_prefix", "uploads/")
	v.SetDefault("pipeline.processed_prefix", pipeline.DefaultProcessedPrefix)
	v.SetDefault("pipeline.include", []string{"**/*.csv"})
	v.SetDefault("pipeline.poll_interval", 5*time.Second)
}

// Load reads configuration from the given file (or the discovery paths
// when path is empty), the CSVPIPE_ environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CSVPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("csvpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/csvpipe")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file is fine: defaults and env apply.
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enum fields and required pairings.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3", "file":
	default:
		return fmt.Errorf("storage.backend must be s3 or file, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "file" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required for the file backend")
	}

	// queue.url is only needed when an sqs client is actually built, so
	// commands that never touch the queue can run without one.
	switch c.Queue.Backend {
	case "sqs", "memory":
	default:
		return fmt.Errorf("queue.backend must be sqs or memory, got %q", c.Queue.Backend)
	}

	switch c.Jobs.Backend {
	case "dynamodb", "sqlite":
	default:
		return fmt.Errorf("jobs.backend must be dynamodb or sqlite, got %q", c.Jobs.Backend)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
