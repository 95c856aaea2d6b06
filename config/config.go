package config

import (
	"fmt"

	"github.com/kbukum/longscribe/converter"
	enhollama "github.com/kbukum/longscribe/enhancement/ollama"
	enhopenai "github.com/kbukum/longscribe/enhancement/openai"
	"github.com/kbukum/longscribe/recording"
	"github.com/kbukum/longscribe/server"
	"github.com/kbukum/longscribe/storage"
	sttopenai "github.com/kbukum/longscribe/transcription/openai"
	"github.com/kbukum/longscribe/transcription/whisper"
)

// TranscriptionConfig groups the transcription backend settings.
type TranscriptionConfig struct {
	// Whisper configures the local backend.
	Whisper whisper.Config `yaml:"whisper" mapstructure:"whisper"`
	// OpenAI configures the remote backend. Remote mode is only selectable
	// when an API key is present.
	OpenAI sttopenai.Config `yaml:"openai" mapstructure:"openai"`
}

// EnhancementConfig groups the enhancement backend settings.
type EnhancementConfig struct {
	// Ollama configures the local backend.
	Ollama enhollama.Config `yaml:"ollama" mapstructure:"ollama"`
	// OpenAI configures the remote backend.
	OpenAI enhopenai.Config `yaml:"openai" mapstructure:"openai"`
}

// ObservabilityConfig controls the OTLP exporters.
type ObservabilityConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ObservabilityConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// Config is the composed application configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config       `yaml:"server" mapstructure:"server"`
	Storage       storage.Config      `yaml:"storage" mapstructure:"storage"`
	Converter     converter.Config    `yaml:"converter" mapstructure:"converter"`
	Transcription TranscriptionConfig `yaml:"transcription" mapstructure:"transcription"`
	Enhancement   EnhancementConfig   `yaml:"enhancement" mapstructure:"enhancement"`
	Batch         recording.BatchConfig `yaml:"batch" mapstructure:"batch"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults applies defaults to every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "longscribe"
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Converter.ApplyDefaults()
	c.Batch.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section for invalid values.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("config.storage: %w", err)
	}
	if err := c.Converter.Validate(); err != nil {
		return fmt.Errorf("config.converter: %w", err)
	}
	return nil
}
