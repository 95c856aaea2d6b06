package converter

import (
	"fmt"
	"time"
)

// Config holds converter configuration.
type Config struct {
	// FFmpegBinary is the ffmpeg executable path or name (resolved via PATH).
	FFmpegBinary string `yaml:"ffmpeg_binary" mapstructure:"ffmpeg_binary"`
	// FFprobeBinary is the ffprobe executable path or name.
	FFprobeBinary string `yaml:"ffprobe_binary" mapstructure:"ffprobe_binary"`
	// SampleRate is the output sample rate in Hz.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	// Channels is the output channel count.
	Channels int `yaml:"channels" mapstructure:"channels"`
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = "ffprobe"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 44100
	}
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 5 * time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.SampleRate < 0 {
		return fmt.Errorf("converter.sample_rate must be non-negative (got: %d)", c.SampleRate)
	}
	if c.Channels < 0 {
		return fmt.Errorf("converter.channels must be non-negative (got: %d)", c.Channels)
	}
	return nil
}
