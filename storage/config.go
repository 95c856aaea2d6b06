package storage

import "fmt"

// Config holds storage configuration.
type Config struct {
	// BasePath is the root directory for session audio files.
	BasePath string `yaml:"base_path" mapstructure:"base_path"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BasePath == "" {
		c.BasePath = "./data/recordings"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("storage.base_path is required")
	}
	return nil
}
