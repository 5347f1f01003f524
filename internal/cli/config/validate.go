package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Mappers) == 0 && c.Configuration == "" {
		return fmt.Errorf("no mappers configured\nHint: set mappers in leapmap.yaml or pass --mappers")
	}
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output format %q (want auto, text, markdown or json)", c.OutputFormat)
	}
	_, err := c.MappingSettings()
	return err
}

// MappingSettings applies the configured settings over the defaults.
func (c *Config) MappingSettings() (mapping.Settings, error) {
	s := mapping.DefaultSettings()
	keys := make([]string, 0, len(c.Settings))
	for key := range c.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.Set(key, c.Settings[key]); err != nil {
			return s, err
		}
	}
	return s, s.Validate()
}

// ValidateDirectories checks if the project root exists.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.ProjectRoot); os.IsNotExist(err) {
		return fmt.Errorf("project directory does not exist: %s\nHint: use --project-dir to specify a different path", c.ProjectRoot)
	}
	return nil
}
