// Package config provides configuration management for the leapmap CLI.
//
// Values are layered, lowest to highest: defaults, leapmap.yaml, LEAPMAP_
// environment variables (a project .env file included) and explicitly set
// flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot anchors relative paths, it is never read from a source
	ProjectRoot string `koanf:"-"`
	// Configuration is an optional root configuration document
	Configuration string `koanf:"configuration"`
	// Mappers lists mapper resources or glob patterns
	Mappers []string `koanf:"mappers"`
	// MapperDir is where interfaces look for their mapper documents
	MapperDir    string            `koanf:"mapper_dir"`
	Settings     map[string]string `koanf:"settings"`
	Properties   map[string]string `koanf:"properties"`
	Verbose      bool              `koanf:"verbose"`
	OutputFormat string            `koanf:"output"`
}

// Default configuration values.
const (
	DefaultMapperPattern = "mappers/*.yaml"
	DefaultMapperDir     = "mappers"
	DefaultOutput        = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	EnvPrefix            = "LEAPMAP_"
)

// configNames are the file names searched for, in order.
var configNames = []string{"leapmap.yaml", "leapmap.yml"}
