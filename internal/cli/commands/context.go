package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapmap/internal/cli/config"
	"github.com/leapstack-labs/leapmap/internal/engine"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// CommandContext is what every command needs from the root command.
type CommandContext struct {
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer
	ErrOut io.Writer
	// Format is the resolved output format, never "auto"
	Format string
}

// NewCommandContext gathers the config and logger stored by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)
	out := cmd.OutOrStdout()
	return &CommandContext{
		Config: cfg,
		Logger: config.GetLogger(ctx),
		Out:    out,
		ErrOut: cmd.ErrOrStderr(),
		Format: resolveFormat(cfg.OutputFormat, out),
	}
}

// resolveFormat turns "auto" into text on a terminal and markdown otherwise.
func resolveFormat(format string, out io.Writer) string {
	switch format {
	case FormatText, FormatMarkdown, FormatJSON:
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatMarkdown
}

// NewEngine creates an engine from the command configuration.
//
// Unknown type names are ignored unless unknown_types is configured: the CLI
// has no Go types of the project compiled in.
func (c *CommandContext) NewEngine() (*engine.Engine, error) {
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	settings, err := c.Config.MappingSettings()
	if err != nil {
		return nil, err
	}
	if _, ok := c.Config.Settings["unknown_types"]; !ok {
		settings.UnknownTypes = mapping.UnknownTypesIgnore
	}
	e, err := engine.New(engine.Config{
		Root:          c.Config.ProjectRoot,
		Configuration: c.Config.Configuration,
		Mappers:       c.Config.Mappers,
		MapperDir:     c.Config.MapperDir,
		Settings:      &settings,
		Properties:    c.Config.Properties,
		Logger:        c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return e, nil
}
