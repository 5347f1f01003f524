package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// inspectSections are the valid section arguments, in output order.
var inspectSections = []string{"statements", "result-maps", "caches"}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [statements|result-maps|caches]...",
		Short: "Show the resolved statements, result maps and caches",
		Long: `Load the project and print what it resolved to. Without arguments every
section is shown.

Output adapts to environment:
  - Terminal: tables
  - Piped/Scripted: Markdown tables
  - JSON: one object keyed by section`,
		Example: `  # Everything
  leapmap inspect

  # Only caches, as JSON
  leapmap inspect caches -o json`,
		ValidArgs: inspectSections,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args)
		},
	}
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmdCtx := NewCommandContext(cmd)
	eng, err := cmdCtx.NewEngine()
	if err != nil {
		return err
	}
	res, err := eng.Load(cmd.Context())
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(args))
	for _, a := range args {
		want[a] = true
	}
	cfg := res.Configuration
	var sections []section
	for _, name := range inspectSections {
		if len(want) > 0 && !want[name] {
			continue
		}
		switch name {
		case "statements":
			sections = append(sections, statementSection(cfg))
		case "result-maps":
			sections = append(sections, resultMapSection(cfg))
		case "caches":
			sections = append(sections, cacheSection(cfg))
		}
	}

	if err := renderSections(cmdCtx.Out, cmdCtx.Format, sections); err != nil {
		return err
	}
	if cmdCtx.Format == FormatText {
		_, _ = fmt.Fprintf(cmdCtx.Out, "\n%s\n", NewSummary(res).Line())
	}
	return nil
}
