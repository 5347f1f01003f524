package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmap/internal/engine"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate whenever a mapper document changes",
		Long: `Validate once, then watch the project directory and validate again after
every change to a .yaml, .yml or .sql file. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", engine.DefaultDebounce, "Wait this long after the last change before reloading")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	cmdCtx := NewCommandContext(cmd)
	eng, err := cmdCtx.NewEngine()
	if err != nil {
		return err
	}

	outStyles, errStyles := newStyles(cmdCtx.Out), newStyles(cmdCtx.ErrOut)
	report := func(res *engine.Result, err error) {
		stamp := "[" + time.Now().Format(time.TimeOnly) + "]"
		if err != nil {
			_, _ = fmt.Fprintf(cmdCtx.ErrOut, "%s %s\n", errStyles.dim.Render(stamp), errStyles.fail.Render(fmt.Sprintf("✗ %v", err)))
			return
		}
		_, _ = fmt.Fprintf(cmdCtx.Out, "%s %s\n", outStyles.dim.Render(stamp), outStyles.ok.Render("✓ "+NewSummary(res).Line()))
	}

	report(eng.Load(cmd.Context()))
	_, _ = fmt.Fprintf(cmdCtx.ErrOut, "Watching %s for changes...\n", eng.Root())
	return eng.Watch(cmd.Context(), opts.Debounce, report)
}
