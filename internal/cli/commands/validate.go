package commands

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// ErrValidationFailed is returned after a failed load has been reported.
var ErrValidationFailed = errors.New("validation failed")

// validateReport is the JSON form of a validate run.
type validateReport struct {
	OK         bool     `json:"ok"`
	Summary    *Summary `json:"summary,omitempty"`
	Error      string   `json:"error,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load every mapper and report unresolved references",
		Long: `Load the configuration document and every mapper, resolve forward
references between them and report anything left unresolved: result maps
extending missing or cyclic parents, cache-refs to namespaces without a cache,
statements naming unknown result maps or SQL fragments and dangling nested
selects.`,
		Example: `  # Validate the project in the current directory
  leapmap validate

  # Validate extra mappers with a setting override
  leapmap validate --mappers 'legacy/*.yaml' --set cache_enabled=false

  # Machine-readable report
  leapmap validate -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd)
		},
	}
}

func runValidate(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	eng, err := cmdCtx.NewEngine()
	if err != nil {
		return err
	}

	res, err := eng.Load(cmd.Context())
	if err != nil {
		report := validateReport{Error: err.Error(), Unresolved: stragglerLines(err)}
		if cmdCtx.Format == FormatJSON {
			if encErr := writeJSON(cmdCtx, report); encErr != nil {
				return encErr
			}
			return ErrValidationFailed
		}
		if len(report.Unresolved) == 0 {
			return err
		}
		st := newStyles(cmdCtx.ErrOut)
		_, _ = fmt.Fprintln(cmdCtx.ErrOut, st.fail.Render(fmt.Sprintf("✗ %d element(s) could not be resolved:", len(report.Unresolved))))
		for _, line := range report.Unresolved {
			_, _ = fmt.Fprintf(cmdCtx.ErrOut, "  - %s\n", line)
		}
		return ErrValidationFailed
	}

	summary := NewSummary(res)
	if cmdCtx.Format == FormatJSON {
		return writeJSON(cmdCtx, validateReport{OK: true, Summary: &summary})
	}
	st := newStyles(cmdCtx.Out)
	_, _ = fmt.Fprintln(cmdCtx.Out, st.ok.Render("✓ "+summary.Line()))
	return nil
}

func writeJSON(cmdCtx *CommandContext, v any) error {
	enc := json.NewEncoder(cmdCtx.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func asUnresolved(err error) (*mapping.UnresolvedError, bool) {
	var unresolved *mapping.UnresolvedError
	ok := errors.As(err, &unresolved)
	return unresolved, ok
}
