package commands

import (
	"fmt"
	"runtime"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmap/pkg/cache"
)

type versionInfo struct {
	Version string   `json:"version"`
	Go      string   `json:"go"`
	Caches  []string `json:"cache_types"`
}

// NewVersionCommand creates the version command. It runs without a project,
// so only an explicit -o json changes its output.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the leapmap version, the Go toolchain it was built with and the registered cache types.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{Version: version, Go: runtime.Version(), Caches: cache.ListImplementations()}
			out := cmd.OutOrStdout()
			if format, _ := cmd.Flags().GetString("output"); format == FormatJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, _ = fmt.Fprintf(out, "leapmap v%s\n", info.Version)
			_, _ = fmt.Fprintf(out, "Mapping configuration engine built with %s\n", info.Go)
			_, _ = fmt.Fprintf(out, "Cache types: %s\n", strings.Join(info.Caches, ", "))
			return nil
		},
	}
}
