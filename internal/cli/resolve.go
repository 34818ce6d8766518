package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/resolve"
)

var (
	resolveOS       string
	resolveArch     string
	resolveFeatures []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <version>",
	Short: "Print the resolved manifest of a version as JSON",
	Long:  "Merge a version with the versions it inherits from and evaluate its rules for a platform. Nothing besides version metadata is downloaded.",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := platformFromFlags()
		if err != nil {
			return err
		}

		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		store, err := e.newStore()
		if err != nil {
			return err
		}

		m, err := resolve.NewResolver(store, platform, e.log).Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), m)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveOS, "os", runtime.GOOS, "Target operating system (GOOS)")
	resolveCmd.Flags().StringVar(&resolveArch, "arch", runtime.GOARCH, "Target architecture (GOARCH)")
	resolveCmd.Flags().StringSliceVar(&resolveFeatures, "feature", nil, "Enable a launcher feature, e.g. is_demo_user")
	rootCmd.AddCommand(resolveCmd)
}

func platformFromFlags() (core.PlatformContext, error) {
	p := core.PlatformFor(resolveOS, resolveArch)
	if len(resolveFeatures) == 0 {
		return p, nil
	}
	features := make(map[string]bool, len(resolveFeatures))
	for _, f := range resolveFeatures {
		name, value, found := strings.Cut(f, "=")
		if name == "" {
			return p, wrapUsageError(fmt.Errorf("invalid feature %q", f))
		}
		features[name] = !found || value == "true"
	}
	return p.WithFeatures(features), nil
}
