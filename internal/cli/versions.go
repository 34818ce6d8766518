package cli

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/aayushdutt/mcinstall/internal/core"
)

var (
	versionsType  string
	versionsSince string
	versionsUntil string
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List versions from the version catalog",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer e.Close()

		store, err := e.newStore()
		if err != nil {
			return err
		}
		catalog, err := store.Catalog(cmd.Context())
		if err != nil {
			return err
		}

		filter := versionFilter{Since: versionsSince, Until: versionsUntil}
		switch {
		case versionsType != "":
			filter.Types = strings.Split(versionsType, ",")
		case !e.cfg.ShowSnapshots:
			filter.Types = []string{string(core.VersionTypeRelease)}
		}

		versions, err := filter.apply(catalog.Versions)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, v := range versions {
			marker := ""
			if v.ID == catalog.Latest.Release || v.ID == catalog.Latest.Snapshot {
				marker = " (latest)"
			}
			fmt.Fprintf(out, "%-24s %-10s %s%s\n", v.ID, v.Type, v.ReleaseTime.Format("2006-01-02"), marker)
		}
		return nil
	},
}

func init() {
	versionsCmd.Flags().StringVarP(&versionsType, "type", "t", "", "Comma-separated types: release, snapshot, old_beta, old_alpha")
	versionsCmd.Flags().StringVar(&versionsSince, "since", "", "Only versions at or after this release, e.g. 1.16")
	versionsCmd.Flags().StringVar(&versionsUntil, "until", "", "Only versions at or before this release, e.g. 1.20.4")
	rootCmd.AddCommand(versionsCmd)
}

// versionFilter selects catalog entries by type and release range.
type versionFilter struct {
	Types []string
	Since string
	Until string
}

// apply keeps catalog order. When a range is set, ids that are not
// release-style numbers (snapshots such as 23w31a) are dropped.
func (f versionFilter) apply(versions []core.Version) ([]core.Version, error) {
	var bounds []string
	if f.Since != "" {
		bounds = append(bounds, ">= "+f.Since)
	}
	if f.Until != "" {
		bounds = append(bounds, "<= "+f.Until)
	}

	var constraint *semver.Constraints
	if len(bounds) > 0 {
		c, err := semver.NewConstraint(strings.Join(bounds, ", "))
		if err != nil {
			return nil, wrapUsageError(fmt.Errorf("invalid version range: %w", err))
		}
		constraint = c
	}

	types := make(map[string]bool, len(f.Types))
	for _, t := range f.Types {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = true
		}
	}

	var out []core.Version
	for _, v := range versions {
		if len(types) > 0 && !types[string(v.Type)] {
			continue
		}
		if constraint != nil {
			sv, err := semver.NewVersion(v.ID)
			if err != nil || !constraint.Check(sv) {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}
