package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/version"
	"github.com/example/sfg/internal/wire"
)

// RootCmd returns the sfg command tree.
func RootCmd() *cobra.Command {
	var opts wire.Options
	root := &cobra.Command{
		Use:     "sfg",
		Short:   "Seafloor geodesy preprocessing pipeline",
		Version: version.String(),
		Long: `sfg catalogs raw GNSS-Acoustic campaign files, decodes them into
time-partitioned array stores, runs kinematic PPP, and fuses positions
into per-shot acoustic records.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wire.Configure(opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return wire.Close()
		},
	}
	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "primary config file (default <dir>/sfg.json)")
	root.PersistentFlags().StringVar(&opts.ConfigOverride, "config-override", "", "secondary config layered over the primary")
	root.PersistentFlags().StringVarP(&opts.DataDir, "dir", "d", "", "data directory root")

	root.AddCommand(InitCmd())
	root.AddCommand(IngestCmd())
	root.AddCommand(PullCmd())
	root.AddCommand(CatalogCmd())
	root.AddCommand(RunCmd(&opts))
	root.AddCommand(StoreCmd())
	root.AddCommand(ProductsCmd())
	root.AddCommand(VersionCmd())
	return root
}

// addScopeFlags registers the campaign scope flags on cmd.
func addScopeFlags(cmd *cobra.Command, required bool) {
	cmd.Flags().StringP("network", "n", "", "network name")
	cmd.Flags().StringP("station", "s", "", "station name")
	cmd.Flags().StringP("campaign", "c", "", "campaign name, e.g. 2024_A_1126")
	if required {
		_ = cmd.MarkFlagRequired("network")
		_ = cmd.MarkFlagRequired("station")
		_ = cmd.MarkFlagRequired("campaign")
	}
}

// scopeFrom reads the scope flags. A required scope must be complete.
func scopeFrom(cmd *cobra.Command, required bool) (asset.Scope, error) {
	n, _ := cmd.Flags().GetString("network")
	s, _ := cmd.Flags().GetString("station")
	c, _ := cmd.Flags().GetString("campaign")
	scope := asset.Scope{Network: strings.TrimSpace(n), Station: strings.TrimSpace(s), Campaign: strings.TrimSpace(c)}
	if required && !scope.Complete() {
		return scope, fmt.Errorf("%w: --network, --station and --campaign are required", asset.ErrConfig)
	}
	return scope, nil
}

// parseDay accepts YYYY-MM-DD or YYYY-DOY.
func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, "2006-002"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD or YYYY-DOY)", asset.ErrConfig, s)
}
