package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/version"
	"github.com/example/sfg/internal/wire"
)

// ProductsCmd returns the products command group
func ProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage GNSS orbit and clock products",
	}
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Resolve products for a day, downloading what is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _ := cmd.Flags().GetString("date")
			day, err := parseDay(s)
			if err != nil {
				return err
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.Products(cmd.Context(), day)
		},
	}
	fetch.Flags().String("date", "", "day (YYYY-MM-DD or YYYY-DOY)")
	_ = fetch.MarkFlagRequired("date")
	cmd.AddCommand(fetch)
	return cmd
}

// VersionCmd returns the version command
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
