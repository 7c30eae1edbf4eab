package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/wire"
)

// CatalogCmd returns the catalog command group
func CatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain the asset catalog",
	}
	cmd.AddCommand(catalogListCmd(), catalogCountsCmd(), catalogGCCmd(), catalogLineageCmd())
	return cmd
}

func catalogListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, false)
			if err != nil {
				return err
			}
			q := primary.AssetQuery{Scope: scope}
			q.OnlyPending, _ = cmd.Flags().GetBool("pending")
			q.OnlyProcessed, _ = cmd.Flags().GetBool("processed")
			names, _ := cmd.Flags().GetStringSlice("type")
			for _, n := range names {
				t, err := asset.ParseType(n)
				if err != nil {
					return err
				}
				q.Types = append(q.Types, t)
			}

			a, err := wire.CatalogAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.List(cmd.Context(), q)
			return err
		},
	}
	addScopeFlags(cmd, false)
	cmd.Flags().StringSliceP("type", "t", nil, "filter by asset type (repeatable)")
	cmd.Flags().Bool("pending", false, "only assets not yet processed")
	cmd.Flags().Bool("processed", false, "only processed assets")
	return cmd
}

func catalogCountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count assets per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, false)
			if err != nil {
				return err
			}
			a, err := wire.CatalogAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.Counts(cmd.Context(), scope)
			return err
		},
	}
	addScopeFlags(cmd, false)
	return cmd
}

func catalogGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove catalog entries whose local file vanished",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wire.CatalogAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.GarbageCollect(cmd.Context())
			return err
		},
	}
}

func catalogLineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage",
		Short: "Report derived assets whose parent is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wire.CatalogAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			issues, err := a.Lineage(cmd.Context())
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d lineage issues", len(issues))
			}
			return nil
		},
	}
}
