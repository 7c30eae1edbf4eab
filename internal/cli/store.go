package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/wire"
)

// StoreCmd returns the store command group
func StoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain the array stores",
	}
	cmd.AddCommand(storeDatesCmd(), storeConsolidateCmd(), storeDeleteCmd(), storeExportCmd())
	return cmd
}

func parseKind(s string) (rows.Kind, error) {
	for _, k := range rows.Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown store %q", asset.ErrConfig, s)
}

func storeDatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dates [store]",
		Short: "List the days held by a store",
		Long: `List the days held by a store. Stores: acoustic, kin_position,
imu_position, shotdata_pre, shotdata, gnss_obs, gnss_obs_secondary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.Dates(cmd.Context(), scope, kind)
			return err
		},
	}
	addScopeFlags(cmd, true)
	return cmd
}

func storeConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge each day's fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.Consolidate(cmd.Context(), scope)
		},
	}
	addScopeFlags(cmd, true)
	return cmd
}

func storeDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [store]",
		Short: "Delete a range of days from a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			startS, _ := cmd.Flags().GetString("start")
			endS, _ := cmd.Flags().GetString("end")
			start, err := parseDay(startS)
			if err != nil {
				return err
			}
			end := start
			if endS != "" {
				if end, err = parseDay(endS); err != nil {
					return err
				}
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.Delete(cmd.Context(), scope, kind, start, end)
		},
	}
	addScopeFlags(cmd, true)
	cmd.Flags().String("start", "", "first day (YYYY-MM-DD or YYYY-DOY)")
	cmd.Flags().String("end", "", "last day (default: start)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func storeExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export final shot data as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			startS, _ := cmd.Flags().GetString("start")
			endS, _ := cmd.Flags().GetString("end")
			start, err := parseDay(startS)
			if err != nil {
				return err
			}
			end := start
			if endS != "" {
				if end, err = parseDay(endS); err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			status := cmd.ErrOrStderr()
			if path, _ := cmd.Flags().GetString("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				w, status = f, cmd.OutOrStdout()
			}

			a, err := wire.PipelineAdapter(status)
			if err != nil {
				return err
			}
			_, err = a.Export(cmd.Context(), scope, start, end, w)
			return err
		},
	}
	addScopeFlags(cmd, true)
	cmd.Flags().String("start", "", "first day (YYYY-MM-DD or YYYY-DOY)")
	cmd.Flags().String("end", "", "last day (default: start)")
	cmd.Flags().StringP("output", "o", "", "write CSV to a file instead of stdout")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
