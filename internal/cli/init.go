package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/config"
	"github.com/example/sfg/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a campaign directory tree",
		Long: `Create the network/station/campaign directories under the data root
and open the catalog. With --write-config the resolved configuration is
saved as sfg.json in the data root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.Init(cmd.Context(), scope); err != nil {
				return err
			}

			if write, _ := cmd.Flags().GetBool("write-config"); write {
				cfg, err := wire.Config()
				if err != nil {
					return err
				}
				if err := config.SaveConfig(cfg.Global.DataDir, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", config.FileName)
			}
			return nil
		},
	}
	addScopeFlags(cmd, true)
	cmd.Flags().Bool("write-config", false, "save the resolved configuration to the data root")
	return cmd
}
