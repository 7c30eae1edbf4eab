package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/metrics"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/wire"
)

// RunCmd returns the run command. The global --override flag is carried in
// opts so the config layer sees it too.
func RunCmd(opts *wire.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline, or one stage of it",
		Long: `Run the preprocessing stages for a campaign in order:
novatel, rinex, pride, kin, acoustic, fusion.

Stages skip work already recorded as complete; --override forces it.
Per-candidate failures are logged and counted; the run continues.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			override, _ := cmd.Flags().GetBool("override")
			opts.Override = override
			wire.Configure(*opts)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			var stage pipeline.Name
			if s, _ := cmd.Flags().GetString("stage"); s != "" {
				if stage, err = pipeline.ParseName(s); err != nil {
					return err
				}
			}
			override, _ := cmd.Flags().GetBool("override")

			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			reports, runErr := a.Run(cmd.Context(), primary.RunRequest{Scope: scope, Override: override}, stage)

			if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
				if err := metrics.WriteTextfile(path); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}
			if runErr != nil {
				return runErr
			}
			for _, r := range reports {
				if r.Failed > 0 {
					return fmt.Errorf("%d candidates failed in %s", r.Failed, r.Stage)
				}
			}
			return nil
		},
	}
	addScopeFlags(cmd, true)
	cmd.Flags().String("stage", "", "run a single stage")
	cmd.Flags().Bool("override", false, "reprocess completed work")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file after the run")
	return cmd
}
