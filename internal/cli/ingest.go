package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/wire"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Catalog local raw files",
		Long: `Classify every file under the given paths by name and register it in
the catalog under the campaign scope. Re-ingesting is harmless.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.Ingest(cmd.Context(), primary.IngestRequest{Scope: scope, Paths: args})
			return err
		},
	}
	addScopeFlags(cmd, true)
	return cmd
}

// PullCmd returns the pull command
func PullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull [uri...]",
		Short: "Download remote raw files into the campaign",
		Long: `Register each s3:// or http(s):// URI in the catalog and download it to
the campaign's raw directory. Files already present are linked, not
fetched. URIs may also be read one per line from --from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFrom(cmd, true)
			if err != nil {
				return err
			}
			uris := args
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				more, err := readLines(from)
				if err != nil {
					return err
				}
				uris = append(uris, more...)
			}
			if len(uris) == 0 {
				return fmt.Errorf("%w: no URIs given", asset.ErrConfig)
			}

			a, err := wire.PipelineAdapter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = a.Pull(cmd.Context(), primary.PullRequest{Scope: scope, URIs: uris})
			return err
		},
	}
	addScopeFlags(cmd, true)
	cmd.Flags().String("from", "", "file listing URIs, one per line")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
