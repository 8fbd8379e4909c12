package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the 'health' subcommand, which probes every configured
// source and prints its health score without running the pipeline.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probes the configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			registry := appInstance.Registry()
			adapters, err := registry.Resolve(registry.IDs())
			if err != nil {
				return fmt.Errorf("resolve sources: %w", err)
			}
			results := appInstance.Monitor().Check(cmd.Context(), adapters)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tSCORE\tPROBED\tDEGRADED\tDETAIL")
			for _, h := range results {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%t\t%s\n", h.SourceID, h.Score, h.Probed, h.Degraded, h.Detail)
			}
			return tw.Flush()
		},
	}
}
