package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Removes processed-job markers past retention",
		Long: `Deletes processed-marker day buckets older than the retention window.
Workers prune opportunistically after crawl rounds; this command forces
one pass, for example after shrinking the retention setting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			retention := container.GetConfig().Worker.RetentionDays
			if days > 0 {
				retention = days
			}
			pruned, err := container.GetStateManager().PruneOlderThan(cmd.Context(), retention)
			if err != nil {
				return fmt.Errorf("prune markers: %w", err)
			}
			cmd.Printf("pruned %d bucket(s)\n", pruned)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override the configured retention window")
	return cmd
}
