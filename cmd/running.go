package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunningCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "running",
		Short: "Inspects and repairs running-job records",
	}
	cmd.AddCommand(newRunningRecoverCmd())
	cmd.AddCommand(newRunningDeleteCmd())
	return cmd
}

func newRunningRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Prints every running-job snapshot for the site",
		Long: `Reads the full running-job tree the way a restarting worker does and
prints it as JSON, keyed by application ID and then job ID.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			apps, err := container.GetRunningManager().Recover(cmd.Context())
			if err != nil {
				return fmt.Errorf("recover running jobs: %w", err)
			}
			out, err := json.MarshalIndent(apps, "", "  ")
			if err != nil {
				return fmt.Errorf("encode running jobs: %w", err)
			}
			cmd.Println(string(out))
			return nil
		},
	}
}

func newRunningDeleteCmd() *cobra.Command {
	var (
		appID string
		jobID string
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Deletes one job record or an application's whole subtree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			running := container.GetRunningManager()
			if jobID != "" {
				if err := running.Delete(cmd.Context(), appID, jobID); err != nil {
					return fmt.Errorf("delete job record: %w", err)
				}
				cmd.Printf("deleted %s/%s\n", appID, jobID)
				return nil
			}
			if err := running.DeleteApp(cmd.Context(), appID); err != nil {
				return fmt.Errorf("delete application records: %w", err)
			}
			cmd.Printf("deleted %s\n", appID)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app", "", "application ID (required)")
	cmd.Flags().StringVar(&jobID, "job", "", "job ID; empty removes the application's subtree")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}
