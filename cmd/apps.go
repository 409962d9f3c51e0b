package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/lifecycle"
)

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manages applications on the monitoring backend",
	}
	cmd.AddCommand(newAppsInstallCmd())
	cmd.AddCommand(newAppsUninstallCmd())
	cmd.AddCommand(newAppsStartCmd())
	cmd.AddCommand(newAppsStopCmd())
	cmd.AddCommand(newAppsStatusCmd())
	return cmd
}

// submitOperation dials the backend, posts one lifecycle operation, and
// closes the connection.
func submitOperation(cmd *cobra.Command, op lifecycle.Operation) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	factory := container.GetBackendFactory()
	if factory == nil {
		return errors.New("backend.host must be configured for app operations")
	}
	client, err := factory.Dial(cmd.Context())
	if err != nil {
		return fmt.Errorf("dial backend: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			container.GetLogger().Warn("close backend client", zap.Error(closeErr))
		}
	}()
	if err := client.SubmitOperation(cmd.Context(), op); err != nil {
		return err
	}
	cmd.Printf("%s submitted\n", op.Type())
	return nil
}

func newAppsInstallCmd() *cobra.Command {
	var (
		siteID  string
		appType string
		mode    string
		jarPath string
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Installs an application for a site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return submitOperation(cmd, lifecycle.InstallOperation{
				SiteID:  siteID,
				AppType: appType,
				Mode:    lifecycle.Mode(mode),
				JarPath: jarPath,
			})
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "", "site ID (required)")
	cmd.Flags().StringVar(&appType, "type", "", "application type (required)")
	cmd.Flags().StringVar(&mode, "mode", string(lifecycle.ModeCluster), "execution mode, LOCAL or CLUSTER")
	cmd.Flags().StringVar(&jarPath, "jar", "", "jar path override")
	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAppsUninstallCmd() *cobra.Command {
	return appRefCommand("uninstall", "Uninstalls an application", func(uuid, appID string) lifecycle.Operation {
		return lifecycle.UninstallOperation{UUID: uuid, AppID: appID}
	})
}

func newAppsStartCmd() *cobra.Command {
	return appRefCommand("start", "Starts an installed application", func(uuid, appID string) lifecycle.Operation {
		return lifecycle.StartOperation{UUID: uuid, AppID: appID}
	})
}

func newAppsStopCmd() *cobra.Command {
	return appRefCommand("stop", "Stops a running application", func(uuid, appID string) lifecycle.Operation {
		return lifecycle.StopOperation{UUID: uuid, AppID: appID}
	})
}

func newAppsStatusCmd() *cobra.Command {
	return appRefCommand("status", "Submits a status check for an application", func(uuid, appID string) lifecycle.Operation {
		return lifecycle.CheckStatusOperation{UUID: uuid, AppID: appID}
	})
}

// appRefCommand builds the shared shape of the subcommands that address
// an installed application by UUID or application ID.
func appRefCommand(use, short string, build func(uuid, appID string) lifecycle.Operation) *cobra.Command {
	var (
		uuid  string
		appID string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uuid == "" && appID == "" {
				return errors.New("one of --uuid or --app is required")
			}
			return submitOperation(cmd, build(uuid, appID))
		},
	}
	cmd.Flags().StringVar(&uuid, "uuid", "", "application UUID")
	cmd.Flags().StringVar(&appID, "app", "", "application ID")
	return cmd
}
