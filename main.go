// Command dorfkoenig runs the scout API and the cadence dispatcher.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	infraconfig "github.com/wepublish/dorfkoenig/infrastructure/config"
	"github.com/wepublish/dorfkoenig/internal/bootstrap"
)

var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dorfkoenig",
		Short:         "Scout pipeline and newsletter verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(
		&configPath,
		"config",
		infraconfig.GetConfigPath("config.yml"),
		"path to the configuration file",
	)

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return bootstrap.Serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "dispatch",
			Short: "Run every due scout once, then sweep expired verifications",
			Long: `Dispatch is meant for an external cron or job runner. It loads the
active scouts, runs the ones whose cadence is due and confirms drafts whose
verification window has passed.`,
			RunE: func(cmd *cobra.Command, _ []string) error {
				summary, err := bootstrap.Dispatch(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"due=%d completed=%d failed=%d skipped=%d resolved=%d\n",
					summary.Due, summary.Completed, summary.Failed, summary.Skipped, summary.Resolved)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "dorfkoenig %s\n", version)
			},
		},
	)

	return root
}
