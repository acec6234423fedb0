/*
workflowd runs a workflow engine, which is accessible via HTTP.

Usage:

	workflowd [command]

Available Commands:

	env         Show environment variables
	help        Help about any command
	migrate     Create or update the database schema
	serve       Run the engine and the HTTP server
	version     Show version

The store is selected via WORKFLOW_STORE - "mem" (default) or "pg", which requires WORKFLOW_DATABASE_URL.
A configuration file (YAML or JSON) can be provided via --config. Environment variables take precedence.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zensgit/metasheet2-sub006/daemon"
)

var (
	version = "unknown-version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := cobra.Command{
		Use:           "workflowd",
		Short:         "A workflow engine daemon",
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	c.AddCommand(newServeCmd())
	c.AddCommand(newMigrateCmd())
	c.AddCommand(newEnvCmd())
	c.AddCommand(newVersionCmd())

	c.CompletionOptions.DisableDefaultCmd = true

	return &c
}

func newServeCmd() *cobra.Command {
	var configFile string

	c := cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP server",
		RunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			config, err := daemon.ReadConfig(configFile)
			if err != nil {
				return err
			}

			logger := config.NewLogger()
			logger.Info("starting", "version", version)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := daemon.Run(ctx, config, logger); err != nil {
				logger.Error("failed to run daemon", "err", err)
				return err
			}
			return nil
		},
	}

	c.Flags().StringVar(&configFile, "config", "", "Path to a YAML or JSON configuration file")

	return &c
}

func newMigrateCmd() *cobra.Command {
	var configFile string

	c := cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			config, err := daemon.ReadConfig(configFile)
			if err != nil {
				return err
			}

			return daemon.Migrate(config, config.NewLogger())
		},
	}

	c.Flags().StringVar(&configFile, "config", "", "Path to a YAML or JSON configuration file")

	return &c
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment variables",
		Run: func(c *cobra.Command, _ []string) {
			c.Print(daemon.Usage())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(version)
		},
	}
}
