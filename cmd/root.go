package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/issue-triage/config"
	"github.com/wesm/issue-triage/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Ranks open GitHub issues and keeps a project board in sync",
		Long: `triage collects the open issues and pull requests of the configured
repositories, weights each one by how long it has waited for a maintainer,
and mirrors the ranking onto a GitHub project board with a "Weight" field.

Markdown, HTML and JSON reports are written alongside, and the latest
ranking is kept in a local SQLite database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(opts.logLevel, opts.pretty)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "triage.yaml", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs instead of JSON")

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newAddRepoCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

var rootCmd = newRootCmd()

// SetVersion sets the version reported by the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "triage version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
