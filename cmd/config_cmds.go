package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/wesm/issue-triage/config"
	"github.com/wesm/issue-triage/internal/sync"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file if it doesn't exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfig(opts.configPath); err != nil {
				return fmt.Errorf("failed to create default configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration at %s\n", opts.configPath)
			fmt.Fprintf(cmd.OutOrStdout(), "GitHub token can be provided via the %s environment variable\n", config.EnvGithubToken)
			return nil
		},
	}
}

func newAddRepoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-repo owner/name",
		Short: "Add a repository to the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := args[0]
			if _, _, err := sync.ParseRepositoryString(repo); err != nil {
				return err
			}

			// Saved as written in the file, without env overrides or defaults
			raw, err := config.LoadRaw(opts.configPath)
			if err != nil {
				return err
			}

			if slices.Contains(raw.Repositories, repo) {
				fmt.Fprintf(cmd.OutOrStdout(), "Repository %s already exists in configuration\n", repo)
				return nil
			}

			raw.Repositories = append(raw.Repositories, repo)
			if err := config.SaveConfig(raw, opts.configPath); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added repository %s to configuration\n", repo)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "triage version %s\n", version)
		},
	}
}
