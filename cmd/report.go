package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/issue-triage/internal/db"
	"github.com/wesm/issue-triage/internal/report"
	"github.com/wesm/issue-triage/internal/sync"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var html bool

	cmd := &cobra.Command{
		Use:   "report owner/name",
		Short: "Print the last stored ranking of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := sync.ParseRepositoryString(args[0])
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			database, err := db.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			if err := database.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			snapshots, err := database.ListSnapshot(args[0])
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				lastSync, err := database.GetLastSyncTime(args[0])
				if err != nil {
					return err
				}
				if lastSync.IsZero() {
					return fmt.Errorf("repository %s has not been synced yet", args[0])
				}
			}

			summary := report.Summary(owner, name, report.FromSnapshots(snapshots), time.Now())
			if html {
				rendered, err := report.HTML(summary)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(rendered)
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), summary)
			return err
		},
	}

	cmd.Flags().BoolVar(&html, "html", false, "Render the report as HTML")
	return cmd
}
