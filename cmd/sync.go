package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/wesm/issue-triage/config"
	"github.com/wesm/issue-triage/internal/api"
	"github.com/wesm/issue-triage/internal/board"
	"github.com/wesm/issue-triage/internal/collector"
	"github.com/wesm/issue-triage/internal/db"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/report"
	"github.com/wesm/issue-triage/internal/sync"
	"github.com/wesm/issue-triage/internal/timeline"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var reportOnly bool

	cmd := &cobra.Command{
		Use:   "sync [owner/name...]",
		Short: "Rank open issues and sync them to the project board",
		Long: `Collect the open issues and pull requests of the given repositories (or
every configured repository), compute their weights, reconcile the project
board and write reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Repositories = args
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSync(ctx, cfg, reportOnly)
		},
	}

	cmd.Flags().BoolVar(&reportOnly, "report-only", false, "Write reports without touching the project board")
	return cmd
}

func runSync(ctx context.Context, cfg *config.Config, reportOnly bool) error {
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.New()
	rest := api.NewGitHubClient(cfg.GitHubToken)
	gql := api.NewGraphQLClient(cfg.GitHubToken)

	c := collector.New(rest, timeline.New(rest, m), m)
	c.SetWorkers(cfg.Workers)

	syncer := sync.New(rest, c, board.NewLookup(gql, rest), gql, database, m, sync.Options{
		ProjectOwner: cfg.ProjectOwner,
		ProjectName:  cfg.ProjectName,
		ReportDir:    cfg.ReportDir,
		SkipBoard:    reportOnly,
	})

	startTime := time.Now()
	log.Info().Int("repositories", len(cfg.Repositories)).Bool("report_only", reportOnly).Msg("starting sync")

	var failed int
	for _, repoStr := range cfg.Repositories {
		owner, name, err := sync.ParseRepositoryString(repoStr)
		if err != nil {
			log.Warn().Err(err).Str("repo", repoStr).Msg("skipping invalid repository")
			failed++
			continue
		}

		if _, err := syncer.SyncRepository(ctx, owner, name); err != nil {
			// Board precondition failures and cancellation stop the run
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, sync.ErrBoardNeedsWeightField) || errors.Is(err, board.ErrWeightFieldMissing) {
				return err
			}
			log.Error().Err(err).Str("repo", repoStr).Msg("failed to sync repository")
			failed++
			continue
		}
	}

	if err := report.WriteIndex(cfg.ReportDir, syncer.Summaries()); err != nil {
		return err
	}

	m.RunFinished(time.Since(startTime))
	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("failed to write metrics")
		}
	}

	log.Info().Dur("duration", time.Since(startTime)).Int("failed", failed).Msg("sync completed")
	if failed > 0 {
		return fmt.Errorf("%d of %d repositories failed to sync", failed, len(cfg.Repositories))
	}
	return nil
}
