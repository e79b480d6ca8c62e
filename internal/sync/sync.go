package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wesm/issue-triage/internal/board"
	"github.com/wesm/issue-triage/internal/logging"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/models"
	"github.com/wesm/issue-triage/internal/report"
)

// ErrBoardNeedsWeightField is returned when the project board was just
// created and has no Weight field yet
var ErrBoardNeedsWeightField = errors.New(
	"project board was created without a Weight field: add a Number field named \"" +
		board.WeightFieldName + "\" to the board and rerun")

// RepositoryResolver gets the canonical owner and name of a repository
type RepositoryResolver interface {
	GetRepository(ctx context.Context, owner, name string) (*models.Repository, error)
}

// RecordCollector builds the weighted issue list of a repository
type RecordCollector interface {
	Collect(ctx context.Context, owner, name string) ([]models.IssueRecord, error)
}

// BoardResolver finds or creates the project board
type BoardResolver interface {
	Resolve(ctx context.Context, owner, title string) (*models.BoardHandle, error)
}

// SnapshotStore persists the latest ranked issue list
type SnapshotStore interface {
	ReplaceSnapshot(repoFullName string, records []models.IssueRecord, capturedAt time.Time) error
	UpdateLastSyncTime(repoFullName string, syncTime time.Time) error
}

// Options configures a Syncer
type Options struct {
	// Login owning the project board
	ProjectOwner string
	// Title of the project board
	ProjectName string
	// Directory reports are written to. Empty disables report files.
	ReportDir string
	// Skip board resolution and reconciliation
	SkipBoard bool
}

// Result summarizes the sync of one repository
type Result struct {
	Issues  int
	Board   board.Result
	Summary string
}

// Syncer runs the triage pipeline for repositories: collect, reconcile the
// board, write reports and store the snapshot
type Syncer struct {
	repos     RepositoryResolver
	collector RecordCollector
	boards    BoardResolver
	items     board.ItemStore
	store     SnapshotStore
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
	log       zerolog.Logger

	handle    *models.BoardHandle
	summaries []string
}

// New creates a new syncer. A nil repos skips resolving repository names.
func New(repos RepositoryResolver, collector RecordCollector, boards BoardResolver, items board.ItemStore, store SnapshotStore, m *metrics.Metrics, opts Options) *Syncer {
	return &Syncer{
		repos:     repos,
		collector: collector,
		boards:    boards,
		items:     items,
		store:     store,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
		log:       logging.Component("sync"),
	}
}

// SetClock replaces the clock used for report ages and snapshot times
func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

// Summaries returns the markdown summaries of every repository synced so far
func (s *Syncer) Summaries() []string {
	return s.summaries
}

// SyncRepository runs the pipeline for one repository
func (s *Syncer) SyncRepository(ctx context.Context, owner, name string) (Result, error) {
	var result Result

	// Board items carry GitHub's spelling of owner/name, so the configured
	// one is replaced before it is used as a key
	if s.repos != nil {
		repo, err := s.repos.GetRepository(ctx, owner, name)
		if err != nil {
			return result, err
		}
		if repo.Archived {
			s.log.Warn().Str("repo", repo.FullName()).Msg("repository is archived")
		}
		owner, name = repo.Owner, repo.Name
	}

	fullName := fmt.Sprintf("%s/%s", owner, name)
	log := s.log.With().Str("repo", fullName).Logger()

	var handle *models.BoardHandle
	if !s.opts.SkipBoard {
		var err error
		handle, err = s.resolveBoard(ctx)
		if err != nil {
			return result, err
		}
	}

	log.Info().Msg("collecting issues")
	records, err := s.collector.Collect(ctx, owner, name)
	if err != nil {
		return result, fmt.Errorf("failed to collect issues for %s: %w", fullName, err)
	}
	result.Issues = len(records)

	if handle != nil {
		reconciler := board.NewReconciler(s.items, owner, name, s.metrics)
		boardResult, err := reconciler.Sync(ctx, *handle, records)
		result.Board = boardResult
		if err != nil {
			return result, fmt.Errorf("failed to sync board for %s: %w", fullName, err)
		}
	}

	now := s.now()
	if s.opts.ReportDir != "" {
		summary, err := report.WriteFiles(s.opts.ReportDir, owner, name, records, now)
		if err != nil {
			return result, fmt.Errorf("failed to write report for %s: %w", fullName, err)
		}
		result.Summary = summary
	} else {
		result.Summary = report.Summary(owner, name, report.FromRecords(records), now)
	}
	s.summaries = append(s.summaries, result.Summary)

	if s.store != nil {
		if err := s.store.ReplaceSnapshot(fullName, records, now); err != nil {
			return result, fmt.Errorf("failed to save snapshot for %s: %w", fullName, err)
		}
		if err := s.store.UpdateLastSyncTime(fullName, now); err != nil {
			return result, fmt.Errorf("failed to update last sync time for %s: %w", fullName, err)
		}
	}

	log.Info().Int("issues", result.Issues).Int("board_mutations", result.Board.Mutations()).
		Int("board_failures", result.Board.Failed).Msg("synced repository")
	return result, nil
}

// resolveBoard resolves the board once and reuses the handle for later
// repositories
func (s *Syncer) resolveBoard(ctx context.Context) (*models.BoardHandle, error) {
	if s.handle != nil {
		return s.handle, nil
	}

	handle, err := s.boards.Resolve(ctx, s.opts.ProjectOwner, s.opts.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project board %q: %w", s.opts.ProjectName, err)
	}
	if handle == nil {
		return nil, ErrBoardNeedsWeightField
	}

	s.handle = handle
	return handle, nil
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}
