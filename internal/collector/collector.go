// Package collector gathers the open issues of a repository and annotates
// each with its timeline, maintainer response state and triage weight.
package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/issue-triage/internal/logging"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/models"
	"github.com/wesm/issue-triage/internal/weight"
)

const (
	// PageSize is the number of issues requested per page
	PageSize = 100

	// DefaultWorkers is the number of concurrent timeline fetches per page
	DefaultWorkers = 5

	maxWorkers = 10
	staleAfter = 7 * 24 * time.Hour
)

// IssueLister lists open issues one page at a time
type IssueLister interface {
	ListOpenIssues(ctx context.Context, owner, name string, page, perPage int) ([]models.Issue, error)
}

// TimelineFetcher returns the ordered history of one issue
type TimelineFetcher interface {
	Fetch(ctx context.Context, owner, name string, number int) ([]models.TimelineItem, error)
}

// Collector builds IssueRecords for a repository
type Collector struct {
	issues   IssueLister
	timeline TimelineFetcher
	metrics  *metrics.Metrics
	workers  int
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a collector
func New(issues IssueLister, timeline TimelineFetcher, m *metrics.Metrics) *Collector {
	return &Collector{
		issues:   issues,
		timeline: timeline,
		metrics:  m,
		workers:  DefaultWorkers,
		now:      time.Now,
		log:      logging.Component("collector"),
	}
}

// SetWorkers sets the number of parallel timeline fetches
func (c *Collector) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers // Cap to avoid overwhelming GitHub API
	}
	c.workers = workers
}

// SetClock replaces the clock used for ages and weights
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Collect returns every open issue and pull request in the repository,
// oldest first
func (c *Collector) Collect(ctx context.Context, owner, name string) ([]models.IssueRecord, error) {
	fullName := owner + "/" + name
	var records []models.IssueRecord

	for page := 1; ; page++ {
		issues, err := c.issues.ListOpenIssues(ctx, owner, name, page, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list page %d of %s: %w", page, fullName, err)
		}
		c.log.Debug().Str("repo", fullName).Int("page", page).Int("count", len(issues)).Msg("listed issues")

		pageRecords, err := c.collectPage(ctx, owner, name, issues)
		if err != nil {
			return nil, err
		}
		records = append(records, pageRecords...)

		if len(issues) < PageSize {
			break
		}
	}

	c.metrics.IssuesCollected(fullName, len(records))
	c.log.Info().Str("repo", fullName).Int("count", len(records)).Msg("collected issues")
	return records, nil
}

// collectPage fetches the timelines of one page of issues concurrently.
// Records keep the order of the page.
func (c *Collector) collectPage(ctx context.Context, owner, name string, issues []models.Issue) ([]models.IssueRecord, error) {
	records := make([]models.IssueRecord, len(issues))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, issue := range issues {
		i, issue := i, issue
		g.Go(func() error {
			items, err := c.timeline.Fetch(gctx, owner, name, issue.Number)
			if err != nil {
				return fmt.Errorf("failed to fetch timeline for %s/%s#%d: %w", owner, name, issue.Number, err)
			}
			records[i] = BuildRecord(issue, items, owner, name, c.now())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// BuildRecord derives an IssueRecord from the raw issue and its timeline
func BuildRecord(issue models.Issue, items []models.TimelineItem, owner, name string, now time.Time) models.IssueRecord {
	r := models.IssueRecord{
		ID:     issue.ID,
		NodeID: issue.NodeID,
		Number: issue.Number,
		Title:  issue.Title,
		URL:    issue.URL,
		Info: models.IssueInfo{
			IsPull:   issue.IsPullRequest,
			IsStale:  issue.UpdatedAt.Sub(issue.CreatedAt) > staleAfter,
			IsOpen:   issue.ClosedAt == nil,
			IsMerged: issue.IsPullRequest && issue.MergedAt != nil,
		},
		CreatedAt: issue.CreatedAt,
		ClosedAt:  issue.ClosedAt,
		Timeline:  items,
		Owner:     owner,
		Repo:      name,
	}

	end := now
	if issue.ClosedAt != nil {
		end = *issue.ClosedAt
	}
	r.TimeAlive = int64(math.Round(end.Sub(issue.CreatedAt).Seconds()))

	// Reactions come from the first item only, which the fetcher keeps as
	// the creation record.
	if len(items) > 0 && items[0].Reactions != nil {
		r.ReactionsTotal = items[0].Reactions.TotalCount
	}

	for i := range items {
		if items[i].AuthorAssociation == models.AssociationMember {
			r.IsMemberResponse = true
			at := items[i].CreatedAt
			r.LastMemberResponse = &at
		}
	}

	r.Weight = weight.Weight(r, now)
	return r
}
