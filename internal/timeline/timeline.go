// Package timeline retrieves the full event history of an issue.
package timeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesm/issue-triage/internal/api"
	"github.com/wesm/issue-triage/internal/logging"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/models"
)

// PageSize is the number of events requested per timeline page
const PageSize = 100

// Source is the slice of the GitHub API the fetcher needs
type Source interface {
	GetIssueCreation(ctx context.Context, owner, name string, number int) (models.TimelineItem, error)
	ListTimelinePage(ctx context.Context, owner, name string, number, page, perPage int) ([]models.TimelineItem, error)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher fetches issue timelines
type Fetcher struct {
	source  Source
	sleep   SleepFunc
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a fetcher backed by source
func New(source Source, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		source:  source,
		sleep:   Sleep,
		metrics: m,
		log:     logging.Component("timeline"),
	}
}

// SetSleep replaces the function used to wait out retry delays
func (f *Fetcher) SetSleep(sleep SleepFunc) {
	f.sleep = sleep
}

// Fetch returns the creation record of the issue followed by every timeline
// event, ordered by creation time. A page that fails for any reason other
// than rate limiting ends the timeline early without an error.
func (f *Fetcher) Fetch(ctx context.Context, owner, name string, number int) ([]models.TimelineItem, error) {
	var creation models.TimelineItem
	err := f.retry(ctx, func() error {
		var err error
		creation, err = f.source.GetIssueCreation(ctx, owner, name, number)
		return err
	})
	if err != nil {
		return nil, err
	}

	items := []models.TimelineItem{creation}
	for page := 1; ; page++ {
		f.log.Debug().Str("repo", owner+"/"+name).Int("issue", number).Int("page", page).Msg("fetching timeline page")

		var data []models.TimelineItem
		err := f.retry(ctx, func() error {
			var err error
			data, err = f.source.ListTimelinePage(ctx, owner, name, number, page, PageSize)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.log.Warn().Err(err).Str("repo", owner+"/"+name).Int("issue", number).Int("page", page).
				Msg("timeline truncated")
			f.metrics.TimelineTruncated()
			break
		}

		items = append(items, data...)
		if len(data) < PageSize {
			break
		}
	}

	order(items)
	return items, nil
}

// order sorts the events after the creation record by time, keeping the
// creation record at index 0. An event without a timestamp takes the time of
// the item retrieved before it, so it stays where it was retrieved.
func order(items []models.TimelineItem) {
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = items[i-1].CreatedAt
		}
	}

	events := items[1:]
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// retry runs fn until it succeeds or fails with an error that does not carry
// a retry delay
func (f *Fetcher) retry(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}

		var rateErr *api.RateLimitError
		if !errors.As(err, &rateErr) {
			return err
		}

		f.log.Info().Dur("retry_after", rateErr.RetryAfter).Msg("rate limited, waiting")
		f.metrics.TimelineRetry()
		if err := f.sleep(ctx, rateErr.RetryAfter); err != nil {
			return err
		}
	}
}

// Sleep waits for d, returning early with the context error if ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
