package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/issue-triage/internal/api"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type pageResult struct {
	items []models.TimelineItem
	err   error
}

// fakeSource serves scripted pages. Each page has a queue of results so a
// page can fail before it succeeds.
type fakeSource struct {
	creation    models.TimelineItem
	creationErr error
	pages       map[int][]pageResult
	requested   []int
}

func (f *fakeSource) GetIssueCreation(_ context.Context, _, _ string, _ int) (models.TimelineItem, error) {
	return f.creation, f.creationErr
}

func (f *fakeSource) ListTimelinePage(_ context.Context, _, _ string, _, page, perPage int) ([]models.TimelineItem, error) {
	f.requested = append(f.requested, page)
	if perPage != PageSize {
		return nil, errors.New("unexpected page size")
	}
	queue := f.pages[page]
	if len(queue) == 0 {
		return nil, nil
	}
	res := queue[0]
	f.pages[page] = queue[1:]
	return res.items, res.err
}

func events(n int, start time.Time) []models.TimelineItem {
	items := make([]models.TimelineItem, n)
	for i := range items {
		items[i] = models.TimelineItem{Event: "commented", CreatedAt: start.Add(time.Duration(i) * time.Minute)}
	}
	return items
}

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newFetcher(src Source) (*Fetcher, *recordedSleep) {
	f := New(src, metrics.New())
	rs := &recordedSleep{}
	f.SetSleep(rs.sleep)
	return f, rs
}

func TestFetch_paginates_until_short_page(t *testing.T) {
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base},
		pages: map[int][]pageResult{
			1: {{items: events(PageSize, base.Add(time.Hour))}},
			2: {{items: events(3, base.Add(10*time.Hour))}},
		},
	}
	f, _ := newFetcher(src)

	items, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1+PageSize+3)
	assert.Equal(t, []int{1, 2}, src.requested)
	assert.True(t, items[0].IsCreation())
}

func TestFetch_stops_on_empty_page(t *testing.T) {
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base},
		pages: map[int][]pageResult{
			1: {{items: events(PageSize, base)}},
		},
	}
	f, _ := newFetcher(src)

	items, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1+PageSize)
	assert.Equal(t, []int{1, 2}, src.requested)
}

func TestFetch_retries_after_server_delay(t *testing.T) {
	pages := func() map[int][]pageResult {
		return map[int][]pageResult{1: {{items: events(2, base.Add(time.Hour))}}}
	}

	clean := &fakeSource{creation: models.TimelineItem{CreatedAt: base}, pages: pages()}
	f, _ := newFetcher(clean)
	want, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)

	limited := &fakeSource{creation: models.TimelineItem{CreatedAt: base}, pages: pages()}
	limited.pages[1] = append([]pageResult{
		{err: &api.RateLimitError{RetryAfter: 3 * time.Second, Err: errors.New("slow down")}},
		{err: &api.RateLimitError{RetryAfter: 1 * time.Second, Err: errors.New("slow down")}},
	}, limited.pages[1]...)
	f, rs := newFetcher(limited)

	got, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, rs.delays)
	assert.Equal(t, []int{1, 1, 1}, limited.requested)
}

func TestFetch_other_error_truncates(t *testing.T) {
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base},
		pages: map[int][]pageResult{
			1: {{items: events(PageSize, base)}},
			2: {{err: errors.New("502 bad gateway")}},
			3: {{items: events(5, base)}},
		},
	}
	f, _ := newFetcher(src)

	items, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1+PageSize)
	assert.Equal(t, []int{1, 2}, src.requested)
}

func TestFetch_creation_error(t *testing.T) {
	src := &fakeSource{creationErr: errors.New("not found")}
	f, _ := newFetcher(src)

	_, err := f.Fetch(context.Background(), "x", "y", 1)
	assert.Error(t, err)
	assert.Empty(t, src.requested)
}

func TestFetch_sorts_by_creation_time(t *testing.T) {
	tie := base.Add(2 * time.Hour)
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base.Add(time.Hour)},
		pages: map[int][]pageResult{
			1: {{items: []models.TimelineItem{
				{Event: "labeled", CreatedAt: tie, Body: "first"},
				{Event: "committed", CreatedAt: base},
				{Event: "renamed", CreatedAt: tie, Body: "second"},
			}}},
		},
	}
	f, _ := newFetcher(src)

	items, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.True(t, items[0].IsCreation())
	assert.Equal(t, "committed", items[1].Event)
	assert.Equal(t, "first", items[2].Body)
	assert.Equal(t, "second", items[3].Body)
}

func TestFetch_untimed_event_keeps_position(t *testing.T) {
	reactions := &models.Reactions{TotalCount: 5}
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base, Reactions: reactions},
		pages: map[int][]pageResult{
			1: {{items: []models.TimelineItem{
				{Event: "commented", CreatedAt: base.Add(time.Hour)},
				{Event: "line-commented"},
				{Event: "commented", CreatedAt: base.Add(2 * time.Hour), Body: "later"},
			}}},
		},
	}
	f, _ := newFetcher(src)

	items, err := f.Fetch(context.Background(), "x", "y", 1)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.True(t, items[0].IsCreation())
	assert.Same(t, reactions, items[0].Reactions)
	assert.Equal(t, "line-commented", items[2].Event)
	assert.Equal(t, base.Add(time.Hour), items[2].CreatedAt)
	assert.Equal(t, "later", items[3].Body)
}

func TestFetch_cancelled_during_backoff(t *testing.T) {
	src := &fakeSource{
		creation: models.TimelineItem{CreatedAt: base},
		pages: map[int][]pageResult{
			1: {{err: &api.RateLimitError{RetryAfter: time.Hour, Err: errors.New("slow down")}}},
		},
	}
	f := New(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "x", "y", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
