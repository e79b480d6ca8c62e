package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/issue-triage/internal/models"
	"github.com/wesm/issue-triage/internal/timeline"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeLister struct {
	pages     map[int][]models.Issue
	requested []int
}

func (f *fakeLister) ListOpenIssues(_ context.Context, _, _ string, page, perPage int) ([]models.Issue, error) {
	f.requested = append(f.requested, page)
	if perPage != PageSize {
		return nil, errors.New("unexpected page size")
	}
	return f.pages[page], nil
}

type fakeTimeline struct {
	mu     sync.Mutex
	items  map[int][]models.TimelineItem
	errs   map[int]error
	called []int
}

func (f *fakeTimeline) Fetch(_ context.Context, _, _ string, number int) ([]models.TimelineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, number)
	if err := f.errs[number]; err != nil {
		return nil, err
	}
	if items, ok := f.items[number]; ok {
		return items, nil
	}
	return []models.TimelineItem{{CreatedAt: now.Add(-time.Hour)}}, nil
}

func issues(from, n int) []models.Issue {
	out := make([]models.Issue, n)
	for i := range out {
		num := from + i
		out[i] = models.Issue{
			ID:        int64(num),
			NodeID:    fmt.Sprintf("I_%d", num),
			Number:    num,
			CreatedAt: now.Add(-48 * time.Hour),
			UpdatedAt: now.Add(-47 * time.Hour),
		}
	}
	return out
}

func newCollector(l IssueLister, tl TimelineFetcher) *Collector {
	c := New(l, tl, nil)
	c.SetClock(func() time.Time { return now })
	return c
}

func TestCollect_paginates_and_keeps_order(t *testing.T) {
	lister := &fakeLister{pages: map[int][]models.Issue{
		1: issues(1, PageSize),
		2: issues(PageSize+1, 2),
	}}
	c := newCollector(lister, &fakeTimeline{})
	c.SetWorkers(4)

	records, err := c.Collect(context.Background(), "x", "y")
	require.NoError(t, err)
	require.Len(t, records, PageSize+2)
	assert.Equal(t, []int{1, 2}, lister.requested)
	for i, r := range records {
		assert.Equal(t, i+1, r.Number)
		assert.Equal(t, "x", r.Owner)
		assert.Equal(t, "y", r.Repo)
	}
}

func TestCollect_stops_on_empty_page(t *testing.T) {
	lister := &fakeLister{pages: map[int][]models.Issue{1: issues(1, PageSize)}}
	c := newCollector(lister, &fakeTimeline{})

	records, err := c.Collect(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Len(t, records, PageSize)
	assert.Equal(t, []int{1, 2}, lister.requested)
}

func TestCollect_timeline_error(t *testing.T) {
	lister := &fakeLister{pages: map[int][]models.Issue{1: issues(1, 3)}}
	tl := &fakeTimeline{errs: map[int]error{2: errors.New("gone")}}
	c := newCollector(lister, tl)

	_, err := c.Collect(context.Background(), "x", "y")
	assert.ErrorContains(t, err, "x/y#2")
}

func TestBuildRecord(t *testing.T) {
	created := now.Add(-2*24*time.Hour - time.Hour)
	member1 := now.Add(-30 * time.Hour)
	member2 := now.Add(-26 * time.Hour)

	issue := models.Issue{
		ID:        7,
		NodeID:    "I_7",
		Number:    7,
		Title:     "crash on start",
		URL:       "https://github.com/x/y/issues/7",
		CreatedAt: created,
		UpdatedAt: created.Add(8 * 24 * time.Hour),
	}
	items := []models.TimelineItem{
		{CreatedAt: created, Reactions: &models.Reactions{TotalCount: 3}},
		{Event: "commented", CreatedAt: member1, AuthorAssociation: models.AssociationMember},
		{Event: "commented", CreatedAt: member2, AuthorAssociation: models.AssociationMember},
		{Event: "commented", CreatedAt: now.Add(-time.Hour), AuthorAssociation: "CONTRIBUTOR"},
	}

	r := BuildRecord(issue, items, "x", "y", now)

	assert.True(t, r.Info.IsStale)
	assert.True(t, r.Info.IsOpen)
	assert.False(t, r.Info.IsPull)
	assert.Equal(t, 3, r.ReactionsTotal)
	assert.True(t, r.IsMemberResponse)
	require.NotNil(t, r.LastMemberResponse)
	assert.Equal(t, member2, *r.LastMemberResponse)
	assert.Equal(t, int64(now.Sub(created).Seconds()), r.TimeAlive)
	// 3*20 + 4*5 + 2 - 1
	assert.Equal(t, 81, r.Weight)
	assert.Equal(t, "x/y", r.FullName())
}

func TestBuildRecord_unanswered(t *testing.T) {
	created := now.Add(-2*24*time.Hour - time.Hour)
	issue := models.Issue{Number: 1, CreatedAt: created, UpdatedAt: created}
	items := []models.TimelineItem{
		{CreatedAt: created, Reactions: &models.Reactions{TotalCount: 3}},
		{Event: "commented", CreatedAt: created.Add(time.Hour)},
		{Event: "labeled", CreatedAt: created.Add(2 * time.Hour), Label: &models.Label{Name: "bug"}},
		{Event: "commented", CreatedAt: created.Add(3 * time.Hour)},
	}

	r := BuildRecord(issue, items, "x", "y", now)

	assert.False(t, r.IsMemberResponse)
	assert.Nil(t, r.LastMemberResponse)
	assert.Equal(t, 182, r.Weight)
}

func TestBuildRecord_pull_request(t *testing.T) {
	merged := now.Add(-time.Hour)
	closed := now.Add(-time.Hour)
	issue := models.Issue{
		Number:        9,
		CreatedAt:     now.Add(-2 * time.Hour),
		UpdatedAt:     now.Add(-time.Hour),
		ClosedAt:      &closed,
		IsPullRequest: true,
		MergedAt:      &merged,
	}

	r := BuildRecord(issue, nil, "x", "y", now)

	assert.True(t, r.Info.IsPull)
	assert.True(t, r.Info.IsMerged)
	assert.False(t, r.Info.IsOpen)
	assert.Equal(t, int64(3600), r.TimeAlive)
	assert.Equal(t, 0, r.ReactionsTotal)
}

func TestSetWorkers_bounds(t *testing.T) {
	c := New(nil, nil, nil)
	c.SetWorkers(0)
	assert.Equal(t, 1, c.workers)
	c.SetWorkers(50)
	assert.Equal(t, maxWorkers, c.workers)
}

type pullTimeline struct {
	creation models.TimelineItem
	events   []models.TimelineItem
}

func (p *pullTimeline) GetIssueCreation(context.Context, string, string, int) (models.TimelineItem, error) {
	return p.creation, nil
}

func (p *pullTimeline) ListTimelinePage(_ context.Context, _, _ string, _, page, _ int) ([]models.TimelineItem, error) {
	if page > 1 {
		return nil, nil
	}
	return p.events, nil
}

func TestCollect_untimed_review_comment_keeps_reactions(t *testing.T) {
	pr := issues(1, 1)
	pr[0].IsPullRequest = true
	lister := &fakeLister{pages: map[int][]models.Issue{1: pr}}

	source := &pullTimeline{
		creation: models.TimelineItem{CreatedAt: pr[0].CreatedAt, Reactions: &models.Reactions{TotalCount: 5}},
		events:   []models.TimelineItem{{Event: "line-commented"}},
	}
	c := newCollector(lister, timeline.New(source, nil))

	records, err := c.Collect(context.Background(), "x", "y")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, records[0].Timeline[0].IsCreation())
	assert.Equal(t, 5, records[0].ReactionsTotal)
	// 5*20 reactions + 2*5 items + 2 days + 100 unanswered
	assert.Equal(t, 212, records[0].Weight)
}
