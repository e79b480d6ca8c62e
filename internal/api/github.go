package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/wesm/issue-triage/internal/models"
	"golang.org/x/oauth2"
)

// RateLimitError is returned when GitHub asked the client to wait before retrying
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// GitHubClient represents a client for the GitHub REST API
type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{client: github.NewClient(newHTTPClient(token))}
}

// NewGitHubClientWithBaseURL creates a client that talks to baseURL instead of api.github.com
func NewGitHubClientWithBaseURL(token, baseURL string) (*GitHubClient, error) {
	client := github.NewClient(newHTTPClient(token))
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	client.BaseURL = u
	return &GitHubClient{client: client}, nil
}

func newHTTPClient(token string) *http.Client {
	if token == "" {
		return nil
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return oauth2.NewClient(context.Background(), ts)
}

// GetRepository gets the canonical owner and name of a repository, following
// renames and transfers
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (*models.Repository, error) {
	repo, _, err := c.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, mapError(err))
	}

	return &models.Repository{
		Owner:    repo.GetOwner().GetLogin(),
		Name:     repo.GetName(),
		Archived: repo.GetArchived(),
	}, nil
}

// ListOpenIssues gets one page of open issues and pull requests, oldest first
func (c *GitHubClient) ListOpenIssues(ctx context.Context, owner, name string, page, perPage int) ([]models.Issue, error) {
	q := url.Values{}
	q.Set("state", "open")
	q.Set("sort", "created")
	q.Set("direction", "asc")
	q.Set("filter", "all")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var payload []issuePayload
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/issues?%s", owner, name, q.Encode()), &payload); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	issues := make([]models.Issue, 0, len(payload))
	for _, p := range payload {
		issues = append(issues, convertIssue(p))
	}
	return issues, nil
}

// GetIssueCreation gets an issue and returns it as the creation record of its timeline
func (c *GitHubClient) GetIssueCreation(ctx context.Context, owner, name string, number int) (models.TimelineItem, error) {
	var payload issuePayload
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/issues/%d", owner, name, number), &payload); err != nil {
		return models.TimelineItem{}, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return convertIssueCreation(payload), nil
}

// ListTimelinePage gets one page of timeline events for an issue
func (c *GitHubClient) ListTimelinePage(ctx context.Context, owner, name string, number, page, perPage int) ([]models.TimelineItem, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var payload []timelinePayload
	if err := c.get(ctx, fmt.Sprintf("repos/%s/%s/issues/%d/timeline?%s", owner, name, number, q.Encode()), &payload); err != nil {
		return nil, fmt.Errorf("failed to list timeline page %d for issue #%d: %w", page, number, err)
	}

	items := make([]models.TimelineItem, 0, len(payload))
	for _, p := range payload {
		items = append(items, convertTimelineEvent(p))
	}
	return items, nil
}

// UserNodeID gets the GraphQL node id of a user or organization
func (c *GitHubClient) UserNodeID(ctx context.Context, login string) (string, error) {
	user, _, err := c.client.Users.Get(ctx, login)
	if err != nil {
		return "", fmt.Errorf("failed to get user %s: %w", login, mapError(err))
	}
	return user.GetNodeID(), nil
}

func (c *GitHubClient) get(ctx context.Context, path string, v interface{}) error {
	req, err := c.client.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, req, v); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError turns the rate limit errors go-github reports into a RateLimitError
// carrying the delay the server asked for
func mapError(err error) error {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return &RateLimitError{RetryAfter: *abuseErr.RetryAfter, Err: err}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		if d, ok := retryAfterHeader(rateErr.Response); ok {
			return &RateLimitError{RetryAfter: d, Err: err}
		}
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait < 0 {
			wait = 0
		}
		return &RateLimitError{RetryAfter: wait, Err: err}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if d, ok := retryAfterHeader(respErr.Response); ok {
			return &RateLimitError{RetryAfter: d, Err: err}
		}
	}

	return err
}

func retryAfterHeader(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

type userPayload struct {
	Login string `json:"login"`
}

type issuePayload struct {
	ID                int64             `json:"id"`
	NodeID            string            `json:"node_id"`
	Number            int               `json:"number"`
	Title             string            `json:"title"`
	HTMLURL           string            `json:"html_url"`
	State             string            `json:"state"`
	Body              string            `json:"body"`
	User              *userPayload      `json:"user"`
	AuthorAssociation string            `json:"author_association"`
	Reactions         *models.Reactions `json:"reactions"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	ClosedAt          *time.Time        `json:"closed_at"`
	PullRequest       *struct {
		MergedAt *time.Time `json:"merged_at"`
	} `json:"pull_request"`
}

type timelinePayload struct {
	Event             string            `json:"event"`
	Actor             *userPayload      `json:"actor"`
	User              *userPayload      `json:"user"`
	CreatedAt         *time.Time        `json:"created_at"`
	SubmittedAt       *time.Time        `json:"submitted_at"`
	UpdatedAt         *time.Time        `json:"updated_at"`
	AuthorAssociation string            `json:"author_association"`
	Reactions         *models.Reactions `json:"reactions"`
	Body              string            `json:"body"`
	Label             *models.Label     `json:"label"`
	Rename            *models.Rename    `json:"rename"`
	Author            *struct {
		Date *time.Time `json:"date"`
	} `json:"author"`
	Comments []struct {
		CreatedAt *time.Time `json:"created_at"`
	} `json:"comments"`
}

// convertIssue converts an issue payload to our model
func convertIssue(p issuePayload) models.Issue {
	issue := models.Issue{
		ID:            p.ID,
		NodeID:        p.NodeID,
		Number:        p.Number,
		Title:         p.Title,
		URL:           p.HTMLURL,
		State:         p.State,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		ClosedAt:      p.ClosedAt,
		IsPullRequest: p.PullRequest != nil,
	}
	if p.PullRequest != nil {
		issue.MergedAt = p.PullRequest.MergedAt
	}
	return issue
}

// convertIssueCreation converts an issue payload to the creation record of its timeline
func convertIssueCreation(p issuePayload) models.TimelineItem {
	updatedAt := p.UpdatedAt
	item := models.TimelineItem{
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         &updatedAt,
		AuthorAssociation: p.AuthorAssociation,
		Reactions:         p.Reactions,
		Body:              p.Body,
	}
	if p.User != nil {
		item.Actor = p.User.Login
	}
	return item
}

// convertTimelineEvent converts a timeline event payload to our model. Events
// without created_at fall back to their submission time (reviews), authoring
// time (commits) or first nested comment (line-commented, commit-commented).
// An event with none of these keeps a zero CreatedAt.
func convertTimelineEvent(p timelinePayload) models.TimelineItem {
	item := models.TimelineItem{
		Event:             p.Event,
		UpdatedAt:         p.UpdatedAt,
		AuthorAssociation: p.AuthorAssociation,
		Reactions:         p.Reactions,
		Body:              p.Body,
		Label:             p.Label,
		Rename:            p.Rename,
	}

	switch {
	case p.CreatedAt != nil:
		item.CreatedAt = *p.CreatedAt
	case p.SubmittedAt != nil:
		item.CreatedAt = *p.SubmittedAt
	case p.Author != nil && p.Author.Date != nil:
		item.CreatedAt = *p.Author.Date
	case len(p.Comments) > 0 && p.Comments[0].CreatedAt != nil:
		item.CreatedAt = *p.Comments[0].CreatedAt
	}

	if p.User != nil {
		item.Actor = p.User.Login
	} else if p.Actor != nil {
		item.Actor = p.Actor.Login
	}

	return item
}
