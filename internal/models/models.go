package models

import (
	"time"
)

// AssociationMember is the author association GitHub reports for repository members.
const AssociationMember = "MEMBER"

// Repository identifies a repository by the owner and name GitHub reports,
// which may differ in case from what was configured
type Repository struct {
	Owner    string
	Name     string
	Archived bool
}

// FullName returns the "owner/name" string the board reports as nameWithOwner
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Issue represents a raw GitHub issue or pull request as listed by the API
type Issue struct {
	ID            int64
	NodeID        string
	Number        int
	Title         string
	URL           string
	State         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
	IsPullRequest bool
	MergedAt      *time.Time
}

// Reactions holds the reaction counts attached to an issue or comment
type Reactions struct {
	TotalCount int `json:"total_count"`
	PlusOne    int `json:"+1"`
	MinusOne   int `json:"-1"`
	Laugh      int `json:"laugh"`
	Hooray     int `json:"hooray"`
	Confused   int `json:"confused"`
	Heart      int `json:"heart"`
	Rocket     int `json:"rocket"`
	Eyes       int `json:"eyes"`
}

// Label is the payload of a labeled/unlabeled timeline event
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Rename is the payload of a renamed timeline event
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimelineItem represents one entry in an issue's history. The creation
// record is the only item with an empty Event.
type TimelineItem struct {
	Actor             string     `json:"actor,omitempty"`
	Event             string     `json:"event,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	AuthorAssociation string     `json:"author_association,omitempty"`
	Reactions         *Reactions `json:"reactions,omitempty"`
	Body              string     `json:"body,omitempty"`
	Label             *Label     `json:"label,omitempty"`
	Rename            *Rename    `json:"rename,omitempty"`
}

// IsCreation reports whether the item is the issue's original post
func (t TimelineItem) IsCreation() bool {
	return t.Event == ""
}

// IssueInfo holds the classification flags of an issue
type IssueInfo struct {
	IsPull   bool `json:"is_pull"`
	IsStale  bool `json:"is_stale"`
	IsOpen   bool `json:"is_open"`
	IsMerged bool `json:"is_merged"`
}

// IssueRecord represents an open issue or pull request annotated with its
// timeline and triage weight
type IssueRecord struct {
	ID                 int64          `json:"id"`
	NodeID             string         `json:"node_id"`
	Number             int            `json:"number"`
	Title              string         `json:"title"`
	URL                string         `json:"url"`
	Info               IssueInfo      `json:"info"`
	CreatedAt          time.Time      `json:"created_at"`
	ClosedAt           *time.Time     `json:"closed_at,omitempty"`
	TimeAlive          int64          `json:"time_alive"`
	ReactionsTotal     int            `json:"reactions_total"`
	IsMemberResponse   bool           `json:"is_member_response"`
	LastMemberResponse *time.Time     `json:"last_member_response,omitempty"`
	Timeline           []TimelineItem `json:"metadata"`
	Weight             int            `json:"weight"`
	Owner              string         `json:"owner"`
	Repo               string         `json:"repo"`
}

// FullName returns the "owner/repo" string the board uses for the record
func (r IssueRecord) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Project represents a Projects v2 board visible to an owner
type Project struct {
	ID    string
	Title string
}

// BoardItem represents one entry on the project board
type BoardItem struct {
	ItemID     string
	ContentID  string
	Repository string
	Weight     *float64
}

// BoardHandle identifies the board and its Weight field
type BoardHandle struct {
	ProjectID     string
	WeightFieldID string
}

// Snapshot is a persisted row of the latest ranked issue list
type Snapshot struct {
	Repository         string
	Number             int
	NodeID             string
	Title              string
	URL                string
	IsPull             bool
	Weight             int
	ReactionsTotal     int
	IsMemberResponse   bool
	LastMemberResponse *time.Time
	CreatedAt          time.Time
	CapturedAt         time.Time
}
