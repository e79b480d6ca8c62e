// Package report renders the ranked issue list of a repository as markdown,
// HTML and JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/wesm/issue-triage/internal/models"
	"github.com/wesm/issue-triage/internal/weight"
)

const (
	topCount = 10

	// activeResponseDays is how recent a maintainer response must be for an
	// issue to count as actively handled
	activeResponseDays = 14
)

// State classifies how maintainers have engaged with an issue
type State int

const (
	StateNoMaintainer State = iota
	StateActiveResponse
	StateStaleResponse
)

// Icon returns the marker shown in front of an issue with this state
func (s State) Icon() string {
	switch s {
	case StateActiveResponse:
		return "✔️"
	case StateStaleResponse:
		return "⚠️"
	default:
		return "❗"
	}
}

// Entry is one line of a summary
type Entry struct {
	Title              string
	URL                string
	Weight             int
	ReactionsTotal     int
	IsPull             bool
	IsMemberResponse   bool
	LastMemberResponse *time.Time
}

// FromRecords builds entries from freshly collected records
func FromRecords(records []models.IssueRecord) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			Title:              r.Title,
			URL:                r.URL,
			Weight:             r.Weight,
			ReactionsTotal:     r.ReactionsTotal,
			IsPull:             r.Info.IsPull,
			IsMemberResponse:   r.IsMemberResponse,
			LastMemberResponse: r.LastMemberResponse,
		})
	}
	return entries
}

// FromSnapshots builds entries from stored snapshot rows
func FromSnapshots(snapshots []models.Snapshot) []Entry {
	entries := make([]Entry, 0, len(snapshots))
	for _, s := range snapshots {
		entries = append(entries, Entry{
			Title:              s.Title,
			URL:                s.URL,
			Weight:             s.Weight,
			ReactionsTotal:     s.ReactionsTotal,
			IsPull:             s.IsPull,
			IsMemberResponse:   s.IsMemberResponse,
			LastMemberResponse: s.LastMemberResponse,
		})
	}
	return entries
}

// StateOf classifies an entry as of now
func StateOf(e Entry, now time.Time) State {
	if !e.IsMemberResponse || e.LastMemberResponse == nil {
		return StateNoMaintainer
	}
	if weight.Days(now.Sub(*e.LastMemberResponse)) <= activeResponseDays {
		return StateActiveResponse
	}
	return StateStaleResponse
}

func line(n int, e Entry, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s [%s](%s)", n, StateOf(e, now).Icon(), escapeTitle(e.Title), e.URL)
	if e.ReactionsTotal > 0 {
		fmt.Fprintf(&b, " | %d 👍🏻", e.ReactionsTotal)
	}
	return b.String()
}

// titleEscaper keeps issue titles from closing the link or injecting HTML;
// the rendered report passes raw HTML through for its <details> blocks.
var titleEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"[", `\[`,
	"]", `\]`,
	"\n", " ",
)

func escapeTitle(title string) string {
	return titleEscaper.Replace(title)
}

// Summary renders the markdown summary of one repository. Entries are
// ranked by weight, highest first.
func Summary(owner, repo string, entries []Entry, now time.Time) string {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})

	var b strings.Builder
	fmt.Fprintf(&b, "## [`%s/%s`](https://github.com/%s/%s)\n", owner, repo, owner, repo)

	b.WriteString("### Top 10 issues that need attention\n")
	for i, e := range ranked {
		if i == topCount {
			break
		}
		fmt.Fprintf(&b, "  %s\n", line(1, e, now))
	}

	var pulls, issues []Entry
	for _, e := range ranked {
		if e.IsPull {
			pulls = append(pulls, e)
		} else {
			issues = append(issues, e)
		}
	}

	sections := []struct {
		label   string
		entries []Entry
	}{
		{"Pull Requests", pulls},
		{"Issues", issues},
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "### %s\n<details>\n<summary>(%d total)</summary>\n\n", s.label, len(s.entries))
		for i, e := range s.entries {
			fmt.Fprintf(&b, "%s\n", line(i+1, e, now))
		}
		b.WriteString("\n</details>\n\n")
	}
	b.WriteString("\n")
	return b.String()
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// HTML converts a markdown summary to HTML. Raw HTML in the input is kept so
// the <details> blocks survive.
func HTML(summary string) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(summary), &buf); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFiles writes data.json, summary.md and summary.html for a repository
// under dir/<owner>-<repo>/ and returns the markdown summary
func WriteFiles(dir, owner, repo string, records []models.IssueRecord, now time.Time) (string, error) {
	repoDir := filepath.Join(dir, owner+"-"+repo)
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "data.json"), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write data.json: %w", err)
	}

	summary := Summary(owner, repo, FromRecords(records), now)
	if err := writeMarkdown(filepath.Join(repoDir, "summary"), summary); err != nil {
		return "", err
	}
	return summary, nil
}

// WriteIndex writes the summaries of every synced repository to
// dir/README.md and dir/README.html
func WriteIndex(dir string, summaries []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return writeMarkdown(filepath.Join(dir, "README"), strings.Join(summaries, ""))
}

func writeMarkdown(base, summary string) error {
	if err := os.WriteFile(base+".md", []byte(summary), 0644); err != nil {
		return fmt.Errorf("failed to write %s.md: %w", filepath.Base(base), err)
	}
	rendered, err := HTML(summary)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".html", rendered, 0644); err != nil {
		return fmt.Errorf("failed to write %s.html: %w", filepath.Base(base), err)
	}
	return nil
}
