package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/issue-triage/internal/models"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestStateOf(t *testing.T) {
	recent := now.Add(-3 * 24 * time.Hour)
	old := now.Add(-20 * 24 * time.Hour)

	assert.Equal(t, StateNoMaintainer, StateOf(Entry{}, now))
	assert.Equal(t, StateActiveResponse, StateOf(Entry{IsMemberResponse: true, LastMemberResponse: &recent}, now))
	assert.Equal(t, StateStaleResponse, StateOf(Entry{IsMemberResponse: true, LastMemberResponse: &old}, now))
}

func TestSummary(t *testing.T) {
	recent := now.Add(-time.Hour)
	entries := []Entry{
		{Title: "small", URL: "https://x/1", Weight: 5},
		{Title: "big [bug]", URL: "https://x/2", Weight: 200, ReactionsTotal: 4},
		{Title: "pr", URL: "https://x/3", Weight: 50, IsPull: true, IsMemberResponse: true, LastMemberResponse: &recent},
	}

	s := Summary("x", "y", entries, now)

	assert.True(t, strings.HasPrefix(s, "## [`x/y`](https://github.com/x/y)\n"))
	top := strings.Index(s, "  1. ❗ [big \\[bug\\]](https://x/2) | 4 👍🏻\n")
	pr := strings.Index(s, "  1. ✔️ [pr](https://x/3)\n")
	small := strings.Index(s, "  1. ❗ [small](https://x/1)\n")
	require.True(t, top >= 0 && pr >= 0 && small >= 0, s)
	assert.Less(t, top, pr)
	assert.Less(t, pr, small)

	assert.Contains(t, s, "### Pull Requests\n<details>\n<summary>(1 total)</summary>\n\n1. ✔️ [pr](https://x/3)\n")
	assert.Contains(t, s, "### Issues\n<details>\n<summary>(2 total)</summary>\n\n1. ❗ [big \\[bug\\]](https://x/2) | 4 👍🏻\n2. ❗ [small](https://x/1)\n")
}

func TestSummary_top_ten(t *testing.T) {
	var entries []Entry
	for i := 0; i < 15; i++ {
		entries = append(entries, Entry{Title: "t", URL: "u", Weight: i})
	}
	s := Summary("x", "y", entries, now)
	head := s[:strings.Index(s, "### Pull Requests")]
	assert.Equal(t, 10, strings.Count(head, "  1. "))
}

func TestHTML_keeps_details(t *testing.T) {
	out, err := HTML("### Issues\n<details>\n<summary>(1 total)</summary>\n\n1. [a](https://x)\n\n</details>\n")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<details>")
	assert.Contains(t, string(out), `<a href="https://x">a</a>`)
}

func TestHTML_escapes_title_markup(t *testing.T) {
	entries := []Entry{{Title: `<img src=x onerror=alert(1)> & <script>`, URL: "https://x/1", Weight: 1}}

	s := Summary("x", "y", entries, now)
	assert.Contains(t, s, "[&lt;img src=x onerror=alert(1)&gt; &amp; &lt;script&gt;](https://x/1)")

	out, err := HTML(s)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<img")
	assert.NotContains(t, string(out), "<script>")
	assert.Contains(t, string(out), "&lt;img src=x onerror=alert(1)&gt;")
	assert.Contains(t, string(out), "<details>")
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	records := []models.IssueRecord{{Number: 1, Title: "a", URL: "https://x/1", Weight: 10, Owner: "x", Repo: "y"}}

	summary, err := WriteFiles(dir, "x", "y", records, now)
	require.NoError(t, err)
	assert.Contains(t, summary, "[a](https://x/1)")

	data, err := os.ReadFile(filepath.Join(dir, "x-y", "data.json"))
	require.NoError(t, err)
	var decoded []models.IssueRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, 10, decoded[0].Weight)

	for _, name := range []string{"summary.md", "summary.html"} {
		_, err := os.Stat(filepath.Join(dir, "x-y", name))
		assert.NoError(t, err, name)
	}

	require.NoError(t, WriteIndex(dir, []string{summary}))
	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, summary, string(readme))
}
