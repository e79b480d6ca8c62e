// Package weight scores open issues for triage. Unanswered and heavily
// reacted issues float up, issues a maintainer touched recently sink, and age
// adds a small amount of pressure.
package weight

import (
	"time"

	"github.com/wesm/issue-triage/internal/models"
)

const (
	day = 24 * time.Hour

	reactionWeight   = 20
	commentWeight    = 5
	dayOpenWeight    = 1
	daySinceResponse = 1
	unansweredBonus  = 100
)

// Weight computes the triage weight of an issue as of now
func Weight(r models.IssueRecord, now time.Time) int {
	daysOpen := Days(now.Sub(r.CreatedAt))

	daysSinceResponse := 0
	if r.IsMemberResponse && r.LastMemberResponse != nil {
		daysSinceResponse = Days(now.Sub(*r.LastMemberResponse))
	}

	w := r.ReactionsTotal*reactionWeight +
		len(r.Timeline)*commentWeight +
		daysOpen*dayOpenWeight -
		daysSinceResponse*daySinceResponse

	if !r.IsMemberResponse {
		w += unansweredBonus
	}
	return w
}

// Days returns the number of whole days in d, rounding toward negative infinity
func Days(d time.Duration) int {
	days := d / day
	if d < 0 && d%day != 0 {
		days--
	}
	return int(days)
}
