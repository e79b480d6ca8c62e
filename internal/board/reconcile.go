package board

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wesm/issue-triage/internal/logging"
	"github.com/wesm/issue-triage/internal/metrics"
	"github.com/wesm/issue-triage/internal/models"
)

// ItemStore reads and mutates the items of a board
type ItemStore interface {
	ListItems(ctx context.Context, projectID, fieldName string) ([]models.BoardItem, error)
	AddItem(ctx context.Context, projectID, contentID string) (string, error)
	DeleteItem(ctx context.Context, projectID, itemID string) error
	UpdateItemNumber(ctx context.Context, projectID, itemID, fieldID string, value float64) error
}

// Result counts the mutations a sync issued
type Result struct {
	Added   int
	Removed int
	Updated int
	Failed  int
}

// Mutations returns the number of successful mutations
func (r Result) Mutations() int {
	return r.Added + r.Removed + r.Updated
}

// itemKey identifies an issue on a board. Content ids are global but the
// board reports the owning repository with every item, and both must match.
type itemKey struct {
	contentID  string
	repository string
}

// Reconciler syncs the board with the open issues of one repository. Board
// items from other repositories are never removed.
type Reconciler struct {
	items      ItemStore
	repository string
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewReconciler creates a reconciler for owner/name
func NewReconciler(items ItemStore, owner, name string, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		items:      items,
		repository: owner + "/" + name,
		metrics:    m,
		log:        logging.Component("board").With().Str("repo", owner+"/"+name).Logger(),
	}
}

// Diff returns the desired issues missing from the board and the board items
// of repository that are no longer desired
func Diff(desired []models.IssueRecord, current []models.BoardItem, repository string) ([]models.IssueRecord, []models.BoardItem) {
	onBoard := make(map[itemKey]struct{}, len(current))
	for _, item := range current {
		onBoard[itemKey{item.ContentID, item.Repository}] = struct{}{}
	}

	wanted := make(map[itemKey]struct{}, len(desired))
	var toAdd []models.IssueRecord
	for _, issue := range desired {
		key := itemKey{issue.NodeID, issue.FullName()}
		wanted[key] = struct{}{}
		if _, ok := onBoard[key]; !ok {
			toAdd = append(toAdd, issue)
		}
	}

	var toRemove []models.BoardItem
	for _, item := range current {
		if item.Repository != repository {
			continue
		}
		if _, ok := wanted[itemKey{item.ContentID, item.Repository}]; !ok {
			toRemove = append(toRemove, item)
		}
	}

	return toAdd, toRemove
}

// Sync adds missing issues, removes closed ones and writes the current
// weights. Individual mutation failures are logged and counted but do not
// stop the sync; only failing to read the board is an error.
func (r *Reconciler) Sync(ctx context.Context, handle models.BoardHandle, desired []models.IssueRecord) (Result, error) {
	var result Result

	ranked := make([]models.IssueRecord, len(desired))
	copy(ranked, desired)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})

	current, err := r.items.ListItems(ctx, handle.ProjectID, WeightFieldName)
	if err != nil {
		return result, fmt.Errorf("failed to list board items: %w", err)
	}

	toAdd, toRemove := Diff(ranked, current, r.repository)
	r.log.Info().Int("board_items", len(current)).Int("add", len(toAdd)).Int("remove", len(toRemove)).
		Msg("computed board diff")

	for _, issue := range toAdd {
		r.log.Debug().Str("content_id", issue.NodeID).Int("number", issue.Number).Msg("adding issue")
		_, err := r.items.AddItem(ctx, handle.ProjectID, issue.NodeID)
		r.metrics.BoardMutation(metrics.OpAdd, err)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.log.Warn().Err(err).Int("number", issue.Number).Msg("failed to add issue")
			result.Failed++
			continue
		}
		result.Added++
	}

	for _, item := range toRemove {
		r.log.Debug().Str("item_id", item.ItemID).Msg("removing item")
		err := r.items.DeleteItem(ctx, handle.ProjectID, item.ItemID)
		r.metrics.BoardMutation(metrics.OpRemove, err)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.log.Warn().Err(err).Str("item_id", item.ItemID).Msg("failed to remove item")
			result.Failed++
			continue
		}
		result.Removed++
	}

	refreshed, err := r.items.ListItems(ctx, handle.ProjectID, WeightFieldName)
	if err != nil {
		return result, fmt.Errorf("failed to list board items: %w", err)
	}

	weights := make(map[itemKey]int, len(ranked))
	for _, issue := range ranked {
		weights[itemKey{issue.NodeID, issue.FullName()}] = issue.Weight
	}

	for _, item := range refreshed {
		w, ok := weights[itemKey{item.ContentID, item.Repository}]
		if !ok || w == 0 {
			continue
		}
		if item.Weight != nil && *item.Weight == float64(w) {
			continue
		}

		err := r.items.UpdateItemNumber(ctx, handle.ProjectID, item.ItemID, handle.WeightFieldID, float64(w))
		r.metrics.BoardMutation(metrics.OpUpdate, err)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.log.Warn().Err(err).Str("item_id", item.ItemID).Int("weight", w).Msg("failed to update weight")
			result.Failed++
			continue
		}
		result.Updated++
	}

	r.log.Info().Int("added", result.Added).Int("removed", result.Removed).Int("updated", result.Updated).
		Int("failed", result.Failed).Msg("board synced")
	return result, nil
}
