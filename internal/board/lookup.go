// Package board keeps a Projects v2 board in step with the open issues of
// a repository.
package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wesm/issue-triage/internal/logging"
	"github.com/wesm/issue-triage/internal/models"
)

// WeightFieldName is the custom number field that holds issue weights
const WeightFieldName = "Weight"

// ErrWeightFieldMissing is returned when an existing board has no Weight field
var ErrWeightFieldMissing = errors.New("project board has no " + WeightFieldName + " field")

// ProjectSource looks up and creates projects
type ProjectSource interface {
	OrganizationProjects(ctx context.Context, login string) ([]models.Project, error)
	UserProjects(ctx context.Context, login string) ([]models.Project, error)
	FieldID(ctx context.Context, projectID, name string) (string, error)
	CreateProject(ctx context.Context, ownerID, title string) (string, error)
}

// OwnerResolver maps a login to the node id projects are created under
type OwnerResolver interface {
	UserNodeID(ctx context.Context, login string) (string, error)
}

// Lookup resolves the board a run writes to
type Lookup struct {
	projects ProjectSource
	owners   OwnerResolver
	log      zerolog.Logger
}

// NewLookup creates a Lookup
func NewLookup(projects ProjectSource, owners OwnerResolver) *Lookup {
	return &Lookup{
		projects: projects,
		owners:   owners,
		log:      logging.Component("board"),
	}
}

// Resolve finds the board titled title owned by owner and returns its handle.
// When no such board exists it is created and Resolve returns a nil handle:
// a new board has no Weight field, and one must be added by hand before
// the board can be synced.
func (l *Lookup) Resolve(ctx context.Context, owner, title string) (*models.BoardHandle, error) {
	projectID, err := l.find(ctx, owner, title)
	if err != nil {
		return nil, err
	}

	if projectID != "" {
		l.log.Info().Str("owner", owner).Str("title", title).Msg("found existing project board")
		fieldID, err := l.projects.FieldID(ctx, projectID, WeightFieldName)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s field: %w", WeightFieldName, err)
		}
		if fieldID == "" {
			return nil, fmt.Errorf("%q: %w", title, ErrWeightFieldMissing)
		}
		return &models.BoardHandle{ProjectID: projectID, WeightFieldID: fieldID}, nil
	}

	l.log.Info().Str("owner", owner).Str("title", title).Msg("creating project board")
	ownerID, err := l.owners.UserNodeID(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve board owner: %w", err)
	}
	if _, err := l.projects.CreateProject(ctx, ownerID, title); err != nil {
		return nil, fmt.Errorf("failed to create project board: %w", err)
	}
	return nil, nil
}

// find returns the id of the first project titled title, searching the
// organization scope before the user scope. A scope that cannot be queried
// (the login is not an organization, say) has no match.
func (l *Lookup) find(ctx context.Context, owner, title string) (string, error) {
	scopes := []struct {
		name string
		list func(context.Context, string) ([]models.Project, error)
	}{
		{"organization", l.projects.OrganizationProjects},
		{"user", l.projects.UserProjects},
	}

	for _, scope := range scopes {
		projects, err := scope.list(ctx, owner)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			l.log.Debug().Err(err).Str("scope", scope.name).Str("owner", owner).Msg("project scope unavailable")
			continue
		}
		for _, p := range projects {
			if p.Title == title {
				return p.ID, nil
			}
		}
	}
	return "", nil
}
