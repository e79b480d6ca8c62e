package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/issue-triage/internal/models"
	"golang.org/x/oauth2"
)

const itemsPerPage = 100

// GraphQLClient represents a client for the GitHub GraphQL API
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(token string) *GraphQLClient {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	return &GraphQLClient{client: githubv4.NewClient(httpClient)}
}

// NewGraphQLClientWithURL creates a GraphQL client for a custom endpoint
func NewGraphQLClientWithURL(url string, httpClient *http.Client) *GraphQLClient {
	return &GraphQLClient{client: githubv4.NewEnterpriseClient(url, httpClient)}
}

type projectNode struct {
	ID    githubv4.ID
	Title githubv4.String
}

// OrganizationProjects lists the first page of projects owned by an organization
func (c *GraphQLClient) OrganizationProjects(ctx context.Context, login string) ([]models.Project, error) {
	var query struct {
		Organization struct {
			ProjectsV2 struct {
				Nodes []projectNode
			} `graphql:"projectsV2(first: 100)"`
		} `graphql:"organization(login: $login)"`
	}

	variables := map[string]interface{}{
		"login": githubv4.String(login),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query organization projects: %w", err)
	}

	return convertProjects(query.Organization.ProjectsV2.Nodes), nil
}

// UserProjects lists the first page of projects owned by a user
func (c *GraphQLClient) UserProjects(ctx context.Context, login string) ([]models.Project, error) {
	var query struct {
		User struct {
			ProjectsV2 struct {
				Nodes []projectNode
			} `graphql:"projectsV2(first: 100)"`
		} `graphql:"user(login: $login)"`
	}

	variables := map[string]interface{}{
		"login": githubv4.String(login),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query user projects: %w", err)
	}

	return convertProjects(query.User.ProjectsV2.Nodes), nil
}

func convertProjects(nodes []projectNode) []models.Project {
	projects := make([]models.Project, 0, len(nodes))
	for _, n := range nodes {
		projects = append(projects, models.Project{
			ID:    fmt.Sprintf("%v", n.ID),
			Title: string(n.Title),
		})
	}
	return projects
}

// FieldID gets the id of the named custom field on a project. An empty id
// means the project has no such field.
func (c *GraphQLClient) FieldID(ctx context.Context, projectID, name string) (string, error) {
	var query struct {
		Node struct {
			ProjectV2 struct {
				Field struct {
					ProjectV2Field struct {
						ID githubv4.ID
					} `graphql:"... on ProjectV2Field"`
				} `graphql:"field(name: $name)"`
			} `graphql:"... on ProjectV2"`
		} `graphql:"node(id: $projectId)"`
	}

	variables := map[string]interface{}{
		"projectId": githubv4.ID(projectID),
		"name":      githubv4.String(name),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return "", fmt.Errorf("failed to query field %q: %w", name, err)
	}

	id := query.Node.ProjectV2.Field.ProjectV2Field.ID
	if id == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", id), nil
}

// CreateProject creates a new project owned by ownerID
func (c *GraphQLClient) CreateProject(ctx context.Context, ownerID, title string) (string, error) {
	var mutation struct {
		CreateProjectV2 struct {
			ProjectV2 struct {
				ID githubv4.ID
			} `graphql:"projectV2"`
		} `graphql:"createProjectV2(input: $input)"`
	}

	input := githubv4.CreateProjectV2Input{
		OwnerID: githubv4.ID(ownerID),
		Title:   githubv4.String(title),
	}

	if err := c.client.Mutate(ctx, &mutation, input, nil); err != nil {
		return "", fmt.Errorf("failed to create project %q: %w", title, err)
	}

	return fmt.Sprintf("%v", mutation.CreateProjectV2.ProjectV2.ID), nil
}

type itemContent struct {
	ID         githubv4.ID
	Repository struct {
		NameWithOwner githubv4.String
	}
}

type itemNode struct {
	ID      githubv4.ID
	Content struct {
		Issue       itemContent `graphql:"... on Issue"`
		PullRequest itemContent `graphql:"... on PullRequest"`
	}
	FieldValueByName struct {
		NumberValue struct {
			Number *githubv4.Float
		} `graphql:"... on ProjectV2ItemFieldNumberValue"`
	} `graphql:"fieldValueByName(name: $fieldName)"`
}

// ListItems gets every item on a project, following the items cursor
// until the last page
func (c *GraphQLClient) ListItems(ctx context.Context, projectID, fieldName string) ([]models.BoardItem, error) {
	var items []models.BoardItem
	var cursor *githubv4.String

	for {
		var query struct {
			Node struct {
				ProjectV2 struct {
					Items struct {
						Nodes    []itemNode
						PageInfo struct {
							EndCursor   githubv4.String
							HasNextPage githubv4.Boolean
						}
					} `graphql:"items(first: $perPage, after: $cursor)"`
				} `graphql:"... on ProjectV2"`
			} `graphql:"node(id: $projectId)"`
		}

		variables := map[string]interface{}{
			"projectId": githubv4.ID(projectID),
			"fieldName": githubv4.String(fieldName),
			"perPage":   githubv4.Int(itemsPerPage),
			"cursor":    cursor,
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query project items: %w", err)
		}

		for _, n := range query.Node.ProjectV2.Items.Nodes {
			items = append(items, convertItem(n))
		}

		page := query.Node.ProjectV2.Items.PageInfo
		if !bool(page.HasNextPage) {
			break
		}
		next := page.EndCursor
		cursor = &next
	}

	return items, nil
}

func convertItem(n itemNode) models.BoardItem {
	content := n.Content.Issue
	if content.ID == nil {
		content = n.Content.PullRequest
	}

	item := models.BoardItem{
		ItemID:     fmt.Sprintf("%v", n.ID),
		Repository: string(content.Repository.NameWithOwner),
	}
	if content.ID != nil {
		item.ContentID = fmt.Sprintf("%v", content.ID)
	}

	if number := n.FieldValueByName.NumberValue.Number; number != nil {
		w := float64(*number)
		item.Weight = &w
	}
	return item
}

// AddItem adds an issue or pull request to a project and returns the new item id
func (c *GraphQLClient) AddItem(ctx context.Context, projectID, contentID string) (string, error) {
	var mutation struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID githubv4.ID
			}
		} `graphql:"addProjectV2ItemById(input: $input)"`
	}

	input := githubv4.AddProjectV2ItemByIdInput{
		ProjectID: githubv4.ID(projectID),
		ContentID: githubv4.ID(contentID),
	}

	if err := c.client.Mutate(ctx, &mutation, input, nil); err != nil {
		return "", fmt.Errorf("failed to add item %s: %w", contentID, err)
	}

	return fmt.Sprintf("%v", mutation.AddProjectV2ItemByID.Item.ID), nil
}

// DeleteItem removes an item from a project by its board-local id
func (c *GraphQLClient) DeleteItem(ctx context.Context, projectID, itemID string) error {
	var mutation struct {
		DeleteProjectV2Item struct {
			DeletedItemID githubv4.ID `graphql:"deletedItemId"`
		} `graphql:"deleteProjectV2Item(input: $input)"`
	}

	input := githubv4.DeleteProjectV2ItemInput{
		ProjectID: githubv4.ID(projectID),
		ItemID:    githubv4.ID(itemID),
	}

	if err := c.client.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", itemID, err)
	}

	return nil
}

// UpdateItemNumber writes a number field value on a project item
func (c *GraphQLClient) UpdateItemNumber(ctx context.Context, projectID, itemID, fieldID string, value float64) error {
	var mutation struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID githubv4.ID
			} `graphql:"projectV2Item"`
		} `graphql:"updateProjectV2ItemFieldValue(input: $input)"`
	}

	input := githubv4.UpdateProjectV2ItemFieldValueInput{
		ProjectID: githubv4.ID(projectID),
		ItemID:    githubv4.ID(itemID),
		FieldID:   githubv4.ID(fieldID),
		Value: githubv4.ProjectV2FieldValue{
			Number: githubv4.NewFloat(githubv4.Float(value)),
		},
	}

	if err := c.client.Mutate(ctx, &mutation, input, nil); err != nil {
		return fmt.Errorf("failed to update item %s: %w", itemID, err)
	}

	return nil
}
