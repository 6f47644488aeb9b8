// Package catalog provides the marketplace agent listing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// Common errors returned by Catalog implementations.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentExists   = errors.New("agent already exists")
)

// CreateAgentRequest is the input for listing a new agent.
type CreateAgentRequest struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category"`
	Type         string          `json:"type,omitempty"`
	Features     []string        `json:"features,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Icon         types.Icon      `json:"icon"`
	Color        string          `json:"color,omitempty"`
	Image        string          `json:"image,omitempty"`
	Price        float64         `json:"price"`
	Rating       float64         `json:"rating"`
	Featured     bool            `json:"featured"`
	Seller       types.Seller    `json:"seller"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
}

// UpdateAgentRequest is the input for updating an existing listing.
type UpdateAgentRequest struct {
	Name         *string         `json:"name,omitempty"`
	Title        *string         `json:"title,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Category     *string         `json:"category,omitempty"`
	Type         *string         `json:"type,omitempty"`
	Features     []string        `json:"features,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Icon         *types.Icon     `json:"icon,omitempty"`
	Color        *string         `json:"color,omitempty"`
	Image        *string         `json:"image,omitempty"`
	Price        *float64        `json:"price,omitempty"`
	Rating       *float64        `json:"rating,omitempty"`
	Featured     *bool           `json:"featured,omitempty"`
	Seller       *types.Seller   `json:"seller,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
}

// ListOptions configures list queries.
type ListOptions struct {
	// Category filters by exact category name (case-insensitive)
	Category string

	// Query matches name, title, description, and tags (case-insensitive)
	Query string

	// Featured, when set, filters on the featured flag
	Featured *bool

	// Limit is the maximum number of agents to return (0 = no limit)
	Limit int

	// Offset is the number of agents to skip (for pagination)
	Offset int
}

// Catalog defines agent listing storage and discovery.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// Create lists a new agent. Returns ErrAgentExists if ID is taken.
	Create(ctx context.Context, req *CreateAgentRequest) (*types.Agent, error)

	// Get retrieves an agent by ID. Returns ErrAgentNotFound if not found.
	Get(ctx context.Context, id string) (*types.Agent, error)

	// Update modifies an existing agent. Returns ErrAgentNotFound if not found.
	Update(ctx context.Context, id string, req *UpdateAgentRequest) (*types.Agent, error)

	// Delete removes an agent. Returns ErrAgentNotFound if not found.
	Delete(ctx context.Context, id string) error

	// List returns agents matching the options, ordered by ID.
	List(ctx context.Context, opts *ListOptions) ([]*types.Agent, error)

	// Exists checks if an agent with the given ID exists.
	Exists(ctx context.Context, id string) (bool, error)

	// Categories returns the marketplace categories.
	Categories(ctx context.Context) ([]string, error)

	// Close releases any resources.
	Close() error
}

// Validate checks if a CreateAgentRequest is valid.
func (r *CreateAgentRequest) Validate() error {
	if r.ID == "" {
		return errors.New("agent ID is required")
	}
	if r.Name == "" {
		return errors.New("agent name is required")
	}
	if r.Category == "" {
		return errors.New("agent category is required")
	}
	if r.Rating < 0 || r.Rating > 5 {
		return errors.New("agent rating must be between 0 and 5")
	}
	if r.Price < 0 {
		return errors.New("agent price must not be negative")
	}
	return nil
}

func newAgent(req *CreateAgentRequest, now time.Time) *types.Agent {
	return &types.Agent{
		ID:           req.ID,
		Name:         req.Name,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Type:         req.Type,
		Features:     req.Features,
		Tags:         req.Tags,
		Icon:         req.Icon,
		Color:        req.Color,
		Image:        req.Image,
		Price:        req.Price,
		Rating:       req.Rating,
		Featured:     req.Featured,
		Seller:       req.Seller,
		InputSchema:  req.InputSchema,
		OutputSchema: req.OutputSchema,
		ConfigSchema: req.ConfigSchema,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func applyUpdate(agent *types.Agent, req *UpdateAgentRequest, now time.Time) {
	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Title != nil {
		agent.Title = *req.Title
	}
	if req.Description != nil {
		agent.Description = *req.Description
	}
	if req.Category != nil {
		agent.Category = *req.Category
	}
	if req.Type != nil {
		agent.Type = *req.Type
	}
	if req.Features != nil {
		agent.Features = req.Features
	}
	if req.Tags != nil {
		agent.Tags = req.Tags
	}
	if req.Icon != nil {
		agent.Icon = *req.Icon
	}
	if req.Color != nil {
		agent.Color = *req.Color
	}
	if req.Image != nil {
		agent.Image = *req.Image
	}
	if req.Price != nil {
		agent.Price = *req.Price
	}
	if req.Rating != nil {
		agent.Rating = *req.Rating
	}
	if req.Featured != nil {
		agent.Featured = *req.Featured
	}
	if req.Seller != nil {
		agent.Seller = *req.Seller
	}
	if req.InputSchema != nil {
		agent.InputSchema = req.InputSchema
	}
	if req.OutputSchema != nil {
		agent.OutputSchema = req.OutputSchema
	}
	if req.ConfigSchema != nil {
		agent.ConfigSchema = req.ConfigSchema
	}
	agent.UpdatedAt = now
}

// matches reports whether an agent passes the list filters.
func matches(a *types.Agent, opts *ListOptions) bool {
	if opts.Category != "" && !strings.EqualFold(a.Category, opts.Category) {
		return false
	}
	if opts.Featured != nil && a.Featured != *opts.Featured {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		fields := append([]string{a.Name, a.Title, a.Description}, a.Tags...)
		found := false
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// paginate sorts by ID and applies offset and limit.
func paginate(agents []*types.Agent, opts *ListOptions) []*types.Agent {
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(agents) {
			return []*types.Agent{}
		}
		agents = agents[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(agents) {
		agents = agents[:opts.Limit]
	}
	return agents
}

// mergeCategories returns the default categories followed by any others in
// use, sorted.
func mergeCategories(agents []*types.Agent) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(DefaultCategories))
	for _, c := range DefaultCategories {
		seen[c] = true
		out = append(out, c)
	}
	var extra []string
	for _, a := range agents {
		if a.Category != "" && !seen[a.Category] {
			seen[a.Category] = true
			extra = append(extra, a.Category)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
