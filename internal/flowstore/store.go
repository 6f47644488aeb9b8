// Package flowstore provides saved workflow persistence.
package flowstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// Common errors returned by FlowStore implementations.
var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrFlowExists   = errors.New("flow already exists")
)

// Status is the lifecycle state shown on a saved workflow.
type Status string

const (
	StatusActive Status = "Active"
	StatusPaused Status = "Paused"
	StatusDraft  Status = "Draft"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusDraft:
		return true
	}
	return false
}

// Flow represents a saved workflow.
type Flow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Status      Status         `json:"status"`
	Favorite    bool           `json:"favorite"`
	Version     string         `json:"version,omitempty"`
	Graph       types.Graph    `json:"graph"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
}

// CreateFlowRequest is the input for creating a new flow.
type CreateFlowRequest struct {
	ID          string         `json:"id,omitempty"` // Optional, auto-generated if empty
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Status      Status         `json:"status,omitempty"` // Defaults to Draft
	Graph       *types.Graph   `json:"graph"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// UpdateFlowRequest is the input for updating an existing flow.
type UpdateFlowRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Status      *Status        `json:"status,omitempty"`
	Graph       *types.Graph   `json:"graph,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit         int
	Offset        int
	CreatedBy     string // Filter by creator
	Category      string // Filter by category
	Status        Status // Filter by status
	FavoritesOnly bool
}

// FlowStore defines the interface for flow persistence.
// Implementations must be safe for concurrent use.
type FlowStore interface {
	// Create saves a new flow. Returns ErrFlowExists if ID is taken.
	Create(ctx context.Context, req *CreateFlowRequest) (*Flow, error)

	// Get retrieves a flow by ID. Returns ErrFlowNotFound if not found.
	Get(ctx context.Context, id string) (*Flow, error)

	// Update modifies an existing flow. Returns ErrFlowNotFound if not found.
	Update(ctx context.Context, id string, req *UpdateFlowRequest) (*Flow, error)

	// Delete removes a flow. Returns ErrFlowNotFound if not found.
	Delete(ctx context.Context, id string) error

	// List returns flows matching the options, most recently updated first.
	List(ctx context.Context, opts *ListOptions) ([]*Flow, error)

	// ToggleFavorite flips the favorite flag and returns the updated flow.
	ToggleFavorite(ctx context.Context, id string) (*Flow, error)

	// MarkRun records that a run was started from the flow.
	MarkRun(ctx context.Context, id string, at time.Time) error

	// Close releases any resources.
	Close() error
}

// Validate checks if a CreateFlowRequest is valid.
func (r *CreateFlowRequest) Validate() error {
	if r.Name == "" {
		return errors.New("flow name is required")
	}
	if r.Graph == nil {
		return errors.New("flow graph is required")
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("invalid flow status %q", r.Status)
	}
	return nil
}

// Validate checks if an UpdateFlowRequest is valid.
func (r *UpdateFlowRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return errors.New("flow name cannot be empty")
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("invalid flow status %q", *r.Status)
	}
	return nil
}

func newFlow(id string, req *CreateFlowRequest, now time.Time) *Flow {
	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	return &Flow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Status:      status,
		Version:     "1",
		Graph:       *req.Graph.Clone(),
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.CreatedBy,
	}
}

// applyUpdate mutates flow in place. Replacing the graph bumps the version.
func applyUpdate(flow *Flow, req *UpdateFlowRequest, now time.Time) {
	if req.Name != nil {
		flow.Name = *req.Name
	}
	if req.Description != nil {
		flow.Description = *req.Description
	}
	if req.Category != nil {
		flow.Category = *req.Category
	}
	if req.Status != nil {
		flow.Status = *req.Status
	}
	if req.Graph != nil {
		flow.Graph = *req.Graph.Clone()
		flow.Version = nextVersion(flow.Version)
	}
	if req.Metadata != nil {
		flow.Metadata = req.Metadata
	}
	flow.UpdatedAt = now
}

func nextVersion(v string) string {
	n, err := strconv.Atoi(v)
	if err != nil {
		return "1"
	}
	return strconv.Itoa(n + 1)
}

// clone returns a copy that shares no slices with f.
func (f *Flow) clone() *Flow {
	c := *f
	c.Graph = *f.Graph.Clone()
	if f.LastRun != nil {
		t := *f.LastRun
		c.LastRun = &t
	}
	return &c
}

func matches(f *Flow, opts *ListOptions) bool {
	if opts.CreatedBy != "" && f.CreatedBy != opts.CreatedBy {
		return false
	}
	if opts.Category != "" && f.Category != opts.Category {
		return false
	}
	if opts.Status != "" && f.Status != opts.Status {
		return false
	}
	if opts.FavoritesOnly && !f.Favorite {
		return false
	}
	return true
}

// paginate orders by most recent update and applies offset and limit.
func paginate(flows []*Flow, opts *ListOptions) []*Flow {
	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].UpdatedAt.Equal(flows[j].UpdatedAt) {
			return flows[i].UpdatedAt.After(flows[j].UpdatedAt)
		}
		return flows[i].ID < flows[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(flows) {
			return []*Flow{}
		}
		flows = flows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(flows) {
		flows = flows[:opts.Limit]
	}
	return flows
}
