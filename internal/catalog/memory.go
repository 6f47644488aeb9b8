package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// MemoryCatalog implements Catalog using in-memory storage.
// Suitable for testing and local development.
type MemoryCatalog struct {
	mu     sync.RWMutex
	agents map[string]*types.Agent
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		agents: make(map[string]*types.Agent),
	}
}

// NewMemoryCatalogWithDefaults creates a catalog pre-populated with the
// default marketplace listing.
func NewMemoryCatalogWithDefaults() *MemoryCatalog {
	c := NewMemoryCatalog()
	for _, agent := range DefaultAgents() {
		c.agents[agent.ID] = agent
	}
	return c
}

// Create lists a new agent.
func (c *MemoryCatalog) Create(ctx context.Context, req *CreateAgentRequest) (*types.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.agents[req.ID]; exists {
		return nil, ErrAgentExists
	}

	agent := newAgent(req, time.Now().UTC())
	c.agents[req.ID] = agent

	copy := *agent
	return &copy, nil
}

// Get retrieves an agent by ID.
func (c *MemoryCatalog) Get(ctx context.Context, id string) (*types.Agent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agent, ok := c.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}

	// Return a copy to prevent external mutation
	copy := *agent
	return &copy, nil
}

// Update modifies an existing agent.
func (c *MemoryCatalog) Update(ctx context.Context, id string, req *UpdateAgentRequest) (*types.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	applyUpdate(agent, req, time.Now().UTC())

	copy := *agent
	return &copy, nil
}

// Delete removes an agent.
func (c *MemoryCatalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.agents[id]; !ok {
		return ErrAgentNotFound
	}
	delete(c.agents, id)
	return nil
}

// List returns agents matching the options.
func (c *MemoryCatalog) List(ctx context.Context, opts *ListOptions) ([]*types.Agent, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	c.mu.RLock()
	agents := make([]*types.Agent, 0, len(c.agents))
	for _, agent := range c.agents {
		if !matches(agent, opts) {
			continue
		}
		copy := *agent
		agents = append(agents, &copy)
	}
	c.mu.RUnlock()

	return paginate(agents, opts), nil
}

// Exists checks if an agent with the given ID exists.
func (c *MemoryCatalog) Exists(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.agents[id]
	return ok, nil
}

// Categories returns the default categories plus any in use.
func (c *MemoryCatalog) Categories(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	agents := make([]*types.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		agents = append(agents, a)
	}
	c.mu.RUnlock()

	return mergeCategories(agents), nil
}

// Close is a no-op for the memory catalog.
func (c *MemoryCatalog) Close() error {
	return nil
}

var _ Catalog = (*MemoryCatalog)(nil)
