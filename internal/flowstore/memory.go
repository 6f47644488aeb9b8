package flowstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements FlowStore using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewMemoryStore creates a new in-memory flow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows: make(map[string]*Flow),
	}
}

// Create saves a new flow.
func (s *MemoryStore) Create(ctx context.Context, req *CreateFlowRequest) (*Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := s.flows[id]; exists {
		return nil, ErrFlowExists
	}

	flow := newFlow(id, req, time.Now().UTC())
	s.flows[id] = flow
	return flow.clone(), nil
}

// Get retrieves a flow by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return flow.clone(), nil
}

// Update modifies an existing flow.
func (s *MemoryStore) Update(ctx context.Context, id string, req *UpdateFlowRequest) (*Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	applyUpdate(flow, req, time.Now().UTC())
	return flow.clone(), nil
}

// Delete removes a flow.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[id]; !ok {
		return ErrFlowNotFound
	}
	delete(s.flows, id)
	return nil
}

// List returns all flows matching the options.
func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*Flow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	flows := make([]*Flow, 0, len(s.flows))
	for _, flow := range s.flows {
		if matches(flow, opts) {
			flows = append(flows, flow.clone())
		}
	}
	s.mu.RUnlock()

	return paginate(flows, opts), nil
}

// ToggleFavorite flips the favorite flag.
func (s *MemoryStore) ToggleFavorite(ctx context.Context, id string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	flow.Favorite = !flow.Favorite
	return flow.clone(), nil
}

// MarkRun records the time of the latest run.
func (s *MemoryStore) MarkRun(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[id]
	if !ok {
		return ErrFlowNotFound
	}
	t := at.UTC()
	flow.LastRun = &t
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ FlowStore = (*MemoryStore)(nil)
