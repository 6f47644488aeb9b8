package flowstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

func sampleGraph() *types.Graph {
	return &types.Graph{
		Nodes: []types.Node{
			{ID: "n1", Agent: types.AgentRef{ID: "1", Name: "SEO Optimizer"}},
			{ID: "n2", Agent: types.AgentRef{ID: "3", Name: "Contract Summarizer"}},
		},
		Edges: []types.Edge{{ID: "e1", Source: "n1", Target: "n2"}},
	}
}

func TestMemoryStore_Create(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("creates new flow", func(t *testing.T) {
		req := &CreateFlowRequest{
			Name:        "Test Flow",
			Description: "A test flow",
			Category:    "Marketing",
			Graph:       sampleGraph(),
		}

		flow, err := store.Create(ctx, req)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if flow.ID == "" {
			t.Error("expected ID to be generated")
		}
		if flow.Name != req.Name {
			t.Errorf("expected Name %q, got %q", req.Name, flow.Name)
		}
		if flow.Status != StatusDraft {
			t.Errorf("expected default status Draft, got %q", flow.Status)
		}
		if flow.Version != "1" {
			t.Errorf("expected version 1, got %q", flow.Version)
		}
		if len(flow.Graph.Nodes) != 2 || len(flow.Graph.Edges) != 1 {
			t.Errorf("graph not stored: %+v", flow.Graph)
		}
		if flow.CreatedAt.IsZero() || flow.UpdatedAt.IsZero() {
			t.Error("timestamps should be set")
		}
		if flow.LastRun != nil {
			t.Error("LastRun should be unset")
		}
	})

	t.Run("creates flow with custom ID and status", func(t *testing.T) {
		req := &CreateFlowRequest{
			ID:     "custom-flow-id",
			Name:   "Custom ID Flow",
			Status: StatusActive,
			Graph:  &types.Graph{},
		}

		flow, err := store.Create(ctx, req)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if flow.ID != "custom-flow-id" {
			t.Errorf("expected ID %q, got %q", "custom-flow-id", flow.ID)
		}
		if flow.Status != StatusActive {
			t.Errorf("expected Active, got %q", flow.Status)
		}
	})

	t.Run("returns error for duplicate ID", func(t *testing.T) {
		req := &CreateFlowRequest{ID: "dup", Name: "Dup", Graph: &types.Graph{}}
		if _, err := store.Create(ctx, req); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if _, err := store.Create(ctx, req); !errors.Is(err, ErrFlowExists) {
			t.Errorf("expected ErrFlowExists, got %v", err)
		}
	})

	t.Run("does not alias the caller's graph", func(t *testing.T) {
		g := sampleGraph()
		flow, err := store.Create(ctx, &CreateFlowRequest{Name: "Alias", Graph: g})
		if err != nil {
			t.Fatal(err)
		}
		g.Nodes[0].ID = "mutated"

		got, _ := store.Get(ctx, flow.ID)
		if got.Graph.Nodes[0].ID != "n1" {
			t.Error("stored graph changed with caller's copy")
		}
	})
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &CreateFlowRequest{Name: "Flow", Graph: sampleGraph()})

	t.Run("returns a copy", func(t *testing.T) {
		flow, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		flow.Graph.Nodes[0].ID = "changed"

		again, _ := store.Get(ctx, created.ID)
		if again.Graph.Nodes[0].ID != "n1" {
			t.Error("stored flow mutated through returned copy")
		}
	})

	t.Run("returns ErrFlowNotFound", func(t *testing.T) {
		if _, err := store.Get(ctx, "non-existent"); !errors.Is(err, ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &CreateFlowRequest{Name: "Original", Graph: sampleGraph()})

	t.Run("updates fields", func(t *testing.T) {
		name := "Renamed"
		status := StatusPaused
		flow, err := store.Update(ctx, created.ID, &UpdateFlowRequest{Name: &name, Status: &status})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if flow.Name != name || flow.Status != StatusPaused {
			t.Errorf("update not applied: %+v", flow)
		}
		if flow.Version != "1" {
			t.Errorf("version should not change without a graph update, got %q", flow.Version)
		}
	})

	t.Run("graph update bumps version", func(t *testing.T) {
		flow, err := store.Update(ctx, created.ID, &UpdateFlowRequest{Graph: &types.Graph{}})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if flow.Version != "2" {
			t.Errorf("expected version 2, got %q", flow.Version)
		}
		if !flow.Graph.IsEmpty() {
			t.Error("expected graph to be replaced")
		}
	})

	t.Run("rejects invalid status", func(t *testing.T) {
		bad := Status("Archived")
		if _, err := store.Update(ctx, created.ID, &UpdateFlowRequest{Status: &bad}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("returns ErrFlowNotFound", func(t *testing.T) {
		name := "x"
		if _, err := store.Update(ctx, "missing", &UpdateFlowRequest{Name: &name}); !errors.Is(err, ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &CreateFlowRequest{Name: "Doomed", Graph: &types.Graph{}})

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, created.ID); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound, got %v", err)
	}
}

func TestMemoryStore_FavoriteAndMarkRun(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &CreateFlowRequest{Name: "Fav", Graph: &types.Graph{}})

	flow, err := store.ToggleFavorite(ctx, created.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if !flow.Favorite {
		t.Error("expected favorite after first toggle")
	}
	flow, _ = store.ToggleFavorite(ctx, created.ID)
	if flow.Favorite {
		t.Error("expected not favorite after second toggle")
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.MarkRun(ctx, created.ID, at); err != nil {
		t.Fatalf("MarkRun: %v", err)
	}
	got, _ := store.Get(ctx, created.ID)
	if got.LastRun == nil || !got.LastRun.Equal(at) {
		t.Errorf("expected LastRun %v, got %v", at, got.LastRun)
	}

	if _, err := store.ToggleFavorite(ctx, "missing"); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound, got %v", err)
	}
	if err := store.MarkRun(ctx, "missing", at); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound, got %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed := []*CreateFlowRequest{
		{ID: "a", Name: "A", Category: "Marketing", CreatedBy: "alice", Status: StatusActive, Graph: &types.Graph{}},
		{ID: "b", Name: "B", Category: "Legal", CreatedBy: "alice", Graph: &types.Graph{}},
		{ID: "c", Name: "C", Category: "Marketing", CreatedBy: "bob", Graph: &types.Graph{}},
	}
	for _, req := range seed {
		if _, err := store.Create(ctx, req); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := store.ToggleFavorite(ctx, "c"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts *ListOptions
		want []string
	}{
		{"all newest first", nil, []string{"c", "b", "a"}},
		{"by creator", &ListOptions{CreatedBy: "alice"}, []string{"b", "a"}},
		{"by category", &ListOptions{Category: "Marketing"}, []string{"c", "a"}},
		{"by status", &ListOptions{Status: StatusActive}, []string{"a"}},
		{"favorites", &ListOptions{FavoritesOnly: true}, []string{"c"}},
		{"limit", &ListOptions{Limit: 1}, []string{"c"}},
		{"offset", &ListOptions{Offset: 2}, []string{"a"}},
		{"offset past end", &ListOptions{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows, err := store.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(flows) != len(tt.want) {
				t.Fatalf("expected %d flows, got %d", len(tt.want), len(flows))
			}
			for i, f := range flows {
				if f.ID != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], f.ID)
				}
			}
		})
	}
}

func TestCreateFlowRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *CreateFlowRequest
		wantErr bool
	}{
		{"valid", &CreateFlowRequest{Name: "x", Graph: &types.Graph{}}, false},
		{"missing name", &CreateFlowRequest{Graph: &types.Graph{}}, true},
		{"missing graph", &CreateFlowRequest{Name: "x"}, true},
		{"invalid status", &CreateFlowRequest{Name: "x", Graph: &types.Graph{}, Status: "Running"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
