package api

import (
	"net/http"
	"testing"

	"github.com/flexinfer/agentmarket/internal/catalog"
	"github.com/flexinfer/agentmarket/pkg/types"
)

func TestAgentsListAndGet(t *testing.T) {
	a := newTestAPI(t)

	var list struct {
		Agents []*types.Agent `json:"agents"`
		Count  int            `json:"count"`
	}
	expectStatus(t, a.do(t, "GET", "/api/v1/agents", nil, &list), http.StatusOK)
	if list.Count != 5 || len(list.Agents) != 5 {
		t.Fatalf("count = %d (%d agents), want 5", list.Count, len(list.Agents))
	}

	expectStatus(t, a.do(t, "GET", "/api/v1/agents?featured=true&limit=1", nil, &list), http.StatusOK)
	if list.Count != 1 || !list.Agents[0].Featured {
		t.Errorf("featured filter returned %+v", list.Agents)
	}

	expectStatus(t, a.do(t, "GET", "/api/v1/agents?limit=-1", nil, nil), http.StatusBadRequest)
	expectStatus(t, a.do(t, "GET", "/api/v1/agents?featured=maybe", nil, nil), http.StatusBadRequest)

	var agent types.Agent
	expectStatus(t, a.do(t, "GET", "/api/v1/agents/1", nil, &agent), http.StatusOK)
	if agent.Name != "SEO Optimizer" {
		t.Errorf("name = %q", agent.Name)
	}

	var errResp ErrorResponse
	expectStatus(t, a.do(t, "GET", "/api/v1/agents/missing", nil, &errResp), http.StatusNotFound)
	if errResp.Error != ErrCodeNotFound || errResp.RequestID == "" {
		t.Errorf("error response = %+v", errResp)
	}
}

func TestAgentsCategories(t *testing.T) {
	a := newTestAPI(t)

	var resp struct {
		Categories []string `json:"categories"`
	}
	expectStatus(t, a.do(t, "GET", "/api/v1/agents/categories", nil, &resp), http.StatusOK)
	found := false
	for _, c := range resp.Categories {
		if c == "Marketing" {
			found = true
		}
	}
	if !found {
		t.Errorf("categories %v missing Marketing", resp.Categories)
	}
}

func TestAgentsCreate(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{
			name: "valid listing",
			body: map[string]interface{}{
				"id": "translator", "name": "Translator", "category": "Language",
				"icon":  map[string]interface{}{"kind": "custom", "label": "TR"},
				"price": 9.5, "rating": 4,
			},
			status: http.StatusCreated,
		},
		{
			name:   "duplicate id",
			body:   map[string]interface{}{"id": "1", "name": "Copy", "category": "Marketing"},
			status: http.StatusConflict,
		},
		{
			name:   "missing category",
			body:   map[string]interface{}{"id": "x", "name": "X"},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown icon",
			body: map[string]interface{}{
				"id": "x", "name": "X", "category": "Other",
				"icon": map[string]interface{}{"kind": "known", "name": "rocket"},
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "rating out of range",
			body:   map[string]interface{}{"id": "x", "name": "X", "category": "Other", "rating": 6},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			body:   `{"id":`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			expectStatus(t, a.do(t, "POST", "/api/v1/agents", tt.body, nil), tt.status)
		})
	}
}

func TestAgentsUpdateAndDelete(t *testing.T) {
	a := newTestAPI(t)

	var agent types.Agent
	expectStatus(t, a.do(t, "PUT", "/api/v1/agents/1", map[string]interface{}{"price": 19.99}, &agent), http.StatusOK)
	if agent.Price != 19.99 {
		t.Errorf("price = %v, want 19.99", agent.Price)
	}

	expectStatus(t, a.do(t, "PUT", "/api/v1/agents/1", map[string]interface{}{"rating": 7}, nil), http.StatusBadRequest)
	expectStatus(t, a.do(t, "PUT", "/api/v1/agents/missing", map[string]interface{}{"price": 1}, nil), http.StatusNotFound)

	expectStatus(t, a.do(t, "DELETE", "/api/v1/agents/1", nil, nil), http.StatusNoContent)
	expectStatus(t, a.do(t, "DELETE", "/api/v1/agents/1", nil, nil), http.StatusNotFound)
}

func TestAgentsCompatibility(t *testing.T) {
	a := newTestAPI(t)

	var compat catalog.Compatibility
	expectStatus(t, a.do(t, "GET", "/api/v1/agents/compatibility/1/2", nil, &compat), http.StatusOK)
	if !compat.Compatible || compat.Score < 0.8 || compat.Score > 1.0 {
		t.Errorf("compatibility = %+v", compat)
	}

	expectStatus(t, a.do(t, "GET", "/api/v1/agents/compatibility/1/missing", nil, nil), http.StatusNotFound)
}

func TestAgentsValidate(t *testing.T) {
	a := newTestAPI(t)

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Path string `json:"path"`
		} `json:"errors"`
	}
	body := map[string]interface{}{"id": "x", "name": "X", "category": "Other", "price": -1}
	expectStatus(t, a.do(t, "POST", "/api/v1/agents/validate", body, &result), http.StatusOK)
	if result.Valid || len(result.Errors) == 0 {
		t.Errorf("expected invalid result, got %+v", result)
	}
}
