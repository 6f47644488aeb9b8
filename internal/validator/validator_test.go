package validator

import (
	"strings"
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return v
}

func TestValidateGraphJSON(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name         string
		input        string
		wantValid    bool
		wantWarnings int
	}{
		{
			name:      "empty graph",
			input:     `{"nodes": [], "edges": []}`,
			wantValid: true,
		},
		{
			name: "two node chain",
			input: `{
				"nodes": [
					{"id": "n1", "position": {"x": 0, "y": 0}, "agent": {"id": "1", "name": "SEO Optimizer"}},
					{"id": "n2", "position": {"x": 200, "y": 0}, "agent": {"id": "3"}}
				],
				"edges": [{"id": "e1", "source": "n1", "target": "n2"}]
			}`,
			wantValid: true,
		},
		{
			name:      "missing nodes",
			input:     `{"edges": []}`,
			wantValid: false,
		},
		{
			name:      "node without agent",
			input:     `{"nodes": [{"id": "n1"}]}`,
			wantValid: false,
		},
		{
			name:      "edge without target",
			input:     `{"nodes": [{"id": "n1", "agent": {"id": "1"}}], "edges": [{"source": "n1"}]}`,
			wantValid: false,
		},
		{
			name:      "invalid JSON",
			input:     `{"nodes": [`,
			wantValid: false,
		},
		{
			name: "dangling edge is a warning",
			input: `{
				"nodes": [{"id": "n1", "agent": {"id": "1"}}],
				"edges": [{"source": "n1", "target": "ghost"}]
			}`,
			wantValid:    true,
			wantWarnings: 1,
		},
		{
			name: "duplicate node id is a warning",
			input: `{
				"nodes": [{"id": "n1", "agent": {"id": "1"}}, {"id": "n1", "agent": {"id": "2"}}]
			}`,
			wantValid:    true,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateGraphJSON([]byte(tt.input))
			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %+v)", result.Valid, tt.wantValid, result.Errors)
			}
			if !tt.wantValid && len(result.Errors) == 0 {
				t.Error("expected at least one error")
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("got %d warnings, want %d: %+v", len(result.Warnings), tt.wantWarnings, result.Warnings)
			}
		})
	}
}

func TestValidateGraph_WarningPaths(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateGraphJSON([]byte(`{
		"nodes": [{"id": "n1", "agent": {"id": "1"}}],
		"edges": [{"source": "x", "target": "n1"}]
	}`))
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", result.Warnings)
	}
	if result.Warnings[0].Path != "/edges/0/source" {
		t.Errorf("unexpected path %q", result.Warnings[0].Path)
	}
	if !strings.Contains(result.Warnings[0].Message, `"x"`) {
		t.Errorf("message should name the node: %q", result.Warnings[0].Message)
	}
}

func TestValidateAgentJSON(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{
			name:      "minimal",
			input:     `{"id": "1", "name": "SEO Optimizer", "category": "Marketing"}`,
			wantValid: true,
		},
		{
			name: "full listing",
			input: `{
				"id": "2", "name": "Meeting Summarizer", "category": "Productivity",
				"icon": {"kind": "known", "name": "file-text"},
				"price": 19.99, "rating": 4.8, "featured": true,
				"seller": {"name": "Acme", "rating": 4.5, "verified": true},
				"input_schema": {"type": "object", "properties": {"transcript": {"type": "string"}}}
			}`,
			wantValid: true,
		},
		{
			name:      "string icon",
			input:     `{"id": "1", "name": "A", "category": "Legal", "icon": "📜"}`,
			wantValid: true,
		},
		{
			name:      "custom icon",
			input:     `{"id": "1", "name": "A", "category": "Legal", "icon": {"kind": "custom", "label": "AI"}}`,
			wantValid: true,
		},
		{
			name:      "unknown known icon",
			input:     `{"id": "1", "name": "A", "category": "Legal", "icon": {"kind": "known", "name": "rocket"}}`,
			wantValid: false,
		},
		{
			name:      "missing category",
			input:     `{"id": "1", "name": "A"}`,
			wantValid: false,
		},
		{
			name:      "rating too high",
			input:     `{"id": "1", "name": "A", "category": "Legal", "rating": 5.5}`,
			wantValid: false,
		},
		{
			name:      "negative price",
			input:     `{"id": "1", "name": "A", "category": "Legal", "price": -1}`,
			wantValid: false,
		},
		{
			name:      "input schema is not a schema",
			input:     `{"id": "1", "name": "A", "category": "Legal", "input_schema": {"type": 12}}`,
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateAgentJSON([]byte(tt.input))
			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %+v)", result.Valid, tt.wantValid, result.Errors)
			}
		})
	}
}
