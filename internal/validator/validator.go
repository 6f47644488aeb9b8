// Package validator provides JSON schema validation for pipeline graphs and
// agent listings.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates pipeline graphs and agent listings.
type Validator struct {
	graphSchema *jsonschema.Schema
	agentSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation. Warnings never make a
// result invalid.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("graph.json", strings.NewReader(graphSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add graph schema: %w", err)
	}
	if err := compiler.AddResource("agent.json", strings.NewReader(agentSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add agent schema: %w", err)
	}

	graphSchema, err := compiler.Compile("graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}
	agentSchema, err := compiler.Compile("agent.json")
	if err != nil {
		return nil, fmt.Errorf("compile agent schema: %w", err)
	}

	return &Validator{
		graphSchema: graphSchema,
		agentSchema: agentSchema,
	}, nil
}

// ValidateGraph validates a decoded pipeline graph. Duplicate node ids and
// edges to unknown nodes are reported as warnings: execution tolerates them.
func (v *Validator) ValidateGraph(graph map[string]interface{}) *ValidationResult {
	result := v.validate(v.graphSchema, graph)
	if result.Valid {
		result.Warnings = graphWarnings(graph)
	}
	return result
}

// ValidateGraphJSON validates a JSON-encoded graph.
func (v *Validator) ValidateGraphJSON(data []byte) *ValidationResult {
	graph, bad := decodeObject(data)
	if bad != nil {
		return bad
	}
	return v.ValidateGraph(graph)
}

// ValidateAgent validates a decoded agent listing, including that any
// attached I/O schemas are themselves valid JSON schemas.
func (v *Validator) ValidateAgent(agent map[string]interface{}) *ValidationResult {
	result := v.validate(v.agentSchema, agent)
	for _, field := range []string{"input_schema", "output_schema", "config_schema"} {
		raw, ok := agent[field]
		if !ok || raw == nil {
			continue
		}
		if err := compileSchema(field, raw); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Path:    "/" + field,
				Message: err.Error(),
			})
		}
	}
	return result
}

// ValidateAgentJSON validates a JSON-encoded agent listing.
func (v *Validator) ValidateAgentJSON(data []byte) *ValidationResult {
	agent, bad := decodeObject(data)
	if bad != nil {
		return bad
	}
	return v.ValidateAgent(agent)
}

func decodeObject(data []byte) (map[string]interface{}, *ValidationResult) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}
	return obj, nil
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts leaf validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	if len(verr.Causes) == 0 {
		return []ValidationError{{Path: pathOrRoot(verr.InstanceLocation), Message: verr.Message}}
	}
	var errs []ValidationError
	for _, cause := range verr.Causes {
		errs = append(errs, extractErrors(cause)...)
	}
	return errs
}

func pathOrRoot(p string) string {
	if p == "" {
		return "$"
	}
	return p
}

// compileSchema checks that raw is a usable JSON schema.
func compileSchema(name string, raw interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if _, err := c.Compile(url); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

// graphWarnings reports structural oddities the schema cannot express.
func graphWarnings(graph map[string]interface{}) []ValidationError {
	var warnings []ValidationError

	ids := make(map[string]bool)
	nodes, _ := graph["nodes"].([]interface{})
	for i, n := range nodes {
		node, _ := n.(map[string]interface{})
		id, _ := node["id"].(string)
		if ids[id] {
			warnings = append(warnings, ValidationError{
				Path:    fmt.Sprintf("/nodes/%d/id", i),
				Message: fmt.Sprintf("duplicate node id %q", id),
			})
		}
		ids[id] = true
	}

	edges, _ := graph["edges"].([]interface{})
	for i, e := range edges {
		edge, _ := e.(map[string]interface{})
		for _, end := range []string{"source", "target"} {
			id, _ := edge[end].(string)
			if !ids[id] {
				warnings = append(warnings, ValidationError{
					Path:    fmt.Sprintf("/edges/%d/%s", i, end),
					Message: fmt.Sprintf("edge references unknown node %q", id),
				})
			}
		}
	}
	return warnings
}

// Embedded JSON schemas

const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "graph.json",
  "title": "Pipeline Graph",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "agent"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "position": {
            "type": "object",
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"}
            }
          },
          "agent": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "name": {"type": "string"},
              "type": {"type": "string"}
            }
          }
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "id": {"type": "string"},
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

const agentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "agent.json",
  "title": "Agent Listing",
  "type": "object",
  "required": ["id", "name", "category"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "category": {"type": "string", "minLength": 1},
    "type": {"type": "string"},
    "features": {"type": "array", "items": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "icon": {
      "oneOf": [
        {"type": "string"},
        {"type": "null"},
        {
          "type": "object",
          "required": ["kind", "name"],
          "properties": {
            "kind": {"const": "known"},
            "name": {"enum": ["search", "file-text", "file-search", "scroll", "bar-chart", "bot"]}
          }
        },
        {
          "type": "object",
          "required": ["kind", "label"],
          "properties": {
            "kind": {"const": "custom"},
            "label": {"type": "string", "minLength": 1}
          }
        }
      ]
    },
    "color": {"type": "string"},
    "image": {"type": "string"},
    "price": {"type": "number", "minimum": 0},
    "rating": {"type": "number", "minimum": 0, "maximum": 5},
    "featured": {"type": "boolean"},
    "seller": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "rating": {"type": "number", "minimum": 0, "maximum": 5},
        "verified": {"type": "boolean"}
      }
    },
    "input_schema": {"type": "object"},
    "output_schema": {"type": "object"},
    "config_schema": {"type": "object"}
  }
}`
