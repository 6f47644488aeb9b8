package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// seedFile is the YAML layout of a catalog seed file.
type seedFile struct {
	Agents    []seedAgent `yaml:"agents"`
	Templates []*Template `yaml:"templates"`
}

type seedAgent struct {
	types.Agent  `yaml:",inline"`
	InputSchema  map[string]interface{} `yaml:"input_schema"`
	OutputSchema map[string]interface{} `yaml:"output_schema"`
	ConfigSchema map[string]interface{} `yaml:"config_schema"`
}

// LoadFile reads agents from a YAML seed file.
func LoadFile(path string) ([]*CreateAgentRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML seed document.
func Decode(r io.Reader) ([]*CreateAgentRequest, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}

	reqs := make([]*CreateAgentRequest, 0, len(doc.Agents))
	for i, sa := range doc.Agents {
		req := &CreateAgentRequest{
			ID:          sa.ID,
			Name:        sa.Name,
			Title:       sa.Title,
			Description: sa.Description,
			Category:    sa.Category,
			Type:        sa.Type,
			Features:    sa.Features,
			Tags:        sa.Tags,
			Icon:        sa.Icon,
			Color:       sa.Color,
			Image:       sa.Image,
			Price:       sa.Price,
			Rating:      sa.Rating,
			Featured:    sa.Featured,
			Seller:      sa.Seller,
		}
		var err error
		if req.InputSchema, err = schemaJSON(sa.InputSchema); err != nil {
			return nil, fmt.Errorf("agent %d input_schema: %w", i, err)
		}
		if req.OutputSchema, err = schemaJSON(sa.OutputSchema); err != nil {
			return nil, fmt.Errorf("agent %d output_schema: %w", i, err)
		}
		if req.ConfigSchema, err = schemaJSON(sa.ConfigSchema); err != nil {
			return nil, fmt.Errorf("agent %d config_schema: %w", i, err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// LoadTemplateFile reads the templates section of a YAML seed file. A file
// without one yields no templates.
func LoadTemplateFile(path string) ([]*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()
	return DecodeTemplates(f)
}

// DecodeTemplates parses the templates section of a YAML seed document.
func DecodeTemplates(r io.Reader) ([]*Template, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	for i, t := range doc.Templates {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
	}
	return doc.Templates, nil
}

func schemaJSON(m map[string]interface{}) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Seed creates every agent that is not already listed and returns how many
// were added.
func Seed(ctx context.Context, c Catalog, reqs []*CreateAgentRequest) (int, error) {
	added := 0
	for _, req := range reqs {
		if _, err := c.Create(ctx, req); err != nil {
			if errors.Is(err, ErrAgentExists) {
				continue
			}
			return added, fmt.Errorf("seed agent %s: %w", req.ID, err)
		}
		added++
	}
	return added, nil
}

// DefaultRequests converts the built-in listing into create requests, for
// seeding persistent catalogs.
func DefaultRequests() []*CreateAgentRequest {
	agents := DefaultAgents()
	reqs := make([]*CreateAgentRequest, len(agents))
	for i, a := range agents {
		reqs[i] = &CreateAgentRequest{
			ID:           a.ID,
			Name:         a.Name,
			Title:        a.Title,
			Description:  a.Description,
			Category:     a.Category,
			Type:         a.Type,
			Features:     a.Features,
			Tags:         a.Tags,
			Icon:         a.Icon,
			Color:        a.Color,
			Image:        a.Image,
			Price:        a.Price,
			Rating:       a.Rating,
			Featured:     a.Featured,
			Seller:       a.Seller,
			InputSchema:  a.InputSchema,
			OutputSchema: a.OutputSchema,
			ConfigSchema: a.ConfigSchema,
		}
	}
	return reqs
}
