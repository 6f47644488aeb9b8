package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// Template errors.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateNoAgents = errors.New("no valid agents found in template")
)

// Template is a prebuilt pipeline: an ordered list of catalog agents.
type Template struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Image       string   `json:"image,omitempty" yaml:"image"`
	Category    string   `json:"category" yaml:"category"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	AgentIDs    []string `json:"agent_ids" yaml:"agent_ids"`
	Featured    bool     `json:"featured" yaml:"featured"`
	Features    []string `json:"features,omitempty" yaml:"features"`
}

// Validate checks if a Template is usable.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.New("template ID is required")
	}
	if t.Title == "" {
		return errors.New("template title is required")
	}
	if len(t.AgentIDs) == 0 {
		return errors.New("template needs at least one agent")
	}
	return nil
}

// TemplateListOptions configures template queries.
type TemplateListOptions struct {
	// Query matches title, description, category, and tags (case-insensitive)
	Query string

	// Category filters by exact category name (case-insensitive)
	Category string

	// Featured, when set, filters on the featured flag
	Featured *bool
}

// TemplateSet is a read-only, in-memory collection of templates.
type TemplateSet struct {
	byID  map[string]*Template
	order []string
}

// NewTemplateSet builds a set from templates. Later duplicates of an ID are
// ignored.
func NewTemplateSet(templates []*Template) *TemplateSet {
	s := &TemplateSet{byID: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		s.byID[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	return s
}

// Get returns a template by ID.
func (s *TemplateSet) Get(id string) (*Template, error) {
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

// List returns templates matching opts, featured first, then in set order.
func (s *TemplateSet) List(opts *TemplateListOptions) []*Template {
	if opts == nil {
		opts = &TemplateListOptions{}
	}
	out := []*Template{}
	for _, id := range s.order {
		t := s.byID[id]
		if !t.matches(opts) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Featured && !out[j].Featured })
	return out
}

func (t *Template) matches(opts *TemplateListOptions) bool {
	if opts.Category != "" && !strings.EqualFold(t.Category, opts.Category) {
		return false
	}
	if opts.Featured != nil && t.Featured != *opts.Featured {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(opts.Query))
	if q == "" {
		return true
	}
	for _, f := range append([]string{t.Title, t.Description, t.Category}, t.Tags...) {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Instantiate builds an editor graph from a template: one node per listed
// agent, laid out left to right and chained in order. Agent IDs missing from
// the catalog are skipped.
func Instantiate(ctx context.Context, c Catalog, t *Template) (*types.Graph, error) {
	g := &types.Graph{Nodes: []types.Node{}, Edges: []types.Edge{}}
	for _, agentID := range t.AgentIDs {
		a, err := c.Get(ctx, agentID)
		if errors.Is(err, ErrAgentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve agent %s: %w", agentID, err)
		}
		i := len(g.Nodes)
		g.Nodes = append(g.Nodes, types.Node{
			ID:       fmt.Sprintf("%s-%d", a.ID, i+1),
			Position: types.Position{X: float64(250*i + 100), Y: 200},
			Agent:    types.AgentRef{ID: a.ID, Name: a.Name, Type: a.Type},
		})
		if i > 0 {
			src, dst := g.Nodes[i-1].ID, g.Nodes[i].ID
			g.Edges = append(g.Edges, types.Edge{ID: "e" + src + "-" + dst, Source: src, Target: dst})
		}
	}
	if len(g.Nodes) == 0 {
		return nil, ErrTemplateNoAgents
	}
	return g, nil
}

// DefaultTemplates returns the built-in template gallery. Agent IDs refer to
// DefaultAgents.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			ID:          "template-seo-research",
			Title:       "SEO Content Optimization",
			Description: "Research, optimize, and enhance your content for better search engine rankings",
			Image:       "https://images.unsplash.com/photo-1460925895917-afdab827c52f",
			Category:    "Marketing",
			Tags:        []string{"SEO", "Content", "Marketing"},
			AgentIDs:    []string{"1", "4"},
			Featured:    true,
			Features: []string{
				"Generate SEO-optimized content",
				"Research keywords and trends",
				"Analyze competitor content",
			},
		},
		{
			ID:          "template-meeting-notes",
			Title:       "Meeting Assistant",
			Description: "Record, transcribe, and summarize meetings with action items extraction",
			Image:       "https://images.unsplash.com/photo-1517245386807-bb43f82c33c4",
			Category:    "Productivity",
			Tags:        []string{"Meetings", "Notes", "Transcription"},
			AgentIDs:    []string{"2", "5"},
			Featured:    true,
			Features: []string{
				"Generate meeting transcripts",
				"Extract action items",
				"Analyze sentiment and feedback",
			},
		},
		{
			ID:          "template-legal-research",
			Title:       "Legal Document Assistant",
			Description: "Analyze, summarize, and research legal documents and precedents",
			Image:       "https://images.unsplash.com/photo-1589829545856-d10d557cf95f",
			Category:    "Legal",
			Tags:        []string{"Legal", "Documents", "Research"},
			AgentIDs:    []string{"3", "4"},
			Features: []string{
				"Summarize legal documents",
				"Find relevant precedents",
				"Extract key clauses and terms",
			},
		},
		{
			ID:          "template-customer-support",
			Title:       "Customer Support Automation",
			Description: "Analyze customer feedback and automatically generate appropriate responses",
			Image:       "https://images.unsplash.com/photo-1552581234-26160f608093",
			Category:    "Customer Support",
			Tags:        []string{"Support", "Automation", "Analysis"},
			AgentIDs:    []string{"5", "2"},
			Features: []string{
				"Analyze customer sentiment",
				"Generate response templates",
				"Identify common issues",
			},
		},
		{
			ID:          "template-content-creation",
			Title:       "Content Creation Pipeline",
			Description: "Research, create, and optimize content for your marketing campaigns",
			Image:       "https://images.unsplash.com/photo-1542435503-956c469947f6",
			Category:    "Marketing",
			Tags:        []string{"Content", "Creation", "Marketing"},
			AgentIDs:    []string{"4", "1", "2"},
			Featured:    true,
			Features: []string{
				"Research trending topics",
				"Generate optimized content",
				"Analyze and improve readability",
			},
		},
		{
			ID:          "template-document-analysis",
			Title:       "Document Analysis Suite",
			Description: "Extract insights, summarize, and analyze various document types",
			Image:       "https://images.unsplash.com/photo-1568667256549-094345857637",
			Category:    "Productivity",
			Tags:        []string{"Documents", "Analysis", "Summarization"},
			AgentIDs:    []string{"3", "2", "5"},
			Features: []string{
				"Analyze document structure",
				"Extract key information",
				"Generate comprehensive summaries",
			},
		},
	}
}
