package catalog

import (
	"encoding/json"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// DefaultCategories is the marketplace category list shown even when no
// agent uses a category yet.
var DefaultCategories = []string{
	"Marketing",
	"Analytics",
	"Productivity",
	"Legal",
	"Research",
	"Customer Support",
}

func objectSchema(props ...string) json.RawMessage {
	properties := make(map[string]map[string]string, len(props))
	for _, p := range props {
		properties[p] = map[string]string{"type": "string"}
	}
	b, _ := json.Marshal(map[string]interface{}{
		"type":       "object",
		"properties": properties,
	})
	return b
}

// DefaultAgents returns the built-in marketplace listing.
func DefaultAgents() []*types.Agent {
	now := time.Now().UTC()
	agents := []*types.Agent{
		{
			ID:           "1",
			Name:         "SEO Optimizer",
			Title:        "SEO Optimizer Pro",
			Description:  "Analyzes and enhances content to maximize search engine visibility and ranking.",
			Type:         "Content Enhancement",
			Category:     "Marketing",
			Features:     []string{"Keyword optimization", "SEO score analysis", "Competitor content insights", "Readability improvements"},
			Icon:         types.KnownIconOf(types.IconSearch),
			Color:        "blue",
			Price:        49.99,
			Rating:       4.7,
			Image:        "https://images.unsplash.com/photo-1488590528505-98d2b5aba04b",
			Featured:     true,
			Tags:         []string{"SEO", "Marketing", "Optimization"},
			Seller:       types.Seller{Name: "AI Solutions Inc", Rating: 4.8, Verified: true},
			InputSchema:  objectSchema("content", "keywords"),
			OutputSchema: objectSchema("content", "score"),
		},
		{
			ID:           "2",
			Name:         "Meeting Summarizer",
			Title:        "AI Meeting Assistant",
			Description:  "Converts lengthy meetings into concise, actionable summaries with key points and follow-ups.",
			Type:         "Summarization",
			Category:     "Productivity",
			Features:     []string{"Automated meeting notes", "Action item extraction", "Decision highlighting", "Searchable transcripts"},
			Icon:         types.KnownIconOf(types.IconFileText),
			Color:        "indigo",
			Price:        39.99,
			Rating:       4.6,
			Image:        "https://images.unsplash.com/photo-1486312338219-ce68d2c6f44d",
			Tags:         []string{"Meetings", "Transcription", "Notes"},
			Seller:       types.Seller{Name: "Productivity Tools Co", Rating: 4.4, Verified: true},
			InputSchema:  objectSchema("transcript"),
			OutputSchema: objectSchema("content", "summary", "action_items"),
		},
		{
			ID:           "3",
			Name:         "Contract Summarizer",
			Title:        "Legal Document Scanner",
			Description:  "Extracts key terms, obligations, and risks from legal contracts and agreements.",
			Type:         "Document Analysis",
			Category:     "Legal",
			Features:     []string{"Clause extraction", "Risk identification", "Term comparison", "Obligation tracking"},
			Icon:         types.KnownIconOf(types.IconScroll),
			Color:        "blue",
			Price:        89.99,
			Rating:       4.3,
			Image:        "https://images.unsplash.com/photo-1518770660439-4636190af475",
			Tags:         []string{"Legal", "Documents", "Compliance"},
			Seller:       types.Seller{Name: "LegalTech Solutions", Rating: 4.7, Verified: true},
			InputSchema:  objectSchema("document"),
			OutputSchema: objectSchema("summary", "risks"),
		},
		{
			ID:           "4",
			Name:         "Research Assistant",
			Title:        "Research Assistant AI",
			Description:  "Conducts legal research across cases, statutes, and regulations to support legal analyses.",
			Type:         "Information Retrieval",
			Category:     "Research",
			Features:     []string{"Case law research", "Regulatory compliance checks", "Precedent identification", "Citation generation"},
			Icon:         types.KnownIconOf(types.IconFileSearch),
			Color:        "violet",
			Price:        59.99,
			Rating:       4.8,
			Image:        "https://images.unsplash.com/photo-1649972904349-6e44c42644a7",
			Featured:     true,
			Tags:         []string{"Research", "Academic", "Citations"},
			Seller:       types.Seller{Name: "Academic AI Tools", Rating: 4.9, Verified: true},
			InputSchema:  objectSchema("query"),
			OutputSchema: objectSchema("document", "citations"),
		},
		{
			ID:           "5",
			Name:         "Customer Feedback Analyzer",
			Title:        "Customer Service AI",
			Description:  "Processes customer feedback to identify patterns, sentiment, and actionable insights.",
			Type:         "Data Analysis",
			Category:     "Customer Support",
			Features:     []string{"Sentiment analysis", "Trend identification", "Priority issue flagging", "Improvement recommendations"},
			Icon:         types.KnownIconOf(types.IconBarChart),
			Color:        "cyan",
			Price:        69.99,
			Rating:       4.4,
			Image:        "https://images.unsplash.com/photo-1486312338219-ce68d2c6f44d",
			Tags:         []string{"Support", "Customer Service", "Automation"},
			Seller:       types.Seller{Name: "Support Solutions", Rating: 4.5, Verified: true},
			InputSchema:  objectSchema("feedback"),
			OutputSchema: objectSchema("sentiment", "insights"),
		},
	}
	for _, a := range agents {
		a.CreatedAt = now
		a.UpdatedAt = now
	}
	return agents
}
