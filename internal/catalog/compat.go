package catalog

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/flexinfer/agentmarket/pkg/types"
)

const (
	baseCompatibility  = 0.8
	compatibilityBonus = 0.1
)

// Compatibility describes how well one agent's output feeds another's input.
type Compatibility struct {
	Compatible bool     `json:"compatible"`
	Score      float64  `json:"compatibility_score"`
	Matched    []string `json:"matched_fields,omitempty"`
	Message    string   `json:"message"`
}

// CheckCompatibility scores connecting from's output to to's input. Every
// pair is considered connectable; the score starts at 0.8 and gains 0.1 for
// each input property of to that from produces, capped at 1.0.
func CheckCompatibility(from, to *types.Agent) Compatibility {
	outputs := schemaProperties(from.OutputSchema)

	var matched []string
	for _, key := range sortedKeys(schemaProperties(to.InputSchema)) {
		if _, ok := outputs[key]; ok {
			matched = append(matched, key)
		}
	}

	score := math.Min(1.0, baseCompatibility+compatibilityBonus*float64(len(matched)))
	return Compatibility{
		Compatible: true,
		Score:      math.Round(score*100) / 100,
		Matched:    matched,
		Message:    "These agents can work together",
	}
}

// schemaProperties returns the top-level "properties" of a JSON schema.
// Missing or malformed schemas have none.
func schemaProperties(schema json.RawMessage) map[string]json.RawMessage {
	if len(schema) == 0 {
		return nil
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Properties
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
