package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KnownIcon names an icon bundled with the frontend.
type KnownIcon string

const (
	IconSearch     KnownIcon = "search"
	IconFileText   KnownIcon = "file-text"
	IconFileSearch KnownIcon = "file-search"
	IconScroll     KnownIcon = "scroll"
	IconBarChart   KnownIcon = "bar-chart"
	IconBot        KnownIcon = "bot"
)

var knownIcons = map[KnownIcon]bool{
	IconSearch:     true,
	IconFileText:   true,
	IconFileSearch: true,
	IconScroll:     true,
	IconBarChart:   true,
	IconBot:        true,
}

// IsKnownIcon reports whether name is one of the bundled icons.
func IsKnownIcon(name string) bool {
	return knownIcons[KnownIcon(name)]
}

// Icon is either a bundled icon or a free-form label (emoji, short text).
// Exactly one of Known and Label is set. The presentation layer resolves it;
// the execution core never inspects it.
type Icon struct {
	Known KnownIcon
	Label string
}

// KnownIconOf builds an Icon referring to a bundled icon.
func KnownIconOf(k KnownIcon) Icon { return Icon{Known: k} }

// CustomLabel builds an Icon carrying a free-form label.
func CustomLabel(label string) Icon { return Icon{Label: label} }

// IsZero reports whether no icon is set.
func (i Icon) IsZero() bool { return i.Known == "" && i.Label == "" }

type iconJSON struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
}

// MarshalJSON encodes the icon as {"kind":"known","name":...} or
// {"kind":"custom","label":...}.
func (i Icon) MarshalJSON() ([]byte, error) {
	switch {
	case i.Known != "":
		return json.Marshal(iconJSON{Kind: "known", Name: string(i.Known)})
	case i.Label != "":
		return json.Marshal(iconJSON{Kind: "custom", Label: i.Label})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the tagged object form as well as a bare string, which
// is treated as a known icon when it matches one and as a label otherwise.
func (i *Icon) UnmarshalJSON(data []byte) error {
	*i = Icon{}
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i.setFromString(s)
		return nil
	}

	var raw iconJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode icon: %w", err)
	}
	switch raw.Kind {
	case "known":
		if !IsKnownIcon(raw.Name) {
			return fmt.Errorf("unknown icon %q", raw.Name)
		}
		i.Known = KnownIcon(raw.Name)
	case "custom":
		i.Label = raw.Label
	default:
		return fmt.Errorf("unknown icon kind %q", raw.Kind)
	}
	return nil
}

// UnmarshalYAML mirrors the bare-string form of UnmarshalJSON for seed files.
func (i *Icon) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	i.setFromString(s)
	return nil
}

func (i *Icon) setFromString(s string) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if IsKnownIcon(norm) {
		i.Known = KnownIcon(norm)
		return
	}
	i.Label = s
}

// Seller describes who publishes an agent listing.
type Seller struct {
	Name     string  `json:"name" yaml:"name"`
	Rating   float64 `json:"rating" yaml:"rating"`
	Verified bool    `json:"verified" yaml:"verified"`
}

// Agent is a marketplace catalog entry. The execution core reads it by
// reference and never mutates it.
type Agent struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category" yaml:"category"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	Icon  Icon   `json:"icon" yaml:"icon"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	Price    float64 `json:"price" yaml:"price"`
	Rating   float64 `json:"rating" yaml:"rating"`
	Featured bool    `json:"featured" yaml:"featured"`
	Seller   Seller  `json:"seller" yaml:"seller"`

	// JSON schemas describing the agent's I/O and configuration.
	InputSchema  json.RawMessage `json:"input_schema,omitempty" yaml:"-"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty" yaml:"-"`
	ConfigSchema json.RawMessage `json:"config_schema,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Ref returns the reference a node stores for this agent.
func (a *Agent) Ref() AgentRef {
	return AgentRef{ID: a.ID, Name: a.Name, Type: a.Type}
}
