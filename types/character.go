package types

import (
	"encoding/json"
	"fmt"
)

// StringList is a list of strings that also accepts a single scalar when
// unmarshaled, since character files write one-line bios as plain strings.
type StringList []string

// UnmarshalJSON accepts either a string or an array of strings.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("string or string list expected: %w", err)
	}
	*s = many
	return nil
}

// UnmarshalYAML accepts either a scalar or a sequence.
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := unmarshal(&many); err != nil {
		return fmt.Errorf("string or string list expected: %w", err)
	}
	*s = many
	return nil
}

// MessageExample is one turn of an example conversation.
type MessageExample struct {
	User    string  `json:"user" yaml:"user"`
	Content Content `json:"content" yaml:"content"`
}

// Style holds the character's writing directions. All rules apply to every
// output; Chat and Post extend All for the respective surface.
type Style struct {
	All  []string `json:"all" yaml:"all"`
	Chat []string `json:"chat" yaml:"chat"`
	Post []string `json:"post" yaml:"post"`
}

// Voice configures speech synthesis for the character.
type Voice struct {
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// CharacterSettings carries per-character secrets and tuning knobs.
type CharacterSettings struct {
	Secrets map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Voice   Voice             `json:"voice,omitempty" yaml:"voice,omitempty"`
	Model   string            `json:"model,omitempty" yaml:"model,omitempty"`
	// EmbeddingModel overrides the embedding model resolved per provider.
	EmbeddingModel string `json:"embeddingModel,omitempty" yaml:"embeddingModel,omitempty"`
}

// Character is the persona configuration for one runtime instance.
// It is loaded once at construction and never mutated afterwards.
type Character struct {
	ID         UUID       `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string     `json:"name" yaml:"name"`
	System     string     `json:"system,omitempty" yaml:"system,omitempty"`
	Bio        StringList `json:"bio" yaml:"bio"`
	Lore       []string   `json:"lore" yaml:"lore"`
	Topics     []string   `json:"topics,omitempty" yaml:"topics,omitempty"`
	Adjectives []string   `json:"adjectives,omitempty" yaml:"adjectives,omitempty"`
	Knowledge  []string   `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`

	MessageExamples [][]MessageExample `json:"messageExamples,omitempty" yaml:"messageExamples,omitempty"`
	PostExamples    []string           `json:"postExamples,omitempty" yaml:"postExamples,omitempty"`
	Style           Style              `json:"style" yaml:"style"`

	ModelProvider         ModelProvider     `json:"modelProvider" yaml:"modelProvider"`
	ImageModelProvider    ModelProvider     `json:"imageModelProvider,omitempty" yaml:"imageModelProvider,omitempty"`
	ModelEndpointOverride string            `json:"modelEndpointOverride,omitempty" yaml:"modelEndpointOverride,omitempty"`
	Settings              CharacterSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
	Plugins               []string          `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// Secret looks up a per-character secret by key.
func (c *Character) Secret(key string) string {
	if c.Settings.Secrets == nil {
		return ""
	}
	return c.Settings.Secrets[key]
}
