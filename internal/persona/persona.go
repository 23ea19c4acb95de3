// Package persona loads the static assistant persona configuration.
// The defaults are embedded in the binary; users can override or add
// personas via ~/.config/panleme/personas.yaml.
package persona

import (
	_ "embed"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed personas_default.yaml
var defaultPersonasYAML []byte

// TypeUnselected is the sentinel persona id meaning "no persona chosen yet".
const TypeUnselected = "unselected"

// RecapConfig describes a persona's end-of-day recap generation.
// The prompt window starts at PromptStartTime (local hour, 0-23) and lasts
// PromptDuration hours; it may wrap past midnight.
type RecapConfig struct {
	SystemPrompt    string `yaml:"system_prompt"`
	PromptStartTime int    `yaml:"prompt_start_time"`
	PromptDuration  int    `yaml:"prompt_duration"`
}

// Persona is a named assistant configuration.
type Persona struct {
	ID             string       `yaml:"id"`
	Name           string       `yaml:"name"`
	Title          string       `yaml:"title"`
	Description    string       `yaml:"description"`
	Icon           string       `yaml:"icon"`
	SystemPrompt   string       `yaml:"system_prompt"`
	InitialMessage string       `yaml:"initial_message"`
	// Summary is nil when the persona has no recap configuration.
	Summary           *RecapConfig `yaml:"summary"`
	ShowSummaryPrompt bool         `yaml:"show_summary_prompt"`
}

// Registry holds the ordered persona list and an id index.
type Registry struct {
	list []Persona
	byID map[string]Persona
}

// Load parses the embedded defaults and merges user overrides from
// ~/.config/panleme/personas.yaml. User entries replace defaults with the
// same id; new ids are appended in file order.
func Load() *Registry {
	var defs []Persona
	_ = yaml.Unmarshal(defaultPersonasYAML, &defs)

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".config", "panleme", "personas.yaml")
		if data, err := os.ReadFile(userPath); err == nil {
			var userDefs []Persona
			if yaml.Unmarshal(data, &userDefs) == nil {
				defs = merge(defs, userDefs)
			}
		}
	}

	return NewRegistry(defs)
}

// NewRegistry builds a registry from an explicit persona list.
func NewRegistry(list []Persona) *Registry {
	byID := make(map[string]Persona, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}
	return &Registry{list: list, byID: byID}
}

func merge(defs, overrides []Persona) []Persona {
	index := make(map[string]int, len(defs))
	for i, p := range defs {
		index[p.ID] = i
	}
	for _, o := range overrides {
		if i, ok := index[o.ID]; ok {
			defs[i] = o
		} else {
			defs = append(defs, o)
		}
	}
	return defs
}

// List returns the personas in chooser order.
func (r *Registry) List() []Persona {
	return r.list
}

// ByID looks up a persona by id.
func (r *Registry) ByID(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}
