// Package manifest loads and validates skill manifests: the published
// description of a skill's identity, endpoint, authentication connections
// and the actions it can perform with their triggers.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/skillflow/auth"
)

var (
	ErrMissingID       = errors.New("manifest: id is required")
	ErrMissingEndpoint = errors.New("manifest: endpoint is required")
	ErrDuplicateAction = errors.New("manifest: duplicate action id")
)

// Manifest describes one registered skill.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Endpoint is where the skill receives activities.
	Endpoint string `json:"endpoint"`
	// MSAAppID identifies the skill for bot-to-bot authentication.
	MSAAppID string `json:"msaAppId,omitempty"`
	// AuthenticationConnections lists the token connections the skill may
	// request from its caller.
	AuthenticationConnections []auth.Connection `json:"authenticationConnections,omitempty"`
	Actions                   []Action          `json:"actions,omitempty"`
}

// Action is one capability of a skill.
type Action struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Triggers    Triggers `json:"triggers"`
}

// Triggers describe how an action is invoked: by recognized intent name or
// by literal trigger utterances.
type Triggers struct {
	Intents    []string    `json:"intents,omitempty"`
	Utterances []Utterance `json:"utterances,omitempty"`
}

// Utterance is a locale-scoped set of trigger phrases.
type Utterance struct {
	Locale string   `json:"locale,omitempty"`
	Text   []string `json:"text"`
}

// Parse decodes and validates a manifest from JSON.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Validate fails fast on a manifest the router cannot use.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(m.Endpoint) == "" {
		return fmt.Errorf("%w (skill %q)", ErrMissingEndpoint, m.ID)
	}
	seen := make(map[string]bool, len(m.Actions))
	for _, a := range m.Actions {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("manifest: skill %q has an action without an id", m.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: %q (skill %q)", ErrDuplicateAction, a.ID, m.ID)
		}
		seen[a.ID] = true
	}
	for _, c := range m.AuthenticationConnections {
		if _, err := c.Provider(); err != nil {
			return err
		}
	}
	return nil
}

// FindIntent returns the action triggered by the given intent name.
func (m *Manifest) FindIntent(intent string) (*Action, bool) {
	for i := range m.Actions {
		for _, in := range m.Actions[i].Triggers.Intents {
			if strings.EqualFold(in, intent) {
				return &m.Actions[i], true
			}
		}
	}
	return nil, false
}

// FindUtterance returns the action triggered by a literal utterance match.
func (m *Manifest) FindUtterance(text string) (*Action, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, false
	}
	for i := range m.Actions {
		for _, u := range m.Actions[i].Triggers.Utterances {
			for _, phrase := range u.Text {
				if strings.ToLower(strings.TrimSpace(phrase)) == needle {
					return &m.Actions[i], true
				}
			}
		}
	}
	return nil, false
}

// Registry indexes manifests for skill lookup.
type Registry struct {
	manifests []*Manifest
	byID      map[string]*Manifest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Manifest)}
}

// Register validates and adds a manifest. Registering the same id twice is
// an error.
func (r *Registry) Register(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, exists := r.byID[m.ID]; exists {
		return fmt.Errorf("manifest: skill %q already registered", m.ID)
	}
	r.manifests = append(r.manifests, m)
	r.byID[m.ID] = m
	return nil
}

// Get looks a manifest up by skill id.
func (r *Registry) Get(id string) (*Manifest, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// All returns the registered manifests in registration order.
func (r *Registry) All() []*Manifest {
	return append([]*Manifest(nil), r.manifests...)
}

// FindSkillForIntent returns the first registered skill handling the intent.
func (r *Registry) FindSkillForIntent(intent string) (*Manifest, *Action, bool) {
	for _, m := range r.manifests {
		if a, ok := m.FindIntent(intent); ok {
			return m, a, true
		}
	}
	return nil, nil, false
}

// FindSkillForUtterance returns the first registered skill with a literal
// trigger utterance matching text.
func (r *Registry) FindSkillForUtterance(text string) (*Manifest, *Action, bool) {
	for _, m := range r.manifests {
		if a, ok := m.FindUtterance(text); ok {
			return m, a, true
		}
	}
	return nil, nil, false
}
