// Package agentdef loads agent definitions from a
// YAML document at startup. Each agent is read-only configuration; the
// Agent Runner is polymorphic only over which definition it is given,
// never over a type hierarchy of agent "classes".
package agentdef

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is one agent's read-only configuration.
type Definition struct {
	Role             string   `yaml:"role"`
	DisplayName      string   `yaml:"display_name"`
	SystemPrompt     string   `yaml:"system_prompt"`
	AllowedToolNames []string `yaml:"allowed_tool_names"`
}

// document is the on-disk shape: a flat list of definitions.
type document struct {
	Agents []Definition `yaml:"agents"`
}

// requiredRoles are the fixed roles every agent document must define.
// Worker roles beyond these are declared dynamically by the document
// itself and validated only for non-emptiness.
var requiredRoles = []string{
	"lead_planner", "plan_critic", "supervisor",
	"advocate", "skeptic", "synthesiser",
	"refiner", "writer", "document_critic", "summariser",
}

// Set is the loaded collection of agent definitions, keyed by role.
type Set struct {
	byRole map[string]Definition
}

// Load reads and validates the agent definition document at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent definitions: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing agent definitions: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("agent definitions: no agents declared in %s", path)
	}

	set := &Set{byRole: make(map[string]Definition, len(doc.Agents))}
	for _, a := range doc.Agents {
		if a.Role == "" {
			return nil, fmt.Errorf("agent definitions: entry with empty role")
		}
		if a.SystemPrompt == "" {
			return nil, fmt.Errorf("agent definitions: role %q has no system_prompt", a.Role)
		}
		set.byRole[a.Role] = a
	}

	for _, role := range requiredRoles {
		if _, ok := set.byRole[role]; !ok {
			return nil, fmt.Errorf("agent definitions: missing required role %q", role)
		}
	}

	return set, nil
}

// Get returns the definition for role, and whether it was declared.
func (s *Set) Get(role string) (Definition, bool) {
	d, ok := s.byRole[role]
	return d, ok
}

// Roles returns every declared role.
func (s *Set) Roles() []string {
	roles := make([]string, 0, len(s.byRole))
	for role := range s.byRole {
		roles = append(roles, role)
	}
	return roles
}

// WorkerRoles returns every declared role that is not one of the fixed
// pipeline roles — the set the planner may assign sub-questions to.
func (s *Set) WorkerRoles() []string {
	fixed := make(map[string]bool, len(requiredRoles))
	for _, r := range requiredRoles {
		fixed[r] = true
	}
	var workers []string
	for role := range s.byRole {
		if !fixed[role] {
			workers = append(workers, role)
		}
	}
	return workers
}
