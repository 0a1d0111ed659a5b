package provider

import (
	"fmt"
	"sort"
	"strings"
)

// PromptPlaceholder is the command-template argument replaced by the
// rendered prompt at invocation time.
const PromptPlaceholder = "{prompt}"

// Spec describes one external provider command. Command is the program name
// followed by its arguments; exactly one argument should be the prompt
// placeholder. Priority orders fallback among enabled providers, lowest
// first.
type Spec struct {
	ID       string
	Command  []string
	Enabled  bool
	Priority int
}

// Argv expands the command template against the given prompt. If no
// argument contains the placeholder the prompt is appended as a trailing
// argument.
func (s Spec) Argv(prompt string) (program string, args []string) {
	expanded := make([]string, 0, len(s.Command))
	replaced := false
	for _, arg := range s.Command {
		if strings.Contains(arg, PromptPlaceholder) {
			arg = strings.ReplaceAll(arg, PromptPlaceholder, prompt)
			replaced = true
		}
		expanded = append(expanded, arg)
	}
	if !replaced {
		expanded = append(expanded, prompt)
	}
	return expanded[0], expanded[1:]
}

type UnknownProviderError struct{ ID string }

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("Unknown provider: %q", e.ID)
}

type NoProviderConfiguredError struct{}

func (e *NoProviderConfiguredError) Error() string { return "No provider configured" }

// Registry holds the configured provider specs and resolves fallback
// chains. Immutable after construction.
type Registry struct {
	specs     map[string]Spec
	enabled   []Spec // ascending priority
	defaultID string
}

// NewRegistry validates the specs and builds a registry. defaultID may be
// empty when no default is configured; if set it must name a known, enabled
// provider. Priorities must be unique within the enabled set.
func NewRegistry(specs []Spec, defaultID string) (*Registry, error) {
	byID := make(map[string]Spec, len(specs))
	var enabled []Spec
	priorities := make(map[int]string)
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("provider with empty id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", s.ID)
		}
		if len(s.Command) == 0 {
			return nil, fmt.Errorf("provider %q has no command", s.ID)
		}
		byID[s.ID] = s
		if !s.Enabled {
			continue
		}
		if other, clash := priorities[s.Priority]; clash {
			return nil, fmt.Errorf("providers %q and %q share priority %d", other, s.ID, s.Priority)
		}
		priorities[s.Priority] = s.ID
		enabled = append(enabled, s)
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })

	if defaultID != "" {
		d, ok := byID[defaultID]
		if !ok || !d.Enabled {
			return nil, fmt.Errorf("default provider %q is not a known enabled provider", defaultID)
		}
	}
	return &Registry{specs: byID, enabled: enabled, defaultID: defaultID}, nil
}

// Get returns the spec for id. Disabled providers are reported the same as
// unknown ones.
func (r *Registry) Get(id string) (Spec, error) {
	s, ok := r.specs[id]
	if !ok || !s.Enabled {
		return Spec{}, &UnknownProviderError{ID: id}
	}
	return s, nil
}

// Enabled returns the enabled specs in ascending priority order.
func (r *Registry) Enabled() []Spec {
	out := make([]Spec, len(r.enabled))
	copy(out, r.enabled)
	return out
}

// DefaultID returns the configured default provider id, or "".
func (r *Registry) DefaultID() string { return r.defaultID }

// ResolveChain returns the providers to attempt, in order: the requested
// provider (or the default when requestedID is empty) first, then the
// remaining enabled providers by ascending priority.
func (r *Registry) ResolveChain(requestedID string) ([]Spec, error) {
	first := requestedID
	if first == "" {
		if r.defaultID == "" {
			return nil, &NoProviderConfiguredError{}
		}
		first = r.defaultID
	}
	head, err := r.Get(first)
	if err != nil {
		return nil, err
	}
	chain := []Spec{head}
	for _, s := range r.enabled {
		if s.ID != head.ID {
			chain = append(chain, s)
		}
	}
	return chain, nil
}
