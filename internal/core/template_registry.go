package core

import (
	"fmt"
	"sort"
	"sync"
)

// TemplateRegistry holds import templates keyed by ID. Templates are
// immutable once registered; a new version is registered under its own ID.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]Template)}
}

// Register validates tmpl and adds it. Registering an ID twice is an error.
func (r *TemplateRegistry) Register(tmpl Template) error {
	if err := ValidateTemplate(tmpl); err != nil {
		return fmt.Errorf("template %q: %w", tmpl.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[tmpl.ID]; exists {
		return fmt.Errorf("template already registered: %s", tmpl.ID)
	}
	r.templates[tmpl.ID] = tmpl
	return nil
}

// Get returns a template by ID, active or not.
func (r *TemplateRegistry) Get(id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, ok := r.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, nil
}

// Active returns a template by ID only if it is active.
func (r *TemplateRegistry) Active(id string) (Template, error) {
	tmpl, err := r.Get(id)
	if err != nil {
		return Template{}, err
	}
	if !tmpl.Active {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateInactive, id)
	}
	return tmpl, nil
}

// All returns every template, sorted by target type then ID.
func (r *TemplateRegistry) All() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TargetType != result[j].TargetType {
			return result[i].TargetType < result[j].TargetType
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ByTargetType returns the templates importing into t, sorted by ID.
func (r *TemplateRegistry) ByTargetType(t TargetType) []Template {
	var result []Template
	for _, tmpl := range r.All() {
		if tmpl.TargetType == t {
			result = append(result, tmpl)
		}
	}
	return result
}

// Count returns the number of registered templates.
func (r *TemplateRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
