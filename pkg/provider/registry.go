package provider

import (
	"fmt"
	"net/url"
)

// Registry holds the descriptors of all known providers.
type Registry struct {
	descriptors map[ID]Descriptor
	order       []ID
}

// NewRegistry validates the descriptors and builds a registry.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[ID]Descriptor, len(descriptors))}

	for _, d := range descriptors {
		if _, err := Parse(string(d.ID)); err != nil {
			return nil, err
		}
		if _, dup := r.descriptors[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", d.ID)
		}
		if d.Enabled {
			u, err := url.Parse(d.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("provider %s: invalid base_url %q", d.ID, d.BaseURL)
			}
		}
		if d.PoliteDelay < 0 {
			return nil, fmt.Errorf("provider %s: polite_delay must not be negative (got %s)", d.ID, d.PoliteDelay)
		}
		if d.Name == "" {
			d.Name = string(d.ID)
		}
		r.descriptors[d.ID] = d
		r.order = append(r.order, d.ID)
	}

	return r, nil
}

// Lookup returns the descriptor of an enabled provider.
func (r *Registry) Lookup(id ID) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok || !d.Enabled {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrProviderUnavailable, id)
	}
	return d, nil
}

// Descriptor returns the descriptor regardless of its enabled state.
func (r *Registry) Descriptor(id ID) (Descriptor, bool) {
	d, ok := r.descriptors[id]
	return d, ok
}

// Enabled returns the enabled providers in registry order.
func (r *Registry) Enabled() []ID {
	ids := make([]ID, 0, len(r.order))
	for _, id := range r.order {
		if r.descriptors[id].Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}
