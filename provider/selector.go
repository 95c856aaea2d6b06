package provider

import (
	"context"
	"fmt"
)

// Selector picks a provider from the available options.
type Selector[T Provider] interface {
	Select(ctx context.Context, providers map[string]T) (T, error)
}

// NamedSelector picks the provider with the configured name. It is the
// selector used when the session config pins a backend explicitly.
type NamedSelector[T Provider] struct {
	// Name is the provider to select.
	Name string
}

// Select returns the named provider, or an error if it is not registered.
func (s *NamedSelector[T]) Select(_ context.Context, providers map[string]T) (T, error) {
	if p, ok := providers[s.Name]; ok {
		return p, nil
	}
	var zero T
	return zero, fmt.Errorf("provider %q not registered", s.Name)
}

// PrioritySelector tries providers in the given priority order
// and returns the first one that is available.
type PrioritySelector[T Provider] struct {
	// Priority is the ordered list of provider names to try.
	Priority []string
}

// Select returns the first available provider in priority order.
func (s *PrioritySelector[T]) Select(ctx context.Context, providers map[string]T) (T, error) {
	for _, name := range s.Priority {
		if p, ok := providers[name]; ok && p.IsAvailable(ctx) {
			return p, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("no available provider found in priority list")
}
