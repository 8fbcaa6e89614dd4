package providers

import (
	"strings"
)

// DefaultPriority puts the most capable provider first and the keyless public
// fallback last.
var DefaultPriority = []Kind{KindDeepL, KindGoogle, KindLibreTranslate}

// Selector orders providers for the fallback loop. It is immutable after
// construction and safe for concurrent use.
type Selector struct {
	providers []Provider
	priority  []Kind
}

func NewSelector(providers []Provider, priority ...Kind) *Selector {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	return &Selector{
		providers: append([]Provider(nil), providers...),
		priority:  append([]Kind(nil), priority...),
	}
}

// All returns every registered provider in registration order.
func (s *Selector) All() []Provider {
	return append([]Provider(nil), s.providers...)
}

func (s *Selector) Available() []Provider {
	var available []Provider
	for _, p := range s.providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return available
}

func (s *Selector) Get(name string) (Provider, bool) {
	for _, p := range s.providers {
		if strings.EqualFold(p.Name(), strings.TrimSpace(name)) {
			return p, true
		}
	}
	return nil, false
}

// WithFallback returns the available providers in the order they should be
// tried. A preferred provider that is available goes first; the rest follow
// the priority list, then any remaining providers in registration order.
func (s *Selector) WithFallback(preferred string) []Provider {
	available := s.Available()
	ordered := make([]Provider, 0, len(available))
	used := make(map[Provider]bool, len(available))

	add := func(p Provider) {
		if !used[p] {
			used[p] = true
			ordered = append(ordered, p)
		}
	}

	if preferred != "" {
		for _, p := range available {
			if strings.EqualFold(p.Name(), strings.TrimSpace(preferred)) {
				add(p)
				break
			}
		}
	}
	for _, kind := range s.priority {
		for _, p := range available {
			if p.Kind() == kind {
				add(p)
			}
		}
	}
	for _, p := range available {
		add(p)
	}
	return ordered
}
