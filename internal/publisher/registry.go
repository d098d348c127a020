package publisher

import "sort"

// Registry maps platforms to publishers. It is immutable once built and
// safe for concurrent lookups.
type Registry struct {
	byPlatform map[Platform]Publisher
}

// NewRegistry copies m. Entries for Unknown or nil publishers are dropped.
func NewRegistry(m map[Platform]Publisher) *Registry {
	r := &Registry{byPlatform: make(map[Platform]Publisher, len(m))}
	for p, pub := range m {
		if !p.Known() || pub == nil {
			continue
		}
		r.byPlatform[p] = pub
	}
	return r
}

// Lookup resolves the publisher for a stored platform identifier.
// Matching is exact; unknown identifiers report false.
func (r *Registry) Lookup(platform string) (Publisher, bool) {
	if r == nil {
		return nil, false
	}
	p := ParsePlatform(platform)
	if p == Unknown {
		return nil, false
	}
	pub, ok := r.byPlatform[p]
	return pub, ok
}

// Platforms lists the registered platforms, sorted.
func (r *Registry) Platforms() []Platform {
	if r == nil {
		return nil
	}
	out := make([]Platform, 0, len(r.byPlatform))
	for p := range r.byPlatform {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byPlatform)
}
