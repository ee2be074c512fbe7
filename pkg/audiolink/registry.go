package audiolink

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// MirrorPolicy selects which of a family's mirrors take part in rotation.
type MirrorPolicy string

const (
	// MirrorPolicyAll rotates over every configured mirror.
	MirrorPolicyAll MirrorPolicy = "all"
	// MirrorPolicyFast rotates only over a family's named fast subset, falling
	// back to the full list for families that declare none.
	MirrorPolicyFast MirrorPolicy = "fast"
)

// Family is a named group of interchangeable provider endpoints.
type Family struct {
	Name        string
	Kind        AdapterKind
	Mirrors     []string
	FastMirrors []string
}

// rotator hands out items round-robin. The cursor is the only mutable state
// and is advanced atomically, so the index stays in [0, len(items)).
type rotator struct {
	items  []string
	cursor atomic.Uint64
}

func newRotator(items []string) *rotator {
	return &rotator{items: items}
}

func (r *rotator) next() string {
	n := r.cursor.Add(1) - 1
	return r.items[n%uint64(len(r.items))]
}

// rotation advances the cursor once and returns every item starting there.
func (r *rotator) rotation() []string {
	start := int((r.cursor.Add(1) - 1) % uint64(len(r.items)))
	ordered := make([]string, 0, len(r.items))
	ordered = append(ordered, r.items[start:]...)
	ordered = append(ordered, r.items[:start]...)
	return ordered
}

// Registry holds every configured family and its rotation state. It is built
// once at startup and shared by all resolution calls.
type Registry struct {
	order    []Family
	rotators map[string]*rotator
}

// NewRegistry validates the families and builds their rotation state.
// Families keep the given order, which is the resolution priority.
func NewRegistry(families []Family, policy MirrorPolicy) (*Registry, error) {
	if len(families) == 0 {
		return nil, fmt.Errorf("no provider families configured")
	}
	if policy == "" {
		policy = MirrorPolicyAll
	}
	if policy != MirrorPolicyAll && policy != MirrorPolicyFast {
		return nil, fmt.Errorf("unsupported mirror policy %q", policy)
	}

	reg := &Registry{
		order:    make([]Family, 0, len(families)),
		rotators: make(map[string]*rotator, len(families)),
	}

	for _, f := range families {
		if f.Name == "" {
			return nil, fmt.Errorf("provider family without a name")
		}
		if _, exists := reg.rotators[f.Name]; exists {
			return nil, fmt.Errorf("provider family %q configured twice", f.Name)
		}
		mirrors, err := normalizeMirrors(f.Mirrors)
		if err != nil {
			return nil, fmt.Errorf("provider family %q: %w", f.Name, err)
		}
		if len(mirrors) == 0 {
			return nil, fmt.Errorf("provider family %q has no mirrors", f.Name)
		}
		fast, err := normalizeMirrors(f.FastMirrors)
		if err != nil {
			return nil, fmt.Errorf("provider family %q fast mirrors: %w", f.Name, err)
		}
		for _, m := range fast {
			if !contains(mirrors, m) {
				return nil, fmt.Errorf("provider family %q: fast mirror %s is not a configured mirror", f.Name, m)
			}
		}

		active := mirrors
		if policy == MirrorPolicyFast && len(fast) > 0 {
			active = fast
		}

		f.Mirrors = mirrors
		f.FastMirrors = fast
		reg.order = append(reg.order, f)
		reg.rotators[f.Name] = newRotator(active)
	}

	return reg, nil
}

// Families returns the configured families in priority order.
func (r *Registry) Families() []Family {
	out := make([]Family, len(r.order))
	copy(out, r.order)
	return out
}

// Next returns the family's mirror at the cursor and advances the cursor.
func (r *Registry) Next(family string) (string, error) {
	rot, ok := r.rotators[family]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	return rot.next(), nil
}

// Rotation returns every active mirror of the family, starting at the cursor,
// and advances the cursor by one. Each mirror appears exactly once.
func (r *Registry) Rotation(family string) ([]string, error) {
	rot, ok := r.rotators[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	return rot.rotation(), nil
}

func normalizeMirrors(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		m = strings.TrimRight(strings.TrimSpace(m), "/")
		if m == "" {
			continue
		}
		u, err := url.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("invalid mirror %q: %w", m, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid mirror %q: must be an absolute http(s) URL", m)
		}
		if contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
