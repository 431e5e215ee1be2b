package capability

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Registry is the table of registered capabilities and their
// default-applicability per subject kind. It is built once, frozen, and
// passed by reference into every resolution; it is never a hidden global.
type Registry struct {
	byName   map[string]*Capability
	defaults map[*Capability]map[SubjectKind]bool
	copyable *Capability
	frozen   bool
}

// NewRegistry creates a registry with Copyable pre-registered: invertible,
// member containment for structural subjects, and defaults applying to all
// four defaultable subject kinds.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]*Capability),
		defaults: make(map[*Capability]map[SubjectKind]bool),
	}
	copyable := New(CopyableName, WithInverse(), WithMemberContainment())
	if err := r.Register(copyable, DefaultableKinds...); err != nil {
		panic(err) // fresh registry cannot reject Copyable
	}
	r.copyable = copyable
	return r
}

// Register adds a capability with defaults applying to the given subject
// kinds. Registration fails after Freeze or when the name is taken.
func (r *Registry) Register(c *Capability, defaultFor ...SubjectKind) error {
	if r.frozen {
		return errors.Newf("capability registry is frozen; cannot register %s", c.Name())
	}
	if _, ok := r.byName[c.Name()]; ok {
		return errors.Newf("capability %s is already registered", c.Name())
	}
	kinds := make(map[SubjectKind]bool, len(defaultFor))
	for _, k := range defaultFor {
		if k == Concrete {
			return errors.Newf("capability %s: defaults cannot apply to concrete subjects", c.Name())
		}
		kinds[k] = true
	}
	r.byName[c.Name()] = c
	r.defaults[c] = kinds
	return nil
}

// Freeze makes the registry immutable. It returns the registry for chaining.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

func (r *Registry) Frozen() bool { return r.frozen }

// DefaultApplies reports whether the capability's default attaches to
// subjects of the given kind.
func (r *Registry) DefaultApplies(c *Capability, k SubjectKind) bool {
	kinds, ok := r.defaults[c]
	if !ok {
		return false
	}
	return kinds[k]
}

// Lookup finds a registered capability by name.
func (r *Registry) Lookup(name string) (*Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Copyable returns the pre-registered Copyable capability.
func (r *Registry) Copyable() *Capability { return r.copyable }

// All returns the registered capabilities sorted by name for deterministic
// iteration.
func (r *Registry) All() []*Capability {
	out := make([]*Capability, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
