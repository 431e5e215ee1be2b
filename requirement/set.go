package requirement

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/diag"
)

// Set is the requirement set of one declaration under resolution. It maps
// each subject to at most one final verdict per capability, plus the
// declaration's same-type edges.
//
// Merge rules (applied by Add, in build order):
//
//   - a positive meeting a recorded inverse: cancellable positives
//     (default, fragment) are simply omitted; explicit, inherited and
//     same-type positives conflict with an explicit or inherited inverse
//     and override a fragment inverse.
//   - an inverse meeting a recorded positive: cancellable positives are
//     removed; anything stronger conflicts.
//   - two positives: the stronger origin is kept.
//   - two fragments that disagree (positive vs inverse from different
//     sources) conflict regardless of order.
type Set struct {
	owner    string
	subjects map[string]*subjectState
	sameType []Requirement
	frozen   bool
}

type subjectState struct {
	subject Subject
	caps    map[string]*capState
}

type capState struct {
	positive *Requirement
	inverse  *Requirement
}

// NewSet creates an empty, unfrozen set for the named declaration.
func NewSet(owner string) *Set {
	return &Set{owner: owner, subjects: make(map[string]*subjectState)}
}

func (s *Set) Owner() string { return s.owner }

// Freeze makes the set immutable; Add panics afterwards. Returns the set
// for chaining.
func (s *Set) Freeze() *Set {
	s.frozen = true
	return s
}

func (s *Set) Frozen() bool { return s.frozen }

func (s *Set) state(subj Subject, create bool) *subjectState {
	key := subj.Key()
	st, ok := s.subjects[key]
	if !ok && create {
		st = &subjectState{subject: subj, caps: make(map[string]*capState)}
		s.subjects[key] = st
	}
	return st
}

// Add merges one requirement into the set, applying the cancellation and
// conflict rules. The only error kind it returns is
// *diag.ConflictingRequirementError.
func (s *Set) Add(r Requirement) error {
	if s.frozen {
		panic("requirement: Add on frozen set for " + s.owner)
	}
	if r.Kind == KindSameType {
		// Register both endpoints so closure sees them even when no
		// capability requirement mentions them yet.
		s.state(r.Subject, true)
		s.state(r.Other, true)
		s.sameType = append(s.sameType, r)
		return nil
	}
	st := s.state(r.Subject, true)
	capName := r.Capability.Name()
	cs, ok := st.caps[capName]
	if !ok {
		cs = &capState{}
		st.caps[capName] = cs
	}
	switch r.Kind {
	case KindConforms:
		return s.addPositive(cs, r)
	case KindInverse:
		return s.addInverse(cs, r)
	default:
		return errors.Newf("requirement: unknown kind %v", r.Kind)
	}
}

func (s *Set) addPositive(cs *capState, r Requirement) error {
	if inv := cs.inverse; inv != nil {
		if r.Origin.Cancellable() {
			if disagreeingFragments(*inv, r) {
				return s.conflict(r, "extension defaults from "+inv.Source+" and "+r.Source+" disagree")
			}
			// The default stays cancelled; nothing to record.
			return nil
		}
		// Explicit, inherited or same-type positive.
		if inv.Origin == OriginExplicit || inv.Origin == OriginInherited {
			return s.conflict(r, describeOrigin(*inv)+" inverse vs "+describeOrigin(r)+" requirement")
		}
		// A fragment inverse only cancels defaults; a harder positive
		// displaces it.
		cs.inverse = nil
	}
	if cs.positive == nil || r.Origin.rank() > cs.positive.Origin.rank() {
		rr := r
		cs.positive = &rr
	}
	return nil
}

func (s *Set) addInverse(cs *capState, r Requirement) error {
	if pos := cs.positive; pos != nil {
		if !pos.Origin.Cancellable() {
			return s.conflict(r, describeOrigin(*pos)+" requirement vs "+describeOrigin(r)+" inverse")
		}
		if disagreeingFragments(*pos, r) {
			return s.conflict(r, "extension defaults from "+pos.Source+" and "+r.Source+" disagree")
		}
		cs.positive = nil
	}
	if cs.inverse == nil || r.Origin.rank() > cs.inverse.Origin.rank() {
		rr := r
		cs.inverse = &rr
	}
	return nil
}

// disagreeingFragments reports a positive and an inverse contributed by two
// different extension-default sources for the same pair.
func disagreeingFragments(a, b Requirement) bool {
	return a.Origin == OriginFragment && b.Origin == OriginFragment && a.Source != b.Source
}

func describeOrigin(r Requirement) string {
	if r.Source != "" {
		return r.Origin.String() + " (from " + r.Source + ")"
	}
	return r.Origin.String()
}

func (s *Set) conflict(r Requirement, detail string) error {
	decls := []string{s.owner}
	if r.Source != "" && r.Source != s.owner {
		decls = append(decls, r.Source)
	}
	return diag.NewConflictingRequirement(r.Subject.Key(), r.Capability.Name(), decls, detail)
}

// DropFragment removes every fragment-origin entry the named source
// contributed for the subject, optionally narrowed to one capability
// (cap == nil drops all of the source's entries). Targeted cancellation
// leaves fragments from other sources and the subject's own standard
// default untouched. Returns whether anything was removed.
func (s *Set) DropFragment(subj Subject, source string, cap *capability.Capability) bool {
	st := s.state(subj, false)
	if st == nil {
		return false
	}
	dropped := false
	for name, cs := range st.caps {
		if cap != nil && name != cap.Name() {
			continue
		}
		if cs.positive != nil && cs.positive.Origin == OriginFragment && cs.positive.Source == source {
			cs.positive = nil
			dropped = true
		}
		if cs.inverse != nil && cs.inverse.Origin == OriginFragment && cs.inverse.Source == source {
			cs.inverse = nil
			dropped = true
		}
	}
	return dropped
}

// Requires reports whether the subject has a positive requirement for the
// capability.
func (s *Set) Requires(subj Subject, cap *capability.Capability) bool {
	_, ok := s.Positive(subj, cap)
	return ok
}

// Positive returns the recorded positive requirement for (subject,
// capability), if any.
func (s *Set) Positive(subj Subject, cap *capability.Capability) (Requirement, bool) {
	st := s.state(subj, false)
	if st == nil {
		return Requirement{}, false
	}
	cs, ok := st.caps[cap.Name()]
	if !ok || cs.positive == nil {
		return Requirement{}, false
	}
	return *cs.positive, true
}

// Inverse returns the recorded inverse for (subject, capability), if any.
func (s *Set) Inverse(subj Subject, cap *capability.Capability) (Requirement, bool) {
	st := s.state(subj, false)
	if st == nil {
		return Requirement{}, false
	}
	cs, ok := st.caps[cap.Name()]
	if !ok || cs.inverse == nil {
		return Requirement{}, false
	}
	return *cs.inverse, true
}

// Subjects returns every subject mentioned by the set, sorted by key.
func (s *Set) Subjects() []Subject {
	keys := make([]string, 0, len(s.subjects))
	for k := range s.subjects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Subject, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.subjects[k].subject)
	}
	return out
}

// SameType returns the same-type edges in insertion order.
func (s *Set) SameType() []Requirement {
	out := make([]Requirement, len(s.sameType))
	copy(out, s.sameType)
	return out
}

// PositivesFor returns the subject's positive requirements sorted by
// capability name.
func (s *Set) PositivesFor(subj Subject) []Requirement {
	st := s.state(subj, false)
	if st == nil {
		return nil
	}
	names := make([]string, 0, len(st.caps))
	for name, cs := range st.caps {
		if cs.positive != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Requirement, 0, len(names))
	for _, name := range names {
		out = append(out, *st.caps[name].positive)
	}
	return out
}

// Resolved returns the final signature view: every positive requirement
// followed by the same-type edges, in deterministic order. Inverses are the
// absence of a default, never a fact, so they do not appear.
func (s *Set) Resolved() []Requirement {
	var out []Requirement
	for _, subj := range s.Subjects() {
		out = append(out, s.PositivesFor(subj)...)
	}
	out = append(out, s.SameType()...)
	return out
}

// Len counts the requirements Resolved would return.
func (s *Set) Len() int {
	n := len(s.sameType)
	for _, st := range s.subjects {
		for _, cs := range st.caps {
			if cs.positive != nil {
				n++
			}
		}
	}
	return n
}

// Clone returns an unfrozen deep copy. Re-resolution always starts from a
// fresh or cloned set, never by mutating a frozen one.
func (s *Set) Clone() *Set {
	out := NewSet(s.owner)
	for key, st := range s.subjects {
		nst := &subjectState{subject: st.subject, caps: make(map[string]*capState, len(st.caps))}
		for name, cs := range st.caps {
			ncs := &capState{}
			if cs.positive != nil {
				r := *cs.positive
				ncs.positive = &r
			}
			if cs.inverse != nil {
				r := *cs.inverse
				ncs.inverse = &r
			}
			nst.caps[name] = ncs
		}
		out.subjects[key] = nst
	}
	out.sameType = append(out.sameType, s.sameType...)
	return out
}

// Equal reports whether two sets resolve to the same signature.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	a, b := s.Resolved(), o.Resolved()
	for i := range a {
		if a[i].String() != b[i].String() {
			return false
		}
	}
	return true
}
