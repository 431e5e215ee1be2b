// Package extdefault propagates extension-default clauses: implicit
// requirement fragments a type or protocol declares once and the engine
// injects into its extensions, inheritors, constrained generic parameters
// and existentials.
//
// Propagation is computed on demand when a target is resolved, never cached
// eagerly on the source. Two contracts matter:
//
//   - fragments merged into a baseline (extensions, constrained parameters,
//     existentials) behave like defaults and stay cancellable;
//   - fragments expanded into a directly-inheriting protocol become
//     explicit requirements of the inheritor's own signature. The expansion
//     is a one-time textual equivalent, not a live link: an inverse on the
//     inheritor conflicts with it instead of cancelling it.
package extdefault

import (
	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/requirement"
)

// Entry is one clause of a fragment, rooted at the declaring type's Self.
type Entry struct {
	Subject    requirement.Subject
	Capability *capability.Capability
	Inverse    bool
}

// Fragment is a declaration's extension-default clause in resolved form.
type Fragment struct {
	Source  string
	Entries []Entry
}

// Propagator computes and injects fragments. Safe for concurrent use.
type Propagator struct {
	reg      *capability.Registry
	provider declgraph.Provider
}

func NewPropagator(reg *capability.Registry, provider declgraph.Provider) *Propagator {
	return &Propagator{reg: reg, provider: provider}
}

// FragmentOf resolves the named declaration's extension-default clause.
// Returns nil when the declaration has none. Fragments may only state
// conformance requirements for capabilities that support an inverse
// operator.
func (p *Propagator) FragmentOf(name string) (*Fragment, error) {
	decl, ok := p.provider.Declaration(name)
	if !ok {
		return nil, errors.Newf("extdefault: unknown declaration %s", name)
	}
	if decl.ExtensionDefault == nil {
		return nil, nil
	}
	frag := &Fragment{Source: name}
	for _, e := range decl.ExtensionDefault.Entries {
		subj, err := requirement.ParseSubject(e.Subject)
		if err != nil {
			return nil, errors.Wrapf(err, "extension default on %s", name)
		}
		if subj.Root != requirement.SelfName {
			return nil, errors.Newf("extension default on %s: subject %s is not rooted at Self", name, e.Subject)
		}
		cap, ok := p.reg.Lookup(e.Capability)
		if !ok {
			return nil, errors.Newf("extension default on %s: unknown capability %s", name, e.Capability)
		}
		if !cap.Invertible() {
			return nil, errors.Newf("extension default on %s: capability %s has no inverse operator", name, e.Capability)
		}
		frag.Entries = append(frag.Entries, Entry{Subject: subj, Capability: cap, Inverse: e.Inverse})
	}
	return frag, nil
}

// ApplyToParam merges the fragments of every constraint protocol into a
// generic parameter's baseline, re-rooted from Self onto the parameter.
// Fragments from multiple protocols union order-independently; a positive
// and an inverse for the same pair from different sources conflict. The
// parameter's Drop list then cancels the named sources' contributions.
func (p *Propagator) ApplyToParam(set *requirement.Set, subj requirement.Subject, param declgraph.GenericParam) error {
	for _, proto := range param.Constraints {
		frag, err := p.FragmentOf(proto)
		if err != nil {
			return err
		}
		if frag == nil {
			continue
		}
		for _, e := range frag.Entries {
			r := entryRequirement(e, e.Subject.Rebase(subj), requirement.OriginFragment, frag.Source)
			if err := set.Add(r); err != nil {
				return err
			}
		}
	}
	for _, drop := range param.Drop {
		var cap *capability.Capability
		if drop.Capability != "" {
			c, ok := p.reg.Lookup(drop.Capability)
			if !ok {
				return errors.Newf("extdefault: fragment cancellation on %s names unknown capability %s", subj.Key(), drop.Capability)
			}
			cap = c
		}
		p.dropFromSource(set, subj, drop.Protocol, cap)
	}
	return nil
}

// dropFromSource removes the named source's fragment entries for the
// parameter and its member-chain subjects.
func (p *Propagator) dropFromSource(set *requirement.Set, subj requirement.Subject, source string, cap *capability.Capability) {
	for _, s := range set.Subjects() {
		if s.Root != subj.Root {
			continue
		}
		set.DropFragment(s, source, cap)
	}
}

// ApplyToExtension merges the extended declaration's fragment into an
// extension's implicit baseline. The merged requirements stay cancellable.
func (p *Propagator) ApplyToExtension(set *requirement.Set, extended string) error {
	return p.applySelfRooted(set, extended, requirement.OriginFragment)
}

// ApplyToExistential applies the protocol's fragment to an existential's
// implicit Self signature.
func (p *Propagator) ApplyToExistential(set *requirement.Set, proto string) error {
	return p.applySelfRooted(set, proto, requirement.OriginFragment)
}

func (p *Propagator) applySelfRooted(set *requirement.Set, source string, origin requirement.Origin) error {
	frag, err := p.FragmentOf(source)
	if err != nil {
		return err
	}
	if frag == nil {
		return nil
	}
	for _, e := range frag.Entries {
		if err := set.Add(entryRequirement(e, e.Subject, origin, frag.Source)); err != nil {
			return err
		}
	}
	return nil
}

// ExpandInheritance copies a directly-inherited protocol's requirements into
// the inheritor's signature: the parent's fragment and the parent's resolved
// explicit and inherited requirements, all as inherited (non-cancellable)
// facts. Parent defaults are deliberately not copied — absence of a
// requirement is not inherited, so an inheritor that does not restate an
// inverse gets its own defaults back.
func (p *Propagator) ExpandInheritance(set *requirement.Set, parent string, parentSet *requirement.Set) error {
	if err := p.applySelfRooted(set, parent, requirement.OriginInherited); err != nil {
		return err
	}
	for _, subj := range parentSet.Subjects() {
		for _, r := range parentSet.PositivesFor(subj) {
			if r.Origin != requirement.OriginExplicit && r.Origin != requirement.OriginInherited {
				continue
			}
			source := r.Source
			if source == "" {
				source = parent
			}
			nr := requirement.Conforms(r.Subject, r.Capability, requirement.OriginInherited).WithSource(source)
			if err := set.Add(nr); err != nil {
				return err
			}
		}
	}
	for _, st := range parentSet.SameType() {
		if err := set.Add(requirement.SameType(st.Subject, st.Other).WithSource(parent)); err != nil {
			return err
		}
	}
	return nil
}

func entryRequirement(e Entry, subj requirement.Subject, origin requirement.Origin, source string) requirement.Requirement {
	if e.Inverse {
		return requirement.Inverse(subj, e.Capability, origin).WithSource(source)
	}
	return requirement.Conforms(subj, e.Capability, origin).WithSource(source)
}
