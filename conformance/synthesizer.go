// Package conformance synthesizes capability conformances for type
// declarations: unconditional for ordinary types, conditional on every
// generic parameter when a parameter's default was cancelled, and rejected
// when a concretely-typed stored member can never satisfy the capability.
//
// Class and actor declarations are exempt from containment analysis
// entirely: reference indirection copies the reference, not the payload, so
// they are always eligible for unconditional conformance.
package conformance

import (
	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/requirement"
)

// Conformance is one synthesized or explicitly declared fact: the
// declaration conforms to the capability whenever the conditions hold of
// its parameters. No Conditions means unconditional.
type Conformance struct {
	Decl        string
	Capability  *capability.Capability
	Conditions  []requirement.Requirement
	Synthesized bool
}

func (c Conformance) Unconditional() bool { return len(c.Conditions) == 0 }

// Synthesizer computes conformances against a frozen registry and a
// read-only declaration graph. Safe for concurrent use.
type Synthesizer struct {
	reg      *capability.Registry
	provider declgraph.Provider

	// classInverse permits reference declarations to state an explicit
	// inverse and opt out of a capability. When false (the default) such an
	// annotation is a conflict: reference types always conform.
	classInverse bool
}

func NewSynthesizer(reg *capability.Registry, provider declgraph.Provider, classInverse bool) *Synthesizer {
	return &Synthesizer{reg: reg, provider: provider, classInverse: classInverse}
}

// Synthesize computes the declaration's conformance to every registered
// capability. Only type declarations (struct, enum, class, actor) carry
// conformances; for other kinds it returns nil.
func (s *Synthesizer) Synthesize(decl *declgraph.Declaration) ([]Conformance, error) {
	if !decl.Kind.Structural() && !decl.Kind.Reference() {
		return nil, nil
	}
	var out []Conformance
	for _, cap := range s.reg.All() {
		conf, ok, err := s.synthesizeOne(decl, cap)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, conf)
		}
	}
	return out, nil
}

func (s *Synthesizer) synthesizeOne(decl *declgraph.Declaration, cap *capability.Capability) (Conformance, bool, error) {
	explicit := contains(decl.Conforms, cap.Name())
	inverse := contains(decl.Without, cap.Name())

	if decl.Kind.Reference() {
		if inverse {
			if !s.classInverse {
				return Conformance{}, false, diag.NewConflictingRequirement(
					decl.Name, cap.Name(), []string{decl.Name},
					"reference types conform unconditionally and cannot drop the default")
			}
			return Conformance{}, false, nil
		}
		// Unconditional regardless of parameter and member capability state.
		return Conformance{Decl: decl.Name, Capability: cap, Synthesized: !explicit}, true, nil
	}

	if inverse {
		// Permanently non-conforming unless the author supplies an explicit
		// conditional conformance extension, which is checked separately.
		return Conformance{}, false, nil
	}

	if explicit {
		// Unconditional by declaration; still unsound if a stored member can
		// never satisfy the capability.
		if err := s.checkMembers(decl, cap); err != nil {
			return Conformance{}, false, err
		}
		return Conformance{Decl: decl.Name, Capability: cap}, true, nil
	}

	// No annotation: conformance exists only where the capability
	// participates in defaulting for this flavor of declaration.
	if !s.reg.DefaultApplies(cap, defaulting(decl.Kind)) {
		return Conformance{}, false, nil
	}

	cancelled := false
	for _, p := range decl.Params {
		if contains(p.Without, cap.Name()) {
			cancelled = true
			break
		}
	}
	conf := Conformance{Decl: decl.Name, Capability: cap, Synthesized: true}
	if cancelled {
		// Every generic parameter gets the synthesized bound, irrespective
		// of whether it is actually stored.
		for _, p := range decl.Params {
			subj := requirement.TypeParam(p.Name)
			conf.Conditions = append(conf.Conditions, requirement.Conforms(subj, cap, requirement.OriginExplicit))
		}
	}
	if cap.MembersMustConform() {
		if err := s.checkMembers(decl, cap); err != nil {
			return Conformance{}, false, err
		}
	}
	return conf, true, nil
}

// checkMembers rejects the conformance when any concretely-typed stored
// member, transitively, can never satisfy the capability.
func (s *Synthesizer) checkMembers(decl *declgraph.Declaration, cap *capability.Capability) error {
	for _, m := range decl.Members {
		ever, err := s.conformsEver(m.Type, cap, map[string]bool{decl.Name: true})
		if err != nil {
			return err
		}
		if !ever {
			return diag.NewUnsynthesizableConformance(decl.Name, cap.Name(), m.Name, m.Type.String())
		}
	}
	return nil
}

// conformsEver reports whether some instantiation of the referenced type
// satisfies the capability. Parameters are always satisfiable: the
// synthesized conditions bind them. Cycles through recursive types are
// permitted and resolved optimistically.
func (s *Synthesizer) conformsEver(ref declgraph.TypeRef, cap *capability.Capability, visited map[string]bool) (bool, error) {
	if ref.IsParam() {
		return true, nil
	}
	if visited[ref.Decl] {
		return true, nil
	}
	decl, ok := s.provider.Declaration(ref.Decl)
	if !ok {
		return false, errors.Newf("conformance: unknown declaration %s", ref.Decl)
	}
	if decl.Kind.Reference() {
		return true, nil
	}
	if contains(decl.Without, cap.Name()) {
		return false, nil
	}
	if contains(decl.Conforms, cap.Name()) {
		return true, nil
	}
	visited[ref.Decl] = true
	defer delete(visited, ref.Decl)

	// Arguments substitute the declaration's parameters positionally; an
	// argument that can never conform poisons every stored use of its
	// parameter. Over-approximating (checking args independently of usage)
	// matches the parameter-bound synthesis rule.
	for _, arg := range ref.Args {
		ever, err := s.conformsEver(arg, cap, visited)
		if err != nil {
			return false, err
		}
		if !ever {
			return false, nil
		}
	}
	if decl.Kind.Structural() && cap.MembersMustConform() {
		for _, m := range decl.Members {
			if m.Type.IsParam() {
				continue
			}
			ever, err := s.conformsEver(m.Type, cap, visited)
			if err != nil {
				return false, err
			}
			if !ever {
				return false, nil
			}
		}
	}
	return true, nil
}

func defaulting(kind declgraph.DeclKind) capability.SubjectKind {
	if kind.Reference() {
		return capability.ClassParam
	}
	return capability.StructuralParam
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
