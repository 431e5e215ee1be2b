package conformance

import (
	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
)

// maxInstantiationDepth bounds recursion through nested type arguments.
// Deeper chains indicate a malformed graph and are rejected rather than
// relying on the call stack.
const maxInstantiationDepth = 64

// Satisfies reports whether a fully-substituted instantiation of the
// declaration conforms to the capability. subst maps each generic parameter
// name to a concrete type reference; omitting a parameter the conformance
// conditions need raises *diag.UnderSpecifiedInstantiationError.
func (s *Synthesizer) Satisfies(declName string, cap *capability.Capability, subst map[string]declgraph.TypeRef) (bool, error) {
	decl, ok := s.provider.Declaration(declName)
	if !ok {
		return false, errors.Newf("conformance: unknown declaration %s", declName)
	}
	conf, ok, err := s.synthesizeOne(decl, cap)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if conf.Unconditional() {
		return true, nil
	}
	for _, cond := range conf.Conditions {
		param := cond.Subject.Root
		ref, ok := subst[param]
		if !ok {
			return false, diag.NewUnderSpecifiedInstantiation(declName, param)
		}
		holds, err := s.RefSatisfies(declName, ref, cap)
		if err != nil {
			return false, err
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}

// RefSatisfies evaluates a concrete type reference against the capability.
func (s *Synthesizer) RefSatisfies(owner string, ref declgraph.TypeRef, cap *capability.Capability) (bool, error) {
	return s.refSatisfies(owner, ref, cap, 0)
}

func (s *Synthesizer) refSatisfies(owner string, ref declgraph.TypeRef, cap *capability.Capability, depth int) (bool, error) {
	if depth > maxInstantiationDepth {
		return false, diag.NewCyclicRequirement(ref.String(), cap.Name(), []string{owner})
	}
	if ref.IsParam() {
		// A substitution value naming a parameter is not fully substituted.
		return false, diag.NewUnderSpecifiedInstantiation(owner, ref.Param)
	}
	decl, ok := s.provider.Declaration(ref.Decl)
	if !ok {
		return false, errors.Newf("conformance: unknown declaration %s", ref.Decl)
	}
	conf, ok, err := s.synthesizeOne(decl, cap)
	if err != nil {
		// An unsynthesizable member type simply does not conform here; the
		// defect is reported where the type itself is resolved.
		if errors.HasType(err, (*diag.UnsynthesizableConformanceError)(nil)) {
			return false, nil
		}
		return false, err
	}
	if !ok {
		return false, nil
	}
	if conf.Unconditional() {
		return true, nil
	}
	// Conditional: every parameter of the referenced declaration must be
	// fixed by the reference's arguments and satisfy the capability.
	for i, p := range decl.Params {
		if i >= len(ref.Args) {
			return false, diag.NewUnderSpecifiedInstantiation(ref.Decl, p.Name)
		}
		holds, err := s.refSatisfies(ref.Decl, ref.Args[i], cap, depth+1)
		if err != nil {
			return false, err
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}
