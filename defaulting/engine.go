// Package defaulting computes the implicit requirement baseline for generic
// subjects and applies inverse operators that cancel specific defaults.
//
// An inverse is the absence of a default, never a negative fact: cancelling
// a default broadens permitted substitutions back to unconstrained. A
// subject syntactically marked with a capability's inverse at its
// declaration simply never receives that default.
package defaulting

import (
	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/requirement"
)

// Engine attaches implicit defaults and applies inverses against one frozen
// registry. Safe for concurrent use.
type Engine struct {
	reg *capability.Registry
}

func NewEngine(reg *capability.Registry) *Engine {
	return &Engine{reg: reg}
}

func (e *Engine) Registry() *capability.Registry { return e.reg }

// Baseline adds the implicit default requirements for one subject into the
// set. without lists capability names whose default is cancelled at the
// subject's declaration site; for those the default is omitted, not
// replaced by a negative fact.
func (e *Engine) Baseline(set *requirement.Set, subj requirement.Subject, without []string) error {
	skip := make(map[string]bool, len(without))
	for _, name := range without {
		cap, ok := e.reg.Lookup(name)
		if !ok {
			return errors.Newf("defaulting: unknown capability %s on %s", name, subj.Key())
		}
		if !cap.Invertible() {
			return errors.Newf("defaulting: capability %s has no inverse operator (on %s)", name, subj.Key())
		}
		skip[name] = true
	}
	for _, cap := range e.reg.All() {
		if skip[cap.Name()] {
			continue
		}
		if !e.reg.DefaultApplies(cap, subj.Kind) {
			continue
		}
		if err := set.Add(requirement.Conforms(subj, cap, requirement.OriginDefault)); err != nil {
			return err
		}
	}
	return nil
}

// ApplyInverse cancels the subject's default conformance to the capability,
// including defaults contributed by extension-default propagation. Explicit
// and inherited positive requirements are not cancellable and raise
// *diag.ConflictingRequirementError. Applying an inverse where no default
// is present is a legal no-op, and applying it twice is the same as once.
func (e *Engine) ApplyInverse(set *requirement.Set, subj requirement.Subject, cap *capability.Capability) error {
	if !cap.Invertible() {
		return errors.Newf("defaulting: capability %s has no inverse operator (on %s)", cap.Name(), subj.Key())
	}
	return set.Add(requirement.Inverse(subj, cap, requirement.OriginExplicit))
}

// SubjectKindFor classifies a declaration's generic parameters: reference
// declarations yield class parameters, everything else structural ones.
func SubjectKindFor(reference bool) capability.SubjectKind {
	if reference {
		return capability.ClassParam
	}
	return capability.StructuralParam
}
