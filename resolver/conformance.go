package resolver

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/requirement"
)

// maxBottomlessVisits bounds the lazy expansion of a bottomless constraint
// over one instantiation. Cycles through recursive types are tolerated via
// the visited set; exceeding the bound means the chain genuinely diverges.
const maxBottomlessVisits = 1024

// Conformance reports whether a fully-substituted instantiation of the
// declaration satisfies the capability. subst maps generic parameter names
// to concrete type references; for protocols and protocol extensions it
// binds "Self" to the conforming type. Type declarations answer through
// their synthesized conformances; for other declarations every positive
// requirement for the capability must hold under the substitution, and
// bottomless constraints are expanded lazily here.
func (r *Resolver) Conformance(ctx context.Context, name string, cap *capability.Capability, subst map[string]declgraph.TypeRef) (bool, error) {
	sig, err := r.Resolve(ctx, name)
	if err != nil {
		return false, err
	}
	decl, ok := r.cfg.Provider.Declaration(name)
	if !ok {
		return false, errors.Newf("resolver: unknown declaration %s", name)
	}

	if decl.Kind.Structural() || decl.Kind.Reference() {
		return r.synth.Satisfies(name, cap, subst)
	}

	// Requirement-signature check for functions, protocols and extensions:
	// each positive requirement for the capability rooted at Self or at a
	// generic parameter must be satisfied by its substitution. Extension
	// subjects are scoped by the extended declaration's parameters.
	owner := r.paramDecl(decl)
	for _, subj := range sig.Requirements.Subjects() {
		pos, ok := sig.Requirements.Positive(subj, cap)
		if !ok {
			continue
		}
		if subj.Root != requirement.SelfName {
			if _, isParam := owner.Param(subj.Root); !isParam {
				continue
			}
		}
		ref, ok := subst[subj.Root]
		if !ok {
			return false, diag.NewUnderSpecifiedInstantiation(name, subj.Root)
		}
		if len(subj.Path) > 0 {
			// Member-chain requirements need the front-end's associated-type
			// bindings; the engine checks the root conservatively.
			continue
		}
		if subj.Bottomless {
			holds, err := r.bottomless(name, ref, pos.Capability)
			if err != nil || !holds {
				return holds, err
			}
			continue
		}
		holds, err := r.synth.RefSatisfies(name, ref, cap)
		if err != nil || !holds {
			return holds, err
		}
	}
	return true, nil
}

// bottomless checks a Subject.* constraint against one instantiation: the
// substituted type and every type transitively reachable through its stored
// members must satisfy the capability.
func (r *Resolver) bottomless(owner string, ref declgraph.TypeRef, cap *capability.Capability) (bool, error) {
	visited := make(map[string]bool)
	queue := []declgraph.TypeRef{ref}
	for len(queue) > 0 {
		if len(visited) > maxBottomlessVisits {
			return false, diag.NewCyclicRequirement(ref.String()+requirement.BottomlessSuffix, cap.Name(), []string{owner})
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.IsParam() {
			return false, diag.NewUnderSpecifiedInstantiation(owner, cur.Param)
		}
		if visited[cur.String()] {
			continue
		}
		visited[cur.String()] = true

		holds, err := r.synth.RefSatisfies(owner, cur, cap)
		if err != nil || !holds {
			return holds, err
		}
		decl, ok := r.cfg.Provider.Declaration(cur.Decl)
		if !ok {
			return false, errors.Newf("resolver: unknown declaration %s", cur.Decl)
		}
		for _, m := range decl.Members {
			next, ok := substituteRef(m.Type, decl, cur.Args)
			if !ok {
				return false, diag.NewUnderSpecifiedInstantiation(cur.Decl, m.Type.Param)
			}
			queue = append(queue, next)
		}
		queue = append(queue, cur.Args...)
	}
	return true, nil
}

// substituteRef replaces parameter references with the positional arguments
// of the enclosing reference.
func substituteRef(ref declgraph.TypeRef, decl *declgraph.Declaration, args []declgraph.TypeRef) (declgraph.TypeRef, bool) {
	if ref.IsParam() {
		for i, p := range decl.Params {
			if p.Name == ref.Param && i < len(args) {
				return args[i], true
			}
		}
		return declgraph.TypeRef{}, false
	}
	out := declgraph.TypeRef{Decl: ref.Decl}
	for _, a := range ref.Args {
		sub, ok := substituteRef(a, decl, args)
		if !ok {
			return declgraph.TypeRef{}, false
		}
		out.Args = append(out.Args, sub)
	}
	return out, true
}

// ExistentialSignature resolves the implicit Self signature of an
// existential erased to the named protocol: the protocol's defaults plus
// its extension-default fragment, both cancellable by the existential's
// user.
func (r *Resolver) ExistentialSignature(ctx context.Context, proto string) (*requirement.Set, error) {
	decl, ok := r.cfg.Provider.Declaration(proto)
	if !ok {
		return nil, errors.Newf("resolver: unknown declaration %s", proto)
	}
	if decl.Kind != declgraph.KindProtocol {
		return nil, errors.Newf("resolver: %s is a %s, existentials erase protocols", proto, decl.Kind)
	}
	set := requirement.NewSet(proto + ".any")
	if err := r.engine.Baseline(set, requirement.Self(), decl.Without); err != nil {
		return nil, err
	}
	for _, a := range decl.Associated {
		if err := r.engine.Baseline(set, requirement.Self().Member(a.Name), a.Without); err != nil {
			return nil, err
		}
	}
	if err := r.prop.ApplyToExistential(set, proto); err != nil {
		return nil, err
	}
	return set.Freeze(), nil
}
