package requirement

import (
	"fmt"

	"github.com/moveonly/sigil/capability"
)

// Kind is the kind of a single requirement.
type Kind int

const (
	// KindConforms is a positive conformance: Subject conforms to Capability.
	KindConforms Kind = iota
	// KindInverse cancels the subject's default conformance to a capability.
	// It is not a narrowing constraint: it broadens permitted substitutions
	// back to unconstrained, and is never a fact that forbids conforming
	// types.
	KindInverse
	// KindSameType states that Subject and Other are identical.
	KindSameType
)

func (k Kind) String() string {
	switch k {
	case KindConforms:
		return "conforms"
	case KindInverse:
		return "inverse"
	case KindSameType:
		return "same-type"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Origin records where a requirement came from. Origin decides whether an
// inverse can cancel it and who wins when requirements collide.
type Origin int

const (
	// OriginDefault is the implicit baseline attached by subject kind.
	OriginDefault Origin = iota
	// OriginFragment was merged from an extension-default clause. Like a
	// default, it is cancellable by an inverse.
	OriginFragment
	// OriginSameType was propagated across a same-type edge. Not cancellable.
	OriginSameType
	// OriginInherited was expanded from a directly-inherited protocol's
	// resolved signature. Expanded, not inherited: it behaves as explicit on
	// the inheritor and an inverse there conflicts instead of cancelling.
	OriginInherited
	// OriginExplicit was written by the author.
	OriginExplicit
)

func (o Origin) String() string {
	switch o {
	case OriginDefault:
		return "default"
	case OriginFragment:
		return "fragment"
	case OriginSameType:
		return "same-type"
	case OriginInherited:
		return "inherited"
	case OriginExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Cancellable reports whether an inverse removes a positive requirement of
// this origin. Only defaults and fragment-merged defaults are cancellable;
// everything else conflicts.
func (o Origin) Cancellable() bool {
	return o == OriginDefault || o == OriginFragment
}

// rank orders origins by strength when two positives collide. The stronger
// origin is kept so that a later inverse sees the hardest fact.
func (o Origin) rank() int {
	switch o {
	case OriginDefault:
		return 0
	case OriginFragment:
		return 1
	case OriginSameType:
		return 2
	case OriginInherited:
		return 3
	case OriginExplicit:
		return 4
	default:
		return -1
	}
}

// Requirement is a single resolved fact about a subject.
type Requirement struct {
	Subject    Subject
	Kind       Kind
	Capability *capability.Capability // nil for same-type requirements
	Other      Subject                // partner of a same-type requirement
	Origin     Origin
	// Source names the declaration that contributed a fragment or inherited
	// requirement. Targeted cancellation removes fragments by source.
	Source string
}

// Conforms builds a positive conformance requirement.
func Conforms(subj Subject, cap *capability.Capability, origin Origin) Requirement {
	return Requirement{Subject: subj, Kind: KindConforms, Capability: cap, Origin: origin}
}

// Inverse builds a cancellation of the subject's default for a capability.
func Inverse(subj Subject, cap *capability.Capability, origin Origin) Requirement {
	return Requirement{Subject: subj, Kind: KindInverse, Capability: cap, Origin: origin}
}

// SameType builds a same-type requirement between two subjects.
func SameType(a, b Subject) Requirement {
	return Requirement{Subject: a, Kind: KindSameType, Other: b, Origin: OriginExplicit}
}

// WithSource tags the requirement with its contributing declaration.
func (r Requirement) WithSource(source string) Requirement {
	r.Source = source
	return r
}

func (r Requirement) String() string {
	switch r.Kind {
	case KindConforms:
		return fmt.Sprintf("%s: %s", r.Subject.Key(), r.Capability.Name())
	case KindInverse:
		return fmt.Sprintf("%s: ~%s", r.Subject.Key(), r.Capability.Name())
	case KindSameType:
		return fmt.Sprintf("%s == %s", r.Subject.Key(), r.Other.Key())
	default:
		return fmt.Sprintf("%s: ?", r.Subject.Key())
	}
}
