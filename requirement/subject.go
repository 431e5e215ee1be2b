// Package requirement implements subjects, requirements and requirement
// sets: the algebraic values a resolved signature is made of.
//
// A Set is built incrementally in a fixed order (implicit baseline, then
// extension-default fragments, then explicit requirements, then same-type
// closure) and frozen once resolution completes. Each re-resolution builds
// a fresh Set; frozen sets are shared read-only.
package requirement

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
)

// SelfName is the root name of a protocol's implicit Self subject.
const SelfName = "Self"

// BottomlessSuffix marks a subject denoting a type and every type
// transitively reachable from it via member lookup.
const BottomlessSuffix = ".*"

// Subject is anything a requirement can attach to: a generic type
// parameter, the implicit Self of a protocol, an associated type reached
// through a member chain, or a concrete type.
type Subject struct {
	Root       string
	Kind       capability.SubjectKind
	Path       []string
	Bottomless bool
}

// TypeParam builds a subject for a generic parameter of a struct, enum or
// function.
func TypeParam(name string) Subject {
	return Subject{Root: name, Kind: capability.StructuralParam}
}

// ClassParam builds a subject for a generic parameter of a class or actor.
func ClassParam(name string) Subject {
	return Subject{Root: name, Kind: capability.ClassParam}
}

// Self builds the implicit Self subject of a protocol.
func Self() Subject {
	return Subject{Root: SelfName, Kind: capability.ProtocolSelf}
}

// Concrete builds a subject for a fully concrete type.
func Concrete(name string) Subject {
	return Subject{Root: name, Kind: capability.Concrete}
}

// Member descends one step through the subject's member chain, producing an
// associated-type subject (e.g. Self -> Self.Body -> Self.Body.Body).
func (s Subject) Member(name string) Subject {
	path := make([]string, 0, len(s.Path)+1)
	path = append(path, s.Path...)
	path = append(path, name)
	return Subject{Root: s.Root, Kind: capability.AssociatedType, Path: path, Bottomless: s.Bottomless}
}

// AllMembers returns the bottomless form of the subject: the subject itself
// plus every type reachable through its declared member chains.
func (s Subject) AllMembers() Subject {
	s.Bottomless = true
	return s
}

// Rebase grafts the subject's member chain onto another subject. Fragment
// propagation uses it to turn a protocol-rooted Self.B into T.B when the
// fragment lands on a constrained parameter T, or into Self.A.B when it
// lands on an associated type Self.A.
func (s Subject) Rebase(onto Subject) Subject {
	path := make([]string, 0, len(onto.Path)+len(s.Path))
	path = append(path, onto.Path...)
	path = append(path, s.Path...)
	out := Subject{Root: onto.Root, Kind: onto.Kind, Path: path, Bottomless: s.Bottomless || onto.Bottomless}
	if len(out.Path) > 0 {
		out.Kind = capability.AssociatedType
	}
	return out
}

// Key is the canonical identity of the subject ("T", "Self.Body.Body",
// "T.*"). Two subjects with equal keys are the same subject.
func (s Subject) Key() string {
	var b strings.Builder
	b.WriteString(s.Root)
	for _, p := range s.Path {
		b.WriteByte('.')
		b.WriteString(p)
	}
	if s.Bottomless {
		b.WriteString(BottomlessSuffix)
	}
	return b.String()
}

func (s Subject) String() string { return s.Key() }

func (s Subject) Equal(o Subject) bool { return s.Key() == o.Key() }

// ParseSubject parses a canonical subject key. The kind is inferred from
// shape: a "Self" root is ProtocolSelf, any member chain is AssociatedType,
// and a bare root defaults to StructuralParam. Callers that know better
// (class parameters, concrete roots) adjust the kind afterwards.
func ParseSubject(key string) (Subject, error) {
	bottomless := false
	if strings.HasSuffix(key, BottomlessSuffix) {
		bottomless = true
		key = strings.TrimSuffix(key, BottomlessSuffix)
	}
	if key == "" {
		return Subject{}, errors.New("empty subject")
	}
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return Subject{}, errors.Newf("malformed subject %q", key)
		}
	}
	s := Subject{Root: parts[0], Path: parts[1:], Bottomless: bottomless}
	switch {
	case len(s.Path) > 0:
		s.Kind = capability.AssociatedType
	case s.Root == SelfName:
		s.Kind = capability.ProtocolSelf
	default:
		s.Kind = capability.StructuralParam
	}
	return s, nil
}
