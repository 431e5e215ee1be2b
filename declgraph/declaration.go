// Package declgraph models the read-only declaration graph the engine
// resolves against: declarations, their generic parameters, stored members,
// protocol structure and extension-default clauses.
//
// Graphs come from an embedding front-end (any Provider implementation) or
// from the YAML format in this package.
package declgraph

import "fmt"

// DeclKind is the kind of a declaration.
type DeclKind int

const (
	KindFunction DeclKind = iota
	KindStruct
	KindEnum
	KindClass
	KindActor
	KindProtocol
	KindExtension
)

func (k DeclKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindClass:
		return "class"
	case KindActor:
		return "actor"
	case KindProtocol:
		return "protocol"
	case KindExtension:
		return "extension"
	default:
		return fmt.Sprintf("DeclKind(%d)", int(k))
	}
}

// Structural reports whether the kind stores its members inline, making
// capability conformance depend on member containment.
func (k DeclKind) Structural() bool { return k == KindStruct || k == KindEnum }

// Reference reports whether the kind is a reference type. Reference types
// conform to capabilities unconditionally regardless of parameters and
// stored members.
func (k DeclKind) Reference() bool { return k == KindClass || k == KindActor }

// TypeRef names either a generic parameter in scope or a concrete
// declaration, optionally applied to type arguments (e.g. Box<Elm, Int>).
type TypeRef struct {
	Param string
	Decl  string
	Args  []TypeRef
}

// ParamRef builds a reference to a generic parameter.
func ParamRef(name string) TypeRef { return TypeRef{Param: name} }

// DeclRef builds a reference to a concrete declaration.
func DeclRef(name string, args ...TypeRef) TypeRef { return TypeRef{Decl: name, Args: args} }

func (t TypeRef) IsParam() bool { return t.Param != "" }

func (t TypeRef) String() string {
	name := t.Param
	if name == "" {
		name = t.Decl
	}
	if len(t.Args) == 0 {
		return name
	}
	s := name + "<"
	for i, a := range t.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ">"
}

// StoredMember is one stored property of a struct, enum, class or actor.
type StoredMember struct {
	Name string
	Type TypeRef
}

// FragmentRef names an extension-default fragment by its source protocol,
// optionally narrowed to one capability. Used for targeted cancellation.
type FragmentRef struct {
	Protocol   string
	Capability string // "" means every capability the source contributes
}

// GenericParam is one generic parameter of a declaration.
type GenericParam struct {
	Name string
	// Constraints lists protocols the parameter must conform to.
	Constraints []string
	// Without lists capabilities whose default is cancelled at the
	// declaration site (~C). The default is omitted, not negated.
	Without []string
	// Conforms lists explicit positive capability requirements written on
	// the parameter.
	Conforms []string
	// Drop cancels extension-default fragments contributed by the named
	// source protocols, leaving other sources and the standard default
	// untouched.
	Drop []FragmentRef
}

// AssociatedType is one associated type of a protocol.
type AssociatedType struct {
	Name        string
	Constraints []string
	Without     []string
}

// DefaultEntry is one clause of an extension-default fragment, rooted at
// the declaring type's Self.
type DefaultEntry struct {
	Subject    string // e.g. "Self.A"
	Capability string
	Inverse    bool
}

// ExtensionDefault is the at-most-one custom default clause a declaration
// may carry. Its entries are injected into extensions, inheritors,
// constrained generic parameters and existentials of the declaring type.
type ExtensionDefault struct {
	Entries []DefaultEntry
}

// RequireClause is an explicitly written requirement on a subject of the
// declaration ("Self.A", "T", "T.*").
type RequireClause struct {
	Subject    string
	Capability string
	Inverse    bool
}

// SameTypeClause states that two subjects are identical.
type SameTypeClause struct {
	Left  string
	Right string
}

// Declaration is one node of the graph.
type Declaration struct {
	Name string
	Kind DeclKind

	Params  []GenericParam
	Members []StoredMember

	// Conforms and Without are the declaration's own explicit capability
	// annotations (D: C, D: ~C). For protocols they attach to Self.
	Conforms []string
	Without  []string

	// Inherits lists directly-inherited protocols (protocol declarations
	// only).
	Inherits []string
	// Extends names the extended declaration (extension declarations only).
	Extends string

	Associated []AssociatedType

	ExtensionDefault *ExtensionDefault

	Requires  []RequireClause
	SameTypes []SameTypeClause
}

// Param looks up a generic parameter by name.
func (d *Declaration) Param(name string) (GenericParam, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return GenericParam{}, false
}

// AssociatedNames returns the declared associated-type names in order.
func (d *Declaration) AssociatedNames() []string {
	out := make([]string, 0, len(d.Associated))
	for _, a := range d.Associated {
		out = append(out, a.Name)
	}
	return out
}
