// Package capability implements the registry of layout capabilities and
// their default-applicability rules.
//
// A capability is a markerlike trait with no method requirements (the
// canonical one is Copyable). Capabilities are compared by identity, never
// structurally: two registrations with the same name are two different
// capabilities, which the registry rejects. The registry is populated once
// at startup, frozen, and then shared read-only across every resolution.
package capability

import "fmt"

// CopyableName is the name of the pre-registered Copyable capability.
const CopyableName = "Copyable"

// SubjectKind identifies what a requirement can attach to. Default
// applicability is keyed by subject kind.
type SubjectKind int

const (
	// StructuralParam is a generic parameter of a struct, enum or function.
	StructuralParam SubjectKind = iota
	// ClassParam is a generic parameter of a class or actor.
	ClassParam
	// ProtocolSelf is the implicit Self of a protocol or existential.
	ProtocolSelf
	// AssociatedType is an associated type of a protocol, including nested
	// member chains like Self.Body.Body.
	AssociatedType
	// Concrete is a fully concrete type. No defaults ever apply.
	Concrete
)

// DefaultableKinds lists the subject kinds a capability default can apply to.
var DefaultableKinds = []SubjectKind{StructuralParam, ClassParam, ProtocolSelf, AssociatedType}

func (k SubjectKind) String() string {
	switch k {
	case StructuralParam:
		return "structural-param"
	case ClassParam:
		return "class-param"
	case ProtocolSelf:
		return "protocol-self"
	case AssociatedType:
		return "associated-type"
	case Concrete:
		return "concrete"
	default:
		return fmt.Sprintf("SubjectKind(%d)", int(k))
	}
}

// Capability is a registered layout capability. The zero value is not
// usable; construct with New and register before freezing the registry.
type Capability struct {
	name               string
	invertible         bool
	membersMustConform bool
}

// Option configures a capability at construction time.
type Option func(*Capability)

// WithInverse declares the ~ operator for the capability. Only invertible
// capabilities may have their defaults cancelled or appear in extension
// defaults.
func WithInverse() Option {
	return func(c *Capability) { c.invertible = true }
}

// WithMemberContainment sets the structural containment rule: conformance of
// a struct or enum requires every stored member to independently hold the
// capability. Class and actor subjects conform unconditionally regardless of
// this rule, since reference indirection always permits copying the
// reference rather than the payload.
func WithMemberContainment() Option {
	return func(c *Capability) { c.membersMustConform = true }
}

// New creates an unregistered capability. Identity is the *Capability
// pointer itself.
func New(name string, opts ...Option) *Capability {
	c := &Capability{name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Capability) Name() string { return c.name }

// Invertible reports whether the capability declares an inverse operator.
func (c *Capability) Invertible() bool { return c.invertible }

// MembersMustConform reports the structural containment rule.
func (c *Capability) MembersMustConform() bool { return c.membersMustConform }

func (c *Capability) String() string { return c.name }
