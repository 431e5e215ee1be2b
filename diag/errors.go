// Package diag defines the structured errors reported during requirement
// resolution and the sink interface collaborators implement to receive them.
//
// Errors are reported by value and carry the offending subject, capability
// and participating declarations. Rendering them as source-level diagnostics
// is the front-end's job; this package never formats user-facing text beyond
// the plain Error() string.
package diag

import (
	"fmt"
	"strings"
)

// Kind classifies a resolution error.
type Kind int

const (
	KindConflictingRequirement Kind = iota
	KindUnsynthesizableConformance
	KindUnderSpecifiedInstantiation
	KindCyclicRequirement
)

func (k Kind) String() string {
	switch k {
	case KindConflictingRequirement:
		return "ConflictingRequirement"
	case KindUnsynthesizableConformance:
		return "UnsynthesizableConformance"
	case KindUnderSpecifiedInstantiation:
		return "UnderSpecifiedInstantiation"
	case KindCyclicRequirement:
		return "CyclicRequirement"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is implemented by every resolution error in this package.
type Error interface {
	error
	Kind() Kind
	// Subject is the canonical key of the offending subject ("" when the
	// error is not subject-specific).
	Subject() string
	// Capability is the name of the capability involved ("" when none).
	Capability() string
	// Declarations lists the declarations participating in the error.
	Declarations() []string
}

// ConflictingRequirementError reports an explicit positive requirement and an
// explicit or inherited inverse targeting the same (subject, capability) pair
// in a scope that cannot reconcile them, or two extension-default fragments
// that disagree.
type ConflictingRequirementError struct {
	SubjectKey     string
	CapabilityName string
	Decls          []string
	Detail         string
}

func NewConflictingRequirement(subject, capability string, decls []string, detail string) *ConflictingRequirementError {
	return &ConflictingRequirementError{
		SubjectKey:     subject,
		CapabilityName: capability,
		Decls:          decls,
		Detail:         detail,
	}
}

func (e *ConflictingRequirementError) Error() string {
	msg := fmt.Sprintf("conflicting requirement: %s and ~%s both apply to %s", e.CapabilityName, e.CapabilityName, e.SubjectKey)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if len(e.Decls) > 0 {
		msg += " in " + strings.Join(e.Decls, ", ")
	}
	return msg
}

func (e *ConflictingRequirementError) Kind() Kind             { return KindConflictingRequirement }
func (e *ConflictingRequirementError) Subject() string        { return e.SubjectKey }
func (e *ConflictingRequirementError) Capability() string     { return e.CapabilityName }
func (e *ConflictingRequirementError) Declarations() []string { return e.Decls }

// UnsynthesizableConformanceError reports that automatic conditional
// conformance synthesis would be unsound because a concretely-typed stored
// member never satisfies the capability. The fix is an explicit inverse on
// the declaration itself.
type UnsynthesizableConformanceError struct {
	Decl           string
	CapabilityName string
	Member         string
	MemberType     string
}

func NewUnsynthesizableConformance(decl, capability, member, memberType string) *UnsynthesizableConformanceError {
	return &UnsynthesizableConformanceError{
		Decl:           decl,
		CapabilityName: capability,
		Member:         member,
		MemberType:     memberType,
	}
}

func (e *UnsynthesizableConformanceError) Error() string {
	return fmt.Sprintf(
		"cannot synthesize %s conformance for %s: stored member %q of type %s never conforms to %s; declare %s: ~%s explicitly",
		e.CapabilityName, e.Decl, e.Member, e.MemberType, e.CapabilityName, e.Decl, e.CapabilityName)
}

func (e *UnsynthesizableConformanceError) Kind() Kind             { return KindUnsynthesizableConformance }
func (e *UnsynthesizableConformanceError) Subject() string        { return e.Decl }
func (e *UnsynthesizableConformanceError) Capability() string     { return e.CapabilityName }
func (e *UnsynthesizableConformanceError) Declarations() []string { return []string{e.Decl} }

// UnderSpecifiedInstantiationError reports an instantiation query that omits
// a generic placeholder the declaration's signature requires to be fixed.
type UnderSpecifiedInstantiationError struct {
	Decl  string
	Param string
}

func NewUnderSpecifiedInstantiation(decl, param string) *UnderSpecifiedInstantiationError {
	return &UnderSpecifiedInstantiationError{Decl: decl, Param: param}
}

func (e *UnderSpecifiedInstantiationError) Error() string {
	return fmt.Sprintf("under-specified instantiation of %s: generic parameter %s is not fixed", e.Decl, e.Param)
}

func (e *UnderSpecifiedInstantiationError) Kind() Kind             { return KindUnderSpecifiedInstantiation }
func (e *UnderSpecifiedInstantiationError) Subject() string        { return e.Param }
func (e *UnderSpecifiedInstantiationError) Capability() string     { return "" }
func (e *UnderSpecifiedInstantiationError) Declarations() []string { return []string{e.Decl} }

// CyclicRequirementError reports a same-type or bottomless-subject expansion
// that produced an unresolvable infinite or contradictory chain.
type CyclicRequirementError struct {
	SubjectKey     string
	CapabilityName string
	Chain          []string
}

func NewCyclicRequirement(subject, capability string, chain []string) *CyclicRequirementError {
	return &CyclicRequirementError{SubjectKey: subject, CapabilityName: capability, Chain: chain}
}

func (e *CyclicRequirementError) Error() string {
	msg := fmt.Sprintf("cyclic requirement on %s", e.SubjectKey)
	if e.CapabilityName != "" {
		msg += " for " + e.CapabilityName
	}
	if len(e.Chain) > 0 {
		msg += ": " + strings.Join(e.Chain, " -> ")
	}
	return msg
}

func (e *CyclicRequirementError) Kind() Kind             { return KindCyclicRequirement }
func (e *CyclicRequirementError) Subject() string        { return e.SubjectKey }
func (e *CyclicRequirementError) Capability() string     { return e.CapabilityName }
func (e *CyclicRequirementError) Declarations() []string { return e.Chain }
