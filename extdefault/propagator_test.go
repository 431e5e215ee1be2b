package extdefault

import (
	"errors"
	"testing"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/requirement"
)

func testWorld(t *testing.T) (*capability.Registry, *declgraph.Graph) {
	t.Helper()
	reg := capability.NewRegistry()
	if err := reg.Register(capability.New("Sendable")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	g, err := declgraph.NewGraph(
		// Conforming types lose the Copyable default unless they restate it.
		&declgraph.Declaration{
			Name: "NoCopy",
			Kind: declgraph.KindProtocol,
			ExtensionDefault: &declgraph.ExtensionDefault{
				Entries: []declgraph.DefaultEntry{{Subject: "Self", Capability: "Copyable", Inverse: true}},
			},
		},
		&declgraph.Declaration{
			Name: "MustCopy",
			Kind: declgraph.KindProtocol,
			ExtensionDefault: &declgraph.ExtensionDefault{
				Entries: []declgraph.DefaultEntry{{Subject: "Self", Capability: "Copyable"}},
			},
		},
		// A fragment reaching through an associated type.
		&declgraph.Declaration{
			Name: "Sequence",
			Kind: declgraph.KindProtocol,
			ExtensionDefault: &declgraph.ExtensionDefault{
				Entries: []declgraph.DefaultEntry{{Subject: "Self.Element", Capability: "Copyable", Inverse: true}},
			},
		},
		&declgraph.Declaration{Name: "Plain", Kind: declgraph.KindProtocol},
		&declgraph.Declaration{
			Name: "BadRoot",
			Kind: declgraph.KindProtocol,
			ExtensionDefault: &declgraph.ExtensionDefault{
				Entries: []declgraph.DefaultEntry{{Subject: "T", Capability: "Copyable"}},
			},
		},
		&declgraph.Declaration{
			Name: "BadCap",
			Kind: declgraph.KindProtocol,
			ExtensionDefault: &declgraph.ExtensionDefault{
				Entries: []declgraph.DefaultEntry{{Subject: "Self", Capability: "Sendable"}},
			},
		},
	)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return reg.Freeze(), g
}

func TestFragmentOf(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)

	frag, err := p.FragmentOf("NoCopy")
	if err != nil {
		t.Fatalf("FragmentOf: %v", err)
	}
	if frag == nil || len(frag.Entries) != 1 {
		t.Fatalf("fragment = %+v", frag)
	}
	if frag.Source != "NoCopy" || !frag.Entries[0].Inverse {
		t.Errorf("fragment = %+v", frag)
	}

	frag, err = p.FragmentOf("Plain")
	if err != nil || frag != nil {
		t.Errorf("FragmentOf(Plain) = %v, %v, want nil fragment", frag, err)
	}

	if _, err := p.FragmentOf("BadRoot"); err == nil {
		t.Error("fragment subjects must be rooted at Self")
	}
	if _, err := p.FragmentOf("BadCap"); err == nil {
		t.Error("fragments may only use invertible capabilities")
	}
}

func TestApplyToParamCancelsDefault(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()
	subj := requirement.TypeParam("T")

	set := requirement.NewSet("Use")
	if err := set.Add(requirement.Conforms(subj, cp, requirement.OriginDefault)); err != nil {
		t.Fatal(err)
	}
	param := declgraph.GenericParam{Name: "T", Constraints: []string{"NoCopy"}}
	if err := p.ApplyToParam(set, subj, param); err != nil {
		t.Fatalf("ApplyToParam: %v", err)
	}
	if set.Requires(subj, cp) {
		t.Error("the fragment inverse should cancel the parameter's default")
	}
	inv, ok := set.Inverse(subj, cp)
	if !ok || inv.Origin != requirement.OriginFragment || inv.Source != "NoCopy" {
		t.Errorf("recorded inverse = %+v", inv)
	}
}

func TestApplyToParamRebasesMemberChains(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()
	subj := requirement.TypeParam("T")

	set := requirement.NewSet("Use")
	param := declgraph.GenericParam{Name: "T", Constraints: []string{"Sequence"}}
	if err := p.ApplyToParam(set, subj, param); err != nil {
		t.Fatalf("ApplyToParam: %v", err)
	}
	// Self.Element re-roots to T.Element.
	if _, ok := set.Inverse(subj.Member("Element"), cp); !ok {
		t.Error("fragment entry should land on T.Element")
	}
}

func TestFragmentsStayCancellable(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()
	subj := requirement.TypeParam("T")

	set := requirement.NewSet("Use")
	param := declgraph.GenericParam{Name: "T", Constraints: []string{"MustCopy"}}
	if err := p.ApplyToParam(set, subj, param); err != nil {
		t.Fatalf("ApplyToParam: %v", err)
	}
	// A fragment positive behaves like a default: a later explicit inverse
	// cancels it without conflict.
	if err := set.Add(requirement.Inverse(subj, cp, requirement.OriginExplicit)); err != nil {
		t.Fatalf("inverse after fragment: %v", err)
	}
	if set.Requires(subj, cp) {
		t.Error("fragment positive should be cancelled")
	}
}

func TestDisagreeingSourcesConflict(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	subj := requirement.TypeParam("T")

	set := requirement.NewSet("Use")
	param := declgraph.GenericParam{Name: "T", Constraints: []string{"MustCopy", "NoCopy"}}
	err := p.ApplyToParam(set, subj, param)
	var conflict *diag.ConflictingRequirementError
	if !errors.As(err, &conflict) {
		t.Fatalf("ApplyToParam = %v, want conflict between sources", err)
	}
}

func TestDropCancelsOneSource(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()
	subj := requirement.TypeParam("T")

	set := requirement.NewSet("Use")
	param := declgraph.GenericParam{
		Name:        "T",
		Constraints: []string{"NoCopy", "Sequence"},
		Drop:        []declgraph.FragmentRef{{Protocol: "NoCopy"}},
	}
	if err := p.ApplyToParam(set, subj, param); err != nil {
		t.Fatalf("ApplyToParam: %v", err)
	}
	if _, ok := set.Inverse(subj, cp); ok {
		t.Error("NoCopy's contribution should be dropped")
	}
	if _, ok := set.Inverse(subj.Member("Element"), cp); !ok {
		t.Error("Sequence's contribution should survive")
	}
}

func TestExpandInheritanceHardensFragment(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()

	parentSet := requirement.NewSet("MustCopy").Freeze()
	child := requirement.NewSet("Child")
	if err := p.ExpandInheritance(child, "MustCopy", parentSet); err != nil {
		t.Fatalf("ExpandInheritance: %v", err)
	}
	pos, ok := child.Positive(requirement.Self(), cp)
	if !ok || pos.Origin != requirement.OriginInherited {
		t.Fatalf("expanded entry = %+v, want inherited positive", pos)
	}
	// Expanded, not inherited: an inverse on the child conflicts instead of
	// cancelling.
	err := child.Add(requirement.Inverse(requirement.Self(), cp, requirement.OriginExplicit))
	var conflict *diag.ConflictingRequirementError
	if !errors.As(err, &conflict) {
		t.Fatalf("inverse after expansion = %v, want conflict", err)
	}
}

func TestExpandInheritanceCopiesExplicitOnly(t *testing.T) {
	reg, g := testWorld(t)
	p := NewPropagator(reg, g)
	cp := reg.Copyable()

	parentSet := requirement.NewSet("Plain")
	if err := parentSet.Add(requirement.Conforms(requirement.Self(), cp, requirement.OriginDefault)); err != nil {
		t.Fatal(err)
	}
	if err := parentSet.Add(requirement.Conforms(requirement.Self().Member("A"), cp, requirement.OriginExplicit)); err != nil {
		t.Fatal(err)
	}
	if err := parentSet.Add(requirement.SameType(requirement.Self().Member("A"), requirement.Self().Member("B"))); err != nil {
		t.Fatal(err)
	}
	parentSet.Freeze()

	child := requirement.NewSet("Child")
	if err := p.ExpandInheritance(child, "Plain", parentSet); err != nil {
		t.Fatalf("ExpandInheritance: %v", err)
	}
	// The parent's default is not copied: absence of a requirement is never
	// inherited, and the child computes its own baseline.
	if child.Requires(requirement.Self(), cp) {
		t.Error("parent defaults must not be expanded into the child")
	}
	pos, ok := child.Positive(requirement.Self().Member("A"), cp)
	if !ok || pos.Origin != requirement.OriginInherited || pos.Source != "Plain" {
		t.Errorf("expanded explicit = %+v", pos)
	}
	if got := len(child.SameType()); got != 1 {
		t.Errorf("same-type edges = %d, want 1", got)
	}
}
