package conformance

import (
	"errors"
	"testing"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
)

func testGraph(t *testing.T) (*capability.Registry, *declgraph.Graph) {
	t.Helper()
	reg := capability.NewRegistry().Freeze()
	g, err := declgraph.NewGraph(
		&declgraph.Declaration{Name: "Int", Kind: declgraph.KindStruct},
		&declgraph.Declaration{
			Name:    "Resource",
			Kind:    declgraph.KindStruct,
			Without: []string{"Copyable"},
		},
		// One parameter opts out of the default; conformance becomes
		// conditional on the parameters.
		&declgraph.Declaration{
			Name:    "Box",
			Kind:    declgraph.KindStruct,
			Params:  []declgraph.GenericParam{{Name: "T", Without: []string{"Copyable"}}},
			Members: []declgraph.StoredMember{{Name: "value", Type: declgraph.ParamRef("T")}},
		},
		// Only A is stored, but the synthesized bound covers B as well.
		&declgraph.Declaration{
			Name: "Pair",
			Kind: declgraph.KindStruct,
			Params: []declgraph.GenericParam{
				{Name: "A", Without: []string{"Copyable"}},
				{Name: "B"},
			},
			Members: []declgraph.StoredMember{{Name: "first", Type: declgraph.ParamRef("A")}},
		},
		&declgraph.Declaration{
			Name:     "Holder",
			Kind:     declgraph.KindStruct,
			Conforms: []string{"Copyable"},
			Members:  []declgraph.StoredMember{{Name: "r", Type: declgraph.DeclRef("Resource")}},
		},
		&declgraph.Declaration{
			Name:    "Wrapper",
			Kind:    declgraph.KindStruct,
			Members: []declgraph.StoredMember{{Name: "b", Type: declgraph.DeclRef("Box", declgraph.DeclRef("Resource"))}},
		},
		&declgraph.Declaration{
			Name:    "Node",
			Kind:    declgraph.KindStruct,
			Members: []declgraph.StoredMember{{Name: "next", Type: declgraph.DeclRef("Node")}},
		},
		&declgraph.Declaration{
			Name:    "Handle",
			Kind:    declgraph.KindClass,
			Members: []declgraph.StoredMember{{Name: "r", Type: declgraph.DeclRef("Resource")}},
		},
		&declgraph.Declaration{
			Name:    "Pinned",
			Kind:    declgraph.KindActor,
			Without: []string{"Copyable"},
		},
	)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return reg, g
}

func findConformance(confs []Conformance, cap string) (Conformance, bool) {
	for _, c := range confs {
		if c.Capability.Name() == cap {
			return c, true
		}
	}
	return Conformance{}, false
}

func TestSynthesizeUnconditional(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Int")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	conf, ok := findConformance(confs, "Copyable")
	if !ok {
		t.Fatal("Int should conform to Copyable")
	}
	if !conf.Unconditional() || !conf.Synthesized {
		t.Errorf("Int conformance = %+v, want unconditional synthesized", conf)
	}
}

func TestSynthesizeSkipsOptedOutType(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Resource")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, ok := findConformance(confs, "Copyable"); ok {
		t.Error("a type declared without Copyable must not conform")
	}
}

func TestSynthesizeConditionalOnEveryParam(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Pair")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	conf, ok := findConformance(confs, "Copyable")
	if !ok {
		t.Fatal("Pair should conditionally conform to Copyable")
	}
	if len(conf.Conditions) != 2 {
		t.Fatalf("conditions = %v, want a bound for every parameter regardless of storage", conf.Conditions)
	}
	for i, want := range []string{"A", "B"} {
		if conf.Conditions[i].Subject.Root != want {
			t.Errorf("condition[%d] on %s, want %s", i, conf.Conditions[i].Subject.Root, want)
		}
	}
}

func TestSynthesizeRejectsUncopyableMember(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Holder")
	_, err := s.Synthesize(decl)
	var unsyn *diag.UnsynthesizableConformanceError
	if !errors.As(err, &unsyn) {
		t.Fatalf("Synthesize(Holder) = %v, want unsynthesizable conformance", err)
	}
	if unsyn.Member != "r" || unsyn.CapabilityName != "Copyable" {
		t.Errorf("error = %+v", unsyn)
	}
}

func TestSynthesizeRejectsTransitivelyUncopyableMember(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Wrapper")
	_, err := s.Synthesize(decl)
	var unsyn *diag.UnsynthesizableConformanceError
	if !errors.As(err, &unsyn) {
		t.Fatalf("Synthesize(Wrapper) = %v, want unsynthesizable conformance", err)
	}
}

func TestSynthesizeToleratesRecursiveTypes(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Node")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize(Node): %v", err)
	}
	if _, ok := findConformance(confs, "Copyable"); !ok {
		t.Error("recursive member cycles resolve optimistically")
	}
}

func TestReferenceTypesConformUnconditionally(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Handle")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize(Handle): %v", err)
	}
	conf, ok := findConformance(confs, "Copyable")
	if !ok {
		t.Fatal("a class conforms regardless of its stored members")
	}
	if !conf.Unconditional() {
		t.Error("reference conformance must be unconditional")
	}
}

func TestReferenceInverseConflictsByDefault(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)

	decl, _ := g.Declaration("Pinned")
	_, err := s.Synthesize(decl)
	var conflict *diag.ConflictingRequirementError
	if !errors.As(err, &conflict) {
		t.Fatalf("Synthesize(Pinned) = %v, want conflict", err)
	}
}

func TestReferenceInverseAllowedByFlag(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, true)

	decl, _ := g.Declaration("Pinned")
	confs, err := s.Synthesize(decl)
	if err != nil {
		t.Fatalf("Synthesize(Pinned): %v", err)
	}
	if _, ok := findConformance(confs, "Copyable"); ok {
		t.Error("with the opt-out permitted, Pinned must not conform")
	}
}

func TestSatisfies(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)
	cp := reg.Copyable()

	tests := []struct {
		name  string
		decl  string
		subst map[string]declgraph.TypeRef
		want  bool
	}{
		{"box of int", "Box", map[string]declgraph.TypeRef{"T": declgraph.DeclRef("Int")}, true},
		{"box of resource", "Box", map[string]declgraph.TypeRef{"T": declgraph.DeclRef("Resource")}, false},
		{"box of box of int", "Box", map[string]declgraph.TypeRef{"T": declgraph.DeclRef("Box", declgraph.DeclRef("Int"))}, true},
		{"box of box of resource", "Box", map[string]declgraph.TypeRef{"T": declgraph.DeclRef("Box", declgraph.DeclRef("Resource"))}, false},
		{"unconditional ignores subst", "Int", nil, true},
		{"class of anything", "Handle", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Satisfies(tt.decl, cp, tt.subst)
			if err != nil {
				t.Fatalf("Satisfies: %v", err)
			}
			if got != tt.want {
				t.Errorf("Satisfies = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSatisfiesUnderSpecified(t *testing.T) {
	reg, g := testGraph(t)
	s := NewSynthesizer(reg, g, false)
	cp := reg.Copyable()

	_, err := s.Satisfies("Box", cp, nil)
	var under *diag.UnderSpecifiedInstantiationError
	if !errors.As(err, &under) {
		t.Fatalf("Satisfies with missing substitution = %v, want under-specified", err)
	}
	if under.Param != "T" {
		t.Errorf("param = %s, want T", under.Param)
	}

	_, err = s.Satisfies("Box", cp, map[string]declgraph.TypeRef{"T": declgraph.ParamRef("U")})
	if !errors.As(err, &under) {
		t.Fatalf("Satisfies with parameter substitution = %v, want under-specified", err)
	}
}
