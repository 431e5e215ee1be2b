package capability

import "testing"

func TestNewRegistryPreRegistersCopyable(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(CopyableName)
	if !ok {
		t.Fatal("Copyable not registered")
	}
	if c != reg.Copyable() {
		t.Error("Lookup and Copyable return different identities")
	}
	if !c.Invertible() {
		t.Error("Copyable must be invertible")
	}
	if !c.MembersMustConform() {
		t.Error("Copyable must require member containment")
	}
	for _, k := range DefaultableKinds {
		if !reg.DefaultApplies(c, k) {
			t.Errorf("Copyable default should apply to %s", k)
		}
	}
	if reg.DefaultApplies(c, Concrete) {
		t.Error("defaults never apply to concrete subjects")
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(New("Escapable", WithInverse())); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(New("Escapable")); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
	if err := reg.Register(New(CopyableName)); err == nil {
		t.Error("expected Copyable re-registration to be rejected")
	}
}

func TestRegisterRejectsConcreteDefault(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(New("Escapable"), Concrete); err == nil {
		t.Error("expected default for concrete subjects to be rejected")
	}
}

func TestRegisterAfterFreeze(t *testing.T) {
	reg := NewRegistry().Freeze()
	if !reg.Frozen() {
		t.Fatal("registry not frozen")
	}
	if err := reg.Register(New("Escapable")); err == nil {
		t.Error("expected registration after Freeze to fail")
	}
}

func TestCapabilityIdentityNotName(t *testing.T) {
	a := New("Escapable")
	b := New("Escapable")
	if a == b {
		t.Fatal("two constructions must be distinct identities")
	}
	reg := NewRegistry()
	if err := reg.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := reg.Lookup("Escapable")
	if !ok || got != a {
		t.Error("Lookup must return the registered identity")
	}
	if reg.DefaultApplies(b, StructuralParam) {
		t.Error("an unregistered capability with a taken name has no defaults")
	}
}

func TestDefaultAppliesPerKind(t *testing.T) {
	reg := NewRegistry()
	esc := New("Escapable", WithInverse())
	if err := reg.Register(esc, StructuralParam, ProtocolSelf); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tests := []struct {
		kind SubjectKind
		want bool
	}{
		{StructuralParam, true},
		{ClassParam, false},
		{ProtocolSelf, true},
		{AssociatedType, false},
		{Concrete, false},
	}
	for _, tt := range tests {
		if got := reg.DefaultApplies(esc, tt.kind); got != tt.want {
			t.Errorf("DefaultApplies(Escapable, %s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestAllSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"Zeta", "Alpha", "Escapable"} {
		if err := reg.Register(New(name)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	all := reg.All()
	want := []string{"Alpha", CopyableName, "Escapable", "Zeta"}
	if len(all) != len(want) {
		t.Fatalf("All() returned %d capabilities, want %d", len(all), len(want))
	}
	for i, c := range all {
		if c.Name() != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, c.Name(), want[i])
		}
	}
}
