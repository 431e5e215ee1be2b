package declgraph

import (
	"strings"
	"testing"
)

func TestNewGraphValidation(t *testing.T) {
	proto := func(name string) *Declaration { return &Declaration{Name: name, Kind: KindProtocol} }

	tests := []struct {
		name    string
		decls   []*Declaration
		wantErr string
	}{
		{
			name:    "empty name",
			decls:   []*Declaration{{Kind: KindStruct}},
			wantErr: "empty name",
		},
		{
			name:    "duplicate name",
			decls:   []*Declaration{proto("P"), {Name: "P", Kind: KindStruct}},
			wantErr: "duplicate",
		},
		{
			name: "constraint must be a protocol",
			decls: []*Declaration{
				{Name: "Int", Kind: KindStruct},
				{Name: "Box", Kind: KindStruct, Params: []GenericParam{{Name: "T", Constraints: []string{"Int"}}}},
			},
			wantErr: "expected protocol",
		},
		{
			name:    "unknown constraint",
			decls:   []*Declaration{{Name: "Box", Kind: KindStruct, Params: []GenericParam{{Name: "T", Constraints: []string{"P"}}}}},
			wantErr: "unknown declaration",
		},
		{
			name:    "only protocols inherit",
			decls:   []*Declaration{proto("P"), {Name: "S", Kind: KindStruct, Inherits: []string{"P"}}},
			wantErr: "only protocols inherit",
		},
		{
			name:    "extension needs target",
			decls:   []*Declaration{{Name: "E", Kind: KindExtension}},
			wantErr: "missing extended declaration",
		},
		{
			name:    "only extensions extend",
			decls:   []*Declaration{proto("P"), {Name: "S", Kind: KindStruct, Extends: "P"}},
			wantErr: "only extensions extend",
		},
		{
			name: "member references unknown parameter",
			decls: []*Declaration{
				{Name: "Box", Kind: KindStruct, Members: []StoredMember{{Name: "v", Type: ParamRef("T")}}},
			},
			wantErr: "unknown parameter",
		},
		{
			name: "member references unknown type",
			decls: []*Declaration{
				{Name: "Box", Kind: KindStruct, Members: []StoredMember{{Name: "v", Type: DeclRef("Nope")}}},
			},
			wantErr: "unknown type",
		},
		{
			name: "functions cannot declare extension defaults",
			decls: []*Declaration{
				{Name: "f", Kind: KindFunction, ExtensionDefault: &ExtensionDefault{}},
			},
			wantErr: "cannot declare extension defaults",
		},
		{
			name: "valid graph",
			decls: []*Declaration{
				proto("P"),
				{Name: "Int", Kind: KindStruct},
				{Name: "Box", Kind: KindStruct,
					Params:  []GenericParam{{Name: "T", Constraints: []string{"P"}}},
					Members: []StoredMember{{Name: "v", Type: DeclRef("Box", ParamRef("T"))}}},
				{Name: "Q", Kind: KindProtocol, Inherits: []string{"P"}},
				{Name: "BoxExt", Kind: KindExtension, Extends: "Box"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.decls...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewGraph: %v", err)
				}
				if got := len(g.Names()); got != len(tt.decls) {
					t.Errorf("Names() = %d, want %d", got, len(tt.decls))
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewGraph = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTypeRefString(t *testing.T) {
	tests := []struct {
		ref  TypeRef
		want string
	}{
		{ParamRef("T"), "T"},
		{DeclRef("Int"), "Int"},
		{DeclRef("Box", ParamRef("T")), "Box<T>"},
		{DeclRef("Map", DeclRef("Int"), DeclRef("Box", ParamRef("U"))), "Map<Int, Box<U>>"},
	}
	for _, tt := range tests {
		if got := tt.ref.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
