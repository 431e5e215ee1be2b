package declgraph

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/moveonly/sigil/capability"
)

// Model is a loaded graph file: the capability registry (frozen) and the
// declaration graph, ready to hand to a resolver.
type Model struct {
	Registry *capability.Registry
	Graph    *Graph
}

// File is the top-level YAML document.
type File struct {
	// Capabilities registers additional capabilities beyond the built-in
	// Copyable.
	Capabilities []CapabilityConfig `yaml:"capabilities,omitempty"`

	// Declarations is the declaration graph.
	Declarations []DeclarationConfig `yaml:"declarations"`
}

// CapabilityConfig registers one capability.
type CapabilityConfig struct {
	// Name of the capability (e.g. "Escapable"). Must be unique; "Copyable"
	// is reserved for the built-in.
	Name string `yaml:"name"`

	// Inverse declares the ~ operator for the capability.
	Inverse bool `yaml:"inverse,omitempty"`

	// MemberContainment requires every stored member of a struct or enum to
	// hold the capability for the type itself to hold it.
	MemberContainment bool `yaml:"member_containment,omitempty"`

	// Defaults lists the subject kinds the capability's default applies to:
	// structural-param, class-param, protocol-self, associated-type.
	// Omitted means the capability has no defaults.
	Defaults []string `yaml:"defaults,omitempty"`
}

// DeclarationConfig is one declaration.
type DeclarationConfig struct {
	Name string `yaml:"name"`

	// Kind is one of: function, struct, enum, class, actor, protocol,
	// extension.
	Kind string `yaml:"kind"`

	Params  []ParamConfig  `yaml:"params,omitempty"`
	Members []MemberConfig `yaml:"members,omitempty"`

	// Conforms and Without are the declaration's own explicit capability
	// annotations. For protocols they attach to Self.
	Conforms []string `yaml:"conforms,omitempty"`
	Without  []string `yaml:"without,omitempty"`

	Inherits []string `yaml:"inherits,omitempty"`
	Extends  string   `yaml:"extends,omitempty"`

	Associated []AssociatedConfig `yaml:"associated,omitempty"`

	// ExtensionDefaults is the declaration's custom default clause, injected
	// into extensions, inheritors, constrained parameters and existentials.
	// At most one clause per declaration; its entries share the clause.
	ExtensionDefaults []DefaultEntryConfig `yaml:"extension_defaults,omitempty"`

	Requires  []RequireConfig  `yaml:"requires,omitempty"`
	SameTypes []SameTypeConfig `yaml:"same_types,omitempty"`
}

// ParamConfig is one generic parameter.
type ParamConfig struct {
	Name        string   `yaml:"name"`
	Constraints []string `yaml:"constraints,omitempty"`

	// Without cancels the named capabilities' defaults at the declaration
	// site (~C).
	Without []string `yaml:"without,omitempty"`

	// Conforms writes explicit positive requirements on the parameter.
	Conforms []string `yaml:"conforms,omitempty"`

	// Drop cancels the extension-default fragments contributed by the named
	// source protocols.
	Drop []DropConfig `yaml:"drop,omitempty"`
}

// DropConfig targets one contributed fragment.
type DropConfig struct {
	Protocol string `yaml:"protocol"`
	// Capability narrows the cancellation to one capability. Omitted drops
	// everything the source contributes.
	Capability string `yaml:"capability,omitempty"`
}

// MemberConfig is one stored member. Exactly one of Param or Type is set.
type MemberConfig struct {
	Name string `yaml:"name"`

	// Param references a generic parameter of the declaration.
	Param string `yaml:"param,omitempty"`

	// Type references a concrete declaration, optionally applied to Args.
	Type string          `yaml:"type,omitempty"`
	Args []TypeRefConfig `yaml:"args,omitempty"`
}

// TypeRefConfig is a nested type reference inside member type arguments.
type TypeRefConfig struct {
	Param string          `yaml:"param,omitempty"`
	Type  string          `yaml:"type,omitempty"`
	Args  []TypeRefConfig `yaml:"args,omitempty"`
}

// AssociatedConfig is one associated type of a protocol.
type AssociatedConfig struct {
	Name        string   `yaml:"name"`
	Constraints []string `yaml:"constraints,omitempty"`
	Without     []string `yaml:"without,omitempty"`
}

// DefaultEntryConfig is one entry of an extension-default clause.
type DefaultEntryConfig struct {
	Subject    string `yaml:"subject"`
	Capability string `yaml:"capability"`
	Inverse    bool   `yaml:"inverse,omitempty"`
}

// RequireConfig is one explicitly written requirement.
type RequireConfig struct {
	Subject    string `yaml:"subject"`
	Capability string `yaml:"capability"`
	Inverse    bool   `yaml:"inverse,omitempty"`
}

// SameTypeConfig is one same-type clause.
type SameTypeConfig struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// Load reads and validates a graph file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return m, nil
}

// Parse decodes and validates a graph document.
func Parse(data []byte) (*Model, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing graph file")
	}
	reg := capability.NewRegistry()
	for _, cc := range f.Capabilities {
		if cc.Name == "" {
			return nil, errors.New("capability with empty name")
		}
		kinds, err := parseSubjectKinds(cc.Defaults)
		if err != nil {
			return nil, errors.Wrapf(err, "capability %s", cc.Name)
		}
		var opts []capability.Option
		if cc.Inverse {
			opts = append(opts, capability.WithInverse())
		}
		if cc.MemberContainment {
			opts = append(opts, capability.WithMemberContainment())
		}
		if err := reg.Register(capability.New(cc.Name, opts...), kinds...); err != nil {
			return nil, err
		}
	}
	reg.Freeze()

	decls := make([]*Declaration, 0, len(f.Declarations))
	for _, dc := range f.Declarations {
		d, err := dc.build(reg)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	g, err := NewGraph(decls...)
	if err != nil {
		return nil, err
	}
	return &Model{Registry: reg, Graph: g}, nil
}

func (dc DeclarationConfig) build(reg *capability.Registry) (*Declaration, error) {
	kind, err := parseDeclKind(dc.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, "declaration %s", dc.Name)
	}
	d := &Declaration{
		Name:     dc.Name,
		Kind:     kind,
		Conforms: dc.Conforms,
		Without:  dc.Without,
		Inherits: dc.Inherits,
		Extends:  dc.Extends,
	}
	for _, name := range append(append([]string{}, dc.Conforms...), dc.Without...) {
		if _, ok := reg.Lookup(name); !ok {
			return nil, errors.Newf("declaration %s: unknown capability %s", dc.Name, name)
		}
	}
	for _, pc := range dc.Params {
		p := GenericParam{Name: pc.Name, Constraints: pc.Constraints, Without: pc.Without, Conforms: pc.Conforms}
		for _, name := range append(append([]string{}, pc.Without...), pc.Conforms...) {
			if _, ok := reg.Lookup(name); !ok {
				return nil, errors.Newf("declaration %s: parameter %s names unknown capability %s", dc.Name, pc.Name, name)
			}
		}
		for _, drop := range pc.Drop {
			p.Drop = append(p.Drop, FragmentRef{Protocol: drop.Protocol, Capability: drop.Capability})
		}
		d.Params = append(d.Params, p)
	}
	for _, mc := range dc.Members {
		ref, err := mc.ref()
		if err != nil {
			return nil, errors.Wrapf(err, "declaration %s", dc.Name)
		}
		d.Members = append(d.Members, StoredMember{Name: mc.Name, Type: ref})
	}
	for _, ac := range dc.Associated {
		d.Associated = append(d.Associated, AssociatedType{Name: ac.Name, Constraints: ac.Constraints, Without: ac.Without})
	}
	if len(dc.ExtensionDefaults) > 0 {
		ed := &ExtensionDefault{}
		for _, ec := range dc.ExtensionDefaults {
			if _, ok := reg.Lookup(ec.Capability); !ok {
				return nil, errors.Newf("declaration %s: extension default names unknown capability %s", dc.Name, ec.Capability)
			}
			ed.Entries = append(ed.Entries, DefaultEntry{Subject: ec.Subject, Capability: ec.Capability, Inverse: ec.Inverse})
		}
		d.ExtensionDefault = ed
	}
	for _, rc := range dc.Requires {
		if _, ok := reg.Lookup(rc.Capability); !ok {
			return nil, errors.Newf("declaration %s: requirement names unknown capability %s", dc.Name, rc.Capability)
		}
		d.Requires = append(d.Requires, RequireClause{Subject: rc.Subject, Capability: rc.Capability, Inverse: rc.Inverse})
	}
	for _, sc := range dc.SameTypes {
		d.SameTypes = append(d.SameTypes, SameTypeClause{Left: sc.Left, Right: sc.Right})
	}
	return d, nil
}

func (mc MemberConfig) ref() (TypeRef, error) {
	if (mc.Param == "") == (mc.Type == "") {
		return TypeRef{}, errors.Newf("member %s: exactly one of param or type is required", mc.Name)
	}
	if mc.Param != "" {
		if len(mc.Args) > 0 {
			return TypeRef{}, errors.Newf("member %s: parameter references take no args", mc.Name)
		}
		return ParamRef(mc.Param), nil
	}
	args, err := buildArgs(mc.Args)
	if err != nil {
		return TypeRef{}, errors.Wrapf(err, "member %s", mc.Name)
	}
	return TypeRef{Decl: mc.Type, Args: args}, nil
}

func buildArgs(configs []TypeRefConfig) ([]TypeRef, error) {
	var out []TypeRef
	for _, tc := range configs {
		if (tc.Param == "") == (tc.Type == "") {
			return nil, errors.New("type argument: exactly one of param or type is required")
		}
		if tc.Param != "" {
			out = append(out, ParamRef(tc.Param))
			continue
		}
		args, err := buildArgs(tc.Args)
		if err != nil {
			return nil, err
		}
		out = append(out, TypeRef{Decl: tc.Type, Args: args})
	}
	return out, nil
}

func parseDeclKind(s string) (DeclKind, error) {
	switch s {
	case "function":
		return KindFunction, nil
	case "struct":
		return KindStruct, nil
	case "enum":
		return KindEnum, nil
	case "class":
		return KindClass, nil
	case "actor":
		return KindActor, nil
	case "protocol":
		return KindProtocol, nil
	case "extension":
		return KindExtension, nil
	default:
		return 0, errors.Newf("unknown declaration kind %q", s)
	}
}

func parseSubjectKinds(names []string) ([]capability.SubjectKind, error) {
	var out []capability.SubjectKind
	for _, name := range names {
		switch name {
		case "structural-param":
			out = append(out, capability.StructuralParam)
		case "class-param":
			out = append(out, capability.ClassParam)
		case "protocol-self":
			out = append(out, capability.ProtocolSelf)
		case "associated-type":
			out = append(out, capability.AssociatedType)
		case "all":
			out = append(out, capability.DefaultableKinds...)
		default:
			return nil, errors.Newf("unknown subject kind %q", name)
		}
	}
	return out, nil
}
