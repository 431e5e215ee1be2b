package declgraph

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Provider is the read-only declaration source the engine resolves against.
// Implementations must be safe for concurrent reads; the engine never
// writes through this interface.
type Provider interface {
	Declaration(name string) (*Declaration, bool)
	Names() []string
}

// Graph is an in-memory Provider.
type Graph struct {
	decls map[string]*Declaration
}

// NewGraph builds a graph from declarations, validating name uniqueness and
// cross-references (constraints, inheritance, extensions, member types).
func NewGraph(decls ...*Declaration) (*Graph, error) {
	g := &Graph{decls: make(map[string]*Declaration, len(decls))}
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.New("declaration with empty name")
		}
		if _, ok := g.decls[d.Name]; ok {
			return nil, errors.Newf("duplicate declaration %s", d.Name)
		}
		g.decls[d.Name] = d
	}
	for _, d := range g.decls {
		if err := g.validate(d); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) validate(d *Declaration) error {
	for _, p := range d.Params {
		for _, c := range p.Constraints {
			if err := g.requireKind(d, c, KindProtocol, "constraint"); err != nil {
				return err
			}
		}
		for _, ref := range p.Drop {
			if err := g.requireKind(d, ref.Protocol, KindProtocol, "fragment cancellation"); err != nil {
				return err
			}
		}
	}
	for _, a := range d.Associated {
		for _, c := range a.Constraints {
			if err := g.requireKind(d, c, KindProtocol, "constraint"); err != nil {
				return err
			}
		}
	}
	for _, parent := range d.Inherits {
		if d.Kind != KindProtocol {
			return errors.Newf("%s %s: only protocols inherit", d.Kind, d.Name)
		}
		if err := g.requireKind(d, parent, KindProtocol, "inheritance"); err != nil {
			return err
		}
	}
	if d.Kind == KindExtension {
		if d.Extends == "" {
			return errors.Newf("extension %s: missing extended declaration", d.Name)
		}
		if _, ok := g.decls[d.Extends]; !ok {
			return errors.Newf("extension %s: unknown declaration %s", d.Name, d.Extends)
		}
	} else if d.Extends != "" {
		return errors.Newf("%s %s: only extensions extend", d.Kind, d.Name)
	}
	for _, m := range d.Members {
		if err := g.validateRef(d, m.Name, m.Type); err != nil {
			return err
		}
	}
	if d.ExtensionDefault != nil && d.Kind == KindFunction {
		return errors.Newf("function %s: functions cannot declare extension defaults", d.Name)
	}
	return nil
}

func (g *Graph) validateRef(d *Declaration, member string, ref TypeRef) error {
	if ref.IsParam() {
		if _, ok := d.Param(ref.Param); !ok {
			return errors.Newf("%s: member %s references unknown parameter %s", d.Name, member, ref.Param)
		}
		return nil
	}
	if _, ok := g.decls[ref.Decl]; !ok {
		return errors.Newf("%s: member %s references unknown type %s", d.Name, member, ref.Decl)
	}
	for _, a := range ref.Args {
		if err := g.validateRef(d, member, a); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) requireKind(d *Declaration, name string, kind DeclKind, what string) error {
	ref, ok := g.decls[name]
	if !ok {
		return errors.Newf("%s: %s references unknown declaration %s", d.Name, what, name)
	}
	if ref.Kind != kind {
		return errors.Newf("%s: %s %s is a %s, expected %s", d.Name, what, name, ref.Kind, kind)
	}
	return nil
}

func (g *Graph) Declaration(name string) (*Declaration, bool) {
	d, ok := g.decls[name]
	return d, ok
}

// Names returns the declaration names sorted for deterministic iteration.
func (g *Graph) Names() []string {
	out := make([]string, 0, len(g.decls))
	for name := range g.decls {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
