package requirement

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
)

// Encoded is the flat, serializable form of a requirement, used by the
// persistent signature cache. Capabilities are encoded by name and rebound
// against a registry on decode; identity survives because registries are
// frozen for the lifetime of a cache.
type Encoded struct {
	Subject    string `json:"subject"`
	Kind       string `json:"kind"`
	Capability string `json:"capability,omitempty"`
	Other      string `json:"other,omitempty"`
	Origin     int    `json:"origin"`
	Source     string `json:"source,omitempty"`
	Bottomless bool   `json:"bottomless,omitempty"`
}

// Encode flattens the set's resolved requirements plus recorded inverses.
// Inverses are carried so a decoded set answers Inverse queries the same
// way the original did.
func (s *Set) Encode() []Encoded {
	var out []Encoded
	for _, subj := range s.Subjects() {
		st := s.subjects[subj.Key()]
		for _, name := range sortedCapNames(st) {
			cs := st.caps[name]
			if cs.positive != nil {
				out = append(out, encodeOne(*cs.positive))
			}
			if cs.inverse != nil {
				out = append(out, encodeOne(*cs.inverse))
			}
		}
	}
	for _, r := range s.sameType {
		out = append(out, encodeOne(r))
	}
	return out
}

func sortedCapNames(st *subjectState) []string {
	names := make([]string, 0, len(st.caps))
	for name := range st.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func encodeOne(r Requirement) Encoded {
	e := Encoded{
		Subject:    r.Subject.Key(),
		Kind:       r.Kind.String(),
		Origin:     int(r.Origin),
		Source:     r.Source,
		Bottomless: r.Subject.Bottomless,
	}
	if r.Capability != nil {
		e.Capability = r.Capability.Name()
	}
	if r.Kind == KindSameType {
		e.Other = r.Other.Key()
	}
	return e
}

// Decode rebuilds a frozen set from its encoded form against a registry.
func Decode(owner string, items []Encoded, reg *capability.Registry) (*Set, error) {
	set := NewSet(owner)
	for _, e := range items {
		subj, err := ParseSubject(e.Subject)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding requirement for %s", owner)
		}
		switch e.Kind {
		case KindSameType.String():
			other, err := ParseSubject(e.Other)
			if err != nil {
				return nil, errors.Wrapf(err, "decoding same-type partner for %s", owner)
			}
			if err := set.Add(SameType(subj, other)); err != nil {
				return nil, err
			}
		case KindConforms.String(), KindInverse.String():
			cap, ok := reg.Lookup(e.Capability)
			if !ok {
				return nil, errors.Newf("decoding %s: capability %s is not registered", owner, e.Capability)
			}
			r := Requirement{Subject: subj, Capability: cap, Origin: Origin(e.Origin), Source: e.Source}
			if e.Kind == KindInverse.String() {
				r.Kind = KindInverse
			}
			if err := set.Add(r); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Newf("decoding %s: unknown requirement kind %q", owner, e.Kind)
		}
	}
	return set.Freeze(), nil
}
