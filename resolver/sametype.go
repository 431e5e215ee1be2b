package resolver

import (
	"sort"

	"github.com/moveonly/sigil/requirement"
)

// sameTypeClosure propagates positive requirements transitively across the
// set's same-type edges. Inverses never cross an edge: an inverse on one
// side cannot cancel a positive required independently on the other side,
// it can only conflict with the propagated positive when it is explicit.
func (r *Resolver) sameTypeClosure(set *requirement.Set) error {
	edges := set.SameType()
	if len(edges) == 0 {
		return nil
	}

	// Union-find over subject keys; every edge merges two groups.
	parent := make(map[string]string)
	var find func(string) string
	find = func(k string) string {
		p, ok := parent[k]
		if !ok || p == k {
			parent[k] = k
			return k
		}
		root := find(p)
		parent[k] = root
		return root
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	subjects := make(map[string]requirement.Subject)
	for _, e := range edges {
		subjects[e.Subject.Key()] = e.Subject
		subjects[e.Other.Key()] = e.Other
		union(e.Subject.Key(), e.Other.Key())
	}

	groups := make(map[string][]requirement.Subject)
	for key, subj := range subjects {
		root := find(key)
		groups[root] = append(groups[root], subj)
	}

	roots := make([]string, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	for _, root := range roots {
		members := groups[root]
		sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })

		// The group's positives are the union of every member's positives.
		seen := make(map[string]requirement.Requirement)
		for _, m := range members {
			for _, pos := range set.PositivesFor(m) {
				name := pos.Capability.Name()
				if _, ok := seen[name]; !ok {
					seen[name] = pos
				}
			}
		}
		names := make([]string, 0, len(seen))
		for name := range seen {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, m := range members {
			for _, name := range names {
				origin := seen[name]
				if set.Requires(m, origin.Capability) {
					continue
				}
				prop := requirement.Conforms(m, origin.Capability, requirement.OriginSameType).
					WithSource(origin.Subject.Key())
				if err := set.Add(prop); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
