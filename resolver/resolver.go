// Package resolver assembles fully-expanded requirement signatures: the
// implicit baseline, propagated extension defaults, explicitly written
// requirements and inverses, the same-type closure and symbolic bottomless
// constraints, plus the declaration's synthesized conformances.
//
// Resolution is a pure computation over a frozen registry and a read-only
// declaration graph. Signatures are memoized with single-flight semantics,
// so concurrent requesters of one declaration share a single computation.
// An error is terminal for its declaration and never aborts siblings.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/conformance"
	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/defaulting"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/extdefault"
	"github.com/moveonly/sigil/requirement"
)

// Cache persists resolved signatures across runs, keyed by declaration name
// and content fingerprint. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, decl, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, decl, fingerprint string, payload []byte) error
}

// Config wires a resolver. Registry and Provider are required.
type Config struct {
	Registry *capability.Registry
	Provider declgraph.Provider

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Cache is an optional persistent signature cache.
	Cache Cache

	// Sink receives resolution errors once per failing declaration.
	Sink diag.Sink

	// Metrics registers the resolver's Prometheus counters. When nil the
	// counters are still collected but never exported; registration is the
	// embedder's choice.
	Metrics prometheus.Registerer

	// ClassInverseAllowed permits reference declarations to opt out of a
	// capability's default with an explicit inverse. Off by default:
	// reference types always conform.
	ClassInverseAllowed bool

	// DisableBottomless turns off bottomless-subject constraints; graphs
	// that use them fail to resolve.
	DisableBottomless bool
}

// Signature is a declaration's resolved requirement signature.
type Signature struct {
	Decl         string
	Requirements *requirement.Set
	Conformances []conformance.Conformance
	Fingerprint  string
}

type outcome struct {
	sig *Signature
	err error
}

// Resolver resolves declarations against one frozen graph and registry.
type Resolver struct {
	cfg     Config
	log     *zap.Logger
	engine  *defaulting.Engine
	synth   *conformance.Synthesizer
	prop    *extdefault.Propagator
	metrics *metrics

	flight singleflight.Group

	mu   sync.RWMutex
	memo map[string]outcome
}

// New validates the config and builds a resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Registry == nil || cfg.Provider == nil {
		return nil, errors.New("resolver: registry and provider are required")
	}
	if !cfg.Registry.Frozen() {
		return nil, errors.New("resolver: registry must be frozen before resolution")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		cfg:     cfg,
		log:     log,
		engine:  defaulting.NewEngine(cfg.Registry),
		synth:   conformance.NewSynthesizer(cfg.Registry, cfg.Provider, cfg.ClassInverseAllowed),
		prop:    extdefault.NewPropagator(cfg.Registry, cfg.Provider),
		metrics: newMetrics(cfg.Metrics),
		memo:    make(map[string]outcome),
	}, nil
}

// Synthesizer exposes the conformance synthesizer for instantiation
// queries.
func (r *Resolver) Synthesizer() *conformance.Synthesizer { return r.synth }

// Resolve returns the declaration's signature, computing it at most once
// per resolver. Concurrent requesters block on the in-flight computation.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Signature, error) {
	r.mu.RLock()
	out, ok := r.memo[name]
	r.mu.RUnlock()
	if ok {
		r.metrics.cacheHits.WithLabelValues("memory").Inc()
		return out.sig, out.err
	}

	v, err, _ := r.flight.Do(name, func() (interface{}, error) {
		sig, err := r.resolve(ctx, name, nil)
		r.record(name, sig, err)
		return sig, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Signature), nil
}

func (r *Resolver) record(name string, sig *Signature, err error) {
	// Context errors are the caller's, not the declaration's; memoizing them
	// would poison every later resolution of the same name.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}
	r.mu.Lock()
	if _, ok := r.memo[name]; ok {
		r.mu.Unlock()
		return
	}
	r.memo[name] = outcome{sig: sig, err: err}
	r.mu.Unlock()
	if err != nil {
		r.metrics.resolutions.WithLabelValues("error").Inc()
		var derr diag.Error
		if errors.As(err, &derr) {
			r.metrics.resolutionErrors.WithLabelValues(derr.Kind().String()).Inc()
			if r.cfg.Sink != nil {
				r.cfg.Sink.Report(derr)
			}
		}
		return
	}
	r.metrics.resolutions.WithLabelValues("ok").Inc()
}

// resolve runs the phases for one declaration. stack tracks in-progress
// inheritance expansion for cycle detection; recursive parent resolutions
// bypass the single-flight group and consult the memo directly.
func (r *Resolver) resolve(ctx context.Context, name string, stack []string) (*Signature, error) {
	for _, s := range stack {
		if s == name {
			return nil, diag.NewCyclicRequirement(requirement.SelfName, "", append(stack, name))
		}
	}
	r.mu.RLock()
	out, ok := r.memo[name]
	r.mu.RUnlock()
	if ok {
		return out.sig, out.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decl, ok := r.cfg.Provider.Declaration(name)
	if !ok {
		return nil, errors.Newf("resolver: unknown declaration %s", name)
	}

	start := time.Now()
	stack = append(stack, name)

	// Inheritance expansion needs resolved parents; resolving them first
	// also lets the fingerprint cover the whole upstream chain.
	parents := make(map[string]*Signature, len(decl.Inherits))
	for _, parent := range decl.Inherits {
		psig, err := r.resolve(ctx, parent, stack)
		if err != nil {
			r.record(parent, psig, err)
			return nil, errors.Wrapf(err, "resolving inherited protocol %s", parent)
		}
		r.record(parent, psig, nil)
		parents[parent] = psig
	}

	fp, err := r.fingerprint(decl, parents)
	if err != nil {
		return nil, err
	}
	if sig, ok := r.cacheGet(ctx, name, fp); ok {
		return sig, nil
	}

	set := requirement.NewSet(name)
	if err := r.baseline(set, decl); err != nil {
		return nil, err
	}
	if err := r.fragments(set, decl, parents); err != nil {
		return nil, err
	}
	if err := r.explicit(set, decl); err != nil {
		return nil, err
	}
	if err := r.sameTypeClosure(set); err != nil {
		return nil, err
	}

	confs, err := r.synth.Synthesize(decl)
	if err != nil {
		return nil, err
	}

	sig := &Signature{
		Decl:         name,
		Requirements: set.Freeze(),
		Conformances: confs,
		Fingerprint:  fp,
	}
	r.cachePut(ctx, sig)
	r.log.Debug("resolved declaration",
		zap.String("decl", name),
		zap.Int("requirements", set.Len()),
		zap.Int("conformances", len(confs)),
		zap.Duration("elapsed", time.Since(start)))
	return sig, nil
}

// baseline attaches the implicit defaults for every subject the declaration
// introduces, honoring declaration-site inverse marks.
func (r *Resolver) baseline(set *requirement.Set, decl *declgraph.Declaration) error {
	switch decl.Kind {
	case declgraph.KindProtocol:
		if err := r.engine.Baseline(set, requirement.Self(), decl.Without); err != nil {
			return err
		}
		for _, a := range decl.Associated {
			if err := r.engine.Baseline(set, requirement.Self().Member(a.Name), a.Without); err != nil {
				return err
			}
		}
	case declgraph.KindExtension:
		extended, ok := r.cfg.Provider.Declaration(decl.Extends)
		if !ok {
			return errors.Newf("resolver: extension %s extends unknown declaration %s", decl.Name, decl.Extends)
		}
		if extended.Kind == declgraph.KindProtocol {
			if err := r.engine.Baseline(set, requirement.Self(), extended.Without); err != nil {
				return err
			}
			for _, a := range extended.Associated {
				if err := r.engine.Baseline(set, requirement.Self().Member(a.Name), a.Without); err != nil {
					return err
				}
			}
			return nil
		}
		return r.paramBaseline(set, extended)
	default:
		return r.paramBaseline(set, decl)
	}
	return nil
}

func (r *Resolver) paramBaseline(set *requirement.Set, decl *declgraph.Declaration) error {
	for _, p := range decl.Params {
		if err := r.engine.Baseline(set, r.paramSubject(decl, p.Name), p.Without); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) paramSubject(decl *declgraph.Declaration, name string) requirement.Subject {
	if decl.Kind.Reference() {
		return requirement.ClassParam(name)
	}
	return requirement.TypeParam(name)
}

// fragments merges extension-default fragments from every directly
// referenced protocol: parameter constraints, associated-type constraints,
// protocol inheritance (expanded, not inherited) and the extended
// declaration of an extension.
func (r *Resolver) fragments(set *requirement.Set, decl *declgraph.Declaration, parents map[string]*Signature) error {
	source := decl
	if decl.Kind == declgraph.KindExtension {
		extended, _ := r.cfg.Provider.Declaration(decl.Extends)
		if extended != nil {
			source = extended
		}
		if err := r.prop.ApplyToExtension(set, decl.Extends); err != nil {
			return err
		}
	}
	for _, p := range source.Params {
		if err := r.prop.ApplyToParam(set, r.paramSubject(source, p.Name), p); err != nil {
			return err
		}
	}
	for _, a := range source.Associated {
		subj := requirement.Self().Member(a.Name)
		synthetic := declgraph.GenericParam{Name: a.Name, Constraints: a.Constraints}
		if err := r.prop.ApplyToParam(set, subj, synthetic); err != nil {
			return err
		}
	}
	for _, parent := range decl.Inherits {
		if err := r.prop.ExpandInheritance(set, parent, parents[parent].Requirements); err != nil {
			return err
		}
	}
	return nil
}

// explicit merges the author-written requirements: parameter annotations,
// the protocol's own Self annotations and the requires/same-type clauses.
func (r *Resolver) explicit(set *requirement.Set, decl *declgraph.Declaration) error {
	for _, p := range decl.Params {
		subj := r.paramSubject(decl, p.Name)
		for _, name := range p.Conforms {
			cap, ok := r.cfg.Registry.Lookup(name)
			if !ok {
				return errors.Newf("resolver: %s: unknown capability %s", decl.Name, name)
			}
			if err := set.Add(requirement.Conforms(subj, cap, requirement.OriginExplicit)); err != nil {
				return err
			}
		}
	}
	if decl.Kind == declgraph.KindProtocol {
		for _, name := range decl.Conforms {
			cap, ok := r.cfg.Registry.Lookup(name)
			if !ok {
				return errors.Newf("resolver: %s: unknown capability %s", decl.Name, name)
			}
			if err := set.Add(requirement.Conforms(requirement.Self(), cap, requirement.OriginExplicit)); err != nil {
				return err
			}
		}
	}
	for _, clause := range decl.Requires {
		subj, err := r.parseSubject(decl, clause.Subject)
		if err != nil {
			return err
		}
		if subj.Bottomless && r.cfg.DisableBottomless {
			return errors.Newf("resolver: %s: bottomless subject %s but bottomless constraints are disabled", decl.Name, clause.Subject)
		}
		cap, ok := r.cfg.Registry.Lookup(clause.Capability)
		if !ok {
			return errors.Newf("resolver: %s: unknown capability %s", decl.Name, clause.Capability)
		}
		if clause.Inverse {
			if subj.Bottomless {
				return errors.Newf("resolver: %s: inverses cannot target bottomless subject %s", decl.Name, clause.Subject)
			}
			if err := r.engine.ApplyInverse(set, subj, cap); err != nil {
				return err
			}
			continue
		}
		if err := set.Add(requirement.Conforms(subj, cap, requirement.OriginExplicit)); err != nil {
			return err
		}
		if subj.Bottomless {
			// The bottomless constraint covers its own base subject; the
			// rest of the chain stays symbolic and is checked lazily per
			// instantiation.
			base := subj
			base.Bottomless = false
			if err := set.Add(requirement.Conforms(base, cap, requirement.OriginExplicit)); err != nil {
				return err
			}
		}
	}
	for _, st := range decl.SameTypes {
		left, err := r.parseSubject(decl, st.Left)
		if err != nil {
			return err
		}
		right, err := r.parseSubject(decl, st.Right)
		if err != nil {
			return err
		}
		if err := set.Add(requirement.SameType(left, right)); err != nil {
			return err
		}
	}
	return nil
}

// paramDecl returns the declaration whose generic parameters scope bare
// subject roots: the extended declaration for extensions, the declaration
// itself otherwise.
func (r *Resolver) paramDecl(decl *declgraph.Declaration) *declgraph.Declaration {
	if decl.Kind != declgraph.KindExtension {
		return decl
	}
	if extended, ok := r.cfg.Provider.Declaration(decl.Extends); ok {
		return extended
	}
	return decl
}

func (r *Resolver) parseSubject(decl *declgraph.Declaration, key string) (requirement.Subject, error) {
	subj, err := requirement.ParseSubject(key)
	if err != nil {
		return requirement.Subject{}, errors.Wrapf(err, "resolver: %s", decl.Name)
	}
	if subj.Root != requirement.SelfName && len(subj.Path) == 0 {
		owner := r.paramDecl(decl)
		if _, ok := owner.Param(subj.Root); !ok {
			subj.Kind = capability.Concrete
		} else if owner.Kind.Reference() {
			subj.Kind = capability.ClassParam
		}
	}
	return subj, nil
}

// fingerprint hashes everything a signature is computed from: the
// declaration itself, the registry, the resolution flags, the resolved
// parents' fingerprints, and the content of every other declaration the
// resolution reads — constraint protocols, fragment-cancellation sources,
// extended declarations and stored member types, transitively. Editing any
// of those invalidates the dependents' cached signatures.
func (r *Resolver) fingerprint(decl *declgraph.Declaration, parents map[string]*Signature) (string, error) {
	data, err := yaml.Marshal(decl)
	if err != nil {
		return "", errors.Wrapf(err, "fingerprinting %s", decl.Name)
	}
	h := sha256.New()
	h.Write(data)
	for _, cap := range r.cfg.Registry.All() {
		fmt.Fprintf(h, "cap:%s:%t:%t", cap.Name(), cap.Invertible(), cap.MembersMustConform())
		for _, k := range capability.DefaultableKinds {
			fmt.Fprintf(h, ":%t", r.cfg.Registry.DefaultApplies(cap, k))
		}
	}
	for _, parent := range decl.Inherits {
		fmt.Fprintf(h, "parent:%s:%s", parent, parents[parent].Fingerprint)
	}
	for _, name := range r.referencedDecls(decl) {
		ref, ok := r.cfg.Provider.Declaration(name)
		if !ok {
			continue
		}
		rdata, err := yaml.Marshal(ref)
		if err != nil {
			return "", errors.Wrapf(err, "fingerprinting %s", decl.Name)
		}
		fmt.Fprintf(h, "ref:%s:", name)
		h.Write(rdata)
	}
	fmt.Fprintf(h, "flags:%t:%t", r.cfg.ClassInverseAllowed, r.cfg.DisableBottomless)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// referencedDecls collects the names of every declaration the resolution of
// decl reads besides decl itself, followed transitively with a visited set
// so reference cycles terminate. Sorted for a deterministic hash.
func (r *Resolver) referencedDecls(decl *declgraph.Declaration) []string {
	visited := map[string]bool{decl.Name: true}
	var queue []string
	push := func(names ...string) {
		for _, n := range names {
			if n != "" && !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	var pushRef func(ref declgraph.TypeRef)
	pushRef = func(ref declgraph.TypeRef) {
		if !ref.IsParam() {
			push(ref.Decl)
		}
		for _, a := range ref.Args {
			pushRef(a)
		}
	}
	collect := func(d *declgraph.Declaration) {
		for _, p := range d.Params {
			push(p.Constraints...)
			for _, fr := range p.Drop {
				push(fr.Protocol)
			}
		}
		for _, a := range d.Associated {
			push(a.Constraints...)
		}
		push(d.Inherits...)
		push(d.Extends)
		for _, m := range d.Members {
			pushRef(m.Type)
		}
	}
	collect(decl)

	var out []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		out = append(out, name)
		if d, ok := r.cfg.Provider.Declaration(name); ok {
			collect(d)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) cacheGet(ctx context.Context, name, fp string) (*Signature, bool) {
	if r.cfg.Cache == nil {
		return nil, false
	}
	payload, ok, err := r.cfg.Cache.Get(ctx, name, fp)
	if err != nil {
		r.log.Warn("signature cache read failed", zap.String("decl", name), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	sig, err := DecodeSignature(payload, r.cfg.Registry)
	if err != nil {
		r.log.Warn("signature cache entry discarded", zap.String("decl", name), zap.Error(err))
		return nil, false
	}
	r.metrics.cacheHits.WithLabelValues("persistent").Inc()
	return sig, true
}

func (r *Resolver) cachePut(ctx context.Context, sig *Signature) {
	if r.cfg.Cache == nil {
		return
	}
	payload, err := EncodeSignature(sig)
	if err != nil {
		r.log.Warn("signature cache encode failed", zap.String("decl", sig.Decl), zap.Error(err))
		return
	}
	if err := r.cfg.Cache.Put(ctx, sig.Decl, sig.Fingerprint, payload); err != nil {
		r.log.Warn("signature cache write failed", zap.String("decl", sig.Decl), zap.Error(err))
	}
}
