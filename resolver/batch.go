package resolver

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of resolving a whole graph.
type BatchResult struct {
	// Signatures holds every successfully resolved declaration.
	Signatures map[string]*Signature
	// Failed lists declarations whose resolution errored, with the error.
	// Failures never abort sibling resolutions.
	Failed map[string]error
}

// ResolveAll resolves every declaration in the graph in parallel. The
// returned error is non-nil only for infrastructural failures (context
// cancellation); per-declaration resolution errors land in the result and
// the configured sink.
func (r *Resolver) ResolveAll(ctx context.Context) (*BatchResult, error) {
	batch := uuid.NewString()
	names := r.cfg.Provider.Names()
	start := time.Now()
	r.log.Info("resolving declaration graph",
		zap.String("batch", batch),
		zap.Int("declarations", len(names)))

	res := &BatchResult{
		Signatures: make(map[string]*Signature, len(names)),
		Failed:     make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sig, err := r.Resolve(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[name] = err
				return nil
			}
			res.Signatures[name] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info("graph resolved",
		zap.String("batch", batch),
		zap.Int("resolved", len(res.Signatures)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}
