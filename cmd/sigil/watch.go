package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/resolver"
	"github.com/moveonly/sigil/sigcache"
)

func watchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <graph.yaml>",
		Short: "Re-check the graph whenever the file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(flags.logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			var cache resolver.Cache
			if flags.cachePath != "" {
				c, err := sigcache.Open(flags.cachePath)
				if err != nil {
					return err
				}
				defer c.Close()
				cache = c
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := newPrinter(flags.noColor)
			check := func(m *declgraph.Model) {
				checkModel(ctx, m, flags, log, cache, p)
			}

			model, err := declgraph.Load(args[0])
			if err != nil {
				return err
			}
			check(model)

			w, err := declgraph.NewWatcher(args[0])
			if err != nil {
				return err
			}
			defer w.Close()

			log.Info("watching graph", zap.String("path", args[0]))
			err = w.Run(ctx, check, func(err error) {
				fmt.Fprintf(os.Stderr, "%s %v\n", p.bad("error:"), err)
			})
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

// checkModel resolves one loaded model and prints the outcome. Each reload
// gets a fresh resolver: memoized signatures are tied to the graph they
// were computed against.
func checkModel(ctx context.Context, m *declgraph.Model, flags *rootFlags, log *zap.Logger, cache resolver.Cache, p *printer) {
	collector := diag.NewCollector()
	r, err := resolver.New(resolver.Config{
		Registry:            m.Registry,
		Provider:            m.Graph,
		Logger:              log,
		Cache:               cache,
		Sink:                collector,
		ClassInverseAllowed: flags.classInverse,
		DisableBottomless:   flags.noBottomless,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", p.bad("error:"), err)
		return
	}
	res, err := r.ResolveAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", p.bad("error:"), err)
		return
	}
	p.diagnostics(collector)
	if len(res.Failed) > 0 {
		fmt.Printf("%s %d of %d declarations failed\n", p.bad("fail"), len(res.Failed), len(res.Failed)+len(res.Signatures))
		return
	}
	fmt.Printf("%s %d declarations resolved\n", p.ok("ok"), len(res.Signatures))
}
