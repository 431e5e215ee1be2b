// Package main provides the sigil binary entry point. Sigil resolves
// capability requirement signatures over a declaration graph: it loads a
// YAML graph, expands every declaration's implicit and explicit
// requirements, synthesizes conformances, and reports conflicts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moveonly/sigil/declgraph"
	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/resolver"
	"github.com/moveonly/sigil/sigcache"
)

const version = "0.1.0"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	logLevel     string
	cachePath    string
	classInverse bool
	noBottomless bool
	noColor      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "sigil",
		Short: "Capability requirement resolver",
		Long: `Sigil resolves capability requirement signatures over a declaration
graph. Generic parameters, protocol Selfs and associated types receive
capability defaults which explicit inverses (~Capability) cancel;
extensions propagate defaults into conforming types; struct and enum
conformances are synthesized from stored members.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.cachePath, "cache", "", "Path to a persistent signature cache (SQLite)")
	pf.BoolVar(&flags.classInverse, "class-inverse", false, "Allow class and actor declarations to declare capability inverses")
	pf.BoolVar(&flags.noBottomless, "no-bottomless", false, "Reject bottomless (Subject.*) constraints")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(resolveCmd(flags))
	cmd.AddCommand(checkCmd(flags))
	cmd.AddCommand(watchCmd(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sigil version %s\n", version)
		},
	})
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// newResolver loads the graph file and wires a resolver from the shared
// flags. The returned collector accumulates resolution diagnostics.
func newResolver(path string, flags *rootFlags, log *zap.Logger) (*resolver.Resolver, *diag.Collector, func(), error) {
	model, err := declgraph.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	cfg := resolver.Config{
		Registry:            model.Registry,
		Provider:            model.Graph,
		Logger:              log,
		ClassInverseAllowed: flags.classInverse,
		DisableBottomless:   flags.noBottomless,
	}
	if flags.cachePath != "" {
		cache, err := sigcache.Open(flags.cachePath)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg.Cache = cache
		cleanup = func() { cache.Close() }
	}
	collector := diag.NewCollector()
	cfg.Sink = collector

	r, err := resolver.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return r, collector, cleanup, nil
}
