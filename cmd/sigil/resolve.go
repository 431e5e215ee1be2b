package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/moveonly/sigil/diag"
	"github.com/moveonly/sigil/resolver"
)

func resolveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <graph.yaml> [declaration...]",
		Short: "Resolve requirement signatures and print them",
		Long: `Resolve loads the graph and prints the fully-expanded requirement
signature of each named declaration, or of every declaration when none
are named.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(flags.logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			r, collector, cleanup, err := newResolver(args[0], flags, log)
			if err != nil {
				return err
			}
			defer cleanup()

			p := newPrinter(flags.noColor)
			names := args[1:]
			if len(names) == 0 {
				res, err := r.ResolveAll(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range sortedKeys(res.Signatures) {
					p.signature(res.Signatures[name])
				}
				p.diagnostics(collector)
				if len(res.Failed) > 0 {
					return fmt.Errorf("%d of %d declarations failed to resolve", len(res.Failed), len(res.Failed)+len(res.Signatures))
				}
				return nil
			}

			var failed int
			for _, name := range names {
				sig, err := r.Resolve(cmd.Context(), name)
				if err != nil {
					failed++
					continue
				}
				p.signature(sig)
			}
			p.diagnostics(collector)
			if failed > 0 {
				return fmt.Errorf("%d of %d declarations failed to resolve", failed, len(names))
			}
			return nil
		},
	}
}

func checkCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check <graph.yaml>",
		Short: "Resolve the whole graph and report diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(flags.logLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			r, collector, cleanup, err := newResolver(args[0], flags, log)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := r.ResolveAll(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(flags.noColor)
			p.diagnostics(collector)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d declarations failed to resolve", len(res.Failed), len(res.Failed)+len(res.Signatures))
			}
			fmt.Printf("%s %d declarations resolved\n", p.ok("ok"), len(res.Signatures))
			return nil
		},
	}
}

// printer renders signatures and diagnostics, with ANSI color on TTYs.
type printer struct {
	color bool
}

func newPrinter(noColor bool) *printer {
	return &printer{color: !noColor && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))}
}

func (p *printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func (p *printer) ok(s string) string   { return p.paint("32", s) }
func (p *printer) bad(s string) string  { return p.paint("31", s) }
func (p *printer) bold(s string) string { return p.paint("1", s) }

func (p *printer) signature(sig *resolver.Signature) {
	fmt.Printf("%s\n", p.bold(sig.Decl))
	for _, req := range sig.Requirements.Resolved() {
		fmt.Printf("  %s\n", req.String())
	}
	for _, conf := range sig.Conformances {
		line := fmt.Sprintf("%s: %s", sig.Decl, conf.Capability.Name())
		if !conf.Unconditional() {
			var conds []string
			for _, c := range conf.Conditions {
				conds = append(conds, c.String())
			}
			line += " where " + strings.Join(conds, ", ")
		}
		if conf.Synthesized {
			line += " (synthesized)"
		}
		fmt.Printf("  %s\n", line)
	}
}

func (p *printer) diagnostics(c *diag.Collector) {
	for _, err := range c.Errors() {
		fmt.Fprintf(os.Stderr, "%s %s\n", p.bad(err.Kind().String()+":"), err.Error())
	}
}

func sortedKeys(m map[string]*resolver.Signature) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
