package addon

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/matcher"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/typepool"
)

// Gate is where an instrumentation applier asks whether a module may be
// applied to a class loader.
type Gate struct {
	module  Module
	matcher *matcher.Matcher

	// Debug logs every mismatch when a module is rejected. Finding them is an
	// extra, uncached pass over the class path.
	Debug bool
}

// NewGate returns a gate for module that resolves classes with strategy.
func NewGate(strategy typepool.Strategy, module Module, opts ...matcher.Option) *Gate {
	opts = append([]matcher.Option{matcher.WithName(module.Name)}, opts...)
	return &Gate{
		module:  module,
		matcher: matcher.New(strategy, module.References, module.HelperClassNames, opts...),
	}
}

// Gates returns one gate per module of m, in manifest order.
func (m *Manifest) Gates(strategy typepool.Strategy, debug bool, opts ...matcher.Option) []*Gate {
	gates := make([]*Gate, 0, len(m.Modules))
	for _, mod := range m.Modules {
		g := NewGate(strategy, mod, opts...)
		g.Debug = debug
		gates = append(gates, g)
	}
	return gates
}

func (g *Gate) Module() Module { return g.module }

// ShouldApply reports whether the module targets the library version loader
// advertises and every reference of the module is satisfied by loader.
func (g *Gate) ShouldApply(ctx context.Context, loader *classloader.Loader) bool {
	loader = classloader.Normalize(loader)
	logger := logr.FromContextOrDiscard(ctx).WithValues("module", g.module.Name, "loader", loader.String())

	if ok, reason := g.module.applies(loader); !ok {
		logger.V(1).Info("skipping instrumentation; library version not supported", "reason", reason)
		return false
	}
	if g.matcher.IsSatisfied(ctx, loader) {
		return true
	}

	if g.Debug {
		mismatches := g.matcher.FindMismatches(ctx, loader)
		logger.Info("skipping instrumentation; mismatched references", "count", len(mismatches))
		for _, mm := range mismatches {
			logger.Info("mismatched reference", "kind", mm.Kind(), "mismatch", mm.String())
		}
	}
	return false
}

// Report is the diagnostic view of one module against one loader.
type Report struct {
	Module     string
	Loader     string
	Applicable bool
	// Reason explains why the module is not applicable.
	Reason     string
	Mismatches []reference.Mismatch
}

// Passed reports whether the module would be applied.
func (r Report) Passed() bool {
	return r.Applicable && len(r.Mismatches) == 0
}

// Report checks the module against loader exhaustively. Unlike ShouldApply it
// always collects every mismatch, even when the library version is outside
// the module's range.
func (g *Gate) Report(ctx context.Context, loader *classloader.Loader) Report {
	loader = classloader.Normalize(loader)
	applicable, reason := g.module.applies(loader)
	return Report{
		Module:     g.module.Name,
		Loader:     loader.String(),
		Applicable: applicable,
		Reason:     reason,
		Mismatches: g.matcher.FindMismatches(ctx, loader),
	}
}
