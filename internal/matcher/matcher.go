// Package matcher decides whether the classes, fields, methods and modifiers
// an instrumentation module depends on exist in a class loader.
//
// IsSatisfied is the fast path used before applying a module: it stops at the
// first unsatisfied reference and caches the verdict per loader without
// keeping the loader alive. FindMismatches is the exhaustive, uncached variant
// used for diagnostics. Both agree: IsSatisfied is true exactly when
// FindMismatches is empty.
package matcher

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/metrics"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/typepool"
	"github.com/anvil-platform/muzzle/internal/weakcache"
)

// Matcher checks one instrumentation module's references. It is safe for
// concurrent use.
type Matcher struct {
	name       string
	references []reference.Reference
	helpers    sets.Set[string]
	strategy   typepool.Strategy
	cacheOpts  weakcache.Options
	verdicts   *weakcache.Cache[classloader.Loader, bool]
}

type Option func(*Matcher)

// WithName labels log lines and metrics with the module name.
func WithName(name string) Option {
	return func(m *Matcher) { m.name = name }
}

// WithCacheOptions sizes the per-loader verdict cache.
func WithCacheOptions(opts weakcache.Options) Option {
	return func(m *Matcher) { m.cacheOpts = opts }
}

// New returns a matcher for references. Classes named in helperClassNames are
// injected by the module itself and are never checked.
func New(strategy typepool.Strategy, references []reference.Reference, helperClassNames []string, opts ...Option) *Matcher {
	m := &Matcher{
		name:       "unnamed",
		references: references,
		helpers:    sets.New(helperClassNames...),
		strategy:   strategy,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.verdicts = weakcache.New[classloader.Loader, bool](m.cacheOpts)
	return m
}

func (m *Matcher) Name() string { return m.name }

// References returns the references checked by m. The slice must not be
// modified.
func (m *Matcher) References() []reference.Reference { return m.references }

// IsSatisfied reports whether every reference matches the class path of
// loader (classloader.Bootstrap for the bootstrap loader). The verdict is
// computed once per loader; a failure to read the class path yields false.
func (m *Matcher) IsSatisfied(ctx context.Context, loader *classloader.Loader) bool {
	loader = classloader.Normalize(loader)
	logger := logr.FromContextOrDiscard(ctx).WithValues("module", m.name, "loader", loader.String())

	computed := false
	ok := m.verdicts.GetIfPresentOrCompute(loader, func() bool {
		computed = true
		start := time.Now()
		ok := m.doesMatch(ctx, loader)
		metrics.MatchDuration.WithLabelValues(m.name).Observe(time.Since(start).Seconds())
		logger.V(1).Info("computed reference match", "matches", ok, "duration", time.Since(start))
		return ok
	})

	if computed {
		metrics.CacheMissesTotal.WithLabelValues(m.name).Inc()
	} else {
		metrics.CacheHitsTotal.WithLabelValues(m.name).Inc()
	}
	metrics.MatchTotal.WithLabelValues(m.name, verdictLabel(ok)).Inc()
	return ok
}

func verdictLabel(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

// The computation may be shared by several callers, so none of them may
// cancel it.
func (m *Matcher) doesMatch(ctx context.Context, loader *classloader.Loader) bool {
	ctx = context.WithoutCancel(ctx)
	pool := m.strategy.TypePool(ctx, loader)
	for _, ref := range m.references {
		if m.helpers.Has(ref.ClassName) {
			continue
		}
		if len(checkReference(ctx, pool, ref, true)) > 0 {
			return false
		}
	}
	return true
}

// FindMismatches returns every mismatch between the references and the class
// path of loader. It is not cached. The result is nil when everything matches.
func (m *Matcher) FindMismatches(ctx context.Context, loader *classloader.Loader) []reference.Mismatch {
	loader = classloader.Normalize(loader)
	ctx = context.WithoutCancel(ctx)
	pool := m.strategy.TypePool(ctx, loader)

	var mismatches []reference.Mismatch
	for _, ref := range m.references {
		if m.helpers.Has(ref.ClassName) {
			continue
		}
		mismatches = append(mismatches, checkReference(ctx, pool, ref, false)...)
	}
	for _, mm := range mismatches {
		metrics.MismatchesTotal.WithLabelValues(m.name, mm.Kind()).Inc()
	}
	return mismatches
}
