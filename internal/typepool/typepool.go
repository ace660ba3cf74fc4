// Package typepool describes classes visible to a class loader without
// loading them. A Strategy is injected once per host; it hands out a Pool per
// loader, and a Pool answers Describe with one of three explicit outcomes:
// resolved, unresolved (no such class) or failed (the class path could not be
// read). Missing classes are never reported as errors.
package typepool

import (
	"context"
	"errors"
	"sync"

	"github.com/anvil-platform/muzzle/internal/classloader"
)

// ErrUnresolved marks a failure that is really a missing class discovered
// while following a lazy link (a superclass or interface that is absent).
var ErrUnresolved = errors.New("cannot resolve type description")

// Strategy creates the pool for a loader. Implementations must be safe for
// concurrent use and must not mutate the loader.
type Strategy interface {
	TypePool(ctx context.Context, loader *classloader.Loader) Pool
}

// Pool describes classes by binary name (com.example.Foo).
type Pool interface {
	Describe(ctx context.Context, name string) Resolution
}

// Resolution is the outcome of describing a class.
type Resolution interface {
	// Resolved reports whether the class was found.
	Resolved() bool
	// Type returns the description; only valid when Resolved.
	Type() TypeDescription
	// Err is non-nil when the class could not be described because of a
	// failure. An unresolved class has a nil Err.
	Err() error
}

// TypeDescription is the structural view of a class.
type TypeDescription interface {
	Name() string
	Modifiers() int
	DeclaredFields() []FieldDescription
	DeclaredMethods() []MethodDescription
	// SuperClass is nil for java.lang.Object and interfaces without one.
	SuperClass() Resolution
	Interfaces() []Resolution
}

// FieldDescription is a declared field. Type uses the internal name form:
// "int" for primitives, "java/lang/String" for classes.
type FieldDescription struct {
	Name      string
	Type      string
	Modifiers int
}

// MethodDescription is a declared method.
type MethodDescription struct {
	Name       string
	Descriptor string
	Modifiers  int
}

type resolved struct{ t TypeDescription }

func (r resolved) Resolved() bool        { return true }
func (r resolved) Type() TypeDescription { return r.t }
func (r resolved) Err() error            { return nil }

type unresolved struct{}

func (unresolved) Resolved() bool        { return false }
func (unresolved) Type() TypeDescription { return nil }
func (unresolved) Err() error            { return nil }

type failed struct{ err error }

func (f failed) Resolved() bool        { return false }
func (f failed) Type() TypeDescription { return nil }
func (f failed) Err() error            { return f.err }

// Resolved wraps a description.
func Resolved(t TypeDescription) Resolution { return resolved{t: t} }

// Unresolved is the outcome for a class that does not exist.
func Unresolved() Resolution { return unresolved{} }

// Failed is the outcome for a class that could not be described.
func Failed(err error) Resolution { return failed{err: err} }

type lazy struct {
	mu       sync.Mutex
	describe func() Resolution
	res      Resolution
}

// Lazy defers describe until the resolution is first inspected. Resolved and
// unresolved outcomes are remembered; failures are retried on the next look.
func Lazy(describe func() Resolution) Resolution {
	return &lazy{describe: describe}
}

func (l *lazy) get() Resolution {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.res != nil {
		return l.res
	}
	res := l.describe()
	if res.Err() == nil || isUnresolved(res.Err()) {
		l.res = res
	}
	return res
}

func isUnresolved(err error) bool {
	return errors.Is(err, ErrUnresolved)
}

func (l *lazy) Resolved() bool        { return l.get().Resolved() }
func (l *lazy) Type() TypeDescription { return l.get().Type() }
func (l *lazy) Err() error            { return l.get().Err() }

// linked describes a class through a lazy link. A missing class behind a link
// is reported as a failure wrapping ErrUnresolved so the caller can tell which
// class was missing. The link keeps the values of ctx, its logger in
// particular, but not its deadline: links are settled long after the
// describing call returned.
func linked(ctx context.Context, pool Pool, name string) Resolution {
	ctx = context.WithoutCancel(ctx)
	return Lazy(func() Resolution {
		res := pool.Describe(ctx, name)
		if !res.Resolved() && res.Err() == nil {
			return Failed(&UnresolvedError{ClassName: name})
		}
		return res
	})
}

// UnresolvedError names the class that a lazy link could not find.
type UnresolvedError struct {
	ClassName string
}

func (e *UnresolvedError) Error() string {
	return ErrUnresolved.Error() + " for " + e.ClassName
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// Settle forces a lazy resolution and returns its outcome, so that Resolved,
// Type and Err are read from a single attempt.
func Settle(r Resolution) Resolution {
	if l, ok := r.(*lazy); ok {
		return l.get()
	}
	return r
}
