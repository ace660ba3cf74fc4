package typepool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anvil-platform/muzzle/internal/classloader"
)

// Definition is the structural metadata of one class, as held by the Static
// strategy. Names are binary names (com.example.Foo).
type Definition struct {
	Name       string
	Modifiers  int
	SuperName  string
	Interfaces []string
	Fields     []FieldDescription
	Methods    []MethodDescription
}

// Static serves class descriptions from in-memory tables. Classes added with
// Add are visible from every loader; classes added with Define only from that
// loader and its descendants. Defining classes for a loader keeps it reachable
// from the strategy.
type Static struct {
	mu        sync.RWMutex
	shared    map[string]Definition
	perLoader map[*classloader.Loader]map[string]Definition
	failures  map[string]error
	describes atomic.Int64
}

func NewStatic(defs ...Definition) *Static {
	s := &Static{
		shared:    map[string]Definition{},
		perLoader: map[*classloader.Loader]map[string]Definition{},
		failures:  map[string]error{},
	}
	s.Add(defs...)
	return s
}

// Add makes defs visible from every loader.
func (s *Static) Add(defs ...Definition) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		s.shared[d.Name] = d
	}
	return s
}

// Define makes defs visible from loader (and its children) only.
func (s *Static) Define(loader *classloader.Loader, defs ...Definition) *Static {
	loader = classloader.Normalize(loader)
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.perLoader[loader]
	if !ok {
		table = map[string]Definition{}
		s.perLoader[loader] = table
	}
	for _, d := range defs {
		table[d.Name] = d
	}
	return s
}

// Fail makes every description of name fail with err.
func (s *Static) Fail(name string, err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = err
	return s
}

// Describes returns how many Describe calls all pools of this strategy served.
func (s *Static) Describes() int64 {
	return s.describes.Load()
}

func (s *Static) TypePool(_ context.Context, loader *classloader.Loader) Pool {
	return &staticPool{strategy: s, lineage: classloader.Normalize(loader).Lineage()}
}

type staticPool struct {
	strategy *Static
	lineage  []*classloader.Loader
}

func (p *staticPool) Describe(ctx context.Context, name string) Resolution {
	s := p.strategy
	s.describes.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failures[name]; ok {
		return Failed(err)
	}
	// Parent-first, as class loaders delegate: bootstrap, ancestors, then self.
	if d, ok := s.perLoader[classloader.BootstrapProxy()][name]; ok {
		return Resolved(&staticType{def: d, pool: p, ctx: ctx})
	}
	for i := len(p.lineage) - 1; i >= 0; i-- {
		if d, ok := s.perLoader[p.lineage[i]][name]; ok {
			return Resolved(&staticType{def: d, pool: p, ctx: ctx})
		}
	}
	if d, ok := s.shared[name]; ok {
		return Resolved(&staticType{def: d, pool: p, ctx: ctx})
	}
	return Unresolved()
}

type staticType struct {
	def  Definition
	pool Pool
	ctx  context.Context
}

func (t *staticType) Name() string                         { return t.def.Name }
func (t *staticType) Modifiers() int                       { return t.def.Modifiers }
func (t *staticType) DeclaredFields() []FieldDescription   { return t.def.Fields }
func (t *staticType) DeclaredMethods() []MethodDescription { return t.def.Methods }

func (t *staticType) SuperClass() Resolution {
	if t.def.SuperName == "" {
		return nil
	}
	return linked(t.ctx, t.pool, t.def.SuperName)
}

func (t *staticType) Interfaces() []Resolution {
	out := make([]Resolution, 0, len(t.def.Interfaces))
	for _, name := range t.def.Interfaces {
		out = append(out, linked(t.ctx, t.pool, name))
	}
	return out
}
