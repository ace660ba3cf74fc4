package typepool

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/anvil-platform/muzzle/internal/classfile"
	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/metrics"
	"github.com/anvil-platform/muzzle/internal/weakcache"
)

// ClassPath reads class files from the class path of each loader through afs,
// so class directories and archives may live on local disk, in memory or in
// any storage afs supports. Lookup is parent-first: the boot class path, then
// the loader's ancestors, then the loader itself.
type ClassPath struct {
	fs            afs.Service
	bootClassPath []string
	pools         *weakcache.Cache[classloader.Loader, *classPathPool]
}

func NewClassPath(fs afs.Service, bootClassPath ...string) *ClassPath {
	return &ClassPath{
		fs:            fs,
		bootClassPath: bootClassPath,
		pools:         weakcache.New[classloader.Loader, *classPathPool](weakcache.Options{}),
	}
}

// TypePool returns the pool of loader. Pools are shared per loader and live as
// long as the loader does.
func (s *ClassPath) TypePool(_ context.Context, loader *classloader.Loader) Pool {
	loader = classloader.Normalize(loader)
	return s.pools.GetIfPresentOrCompute(loader, func() *classPathPool {
		// The pool must not reference the loader, only a copy of its entries.
		entries := append([]string(nil), s.bootClassPath...)
		lineage := loader.Lineage()
		for i := len(lineage) - 1; i >= 0; i-- {
			entries = append(entries, lineage[i].ClassPath...)
		}
		return &classPathPool{
			fs:       s.fs,
			entries:  entries,
			types:    map[string]Resolution{},
			archives: map[string]map[string]*zip.File{},
		}
	})
}

type classPathPool struct {
	fs      afs.Service
	entries []string

	mu       sync.Mutex
	types    map[string]Resolution
	archives map[string]map[string]*zip.File
}

func isArchive(entry string) bool {
	lower := strings.ToLower(entry)
	return strings.HasSuffix(lower, ".jar") || strings.HasSuffix(lower, ".zip")
}

func (p *classPathPool) Describe(ctx context.Context, name string) Resolution {
	p.mu.Lock()
	res, ok := p.types[name]
	p.mu.Unlock()
	if ok {
		return res
	}

	res = p.describe(ctx, name)
	switch {
	case res.Err() != nil:
		metrics.TypeResolutionsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		logr.FromContextOrDiscard(ctx).V(1).Info("class description failed", "class", name, "error", res.Err().Error())
		return res
	case res.Resolved():
		metrics.TypeResolutionsTotal.WithLabelValues(metrics.ResultResolved).Inc()
	default:
		metrics.TypeResolutionsTotal.WithLabelValues(metrics.ResultUnresolved).Inc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.types[name]; ok {
		return existing
	}
	p.types[name] = res
	return res
}

func (p *classPathPool) describe(ctx context.Context, name string) Resolution {
	resource := classfile.ResourceName(name)
	for _, entry := range p.entries {
		data, found, err := p.read(ctx, entry, resource)
		if err != nil {
			return Failed(fmt.Errorf("typepool: read %s from %s: %w", resource, entry, err))
		}
		if !found {
			continue
		}
		c, err := classfile.Parse(data)
		if err != nil {
			return Failed(fmt.Errorf("typepool: parse %s from %s: %w", resource, entry, err))
		}
		if got := classfile.BinaryName(c.Name); got != name {
			return Failed(fmt.Errorf("typepool: %s in %s declares class %s", resource, entry, got))
		}
		return Resolved(&classType{class: c, pool: p, ctx: ctx})
	}
	return Unresolved()
}

func (p *classPathPool) read(ctx context.Context, entry, resource string) ([]byte, bool, error) {
	if !isArchive(entry) {
		location := url.Join(entry, resource)
		exists, err := p.fs.Exists(ctx, location)
		if err != nil || !exists {
			return nil, false, err
		}
		data, err := p.fs.DownloadWithURL(ctx, location)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}

	files, err := p.archive(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	f, ok := files[resource]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// archive returns the index of a jar, downloading it on first use. A missing
// archive is an empty class path entry, as it is for the JVM.
func (p *classPathPool) archive(ctx context.Context, entry string) (map[string]*zip.File, error) {
	p.mu.Lock()
	files, ok := p.archives[entry]
	p.mu.Unlock()
	if ok {
		return files, nil
	}

	exists, err := p.fs.Exists(ctx, entry)
	if err != nil {
		return nil, err
	}
	files = map[string]*zip.File{}
	if exists {
		data, err := p.fs.DownloadWithURL(ctx, entry)
		if err != nil {
			return nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		for _, f := range zr.File {
			files[f.Name] = f
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.archives[entry]; ok {
		return existing, nil
	}
	p.archives[entry] = files
	return files, nil
}

type classType struct {
	class *classfile.Class
	pool  Pool
	ctx   context.Context
}

func (t *classType) Name() string   { return classfile.BinaryName(t.class.Name) }
func (t *classType) Modifiers() int { return t.class.Access }

func (t *classType) DeclaredFields() []FieldDescription {
	out := make([]FieldDescription, len(t.class.Fields))
	for i, f := range t.class.Fields {
		out[i] = FieldDescription{Name: f.Name, Type: classfile.InternalName(f.Descriptor), Modifiers: f.Access}
	}
	return out
}

func (t *classType) DeclaredMethods() []MethodDescription {
	out := make([]MethodDescription, len(t.class.Methods))
	for i, m := range t.class.Methods {
		out[i] = MethodDescription{Name: m.Name, Descriptor: m.Descriptor, Modifiers: m.Access}
	}
	return out
}

func (t *classType) SuperClass() Resolution {
	if t.class.SuperName == "" {
		return nil
	}
	return linked(t.ctx, t.pool, classfile.BinaryName(t.class.SuperName))
}

func (t *classType) Interfaces() []Resolution {
	out := make([]Resolution, 0, len(t.class.Interfaces))
	for _, name := range t.class.Interfaces {
		out = append(out, linked(t.ctx, t.pool, classfile.BinaryName(name)))
	}
	return out
}
