// Package classloader models the loading contexts references are checked
// against. Loaders are identities: they are never compared structurally, only
// by pointer, and the matcher never mutates them.
package classloader

import "strings"

// Loader is a universe of resolvable classes: its own class path followed by
// its parent's. A nil *Loader is the bootstrap loader.
type Loader struct {
	Name string
	// ClassPath entries are afs URLs of class directories or jar/zip archives.
	ClassPath []string
	Parent    *Loader
	// Libraries maps a library coordinate (group:artifact) to the version the
	// host knows is loaded by this loader, when it knows one.
	Libraries map[string]string
}

// Bootstrap is the sentinel for the bootstrap loader.
var Bootstrap *Loader

// bootstrapProxy must live on the heap: weak pointers cannot be made to
// statically allocated data, so it is built in init rather than by a
// composite literal initializer.
var bootstrapProxy *Loader

func init() {
	bootstrapProxy = new(Loader)
	bootstrapProxy.Name = "bootstrap"
}

// BootstrapProxy returns the loader that stands in for Bootstrap wherever a
// non-nil loader is required (cache keys, type pools). Its classes come from
// the boot class path configured on the type pool strategy.
func BootstrapProxy() *Loader {
	return bootstrapProxy
}

// Normalize maps Bootstrap to BootstrapProxy.
func Normalize(l *Loader) *Loader {
	if l == Bootstrap {
		return bootstrapProxy
	}
	return l
}

// IsBootstrap reports whether l is the bootstrap loader or its proxy.
func IsBootstrap(l *Loader) bool {
	return l == Bootstrap || l == bootstrapProxy
}

// New returns a loader over the given class path.
func New(name string, parent *Loader, classPath ...string) *Loader {
	return &Loader{Name: name, Parent: parent, ClassPath: classPath}
}

// Lineage returns l followed by its ancestors, nearest first. The bootstrap
// loader is not included.
func (l *Loader) Lineage() []*Loader {
	var out []*Loader
	for cur := l; cur != nil && cur != bootstrapProxy; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

// LibraryVersion returns the version of library known to this loader or any
// of its ancestors.
func (l *Loader) LibraryVersion(library string) (string, bool) {
	for _, cur := range l.Lineage() {
		if v, ok := cur.Libraries[library]; ok {
			return v, true
		}
	}
	return "", false
}

func (l *Loader) String() string {
	if IsBootstrap(l) {
		return "bootstrap"
	}
	names := make([]string, 0, 2)
	for _, cur := range l.Lineage() {
		names = append(names, cur.Name)
	}
	return strings.Join(names, "<-")
}
