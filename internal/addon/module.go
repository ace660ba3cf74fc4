// Package addon is the boundary between instrumentation modules and the
// reference matcher: it loads module manifests and decides, per class loader,
// whether a module may be applied.
package addon

import (
	"fmt"

	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/semver"
)

// Module is an instrumentation module: the references its helper code makes
// into a library, and the helper classes it injects itself.
type Module struct {
	Name             string
	HelperClassNames []string
	References       []reference.Reference
	// AppliesTo optionally restricts the module to versions of one library.
	AppliesTo *Applicability
}

// Applicability names a library coordinate (group:artifact) and the range of
// its versions a module was written for.
type Applicability struct {
	Library  string
	Range    string
	Versions semver.Constraint
}

// applies checks the version of the targeted library that loader advertises.
// A loader that advertises no parsable version is left to the reference check.
func (m Module) applies(loader *classloader.Loader) (bool, string) {
	if m.AppliesTo == nil {
		return true, ""
	}
	raw, ok := loader.LibraryVersion(m.AppliesTo.Library)
	if !ok {
		return true, ""
	}
	v, err := semver.ParseVersion(raw)
	if err != nil {
		return true, ""
	}
	if !semver.Satisfies(v, m.AppliesTo.Versions) {
		return false, fmt.Sprintf("%s %s is outside %s", m.AppliesTo.Library, raw, m.AppliesTo.Range)
	}
	return true, ""
}
