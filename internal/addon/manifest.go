package addon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/afs"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/semver"
)

var (
	// ErrInvalidManifest wraps every validation failure of a manifest.
	ErrInvalidManifest = errors.New("invalid instrumentation manifest")
)

// ManifestSpec is the on-disk form of a manifest, in YAML or JSON.
//
//	modules:
//	- name: okhttp-3.0
//	  helperClasses: [io.example.okhttp.TracingInterceptor]
//	  appliesTo: {library: "com.squareup.okhttp3:okhttp", versions: "[3.0,)"}
//	  references:
//	  - class: okhttp3.Request
//	    flags: [PUBLIC]
//	    sources: ["io.example.okhttp.TracingInterceptor:41"]
//	    methods:
//	    - {name: url, descriptor: ()Lokhttp3/HttpUrl;}
type ManifestSpec struct {
	Modules []ModuleSpec `json:"modules"`
}

type ModuleSpec struct {
	Name          string             `json:"name"`
	HelperClasses []string           `json:"helperClasses,omitempty"`
	AppliesTo     *ApplicabilitySpec `json:"appliesTo,omitempty"`
	References    []ReferenceSpec    `json:"references"`
}

type ApplicabilitySpec struct {
	Library  string `json:"library"`
	Versions string `json:"versions"`
}

type ReferenceSpec struct {
	Class   string       `json:"class"`
	Flags   []string     `json:"flags,omitempty"`
	Sources []string     `json:"sources,omitempty"`
	Fields  []FieldSpec  `json:"fields,omitempty"`
	Methods []MethodSpec `json:"methods,omitempty"`
}

type FieldSpec struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Flags   []string `json:"flags,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

type MethodSpec struct {
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	Flags      []string `json:"flags,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// Manifest is a validated set of modules, in declaration order.
type Manifest struct {
	Modules []Module
}

// Module returns the module called name.
func (m *Manifest) Module(name string) (Module, bool) {
	for _, mod := range m.Modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return Module{}, false
}

// LoadManifest reads and validates the manifest at URL, which may be any
// location fs can download from.
func LoadManifest(ctx context.Context, fs afs.Service, URL string) (*Manifest, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("addon: load manifest %q: %w", URL, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("addon: load manifest %q: %w", URL, err)
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest. Every validation problem is
// reported, aggregated, and wrapped in ErrInvalidManifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var spec ManifestSpec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	var errs []error
	seen := sets.New[string]()
	manifest := &Manifest{}
	for i, ms := range spec.Modules {
		path := fmt.Sprintf("modules[%d]", i)
		name := strings.TrimSpace(ms.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("%s.name: must not be empty", path))
		case seen.Has(name):
			errs = append(errs, fmt.Errorf("%s.name: duplicate module %q", path, name))
		default:
			seen.Insert(name)
		}

		mod := Module{Name: name, HelperClassNames: ms.HelperClasses}
		if ms.AppliesTo != nil {
			app, err := applicability(*ms.AppliesTo)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.appliesTo: %w", path, err))
			}
			mod.AppliesTo = app
		}

		b := reference.NewBuilder()
		for j, rs := range ms.References {
			ref, refErrs := buildReference(fmt.Sprintf("%s.references[%d]", path, j), rs)
			errs = append(errs, refErrs...)
			b.Add(ref)
		}
		mod.References = b.Build()
		manifest.Modules = append(manifest.Modules, mod)
	}

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, agg)
	}
	return manifest, nil
}

func applicability(spec ApplicabilitySpec) (*Applicability, error) {
	if strings.TrimSpace(spec.Library) == "" {
		return nil, errors.New("library must not be empty")
	}
	versions, err := semver.ParseRange(spec.Versions)
	if err != nil {
		return nil, err
	}
	return &Applicability{Library: strings.TrimSpace(spec.Library), Range: spec.Versions, Versions: versions}, nil
}

func buildReference(path string, spec ReferenceSpec) (reference.Reference, []error) {
	var errs []error
	if strings.TrimSpace(spec.Class) == "" {
		errs = append(errs, fmt.Errorf("%s.class: must not be empty", path))
	}

	flags, flagErrs := parseFlags(path, spec.Flags)
	errs = append(errs, flagErrs...)
	sources, srcErrs := parseSources(path, spec.Sources)
	errs = append(errs, srcErrs...)
	ref := reference.Reference{ClassName: strings.TrimSpace(spec.Class), Flags: flags, Sources: sources}

	for i, fs := range spec.Fields {
		fieldPath := fmt.Sprintf("%s.fields[%d]", path, i)
		if fs.Name == "" || fs.Type == "" {
			errs = append(errs, fmt.Errorf("%s: name and type are required", fieldPath))
		}
		flags, flagErrs := parseFlags(fieldPath, fs.Flags)
		sources, srcErrs := parseSources(fieldPath, fs.Sources)
		errs = append(append(errs, flagErrs...), srcErrs...)
		ref.Fields = append(ref.Fields, reference.Field{Name: fs.Name, Type: fs.Type, Flags: flags, Sources: sources})
	}

	for i, ms := range spec.Methods {
		methodPath := fmt.Sprintf("%s.methods[%d]", path, i)
		if ms.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name: must not be empty", methodPath))
		}
		if !strings.HasPrefix(ms.Descriptor, "(") || !strings.Contains(ms.Descriptor, ")") {
			errs = append(errs, fmt.Errorf("%s.descriptor: %q is not a method descriptor", methodPath, ms.Descriptor))
		}
		flags, flagErrs := parseFlags(methodPath, ms.Flags)
		sources, srcErrs := parseSources(methodPath, ms.Sources)
		errs = append(append(errs, flagErrs...), srcErrs...)
		ref.Methods = append(ref.Methods, reference.Method{Name: ms.Name, Descriptor: ms.Descriptor, Flags: flags, Sources: sources})
	}
	return ref, errs
}

func parseFlags(path string, names []string) ([]reference.Flag, []error) {
	var flags []reference.Flag
	var errs []error
	for i, name := range names {
		f, err := reference.ParseFlag(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.flags[%d]: %w", path, i, err))
			continue
		}
		flags = append(flags, f)
	}
	return flags, errs
}

// parseSources parses "name:line" locations. The line is optional.
func parseSources(path string, raw []string) (sets.Set[reference.Source], []error) {
	sources := sets.New[reference.Source]()
	var errs []error
	for i, s := range raw {
		name, line := s, 0
		if idx := strings.LastIndex(s, ":"); idx >= 0 {
			n, err := strconv.Atoi(s[idx+1:])
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("%s.sources[%d]: invalid line in %q", path, i, s))
				continue
			}
			name, line = s[:idx], n
		}
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.sources[%d]: empty source name", path, i))
			continue
		}
		sources.Insert(reference.Source{Name: name, Line: line})
	}
	return sources, errs
}
