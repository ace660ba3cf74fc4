package reference

import (
	"cmp"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Source is the location in helper code that introduced a dependency.
type Source struct {
	Name string
	Line int
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%d", s.Name, s.Line)
}

// Reference is a structural dependency on a class: the class must exist with
// the given flags, and must declare or inherit every listed field and method.
type Reference struct {
	ClassName string
	Flags     []Flag
	Fields    []Field
	Methods   []Method
	Sources   sets.Set[Source]
}

// Field is a dependency on a field. Type is the field's internal type name;
// primitives may use either the long form ("int") or the descriptor ("I").
type Field struct {
	Name    string
	Type    string
	Flags   []Flag
	Sources sets.Set[Source]
}

// Method is a dependency on a method, identified by name and descriptor
// ("(Ljava/lang/String;)V").
type Method struct {
	Name       string
	Descriptor string
	Flags      []Flag
	Sources    sets.Set[Source]
}

// SortedSources returns sources ordered by name then line.
func SortedSources(s sets.Set[Source]) []Source {
	out := s.UnsortedList()
	slices.SortFunc(out, func(a, b Source) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Line, b.Line)
	})
	return out
}

// Builder collects references from many call sites. Requirements on the same
// class are merged so each class appears once in the built set.
type Builder struct {
	byName map[string]*Reference
}

func NewBuilder() *Builder {
	return &Builder{byName: map[string]*Reference{}}
}

// Add merges ref into the builder.
func (b *Builder) Add(ref Reference) *Builder {
	existing, ok := b.byName[ref.ClassName]
	if !ok {
		existing = &Reference{ClassName: ref.ClassName, Sources: sets.New[Source]()}
		b.byName[ref.ClassName] = existing
	}
	existing.Sources = existing.Sources.Union(ref.Sources)
	existing.Flags = mergeFlags(existing.Flags, ref.Flags)

	for _, f := range ref.Fields {
		i := slices.IndexFunc(existing.Fields, func(e Field) bool { return e.Name == f.Name && e.Type == f.Type })
		if i < 0 {
			existing.Fields = append(existing.Fields, Field{Name: f.Name, Type: f.Type, Flags: mergeFlags(nil, f.Flags), Sources: sets.New[Source]().Union(f.Sources)})
			continue
		}
		existing.Fields[i].Flags = mergeFlags(existing.Fields[i].Flags, f.Flags)
		existing.Fields[i].Sources = existing.Fields[i].Sources.Union(f.Sources)
	}
	for _, m := range ref.Methods {
		i := slices.IndexFunc(existing.Methods, func(e Method) bool { return e.Name == m.Name && e.Descriptor == m.Descriptor })
		if i < 0 {
			existing.Methods = append(existing.Methods, Method{Name: m.Name, Descriptor: m.Descriptor, Flags: mergeFlags(nil, m.Flags), Sources: sets.New[Source]().Union(m.Sources)})
			continue
		}
		existing.Methods[i].Flags = mergeFlags(existing.Methods[i].Flags, m.Flags)
		existing.Methods[i].Sources = existing.Methods[i].Sources.Union(m.Sources)
	}
	return b
}

// Build returns the merged references ordered by class name. The builder
// must not be used afterwards.
func (b *Builder) Build() []Reference {
	out := make([]Reference, 0, len(b.byName))
	for _, ref := range b.byName {
		out = append(out, *ref)
	}
	slices.SortFunc(out, func(x, y Reference) int { return cmp.Compare(x.ClassName, y.ClassName) })
	b.byName = nil
	return out
}

func mergeFlags(into, add []Flag) []Flag {
	for _, f := range add {
		if !slices.ContainsFunc(into, func(e Flag) bool { return e.Name() == f.Name() }) {
			into = append(into, f)
		}
	}
	return into
}
