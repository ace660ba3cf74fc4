package reference

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/muzzle/internal/classfile"
)

func TestFlag_Matches(t *testing.T) {
	cases := []struct {
		flag      Flag
		modifiers int
		want      bool
	}{
		{Public, classfile.AccPublic, true},
		{Public, classfile.AccProtected, false},
		{ProtectedOrHigher, classfile.AccProtected, true},
		{ProtectedOrHigher, 0, false},
		{PackageOrHigher, 0, true},
		{PackageOrHigher, classfile.AccPrivate, false},
		{Package, 0, true},
		{Package, classfile.AccPublic, false},
		{PrivateOrHigher, classfile.AccPrivate, true},
		{Private, classfile.AccPrivate, true},
		{NonFinal, classfile.AccFinal, false},
		{Final, classfile.AccFinal | classfile.AccPublic, true},
		{Interface, classfile.AccInterface | classfile.AccAbstract, true},
		{NonInterface, classfile.AccInterface, false},
		{Static, classfile.AccStatic, true},
		{NonStatic, classfile.AccStatic, false},
	}
	for _, c := range cases {
		if got := c.flag.Matches(c.modifiers); got != c.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", c.flag.Name(), FormatModifiers(c.modifiers), got, c.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	for in, want := range map[string]Flag{
		"PUBLIC":      Public,
		"public":      Public,
		"non-private": PackageOrHigher,
		"NON_STATIC":  NonStatic,
	} {
		got, err := ParseFlag(in)
		if err != nil {
			t.Fatalf("ParseFlag(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFlag(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseFlag("SOMETIMES"); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestBuilder_MergesReferencesToSameClass(t *testing.T) {
	a := Source{Name: "Helper.java", Line: 10}
	b := Source{Name: "Advice.java", Line: 3}

	refs := NewBuilder().
		Add(Reference{
			ClassName: "com.example.Foo",
			Flags:     []Flag{Public},
			Sources:   sets.New(a),
			Methods:   []Method{{Name: "bar", Descriptor: "()V", Flags: []Flag{Public}, Sources: sets.New(a)}},
		}).
		Add(Reference{
			ClassName: "com.example.Foo",
			Flags:     []Flag{Public, NonFinal},
			Sources:   sets.New(b),
			Fields:    []Field{{Name: "count", Type: "I", Sources: sets.New(b)}},
			Methods:   []Method{{Name: "bar", Descriptor: "()V", Flags: []Flag{NonStatic}, Sources: sets.New(b)}},
		}).
		Add(Reference{ClassName: "com.example.Bar"}).
		Build()

	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d", len(refs))
	}
	if refs[0].ClassName != "com.example.Bar" {
		t.Fatalf("expected references sorted by class name, got %q first", refs[0].ClassName)
	}

	foo := refs[1]
	if diff := cmp.Diff([]Flag{Public, NonFinal}, foo.Flags); diff != "" {
		t.Errorf("class flags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Source{b, a}, SortedSources(foo.Sources)); diff != "" {
		t.Errorf("class sources (-want +got):\n%s", diff)
	}
	if len(foo.Methods) != 1 {
		t.Fatalf("expected bar()V to be merged, got %d methods", len(foo.Methods))
	}
	if diff := cmp.Diff([]Flag{Public, NonStatic}, foo.Methods[0].Flags); diff != "" {
		t.Errorf("method flags (-want +got):\n%s", diff)
	}
	if foo.Methods[0].Sources.Len() != 2 {
		t.Errorf("expected method sources from both call sites, got %v", foo.Methods[0].Sources.UnsortedList())
	}
	if len(foo.Fields) != 1 || foo.Fields[0].Name != "count" {
		t.Errorf("expected field count, got %+v", foo.Fields)
	}
}

func TestMismatch_String(t *testing.T) {
	src := sets.New(Source{Name: "Helper.java", Line: 7})

	cases := []struct {
		m    Mismatch
		kind string
		want string
	}{
		{NewMissingClass(src, "com.example.Foo"), "missing_class", "Helper.java:7 Missing class com.example.Foo"},
		{NewMissingField(nil, "com.example.Foo", "count", "I"), "missing_field", "Missing field com.example.Foo#countI"},
		{NewMissingMethod(src, "com.example.Foo", "bar", "()V"), "missing_method", "Helper.java:7 Missing method com.example.Foo#bar()V"},
		{NewMissingFlag(src, "com.example.Foo#bar()V", Public, classfile.AccPrivate), "missing_flag", "Helper.java:7 Missing flag PUBLIC on com.example.Foo#bar()V (actual: private)"},
	}
	for _, c := range cases {
		if c.m.Kind() != c.kind {
			t.Errorf("Kind() = %q, want %q", c.m.Kind(), c.kind)
		}
		if got := c.m.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
