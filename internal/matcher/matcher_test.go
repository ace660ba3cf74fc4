package matcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/muzzle/internal/classfile"
	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/metrics"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/typepool"
)

var helperSource = sets.New(reference.Source{Name: "com.example.instrumentation.FooAdvice", Line: 42})

func fooRef() reference.Reference {
	return reference.Reference{
		ClassName: "com.example.Foo",
		Flags:     []reference.Flag{reference.Public},
		Sources:   helperSource,
	}
}

func foo(modifiers int, fields []typepool.FieldDescription, methods []typepool.MethodDescription) typepool.Definition {
	return typepool.Definition{
		Name:      "com.example.Foo",
		Modifiers: modifiers,
		SuperName: "java.lang.Object",
		Fields:    fields,
		Methods:   methods,
	}
}

var object = typepool.Definition{Name: "java.lang.Object", Modifiers: classfile.AccPublic}

func kinds(mismatches []reference.Mismatch) []string {
	out := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		out = append(out, m.Kind())
	}
	return out
}

func TestMatcher_ClassPresentWithMatchingFlags(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic, nil, nil))
	m := New(strategy, []reference.Reference{fooRef()}, nil)
	loader := classloader.New("app", nil)

	if !m.IsSatisfied(ctx, loader) {
		t.Fatalf("expected Foo to satisfy its reference, mismatches: %v", m.FindMismatches(ctx, loader))
	}
	if got := m.FindMismatches(ctx, loader); got != nil {
		t.Fatalf("expected no mismatches, got %v", got)
	}
}

func TestMatcher_MissingClass(t *testing.T) {
	ctx := context.Background()
	m := New(typepool.NewStatic(object), []reference.Reference{fooRef()}, nil)
	loader := classloader.New("app", nil)

	got := m.FindMismatches(ctx, loader)
	if len(got) != 1 {
		t.Fatalf("expected one mismatch, got %v", got)
	}
	missing, ok := got[0].(reference.MissingClass)
	if !ok || missing.ClassName != "com.example.Foo" {
		t.Fatalf("expected MissingClass for com.example.Foo, got %v", got[0])
	}
	if diff := cmp.Diff(reference.SortedSources(helperSource), missing.Sources()); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
	if got[0].String() != "com.example.instrumentation.FooAdvice:42 Missing class com.example.Foo" {
		t.Fatalf("unexpected message %q", got[0].String())
	}
	if m.IsSatisfied(ctx, loader) {
		t.Fatalf("expected missing class to fail the fast path")
	}
}

func TestMatcher_MethodWithWrongVisibilityIsMissingFlag(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic, nil, []typepool.MethodDescription{
		{Name: "bar", Descriptor: "()V", Modifiers: classfile.AccPrivate},
	}))
	ref := fooRef()
	ref.Methods = []reference.Method{{Name: "bar", Descriptor: "()V", Flags: []reference.Flag{reference.Public}, Sources: helperSource}}
	m := New(strategy, []reference.Reference{ref}, nil)

	got := m.FindMismatches(ctx, classloader.New("app", nil))
	if len(got) != 1 {
		t.Fatalf("expected exactly one mismatch, got %v", got)
	}
	flag, ok := got[0].(reference.MissingFlag)
	if !ok {
		t.Fatalf("expected MissingFlag, got %T", got[0])
	}
	if flag.Member != "com.example.Foo#bar()V" || flag.Flag != reference.Public {
		t.Fatalf("unexpected mismatch %v", flag)
	}
}

func TestMatcher_PrimitiveFieldTypes(t *testing.T) {
	pairs := map[string]string{
		"int": "I", "char": "C", "boolean": "Z", "long": "J",
		"short": "S", "float": "F", "double": "D", "byte": "B",
	}
	ctx := context.Background()
	for long, short := range pairs {
		for _, tc := range []struct{ declared, required string }{
			{declared: short, required: long},
			{declared: long, required: short},
			{declared: long, required: long},
		} {
			strategy := typepool.NewStatic(object, foo(classfile.AccPublic, []typepool.FieldDescription{
				{Name: "count", Type: tc.declared, Modifiers: classfile.AccPrivate},
			}, nil))
			ref := fooRef()
			ref.Fields = []reference.Field{{Name: "count", Type: tc.required, Sources: helperSource}}
			m := New(strategy, []reference.Reference{ref}, nil)
			if got := m.FindMismatches(ctx, classloader.New("app", nil)); got != nil {
				t.Fatalf("declared %q required %q: unexpected mismatches %v", tc.declared, tc.required, got)
			}
		}
	}
}

func TestMatcher_PrimitiveFieldTypesDoNotCrossMatch(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct{ declared, required string }{
		{declared: "J", required: "int"},
		{declared: "int", required: "J"},
		{declared: "I", required: "java/lang/Integer"},
		{declared: "V", required: "void"},
		{declared: "I", required: "integer"},
	} {
		strategy := typepool.NewStatic(object, foo(classfile.AccPublic, []typepool.FieldDescription{
			{Name: "count", Type: tc.declared},
		}, nil))
		ref := fooRef()
		ref.Fields = []reference.Field{{Name: "count", Type: tc.required, Sources: helperSource}}
		m := New(strategy, []reference.Reference{ref}, nil)
		got := m.FindMismatches(ctx, classloader.New("app", nil))
		if diff := cmp.Diff([]string{"missing_field"}, kinds(got)); diff != "" {
			t.Fatalf("declared %q required %q (-want +got):\n%s", tc.declared, tc.required, diff)
		}
	}
}

func TestMatcher_InheritedMembers(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object,
		typepool.Definition{
			Name:      "com.example.Base",
			Modifiers: classfile.AccPublic | classfile.AccAbstract,
			SuperName: "java.lang.Object",
			Methods:   []typepool.MethodDescription{{Name: "m", Descriptor: "()V", Modifiers: classfile.AccPublic}},
		},
		typepool.Definition{
			Name:      "com.example.Named",
			Modifiers: classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract,
			Fields:    []typepool.FieldDescription{{Name: "NAME", Type: "java/lang/String", Modifiers: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal}},
			Methods:   []typepool.MethodDescription{{Name: "name", Descriptor: "()Ljava/lang/String;", Modifiers: classfile.AccPublic | classfile.AccAbstract}},
		},
		typepool.Definition{
			Name:       "com.example.Derived",
			Modifiers:  classfile.AccPublic,
			SuperName:  "com.example.Base",
			Interfaces: []string{"com.example.Named"},
		},
	)
	ref := reference.Reference{
		ClassName: "com.example.Derived",
		Sources:   helperSource,
		Fields:    []reference.Field{{Name: "NAME", Type: "java/lang/String", Flags: []reference.Flag{reference.Static}}},
		Methods: []reference.Method{
			{Name: "m", Descriptor: "()V", Flags: []reference.Flag{reference.Public}},
			{Name: "name", Descriptor: "()Ljava/lang/String;"},
		},
	}
	m := New(strategy, []reference.Reference{ref}, nil)
	loader := classloader.New("app", nil)

	if got := m.FindMismatches(ctx, loader); got != nil {
		t.Fatalf("expected inherited members to be found, got %v", got)
	}
	if !m.IsSatisfied(ctx, loader) {
		t.Fatalf("expected fast path to agree")
	}
}

func TestMatcher_MissingSupertypeIsMissingClass(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(typepool.Definition{
		Name:      "com.example.Foo",
		Modifiers: classfile.AccPublic,
		SuperName: "com.example.Gone",
	})
	ref := fooRef()
	ref.Methods = []reference.Method{{Name: "inherited", Descriptor: "()V"}}
	m := New(strategy, []reference.Reference{ref}, nil)

	got := m.FindMismatches(ctx, classloader.New("app", nil))
	if len(got) != 1 {
		t.Fatalf("expected one mismatch, got %v", got)
	}
	missing, ok := got[0].(reference.MissingClass)
	if !ok || missing.ClassName != "com.example.Gone" {
		t.Fatalf("expected MissingClass for the superclass, got %v", got[0])
	}
}

func TestMatcher_ResolutionFailureIsNotSatisfied(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("zip: not a valid zip file")
	strategy := typepool.NewStatic(object).Fail("com.example.Foo", boom)
	m := New(strategy, []reference.Reference{fooRef()}, nil)
	loader := classloader.New("app", nil)

	if m.IsSatisfied(ctx, loader) {
		t.Fatalf("expected resolver failure to degrade to false")
	}
	got := m.FindMismatches(ctx, loader)
	if len(got) != 1 {
		t.Fatalf("expected one mismatch, got %v", got)
	}
	resErr, ok := got[0].(reference.ResolutionError)
	if !ok || !errors.Is(resErr.Err, boom) {
		t.Fatalf("expected ResolutionError wrapping %v, got %v", boom, got[0])
	}
}

func TestMatcher_HelperClassesAreExempt(t *testing.T) {
	ctx := context.Background()
	helper := reference.Reference{ClassName: "com.example.instrumentation.Helper", Sources: helperSource}
	m := New(typepool.NewStatic(object), []reference.Reference{helper}, []string{helper.ClassName})
	loader := classloader.New("app", nil)

	if !m.IsSatisfied(ctx, loader) {
		t.Fatalf("expected helper reference to be exempt")
	}
	if got := m.FindMismatches(ctx, loader); got != nil {
		t.Fatalf("expected no mismatches, got %v", got)
	}
}

func TestMatcher_FastPathAgreesWithExhaustive(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object,
		foo(classfile.AccPublic|classfile.AccFinal, []typepool.FieldDescription{{Name: "count", Type: "int"}}, nil),
		typepool.Definition{Name: "com.example.Bar", Modifiers: classfile.AccPublic},
	)
	refs := map[string][]reference.Reference{
		"all satisfied": {fooRef(), {ClassName: "com.example.Bar"}},
		"class flag":    {{ClassName: "com.example.Foo", Flags: []reference.Flag{reference.NonFinal}}},
		"field":         {{ClassName: "com.example.Foo", Fields: []reference.Field{{Name: "size", Type: "int"}}}},
		"method":        {{ClassName: "com.example.Bar", Methods: []reference.Method{{Name: "run", Descriptor: "()V"}}}},
		"class":         {fooRef(), {ClassName: "com.example.Baz"}},
		"several": {
			{ClassName: "com.example.Foo", Flags: []reference.Flag{reference.Interface}, Fields: []reference.Field{{Name: "size", Type: "J"}}},
			{ClassName: "com.example.Baz"},
		},
	}
	for name, rs := range refs {
		t.Run(name, func(t *testing.T) {
			m := New(strategy, rs, nil)
			loader := classloader.New("app", nil)
			mismatches := m.FindMismatches(ctx, loader)
			if m.IsSatisfied(ctx, loader) != (len(mismatches) == 0) {
				t.Fatalf("fast path disagrees with mismatches %v", mismatches)
			}
		})
	}
}

func TestMatcher_ExhaustiveReportsEveryMismatch(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic|classfile.AccFinal, nil, []typepool.MethodDescription{
		{Name: "bar", Descriptor: "()V", Modifiers: classfile.AccStatic},
	}))
	ref := reference.Reference{
		ClassName: "com.example.Foo",
		Flags:     []reference.Flag{reference.NonFinal},
		Fields:    []reference.Field{{Name: "count", Type: "I"}},
		Methods: []reference.Method{
			{Name: "bar", Descriptor: "()V", Flags: []reference.Flag{reference.Public, reference.NonStatic}},
			{Name: "baz", Descriptor: "(I)V"},
		},
	}
	m := New(strategy, []reference.Reference{ref, {ClassName: "com.example.Gone"}}, nil)

	got := kinds(m.FindMismatches(ctx, classloader.New("app", nil)))
	want := []string{"missing_flag", "missing_field", "missing_flag", "missing_flag", "missing_method", "missing_class"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch kinds (-want +got):\n%s", diff)
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic, nil, nil))
	ref := fooRef()
	ref.Methods = []reference.Method{{Name: "a", Descriptor: "()V"}, {Name: "b", Descriptor: "()V"}}
	m := New(strategy, []reference.Reference{ref, {ClassName: "com.example.Gone"}}, nil)
	loader := classloader.New("app", nil)

	first := m.FindMismatches(ctx, loader)
	for i := 0; i < 5; i++ {
		again := m.FindMismatches(ctx, loader)
		if diff := cmp.Diff(fmt.Sprint(first), fmt.Sprint(again)); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
		if m.IsSatisfied(ctx, loader) {
			t.Fatalf("run %d: expected false", i)
		}
	}
}

func TestMatcher_ConcurrentFirstAccessComputesOnce(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic, nil, nil))
	m := New(strategy, []reference.Reference{fooRef()}, nil, WithName("concurrent"))
	loader := classloader.New("app", nil)

	const callers = 16
	results := make([]bool, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = m.IsSatisfied(ctx, loader)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Fatalf("caller %d observed false", i)
		}
	}
	if got := strategy.Describes(); got != 1 {
		t.Fatalf("expected a single resolver invocation, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("concurrent")); got != 1 {
		t.Fatalf("expected one cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.MatchTotal.WithLabelValues("concurrent", "pass")); got != callers {
		t.Fatalf("expected %d passes, got %v", callers, got)
	}
}

func TestMatcher_BootstrapIsNormalized(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic().Define(classloader.Bootstrap, typepool.Definition{Name: "com.example.Foo", Modifiers: classfile.AccPublic})
	m := New(strategy, []reference.Reference{fooRef()}, nil, WithName("bootstrap"))

	if !m.IsSatisfied(ctx, classloader.Bootstrap) {
		t.Fatalf("expected bootstrap classes to satisfy the reference")
	}
	if !m.IsSatisfied(ctx, classloader.BootstrapProxy()) {
		t.Fatalf("expected proxy to share the bootstrap verdict")
	}
	if got := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("bootstrap")); got != 1 {
		t.Fatalf("expected the second call to hit the cache, got %v hits", got)
	}
	if got := strategy.Describes(); got != 1 {
		t.Fatalf("expected one resolver invocation, got %d", got)
	}
}

func TestMatcher_VerdictsDoNotKeepLoadersAlive(t *testing.T) {
	ctx := context.Background()
	m := New(typepool.NewStatic(object), []reference.Reference{{ClassName: "java.lang.Object"}}, nil)

	for i := 0; i < 100; i++ {
		if !m.IsSatisfied(ctx, classloader.New(fmt.Sprintf("short-lived-%d", i), nil)) {
			t.Fatalf("expected java.lang.Object to resolve")
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.verdicts.Len() > 1 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if n := m.verdicts.Len(); n > 1 {
		t.Fatalf("expected verdicts for collected loaders to be dropped, %d remain", n)
	}
}

func TestMatcher_MismatchMetrics(t *testing.T) {
	ctx := context.Background()
	m := New(typepool.NewStatic(object), []reference.Reference{fooRef(), {ClassName: "com.example.Bar"}}, nil, WithName("mismatch-metrics"))
	m.FindMismatches(ctx, classloader.New("app", nil))

	if got := testutil.ToFloat64(metrics.MismatchesTotal.WithLabelValues("mismatch-metrics", "missing_class")); got != 2 {
		t.Fatalf("expected 2 missing_class mismatches, got %v", got)
	}
}

func TestCheckType(t *testing.T) {
	ctx := context.Background()
	strategy := typepool.NewStatic(object, foo(classfile.AccPublic, []typepool.FieldDescription{{Name: "count", Type: "I"}}, nil))
	res := strategy.TypePool(ctx, nil).Describe(ctx, "com.example.Foo")
	if !res.Resolved() {
		t.Fatalf("expected Foo to resolve")
	}
	ref := fooRef()
	ref.Fields = []reference.Field{{Name: "count", Type: "int", Flags: []reference.Flag{reference.Private}, Sources: helperSource}}

	got := CheckType(ref, res.Type())
	if diff := cmp.Diff([]string{"missing_flag"}, kinds(got)); diff != "" {
		t.Fatalf("mismatch kinds (-want +got):\n%s", diff)
	}
	if want := "com.example.instrumentation.FooAdvice:42 Missing flag PRIVATE on com.example.Foo#countint (actual: package-private)"; got[0].String() != want {
		t.Fatalf("got %q, want %q", got[0].String(), want)
	}
}
