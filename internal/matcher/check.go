package matcher

import (
	"context"
	"errors"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/muzzle/internal/classfile"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/typepool"
)

// checkReference resolves ref in pool and checks it. Resolver failures are
// turned into mismatches here and never escape.
func checkReference(ctx context.Context, pool typepool.Pool, ref reference.Reference, failFast bool) []reference.Mismatch {
	res := typepool.Settle(pool.Describe(ctx, ref.ClassName))
	if err := res.Err(); err != nil {
		return []reference.Mismatch{failure(ref, err)}
	}
	if !res.Resolved() {
		return []reference.Mismatch{reference.NewMissingClass(ref.Sources, ref.ClassName)}
	}
	mismatches, err := checkType(ref, res.Type(), failFast)
	if err != nil {
		return []reference.Mismatch{failure(ref, err)}
	}
	return mismatches
}

// CheckType checks ref against a description the caller already holds.
func CheckType(ref reference.Reference, t typepool.TypeDescription) []reference.Mismatch {
	mismatches, err := checkType(ref, t, false)
	if err != nil {
		return []reference.Mismatch{failure(ref, err)}
	}
	return mismatches
}

// failure converts a resolver error. A supertype that turned out to be
// missing is a missing class, anything else a resolution error.
func failure(ref reference.Reference, err error) reference.Mismatch {
	var unresolved *typepool.UnresolvedError
	if errors.As(err, &unresolved) {
		return reference.NewMissingClass(ref.Sources, unresolved.ClassName)
	}
	return reference.NewResolutionError(ref.Sources, ref.ClassName, err)
}

func checkType(ref reference.Reference, t typepool.TypeDescription, failFast bool) ([]reference.Mismatch, error) {
	var mismatches []reference.Mismatch
	done := func() bool { return failFast && len(mismatches) > 0 }

	for _, flag := range ref.Flags {
		if !flag.Matches(t.Modifiers()) {
			mismatches = append(mismatches, reference.NewMissingFlag(ref.Sources, ref.ClassName, flag, t.Modifiers()))
			if done() {
				return mismatches, nil
			}
		}
	}

	for _, fieldRef := range ref.Fields {
		field, found, err := findField(t, fieldRef)
		if err != nil {
			return nil, err
		}
		if !found {
			mismatches = append(mismatches, reference.NewMissingField(fieldRef.Sources, ref.ClassName, fieldRef.Name, fieldRef.Type))
		} else {
			for _, flag := range fieldRef.Flags {
				if !flag.Matches(field.Modifiers) {
					member := ref.ClassName + "#" + fieldRef.Name + fieldRef.Type
					mismatches = append(mismatches, reference.NewMissingFlag(fieldRef.Sources, member, flag, field.Modifiers))
				}
			}
		}
		if done() {
			return mismatches, nil
		}
	}

	for _, methodRef := range ref.Methods {
		method, found, err := findMethod(t, methodRef)
		if err != nil {
			return nil, err
		}
		if !found {
			mismatches = append(mismatches, reference.NewMissingMethod(methodRef.Sources, ref.ClassName, methodRef.Name, methodRef.Descriptor))
		} else {
			for _, flag := range methodRef.Flags {
				if !flag.Matches(method.Modifiers) {
					member := ref.ClassName + "#" + methodRef.Name + methodRef.Descriptor
					mismatches = append(mismatches, reference.NewMissingFlag(methodRef.Sources, member, flag, method.Modifiers))
				}
			}
		}
		if done() {
			return mismatches, nil
		}
	}
	return mismatches, nil
}

func findField(t typepool.TypeDescription, ref reference.Field) (typepool.FieldDescription, bool, error) {
	return walk(t, sets.New[string](), func(t typepool.TypeDescription) (typepool.FieldDescription, bool) {
		for _, f := range t.DeclaredFields() {
			if f.Name == ref.Name && fieldTypeMatches(f.Type, ref.Type) {
				return f, true
			}
		}
		return typepool.FieldDescription{}, false
	})
}

// Method descriptors must match exactly; there is no primitive leniency.
func findMethod(t typepool.TypeDescription, ref reference.Method) (typepool.MethodDescription, bool, error) {
	return walk(t, sets.New[string](), func(t typepool.TypeDescription) (typepool.MethodDescription, bool) {
		for _, m := range t.DeclaredMethods() {
			if m.Name == ref.Name && m.Descriptor == ref.Descriptor {
				return m, true
			}
		}
		return typepool.MethodDescription{}, false
	})
}

// walk searches t, then its superclass chain, then its interfaces, depth
// first, and returns the first declaration found.
func walk[T any](t typepool.TypeDescription, seen sets.Set[string], declared func(typepool.TypeDescription) (T, bool)) (T, bool, error) {
	var zero T
	// Broken class paths can contain hierarchy cycles.
	if seen.Has(t.Name()) {
		return zero, false, nil
	}
	seen.Insert(t.Name())

	if v, ok := declared(t); ok {
		return v, true, nil
	}

	supertypes := t.Interfaces()
	if super := t.SuperClass(); super != nil {
		supertypes = append([]typepool.Resolution{super}, supertypes...)
	}
	for _, link := range supertypes {
		res := typepool.Settle(link)
		if err := res.Err(); err != nil {
			return zero, false, err
		}
		if !res.Resolved() {
			continue
		}
		if v, ok, err := walk(res.Type(), seen, declared); err != nil || ok {
			return v, ok, err
		}
	}
	return zero, false, nil
}

// fieldTypeMatches compares field types. Descriptions and references may name
// primitives differently ("int" versus "I"), so the eight primitive kinds are
// reconciled in either direction.
func fieldTypeMatches(actual, required string) bool {
	if actual == required {
		return true
	}
	if long, ok := classfile.PrimitiveName(required); ok && actual == long {
		return true
	}
	if long, ok := classfile.PrimitiveName(actual); ok && required == long {
		return true
	}
	return false
}
