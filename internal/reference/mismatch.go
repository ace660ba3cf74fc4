package reference

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Mismatch is a reason a reference is not satisfied by a class loader.
// Mismatches are values; the matcher never panics or returns errors for them.
type Mismatch interface {
	// Sources are the helper-code locations that introduced the dependency.
	Sources() []Source
	// Kind is a short stable name used for metrics and grouping.
	Kind() string
	String() string
}

type origin struct {
	sources []Source
}

func (o origin) Sources() []Source { return o.sources }

func (o origin) prefix() string {
	if len(o.sources) == 0 {
		return ""
	}
	return o.sources[0].String() + " "
}

func newOrigin(s sets.Set[Source]) origin {
	return origin{sources: SortedSources(s)}
}

// MissingClass means the class could not be found at all.
type MissingClass struct {
	origin
	ClassName string
}

func NewMissingClass(sources sets.Set[Source], className string) MissingClass {
	return MissingClass{origin: newOrigin(sources), ClassName: className}
}

func (m MissingClass) Kind() string { return "missing_class" }

func (m MissingClass) String() string {
	return fmt.Sprintf("%sMissing class %s", m.prefix(), m.ClassName)
}

// MissingField means no field with that name and type exists in the class or
// any of its supertypes.
type MissingField struct {
	origin
	ClassName string
	FieldName string
	FieldType string
}

func NewMissingField(sources sets.Set[Source], className, name, typ string) MissingField {
	return MissingField{origin: newOrigin(sources), ClassName: className, FieldName: name, FieldType: typ}
}

func (m MissingField) Kind() string { return "missing_field" }

func (m MissingField) String() string {
	return fmt.Sprintf("%sMissing field %s#%s%s", m.prefix(), m.ClassName, m.FieldName, m.FieldType)
}

// MissingMethod means no method with that name and descriptor exists in the
// class or any of its supertypes.
type MissingMethod struct {
	origin
	ClassName  string
	MethodName string
	Descriptor string
}

func NewMissingMethod(sources sets.Set[Source], className, name, descriptor string) MissingMethod {
	return MissingMethod{origin: newOrigin(sources), ClassName: className, MethodName: name, Descriptor: descriptor}
}

func (m MissingMethod) Kind() string { return "missing_method" }

func (m MissingMethod) String() string {
	return fmt.Sprintf("%sMissing method %s#%s%s", m.prefix(), m.ClassName, m.MethodName, m.Descriptor)
}

// MissingFlag means the class or member exists but its modifiers do not
// satisfy Flag. Member is the class name for class-level flags, otherwise
// "Class#member<descriptor>".
type MissingFlag struct {
	origin
	Member          string
	Flag            Flag
	ActualModifiers int
}

func NewMissingFlag(sources sets.Set[Source], member string, flag Flag, actual int) MissingFlag {
	return MissingFlag{origin: newOrigin(sources), Member: member, Flag: flag, ActualModifiers: actual}
}

func (m MissingFlag) Kind() string { return "missing_flag" }

func (m MissingFlag) String() string {
	return fmt.Sprintf("%sMissing flag %s on %s (actual: %s)", m.prefix(), m.Flag.Name(), m.Member, FormatModifiers(m.ActualModifiers))
}

// ResolutionError means the class path could not be read while checking the
// reference. The reference is treated as unsatisfied.
type ResolutionError struct {
	origin
	ClassName string
	Err       error
}

func NewResolutionError(sources sets.Set[Source], className string, err error) ResolutionError {
	return ResolutionError{origin: newOrigin(sources), ClassName: className, Err: err}
}

func (m ResolutionError) Kind() string { return "resolution_error" }

func (m ResolutionError) String() string {
	return fmt.Sprintf("%sFailed to check %s: %v", m.prefix(), m.ClassName, m.Err)
}

func (m ResolutionError) Unwrap() error { return m.Err }
