package reference

import (
	"fmt"
	"strings"

	"github.com/anvil-platform/muzzle/internal/classfile"
)

// Flag is a requirement on the modifiers of a class or member. It is evaluated
// against the modifiers of the type or member actually found on the class path.
type Flag interface {
	Name() string
	Matches(modifiers int) bool
}

// builtinFlag is comparable so references holding flags can be compared and
// deduplicated by value.
type builtinFlag string

// Visibility, finality, kind and ownership requirements.
const (
	Public            builtinFlag = "PUBLIC"
	ProtectedOrHigher builtinFlag = "PROTECTED_OR_HIGHER"
	Protected         builtinFlag = "PROTECTED"
	PackageOrHigher   builtinFlag = "PACKAGE_OR_HIGHER"
	Package           builtinFlag = "PACKAGE"
	PrivateOrHigher   builtinFlag = "PRIVATE_OR_HIGHER"
	Private           builtinFlag = "PRIVATE"
	NonFinal          builtinFlag = "NON_FINAL"
	Final             builtinFlag = "FINAL"
	NonInterface      builtinFlag = "NON_INTERFACE"
	Interface         builtinFlag = "INTERFACE"
	NonStatic         builtinFlag = "NON_STATIC"
	Static            builtinFlag = "STATIC"
)

func (f builtinFlag) Name() string   { return string(f) }
func (f builtinFlag) String() string { return string(f) }

func (f builtinFlag) Matches(m int) bool {
	switch f {
	case Public:
		return has(m, classfile.AccPublic)
	case ProtectedOrHigher:
		return has(m, classfile.AccPublic|classfile.AccProtected)
	case Protected:
		return has(m, classfile.AccProtected)
	case PackageOrHigher:
		return !has(m, classfile.AccPrivate)
	case Package:
		return !has(m, classfile.AccPublic|classfile.AccProtected|classfile.AccPrivate)
	case PrivateOrHigher:
		return true
	case Private:
		return has(m, classfile.AccPrivate)
	case NonFinal:
		return !has(m, classfile.AccFinal)
	case Final:
		return has(m, classfile.AccFinal)
	case NonInterface:
		return !has(m, classfile.AccInterface)
	case Interface:
		return has(m, classfile.AccInterface)
	case NonStatic:
		return !has(m, classfile.AccStatic)
	case Static:
		return has(m, classfile.AccStatic)
	}
	return false
}

func has(modifiers, mask int) bool { return modifiers&mask != 0 }

var flagsByName = map[string]Flag{}

func init() {
	for _, f := range []Flag{
		Public, ProtectedOrHigher, Protected, PackageOrHigher, Package, PrivateOrHigher, Private,
		NonFinal, Final, NonInterface, Interface, NonStatic, Static,
	} {
		flagsByName[f.Name()] = f
	}
}

// ParseFlag returns the flag with the given name. Names are case-insensitive
// and accept '-' in place of '_' (non-private, NON_PRIVATE).
func ParseFlag(name string) (Flag, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	if key == "NON_PRIVATE" {
		return PackageOrHigher, nil
	}
	if f, ok := flagsByName[key]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("reference: unknown flag %q", name)
}

// FormatModifiers renders a modifier bitmask the way a Java declaration would.
func FormatModifiers(modifiers int) string {
	var parts []string
	for _, m := range []struct {
		mask int
		name string
	}{
		{classfile.AccPublic, "public"},
		{classfile.AccProtected, "protected"},
		{classfile.AccPrivate, "private"},
		{classfile.AccAbstract, "abstract"},
		{classfile.AccStatic, "static"},
		{classfile.AccFinal, "final"},
		{classfile.AccInterface, "interface"},
	} {
		if has(modifiers, m.mask) {
			parts = append(parts, m.name)
		}
	}
	if len(parts) == 0 {
		return "package-private"
	}
	return strings.Join(parts, " ")
}
