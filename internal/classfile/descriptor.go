package classfile

// Access flags shared by classes, fields and methods (JVMS 4.1, 4.5, 4.6).
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccSuper      = 0x0020
	AccVolatile   = 0x0040
	AccTransient  = 0x0080
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccStrict     = 0x0800
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
)

var primitiveNames = map[byte]string{
	'I': "int",
	'C': "char",
	'Z': "boolean",
	'J': "long",
	'S': "short",
	'F': "float",
	'D': "double",
	'B': "byte",
	'V': "void",
}

// InternalName converts a field descriptor to the internal name used by the
// type descriptions: primitives use their long name ("int"), object types drop
// the L...; wrapper ("java/lang/String") and arrays keep their descriptor.
func InternalName(descriptor string) string {
	if len(descriptor) == 1 {
		if name, ok := primitiveNames[descriptor[0]]; ok {
			return name
		}
	}
	if len(descriptor) > 2 && descriptor[0] == 'L' && descriptor[len(descriptor)-1] == ';' {
		return descriptor[1 : len(descriptor)-1]
	}
	return descriptor
}

// PrimitiveName returns the long name for a one-letter primitive descriptor.
func PrimitiveName(short string) (string, bool) {
	if len(short) != 1 || short == "V" {
		return "", false
	}
	name, ok := primitiveNames[short[0]]
	return name, ok
}

// IsPrimitive reports whether name is the long name of one of the eight
// primitive value types.
func IsPrimitive(name string) bool {
	switch name {
	case "int", "char", "boolean", "long", "short", "float", "double", "byte":
		return true
	}
	return false
}
