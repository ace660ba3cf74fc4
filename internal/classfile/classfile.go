package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when the input is not a structurally valid class file.
var ErrMalformed = errors.New("malformed class file")

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Class is the structural view of a class file: only what is needed to answer
// "does this member exist, and with which modifiers".
type Class struct {
	MajorVersion int
	MinorVersion int
	Access       int
	// Name, SuperName and Interfaces use the internal form (java/lang/Object).
	Name       string
	SuperName  string
	Interfaces []string
	Fields     []Member
	Methods    []Member
}

// Member is a declared field or method.
type Member struct {
	Access     int
	Name       string
	Descriptor string
}

type cpEntry struct {
	tag  byte
	utf8 string
	ref  uint16
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s at offset %d", ErrMalformed, fmt.Sprintf(format, args...), r.off)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail("unexpected end of data (need %d bytes)", n)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Parse reads the structural parts of a class file. Attributes are skipped and
// nothing in the class is executed.
func Parse(data []byte) (*Class, error) {
	r := &reader{data: data}
	if m := r.u4(); r.err == nil && m != magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrMalformed, m)
	}
	c := &Class{}
	c.MinorVersion = int(r.u2())
	c.MajorVersion = int(r.u2())

	pool := readConstantPool(r)
	if r.err != nil {
		return nil, r.err
	}

	c.Access = int(r.u2())
	c.Name = className(r, pool, r.u2())
	if superIdx := r.u2(); superIdx != 0 {
		c.SuperName = className(r, pool, superIdx)
	}
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, className(r, pool, r.u2()))
	}
	c.Fields = readMembers(r, pool)
	c.Methods = readMembers(r, pool)
	skipAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func readConstantPool(r *reader) []cpEntry {
	count := int(r.u2())
	pool := make([]cpEntry, count)
	for i := 1; i < count && r.err == nil; i++ {
		tag := r.u1()
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n := int(r.u2())
			b := r.take(n)
			if r.err != nil {
				break
			}
			s, ok := decodeModifiedUTF8(b)
			if !ok {
				r.fail("malformed utf8 constant at index %d", i)
				break
			}
			e.utf8 = s
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.ref = r.u2()
		case tagInteger, tagFloat:
			r.take(4)
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.take(4)
		case tagMethodHandle:
			r.take(3)
		case tagLong, tagDouble:
			r.take(8)
			pool[i] = e
			// 8-byte constants occupy two slots.
			i++
			continue
		default:
			r.fail("unknown constant pool tag %d at index %d", tag, i)
		}
		pool[i] = e
	}
	return pool
}

func utf8At(r *reader, pool []cpEntry, idx uint16) string {
	if r.err != nil {
		return ""
	}
	if int(idx) <= 0 || int(idx) >= len(pool) || pool[idx].tag != tagUtf8 {
		r.fail("constant %d is not a Utf8 entry", idx)
		return ""
	}
	return pool[idx].utf8
}

func className(r *reader, pool []cpEntry, idx uint16) string {
	if r.err != nil {
		return ""
	}
	if int(idx) <= 0 || int(idx) >= len(pool) || pool[idx].tag != tagClass {
		r.fail("constant %d is not a Class entry", idx)
		return ""
	}
	return utf8At(r, pool, pool[idx].ref)
}

func readMembers(r *reader, pool []cpEntry) []Member {
	count := int(r.u2())
	if r.err != nil || count == 0 {
		return nil
	}
	members := make([]Member, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		m := Member{Access: int(r.u2())}
		m.Name = utf8At(r, pool, r.u2())
		m.Descriptor = utf8At(r, pool, r.u2())
		skipAttributes(r)
		members = append(members, m)
	}
	return members
}

func skipAttributes(r *reader) {
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		r.u2()
		r.take(int(r.u4()))
	}
}

// BinaryName converts an internal name (java/lang/Object) to a binary class
// name (java.lang.Object).
func BinaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// ResourceName returns the path of the class file for a binary class name.
func ResourceName(binaryName string) string {
	return strings.ReplaceAll(binaryName, ".", "/") + ".class"
}
