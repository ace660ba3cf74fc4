package classfile

import (
	"bytes"
	"encoding/binary"
)

// Encode writes c as a minimal class file (no attributes, version taken from
// c or Java 8 when unset). It is the inverse of Parse for the parts Parse
// reads and is used to produce fixtures and snapshots of extracted metadata.
func Encode(c *Class) []byte {
	e := &encoder{index: map[string]uint16{}}

	thisIdx := e.class(c.Name)
	var superIdx uint16
	if c.SuperName != "" {
		superIdx = e.class(c.SuperName)
	}
	ifaces := make([]uint16, len(c.Interfaces))
	for i, name := range c.Interfaces {
		ifaces[i] = e.class(name)
	}
	type member struct{ access, name, desc uint16 }
	encodeMembers := func(ms []Member) []member {
		out := make([]member, len(ms))
		for i, m := range ms {
			out[i] = member{uint16(m.Access), e.utf8(m.Name), e.utf8(m.Descriptor)}
		}
		return out
	}
	fields := encodeMembers(c.Fields)
	methods := encodeMembers(c.Methods)

	major, minor := c.MajorVersion, c.MinorVersion
	if major == 0 {
		major = 52
	}

	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }
	w(uint32(magic))
	w(uint16(minor))
	w(uint16(major))
	w(uint16(e.count + 1))
	buf.Write(e.pool.Bytes())
	w(uint16(c.Access))
	w(thisIdx)
	w(superIdx)
	w(uint16(len(ifaces)))
	for _, idx := range ifaces {
		w(idx)
	}
	for _, ms := range [][]member{fields, methods} {
		w(uint16(len(ms)))
		for _, m := range ms {
			w(m.access)
			w(m.name)
			w(m.desc)
			w(uint16(0))
		}
	}
	w(uint16(0))
	return buf.Bytes()
}

type encoder struct {
	pool  bytes.Buffer
	count uint16
	index map[string]uint16
}

func (e *encoder) utf8(s string) uint16 {
	key := "u:" + s
	if idx, ok := e.index[key]; ok {
		return idx
	}
	b := encodeModifiedUTF8(s)
	e.pool.WriteByte(tagUtf8)
	_ = binary.Write(&e.pool, binary.BigEndian, uint16(len(b)))
	e.pool.Write(b)
	e.count++
	e.index[key] = e.count
	return e.count
}

func (e *encoder) class(name string) uint16 {
	key := "c:" + name
	if idx, ok := e.index[key]; ok {
		return idx
	}
	nameIdx := e.utf8(name)
	e.pool.WriteByte(tagClass)
	_ = binary.Write(&e.pool, binary.BigEndian, nameIdx)
	e.count++
	e.index[key] = e.count
	return e.count
}
