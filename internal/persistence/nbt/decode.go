package nbt

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Unmarshal decodes a named tree. Bytes after the root compound are ignored.
func Unmarshal(data []byte) (string, *Compound, error) {
	d := &decoder{buf: data}
	if err := d.rootTag(); err != nil {
		return "", nil, err
	}
	name, err := d.string()
	if err != nil {
		return "", nil, err
	}
	root, err := d.compound(0)
	if err != nil {
		return "", nil, err
	}
	return name, root, nil
}

// UnmarshalNetwork decodes a tree written without the root name.
func UnmarshalNetwork(data []byte) (*Compound, error) {
	d := &decoder{buf: data}
	if err := d.rootTag(); err != nil {
		return nil, err
	}
	return d.compound(0)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, d.off, d.remaining())
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p, nil
}

func (d *decoder) rootTag() error {
	b, err := d.take(1)
	if err != nil {
		return err
	}
	if TagType(b[0]) != TagCompound {
		return fmt.Errorf("%w: got %v", ErrNotCompound, TagType(b[0]))
	}
	return nil
}

func (d *decoder) tagType() (TagType, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	t := TagType(b[0])
	if !t.valid() {
		return 0, fmt.Errorf("%w: %d at offset %d", ErrUnknownTag, b[0], d.off-1)
	}
	return t, nil
}

func (d *decoder) u16() (uint16, error) {
	p, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (d *decoder) u32() (uint32, error) {
	p, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (d *decoder) u64() (uint64, error) {
	p, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (d *decoder) string() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	p, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", fmt.Errorf("%w at offset %d", ErrInvalidUTF8, d.off-int(n))
	}
	return string(p), nil
}

// length reads an i32 element count and checks that count*size bytes remain,
// so a corrupt header cannot force a huge allocation.
func (d *decoder) length(size int) (int, error) {
	v, err := d.u32()
	if err != nil {
		return 0, err
	}
	n := int32(v)
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeLen, n)
	}
	if size > 0 && int64(n)*int64(size) > int64(d.remaining()) {
		return 0, fmt.Errorf("%w: %d elements of %d bytes, %d remain", ErrTruncated, n, size, d.remaining())
	}
	return int(n), nil
}

func (d *decoder) compound(depth int) (*Compound, error) {
	if depth >= MaxDepth {
		return nil, ErrTooDeep
	}
	c := NewCompound()
	for {
		t, err := d.tagType()
		if err != nil {
			return nil, err
		}
		if t == TagEnd {
			return c, nil
		}
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		if c.Has(name) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, name)
		}
		v, err := d.payload(t, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c.Set(name, v)
	}
}

func (d *decoder) payload(t TagType, depth int) (Tag, error) {
	switch t {
	case TagByte:
		p, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return Byte(int8(p[0])), nil
	case TagShort:
		v, err := d.u16()
		return Short(int16(v)), err
	case TagInt:
		v, err := d.u32()
		return Int(int32(v)), err
	case TagLong:
		v, err := d.u64()
		return Long(int64(v)), err
	case TagFloat:
		v, err := d.u32()
		return Float(math.Float32frombits(v)), err
	case TagDouble:
		v, err := d.u64()
		return Double(math.Float64frombits(v)), err
	case TagString:
		s, err := d.string()
		return String(s), err
	case TagByteArray:
		n, err := d.length(1)
		if err != nil {
			return nil, err
		}
		p, _ := d.take(n)
		out := make(ByteArray, n)
		for i, b := range p {
			out[i] = int8(b)
		}
		return out, nil
	case TagIntArray:
		n, err := d.length(4)
		if err != nil {
			return nil, err
		}
		p, _ := d.take(4 * n)
		out := make(IntArray, n)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(p[4*i:]))
		}
		return out, nil
	case TagLongArray:
		n, err := d.length(8)
		if err != nil {
			return nil, err
		}
		p, _ := d.take(8 * n)
		out := make(LongArray, n)
		for i := range out {
			out[i] = int64(binary.BigEndian.Uint64(p[8*i:]))
		}
		return out, nil
	case TagList:
		return d.list(depth)
	case TagCompound:
		return d.compound(depth)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, byte(t))
}

func minSize(t TagType) int {
	switch t {
	case TagByte:
		return 1
	case TagShort, TagString:
		return 2
	case TagInt, TagFloat, TagByteArray, TagIntArray, TagLongArray, TagList:
		return 4
	case TagLong, TagDouble:
		return 8
	case TagCompound:
		return 1
	}
	return 0
}

func (d *decoder) list(depth int) (*List, error) {
	if depth >= MaxDepth {
		return nil, ErrTooDeep
	}
	elem, err := d.tagType()
	if err != nil {
		return nil, err
	}
	n, err := d.length(minSize(elem))
	if err != nil {
		return nil, err
	}
	if elem == TagEnd && n > 0 {
		return nil, fmt.Errorf("%w: list of End with %d items", ErrCorrupt, n)
	}
	l := &List{Elem: elem, Items: make([]Tag, 0, n)}
	for i := 0; i < n; i++ {
		v, err := d.payload(elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		l.Items = append(l.Items, v)
	}
	return l, nil
}
