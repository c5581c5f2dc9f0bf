package nbt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Marshal encodes root as a named tree: Compound tag byte, root name, payload.
func Marshal(name string, root *Compound) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, name, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalNetwork encodes root without the root name string.
func MarshalNetwork(root *Compound) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteNetwork(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, name string, root *Compound) error {
	e := &encoder{w: w}
	e.byte(byte(TagCompound))
	e.string(name)
	e.compound(root, 0)
	return e.err
}

func WriteNetwork(w io.Writer, root *Compound) error {
	e := &encoder{w: w}
	e.byte(byte(TagCompound))
	e.compound(root, 0)
	return e.err
}

// encoder latches the first error; later writes are no-ops.
type encoder struct {
	w       io.Writer
	err     error
	scratch [8]byte
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) byte(b byte) {
	e.scratch[0] = b
	e.write(e.scratch[:1])
}

func (e *encoder) u16(v uint16) {
	binary.BigEndian.PutUint16(e.scratch[:2], v)
	e.write(e.scratch[:2])
}

func (e *encoder) u32(v uint32) {
	binary.BigEndian.PutUint32(e.scratch[:4], v)
	e.write(e.scratch[:4])
}

func (e *encoder) u64(v uint64) {
	binary.BigEndian.PutUint64(e.scratch[:8], v)
	e.write(e.scratch[:8])
}

func (e *encoder) string(s string) {
	if len(s) > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s)))
		return
	}
	if !utf8.ValidString(s) {
		e.fail(ErrInvalidUTF8)
		return
	}
	e.u16(uint16(len(s)))
	e.write([]byte(s))
}

func (e *encoder) length(n int) {
	if n > math.MaxInt32 {
		e.fail(fmt.Errorf("nbt: length %d exceeds int32", n))
		return
	}
	e.u32(uint32(n))
}

func (e *encoder) compound(c *Compound, depth int) {
	if depth >= MaxDepth {
		e.fail(ErrTooDeep)
		return
	}
	if c != nil {
		for _, ent := range c.entries {
			if ent.Value == nil {
				e.fail(fmt.Errorf("nbt: nil value for key %q", ent.Name))
				return
			}
			e.byte(byte(ent.Value.Type()))
			e.string(ent.Name)
			e.payload(ent.Value, depth+1)
			if e.err != nil {
				return
			}
		}
	}
	e.byte(byte(TagEnd))
}

func (e *encoder) payload(t Tag, depth int) {
	switch v := t.(type) {
	case Byte:
		e.byte(byte(v))
	case Short:
		e.u16(uint16(v))
	case Int:
		e.u32(uint32(v))
	case Long:
		e.u64(uint64(v))
	case Float:
		e.u32(math.Float32bits(float32(v)))
	case Double:
		e.u64(math.Float64bits(float64(v)))
	case String:
		e.string(string(v))
	case ByteArray:
		e.length(len(v))
		buf := make([]byte, len(v))
		for i, b := range v {
			buf[i] = byte(b)
		}
		e.write(buf)
	case IntArray:
		e.length(len(v))
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.BigEndian.PutUint32(buf[4*i:], uint32(x))
		}
		e.write(buf)
	case LongArray:
		e.length(len(v))
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.BigEndian.PutUint64(buf[8*i:], uint64(x))
		}
		e.write(buf)
	case *List:
		e.list(v, depth)
	case *Compound:
		e.compound(v, depth)
	default:
		e.fail(fmt.Errorf("nbt: cannot encode %T", t))
	}
}

func (e *encoder) list(l *List, depth int) {
	if depth >= MaxDepth {
		e.fail(ErrTooDeep)
		return
	}
	if l == nil {
		l = &List{}
	}
	if err := l.check(); err != nil {
		e.fail(err)
		return
	}
	elem := l.Elem
	if len(l.Items) == 0 && !elem.valid() {
		elem = TagEnd
	}
	e.byte(byte(elem))
	e.length(len(l.Items))
	for _, it := range l.Items {
		e.payload(it, depth+1)
		if e.err != nil {
			return
		}
	}
}
