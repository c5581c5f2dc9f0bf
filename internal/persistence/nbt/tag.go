// Package nbt implements the tagged binary tree format used for chunk records,
// entity records and level.dat. All numbers are big-endian and fixed-width.
package nbt

import (
	"errors"
	"fmt"
	"math"
)

type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var tagNames = [...]string{
	TagEnd:       "End",
	TagByte:      "Byte",
	TagShort:     "Short",
	TagInt:       "Int",
	TagLong:      "Long",
	TagFloat:     "Float",
	TagDouble:    "Double",
	TagByteArray: "ByteArray",
	TagString:    "String",
	TagList:      "List",
	TagCompound:  "Compound",
	TagIntArray:  "IntArray",
	TagLongArray: "LongArray",
}

func (t TagType) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("TagType(%d)", byte(t))
}

func (t TagType) valid() bool { return t <= TagLongArray }

// MaxDepth bounds list/compound nesting on both read and write.
const MaxDepth = 512

var (
	ErrCorrupt       = errors.New("nbt: corrupt data")
	ErrUnknownTag    = fmt.Errorf("%w: unknown tag type", ErrCorrupt)
	ErrTruncated     = fmt.Errorf("%w: truncated", ErrCorrupt)
	ErrInvalidUTF8   = fmt.Errorf("%w: invalid utf-8 string", ErrCorrupt)
	ErrNotCompound   = fmt.Errorf("%w: root is not a compound", ErrCorrupt)
	ErrTooDeep       = fmt.Errorf("%w: nesting too deep", ErrCorrupt)
	ErrDuplicateKey  = fmt.Errorf("%w: duplicate compound key", ErrCorrupt)
	ErrNegativeLen   = fmt.Errorf("%w: negative length", ErrCorrupt)
	ErrStringTooLong = errors.New("nbt: string longer than 65535 bytes")
	ErrMixedList     = errors.New("nbt: list elements have different tag types")
)

// Tag is one value of the tree. The concrete types below are the only
// implementations.
type Tag interface {
	Type() TagType
}

type (
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	String    string
	ByteArray []int8
	IntArray  []int32
	LongArray []int64
)

func (Byte) Type() TagType      { return TagByte }
func (Short) Type() TagType     { return TagShort }
func (Int) Type() TagType       { return TagInt }
func (Long) Type() TagType      { return TagLong }
func (Float) Type() TagType     { return TagFloat }
func (Double) Type() TagType    { return TagDouble }
func (String) Type() TagType    { return TagString }
func (ByteArray) Type() TagType { return TagByteArray }
func (IntArray) Type() TagType  { return TagIntArray }
func (LongArray) Type() TagType { return TagLongArray }

// List is a homogeneous sequence. Elem is kept even when Items is empty so an
// empty list read from disk is written back with the same element tag.
type List struct {
	Elem  TagType
	Items []Tag
}

func (*List) Type() TagType { return TagList }

// NewList builds a list whose element type is taken from the first item.
// An empty call yields an empty list with element type End.
func NewList(items ...Tag) *List {
	l := &List{Elem: TagEnd, Items: items}
	if len(items) > 0 {
		l.Elem = items[0].Type()
	}
	return l
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

// At returns the i-th item, or false when i is out of range.
func (l *List) At(i int) (Tag, bool) {
	if l == nil || i < 0 || i >= len(l.Items) {
		return nil, false
	}
	return l.Items[i], true
}

// Append adds v, adopting its type when the list is still untyped.
func (l *List) Append(v Tag) *List {
	if len(l.Items) == 0 && l.Elem == TagEnd {
		l.Elem = v.Type()
	}
	l.Items = append(l.Items, v)
	return l
}

func (l *List) check() error {
	for i, it := range l.Items {
		if it == nil || it.Type() != l.Elem {
			return fmt.Errorf("%w: item %d is %v, list holds %v", ErrMixedList, i, typeOf(it), l.Elem)
		}
	}
	return nil
}

func typeOf(t Tag) TagType {
	if t == nil {
		return TagEnd
	}
	return t.Type()
}

// Equal reports deep equality. Compound key order is ignored; floats are
// compared by bit pattern so NaN payloads round-trip as equal.
func Equal(a, b Tag) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case Byte, Short, Int, Long, String:
		return a == b
	case Float:
		return math.Float32bits(float32(av)) == math.Float32bits(float32(b.(Float)))
	case Double:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Double)))
	case ByteArray:
		return equalSlices(av, b.(ByteArray))
	case IntArray:
		return equalSlices(av, b.(IntArray))
	case LongArray:
		return equalSlices(av, b.(LongArray))
	case *List:
		bv := b.(*List)
		if av.Len() != bv.Len() {
			return false
		}
		if av.Len() > 0 && av.Elem != bv.Elem {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Compound:
		bv := b.(*Compound)
		if av.Len() != bv.Len() {
			return false
		}
		for _, e := range av.entries {
			other, ok := bv.Get(e.Name)
			if !ok || !Equal(e.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
