package nbt

// The As* helpers accept any Tag (including nil) and report a type mismatch
// through ok instead of panicking.

func AsInt(t Tag) (int32, bool) {
	v, ok := t.(Int)
	return int32(v), ok
}

func AsLong(t Tag) (int64, bool) {
	v, ok := t.(Long)
	return int64(v), ok
}

func AsByte(t Tag) (int8, bool) {
	v, ok := t.(Byte)
	return int8(v), ok
}

func AsDouble(t Tag) (float64, bool) {
	v, ok := t.(Double)
	return float64(v), ok
}

func AsString(t Tag) (string, bool) {
	v, ok := t.(String)
	return string(v), ok
}

func AsList(t Tag) (*List, bool) {
	v, ok := t.(*List)
	return v, ok && v != nil
}

func AsCompound(t Tag) (*Compound, bool) {
	v, ok := t.(*Compound)
	return v, ok && v != nil
}

func AsLongArray(t Tag) ([]int64, bool) {
	v, ok := t.(LongArray)
	return []int64(v), ok
}

// AsNumber widens any integral tag to int64.
func AsNumber(t Tag) (int64, bool) {
	switch n := t.(type) {
	case Byte:
		return int64(n), true
	case Short:
		return int64(n), true
	case Int:
		return int64(n), true
	case Long:
		return int64(n), true
	}
	return 0, false
}
