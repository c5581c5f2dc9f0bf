package nbt

// Entry is one named member of a compound.
type Entry struct {
	Name  string
	Value Tag
}

// Compound keeps insertion order so encoded output is deterministic, and an
// index for lookups. Names are unique.
type Compound struct {
	entries []Entry
	index   map[string]int
}

func NewCompound() *Compound {
	return &Compound{index: make(map[string]int)}
}

func (*Compound) Type() TagType { return TagCompound }

// Set stores v under name. An existing entry keeps its position.
func (c *Compound) Set(name string, v Tag) *Compound {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[name]; ok {
		c.entries[i].Value = v
		return c
	}
	c.index[name] = len(c.entries)
	c.entries = append(c.entries, Entry{Name: name, Value: v})
	return c
}

func (c *Compound) Get(name string) (Tag, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.entries[i].Value, true
}

func (c *Compound) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

func (c *Compound) Delete(name string) {
	if c == nil {
		return
	}
	i, ok := c.index[name]
	if !ok {
		return
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.index, name)
	for j := i; j < len(c.entries); j++ {
		c.index[c.entries[j].Name] = j
	}
}

func (c *Compound) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Keys returns member names in insertion order.
func (c *Compound) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Name
	}
	return out
}

// Entries returns a copy of the members in insertion order.
func (c *Compound) Entries() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

func (c *Compound) Byte(name string) (int8, bool) {
	v, ok := c.Get(name)
	b, ok2 := v.(Byte)
	return int8(b), ok && ok2
}

func (c *Compound) Short(name string) (int16, bool) {
	v, ok := c.Get(name)
	s, ok2 := v.(Short)
	return int16(s), ok && ok2
}

func (c *Compound) Int(name string) (int32, bool) {
	v, ok := c.Get(name)
	i, ok2 := v.(Int)
	return int32(i), ok && ok2
}

func (c *Compound) Long(name string) (int64, bool) {
	v, ok := c.Get(name)
	l, ok2 := v.(Long)
	return int64(l), ok && ok2
}

func (c *Compound) Float(name string) (float32, bool) {
	v, ok := c.Get(name)
	f, ok2 := v.(Float)
	return float32(f), ok && ok2
}

func (c *Compound) Double(name string) (float64, bool) {
	v, ok := c.Get(name)
	d, ok2 := v.(Double)
	return float64(d), ok && ok2
}

func (c *Compound) String(name string) (string, bool) {
	v, ok := c.Get(name)
	s, ok2 := v.(String)
	return string(s), ok && ok2
}

func (c *Compound) List(name string) (*List, bool) {
	v, ok := c.Get(name)
	l, ok2 := v.(*List)
	return l, ok && ok2
}

func (c *Compound) Compound(name string) (*Compound, bool) {
	v, ok := c.Get(name)
	sub, ok2 := v.(*Compound)
	return sub, ok && ok2
}

func (c *Compound) LongArray(name string) ([]int64, bool) {
	v, ok := c.Get(name)
	a, ok2 := v.(LongArray)
	return []int64(a), ok && ok2
}

func (c *Compound) IntArray(name string) ([]int32, bool) {
	v, ok := c.Get(name)
	a, ok2 := v.(IntArray)
	return []int32(a), ok && ok2
}

// Number widens any integral member to int64. Records written by other tools
// are not consistent about Byte vs Int for small fields.
func (c *Compound) Number(name string) (int64, bool) {
	v, _ := c.Get(name)
	return AsNumber(v)
}

func (c *Compound) ByteArray(name string) ([]int8, bool) {
	v, ok := c.Get(name)
	a, ok2 := v.(ByteArray)
	return []int8(a), ok && ok2
}
