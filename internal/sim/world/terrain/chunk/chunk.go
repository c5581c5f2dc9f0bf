// Package chunk is the in-memory shape of a 16x384x16 column: 24 vertical
// sections of 16x16x16 block state ids plus the fields persisted alongside.
package chunk

import (
	"crypto/sha256"
	"encoding/binary"

	"voxelsave.ai/internal/persistence/nbt"
	"voxelsave.ai/internal/sim/encoding"
)

const (
	MinSectionY  = -4
	SectionCount = 24
	MinY         = MinSectionY * 16
	Height       = SectionCount * 16
	MaxY         = MinY + Height - 1

	// Air is the block state id of empty space.
	Air int32 = 0

	StatusFull       = "minecraft:full"
	StatusUnfinished = "unfinished"
)

// Section holds SectionVolume state ids indexed y*256 + z*16 + x.
// A nil Blocks slice means the section is entirely air.
type Section struct {
	Blocks []int32
}

func (s *Section) IsEmpty() bool {
	if s == nil || s.Blocks == nil {
		return true
	}
	for _, b := range s.Blocks {
		if b != Air {
			return false
		}
	}
	return true
}

func (s *Section) Get(x, y, z int) int32 {
	if s == nil || s.Blocks == nil {
		return Air
	}
	return s.Blocks[Index(x, y, z)]
}

func Index(x, y, z int) int {
	return y*256 + z*16 + x
}

type Chunk struct {
	CX, CZ      int32
	Sections    [SectionCount]Section
	Status      string
	LastUpdate  int64
	DataVersion int32

	// Heightmap is the MOTION_BLOCKING array as last read from disk. It is
	// recomputed on every encode.
	Heightmap []int64

	// BlockEntities are carried through untouched.
	BlockEntities []*nbt.Compound

	dirty bool
}

func New(cx, cz int32) *Chunk {
	return &Chunk{CX: cx, CZ: cz, Status: StatusFull}
}

func InBounds(x, y, z int) bool {
	return x >= 0 && x < 16 && z >= 0 && z < 16 && y >= MinY && y <= MaxY
}

// Get takes local x/z and world y. Out-of-range coordinates read as air.
func (c *Chunk) Get(x, y, z int) int32 {
	if !InBounds(x, y, z) {
		return Air
	}
	sy := (y - MinY) >> 4
	return c.Sections[sy].Get(x, (y-MinY)&15, z)
}

// Set takes local x/z and world y and reports whether anything changed.
func (c *Chunk) Set(x, y, z int, b int32) bool {
	if !InBounds(x, y, z) {
		return false
	}
	s := &c.Sections[(y-MinY)>>4]
	i := Index(x, (y-MinY)&15, z)
	if s.Blocks == nil {
		if b == Air {
			return false
		}
		s.Blocks = make([]int32, encoding.SectionVolume)
	}
	if s.Blocks[i] == b {
		return false
	}
	s.Blocks[i] = b
	c.dirty = true
	return true
}

func (c *Chunk) Dirty() bool { return c.dirty }

func (c *Chunk) MarkClean() { c.dirty = false }

func (c *Chunk) MarkDirty() { c.dirty = true }

// Digest hashes the block data of every section in order.
func (c *Chunk) Digest() (sum [32]byte) {
	h := sha256.New()
	var tmp [4]byte
	for i := range c.Sections {
		s := &c.Sections[i]
		for j := 0; j < encoding.SectionVolume; j++ {
			var v int32
			if s.Blocks != nil {
				v = s.Blocks[j]
			}
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			h.Write(tmp[:])
		}
	}
	copy(sum[:], h.Sum(nil))
	return sum
}
