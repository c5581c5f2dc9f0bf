package chunk

import "voxelsave.ai/internal/sim/encoding"

// HeightmapBits is the entry width of the MOTION_BLOCKING heightmap.
// 9 bits hold 0..384, 7 entries per word, 37 words.
const HeightmapBits = 9

// MotionBlocking returns the packed heightmap: for each column z*16+x, the
// topmost non-air world y minus MinY plus one, or 0 for an empty column.
func (c *Chunk) MotionBlocking() []int64 {
	heights := make([]uint32, 256)
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			heights[z*16+x] = uint32(c.columnHeight(x, z))
		}
	}
	return encoding.PackBits(heights, HeightmapBits)
}

func (c *Chunk) columnHeight(x, z int) int {
	for sy := SectionCount - 1; sy >= 0; sy-- {
		s := &c.Sections[sy]
		if s.Blocks == nil {
			continue
		}
		for ly := 15; ly >= 0; ly-- {
			if s.Blocks[Index(x, ly, z)] != Air {
				return sy*16 + ly + 1
			}
		}
	}
	return 0
}

// HeightAt unpacks one column from a MOTION_BLOCKING array.
func HeightAt(heightmap []int64, x, z int) (int, bool) {
	vals, err := encoding.UnpackBits(heightmap, HeightmapBits, 256)
	if err != nil || x < 0 || x > 15 || z < 0 || z > 15 {
		return 0, false
	}
	return int(vals[z*16+x]), true
}
