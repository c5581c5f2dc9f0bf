// Package gen produces the default content for chunks that were never saved:
// a flat column of bedrock, stone, dirt and grass with deterministic ore
// veins in the stone band.
package gen

import (
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

const (
	// Local y within the bottom section.
	stoneMinY = 1
	stoneMaxY = 10
	dirtY0    = 11
	dirtY1    = 12
	grassY    = 13

	baseSeed uint32 = 0xDEADBEEF
)

// SurfaceY is the world y of the grass layer.
const SurfaceY = chunk.MinY + grassY

type oreRule struct {
	id         int32
	minY, maxY int
	chance     uint32 // per 1000 positions
	vein       int
}

var oreRules = []oreRule{
	{catalogs.CoalOreID, 1, 10, 80, 4},
	{catalogs.IronOreID, 1, 8, 60, 3},
	{catalogs.CopperOreID, 3, 10, 50, 3},
	{catalogs.GoldOreID, 1, 5, 30, 2},
	{catalogs.LapisOreID, 1, 6, 25, 2},
	{catalogs.RedstoneOreID, 1, 4, 35, 3},
	{catalogs.DiamondOreID, 1, 3, 15, 2},
	{catalogs.EmeraldOreID, 1, 6, 8, 1},
	{catalogs.GravelID, 1, 10, 40, 3},
}

var veinDirs = [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}

// Flat generates chunks. Seed 0 gives the canonical layout.
type Flat struct {
	Seed uint32
}

func (g Flat) Generate(cx, cz int32) *chunk.Chunk {
	blocks := make([]int32, 16*16*16)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			blocks[chunk.Index(x, 0, z)] = catalogs.BedrockID
			for y := stoneMinY; y <= stoneMaxY; y++ {
				blocks[chunk.Index(x, y, z)] = catalogs.StoneID
			}
			blocks[chunk.Index(x, dirtY0, z)] = catalogs.DirtID
			blocks[chunk.Index(x, dirtY1, z)] = catalogs.DirtID
			blocks[chunk.Index(x, grassY, z)] = catalogs.GrassBlockID
		}
	}
	g.placeOres(blocks, cx, cz)

	ch := chunk.New(cx, cz)
	ch.Sections[0].Blocks = blocks
	ch.MarkDirty()
	return ch
}

func (g Flat) placeOres(blocks []int32, cx, cz int32) {
	chunkSeed := Hash(cx, cz, 0, baseSeed^g.Seed)
	for _, r := range oreRules {
		seed := chunkSeed + uint32(r.id)
		for y := r.minY; y <= r.maxY; y++ {
			for x := 0; x < 16; x++ {
				for z := 0; z < 16; z++ {
					seed = Hash(int32(x), int32(y), int32(z), seed)
					if seed%1000 >= r.chance {
						continue
					}
					replaceStone(blocks, x, y, z, r.id)
					ext := seed
					for i, d := range veinDirs {
						if i >= r.vein-1 {
							break
						}
						nx, ny, nz := x+d[0], y+d[1], z+d[2]
						ext = Hash(int32(nx), int32(ny), int32(nz), ext)
						if ext%2 != 0 {
							continue
						}
						if nx >= 0 && nx < 16 && ny >= stoneMinY && ny <= stoneMaxY && nz >= 0 && nz < 16 {
							replaceStone(blocks, nx, ny, nz, r.id)
						}
					}
				}
			}
		}
	}
}

func replaceStone(blocks []int32, x, y, z int, id int32) {
	i := chunk.Index(x, y, z)
	if blocks[i] == catalogs.StoneID {
		blocks[i] = id
	}
}

// Hash is the 32-bit positional hash used for ore placement. All arithmetic
// wraps.
func Hash(x, y, z int32, seed uint32) uint32 {
	h := seed
	h = h*31 + uint32(x)
	h = h*31 + uint32(y)
	h = h*31 + uint32(z)
	h ^= h >> 16
	h *= 0x45d9f3b
	h ^= h >> 16
	return h
}
