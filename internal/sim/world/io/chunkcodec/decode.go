package chunkcodec

import (
	"fmt"
	"sort"

	"voxelsave.ai/internal/persistence/nbt"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/encoding"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

// FromRecord rebuilds a chunk from its record. Missing top-level fields take
// defaults: coordinates 0, status "unfinished", LastUpdate 0, no sections.
// Sections with a Y outside the world are skipped. Unknown block names
// decode as air.
func FromRecord(root *nbt.Compound, reg *catalogs.BlockRegistry) (*chunk.Chunk, error) {
	if root == nil {
		return nil, fmt.Errorf("chunkcodec: nil record")
	}
	// Records written with a "Level" wrapper keep everything one level down.
	if lvl, ok := root.Compound("Level"); ok {
		root = lvl
	}

	cx, _ := root.Number("xPos")
	cz, _ := root.Number("zPos")
	ch := chunk.New(int32(cx), int32(cz))
	ch.Status = chunk.StatusUnfinished
	if s, ok := root.String("Status"); ok {
		ch.Status = s
	}
	ch.LastUpdate, _ = root.Long("LastUpdate")
	if dv, ok := root.Number("DataVersion"); ok {
		ch.DataVersion = int32(dv)
	}
	if hms, ok := root.Compound("Heightmaps"); ok {
		ch.Heightmap, _ = hms.LongArray(heightmapName)
	}

	sections, _ := root.List("sections")
	for i := 0; i < sections.Len(); i++ {
		it, _ := sections.At(i)
		sec, ok := nbt.AsCompound(it)
		if !ok {
			continue
		}
		y, ok := sec.Number("Y")
		if !ok {
			continue
		}
		idx := int(y) - chunk.MinSectionY
		if idx < 0 || idx >= chunk.SectionCount {
			continue
		}
		blocks, err := decodeSection(sec, reg)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", y, err)
		}
		ch.Sections[idx].Blocks = blocks
	}

	blockEntities, _ := root.List("block_entities")
	for i := 0; i < blockEntities.Len(); i++ {
		it, _ := blockEntities.At(i)
		if be, ok := nbt.AsCompound(it); ok {
			ch.BlockEntities = append(ch.BlockEntities, be)
		}
	}

	if len(ch.Heightmap) == 0 {
		ch.Heightmap = ch.MotionBlocking()
	}
	return ch, nil
}

// decodeSection returns nil for a section that is entirely air.
func decodeSection(sec *nbt.Compound, reg *catalogs.BlockRegistry) ([]int32, error) {
	states, ok := sec.Compound("block_states")
	if !ok {
		return nil, nil
	}
	entries, _ := states.List("palette")
	palette := make([]int32, 0, entries.Len())
	for i := 0; i < entries.Len(); i++ {
		it, _ := entries.At(i)
		palette = append(palette, resolveEntry(it, reg))
	}
	data, _ := states.LongArray("data")
	blocks, err := encoding.DecodePalette(palette, data, catalogs.AirID)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b != chunk.Air {
			return blocks, nil
		}
	}
	return nil, nil
}

func resolveEntry(t nbt.Tag, reg *catalogs.BlockRegistry) int32 {
	entry, ok := nbt.AsCompound(t)
	if !ok {
		return catalogs.AirID
	}
	name, ok := entry.String("Name")
	if !ok {
		return catalogs.AirID
	}
	var props map[string]string
	if p, ok := entry.Compound("Properties"); ok {
		props = make(map[string]string, p.Len())
		for _, e := range p.Entries() {
			if v, ok := nbt.AsString(e.Value); ok {
				props[e.Name] = v
			}
		}
	}
	id, _ := reg.Resolve(name, props)
	return id
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
