// Package chunkcodec converts chunks to and from their on-disk NBT record.
package chunkcodec

import (
	"fmt"

	"voxelsave.ai/internal/persistence/nbt"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/encoding"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

// DataVersion is written into every chunk record.
const DataVersion int32 = 3955

const (
	defaultBiome  = "minecraft:plains"
	heightmapName = "MOTION_BLOCKING"
)

// ToRecord builds the chunk record. Sections that are entirely air are
// omitted. The heightmap is recomputed from the blocks.
func ToRecord(ch *chunk.Chunk, reg *catalogs.BlockRegistry, lastUpdate int64) (*nbt.Compound, error) {
	status := ch.Status
	if status == "" {
		status = chunk.StatusFull
	}
	sections := &nbt.List{Elem: nbt.TagCompound}
	for i := range ch.Sections {
		s := &ch.Sections[i]
		if s.IsEmpty() {
			continue
		}
		sec, err := encodeSection(int8(chunk.MinSectionY+i), s.Blocks, reg)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", chunk.MinSectionY+i, err)
		}
		sections.Append(sec)
	}

	blockEntities := &nbt.List{Elem: nbt.TagCompound}
	for _, be := range ch.BlockEntities {
		if be != nil {
			blockEntities.Append(be)
		}
	}

	root := nbt.NewCompound().
		Set("DataVersion", nbt.Int(DataVersion)).
		Set("xPos", nbt.Int(ch.CX)).
		Set("zPos", nbt.Int(ch.CZ)).
		Set("yPos", nbt.Int(chunk.MinSectionY)).
		Set("Status", nbt.String(status)).
		Set("LastUpdate", nbt.Long(lastUpdate)).
		Set("sections", sections).
		Set("Heightmaps", nbt.NewCompound().Set(heightmapName, nbt.LongArray(ch.MotionBlocking()))).
		Set("block_entities", blockEntities)
	return root, nil
}

func encodeSection(y int8, blocks []int32, reg *catalogs.BlockRegistry) (*nbt.Compound, error) {
	palette, data, err := encoding.EncodePalette(blocks)
	if err != nil {
		return nil, err
	}
	entries := &nbt.List{Elem: nbt.TagCompound}
	for _, id := range palette {
		st, ok := reg.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown block state %d", id)
		}
		entry := nbt.NewCompound().Set("Name", nbt.String(catalogs.QualifyName(st.Name)))
		if len(st.Properties) > 0 {
			props := nbt.NewCompound()
			for _, k := range sortedKeys(st.Properties) {
				props.Set(k, nbt.String(st.Properties[k]))
			}
			entry.Set("Properties", props)
		}
		entries.Append(entry)
	}
	states := nbt.NewCompound().Set("palette", entries)
	if data != nil {
		states.Set("data", nbt.LongArray(data))
	}
	return nbt.NewCompound().
		Set("Y", nbt.Byte(y)).
		Set("block_states", states).
		Set("biomes", nbt.NewCompound().Set("palette", nbt.NewList(nbt.String(defaultBiome)))), nil
}

// Encode returns the named-root bytes handed to the persistence pipeline.
func Encode(ch *chunk.Chunk, reg *catalogs.BlockRegistry, lastUpdate int64) ([]byte, error) {
	root, err := ToRecord(ch, reg, lastUpdate)
	if err != nil {
		return nil, err
	}
	return nbt.Marshal("", root)
}

// Decode parses bytes read back from a region file.
func Decode(data []byte, reg *catalogs.BlockRegistry) (*chunk.Chunk, error) {
	_, root, err := nbt.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return FromRecord(root, reg)
}
