package store

import (
	"sort"

	"voxelsave.ai/internal/persistence/nbt"
	"voxelsave.ai/internal/sim/world/io/chunkcodec"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func chunkOf(x, z int) (cx, cz int32, lx, lz int) {
	return int32(x >> 4), int32(z >> 4), x & 15, z & 15
}

func (s *ChunkStore) GetBlock(x, y, z int) int32 {
	if y < chunk.MinY || y > chunk.MaxY {
		return chunk.Air
	}
	cx, cz, lx, lz := chunkOf(x, z)
	return s.GetOrLoadChunk(cx, cz).Get(lx, y, lz)
}

// SetBlock changes one block and enqueues the chunk if anything changed.
func (s *ChunkStore) SetBlock(x, y, z int, b int32) bool {
	if y < chunk.MinY || y > chunk.MaxY {
		return false
	}
	cx, cz, lx, lz := chunkOf(x, z)
	ch := s.GetOrLoadChunk(cx, cz)
	if !ch.Set(lx, y, lz, b) {
		return false
	}
	_ = s.SaveChunk(ch)
	return true
}

// BlockEntity returns the block entity at world (x,y,z), if any.
func (s *ChunkStore) BlockEntity(x, y, z int) (*nbt.Compound, bool) {
	cx, cz, _, _ := chunkOf(x, z)
	ch := s.GetOrLoadChunk(cx, cz)
	i := findBlockEntity(ch, x, y, z)
	if i < 0 {
		return nil, false
	}
	return ch.BlockEntities[i], true
}

// SetBlockEntity stores be at world (x,y,z), replacing any existing entry,
// and enqueues the chunk. A nil be removes the entry.
func (s *ChunkStore) SetBlockEntity(x, y, z int, be *nbt.Compound) {
	cx, cz, _, _ := chunkOf(x, z)
	ch := s.GetOrLoadChunk(cx, cz)
	i := findBlockEntity(ch, x, y, z)
	switch {
	case be == nil && i < 0:
		return
	case be == nil:
		ch.BlockEntities = append(ch.BlockEntities[:i], ch.BlockEntities[i+1:]...)
	default:
		be.Set("x", nbt.Int(x)).Set("y", nbt.Int(y)).Set("z", nbt.Int(z))
		if i < 0 {
			ch.BlockEntities = append(ch.BlockEntities, be)
		} else {
			ch.BlockEntities[i] = be
		}
	}
	ch.MarkDirty()
	_ = s.SaveChunk(ch)
}

func findBlockEntity(ch *chunk.Chunk, x, y, z int) int {
	for i, be := range ch.BlockEntities {
		bx, ok1 := be.Number("x")
		by, ok2 := be.Number("y")
		bz, ok3 := be.Number("z")
		if ok1 && ok2 && ok3 && int(bx) == x && int(by) == y && int(bz) == z {
			return i
		}
	}
	return -1
}

// GetOrLoadChunk returns the resident chunk, loading it from disk or
// generating it on a miss. Generated content is enqueued right away so it
// becomes durable. A record that fails to decode is logged and replaced.
func (s *ChunkStore) GetOrLoadChunk(cx, cz int32) *chunk.Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	if ch := s.load(cx, cz); ch != nil {
		s.Chunks[k] = ch
		s.stats.Loaded++
		return ch
	}
	ch := s.Gen.Generate(cx, cz)
	s.Chunks[k] = ch
	s.stats.Generated++
	_ = s.SaveChunk(ch)
	return ch
}

func (s *ChunkStore) load(cx, cz int32) *chunk.Chunk {
	if s.persist == nil {
		return nil
	}
	data, ok, err := s.persist.LoadChunk(cx, cz)
	if err != nil {
		s.stats.Regenerated++
		s.printf("store load failed cx=%d cz=%d err=%v action=regenerate", cx, cz, err)
		return nil
	}
	if !ok {
		return nil
	}
	ch, err := chunkcodec.Decode(data, s.Blocks)
	if err != nil {
		s.stats.Regenerated++
		s.printf("store decode failed cx=%d cz=%d err=%v action=regenerate", cx, cz, err)
		return nil
	}
	if ch.CX != cx || ch.CZ != cz {
		s.stats.Regenerated++
		s.printf("store coordinate mismatch cx=%d cz=%d record=(%d,%d) action=regenerate", cx, cz, ch.CX, ch.CZ)
		return nil
	}
	return ch
}

// SaveChunk encodes ch and enqueues it. The chunk is marked clean once the
// bytes are handed off.
func (s *ChunkStore) SaveChunk(ch *chunk.Chunk) error {
	if s.persist == nil {
		return nil
	}
	data, err := chunkcodec.Encode(ch, s.Blocks, s.WorldAge)
	if err == nil {
		err = s.persist.EnqueueChunk(ch.CX, ch.CZ, data)
	}
	if err != nil {
		s.stats.SaveErrors++
		s.printf("store save failed cx=%d cz=%d err=%v", ch.CX, ch.CZ, err)
		return err
	}
	ch.MarkClean()
	s.stats.Saved++
	return nil
}

// SaveAll enqueues resident chunks in key order, only the dirty ones unless
// all is set. It returns how many were enqueued and the first error.
func (s *ChunkStore) SaveAll(all bool) (int, error) {
	var first error
	n := 0
	for _, k := range s.LoadedChunkKeys() {
		ch := s.Chunks[k]
		if !all && !ch.Dirty() {
			continue
		}
		if err := s.SaveChunk(ch); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		n++
	}
	return n, first
}

// ResolveBlock is a convenience over the registry for callers that work
// with names.
func (s *ChunkStore) ResolveBlock(name string) int32 {
	id, _ := s.Blocks.Resolve(name, nil)
	return id
}
