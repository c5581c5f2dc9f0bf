package store

import (
	"log"

	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

type ChunkKey struct {
	CX int32
	CZ int32
}

// Persistence is the slice of the save pipeline the store needs: a
// synchronous load and an asynchronous save.
type Persistence interface {
	LoadChunk(cx, cz int32) ([]byte, bool, error)
	EnqueueChunk(cx, cz int32, data []byte) error
}

// Generator supplies content for chunks that were never saved.
type Generator interface {
	Generate(cx, cz int32) *chunk.Chunk
}

type Stats struct {
	Resident    int
	Loaded      uint64
	Generated   uint64
	Regenerated uint64
	Saved       uint64
	SaveErrors  uint64
}

// ChunkStore keeps every chunk it has touched resident and writes each
// mutation through to the persistence pipeline. It is owned by a single
// goroutine.
type ChunkStore struct {
	Gen    Generator
	Blocks *catalogs.BlockRegistry
	Chunks map[ChunkKey]*chunk.Chunk

	// WorldAge is stamped into saved chunks as LastUpdate.
	WorldAge int64

	persist Persistence
	logger  *log.Logger
	stats   Stats
}

func NewChunkStore(gen Generator, blocks *catalogs.BlockRegistry, persist Persistence, logger *log.Logger) *ChunkStore {
	if blocks == nil {
		blocks = catalogs.DefaultBlocks()
	}
	return &ChunkStore{
		Gen:     gen,
		Blocks:  blocks,
		Chunks:  map[ChunkKey]*chunk.Chunk{},
		persist: persist,
		logger:  logger,
	}
}

func (s *ChunkStore) Stats() Stats {
	st := s.stats
	st.Resident = len(s.Chunks)
	return st
}

func (s *ChunkStore) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
