package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/records"
	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
	"voxelsave.ai/internal/sim/world/terrain/gen"
	"voxelsave.ai/internal/sim/world/terrain/store"
)

const dayTicks = 24000

// host owns the resident world and drives it from one goroutine. Everything
// it mutates goes through the save pipeline.
type host struct {
	tune     tuning.Tuning
	pipe     *saver.Pipeline
	store    *store.ChunkStore
	meta     records.WorldMetadata
	entities map[uuid.UUID]records.EntityRecord
	logger   *log.Logger

	tick     atomic.Uint64
	resident atomic.Int64
}

type hostState struct {
	Tick           uint64 `json:"tick"`
	ResidentChunks int64  `json:"resident_chunks"`
	QueueDepth     int    `json:"queue_depth"`
}

func newHost(tune tuning.Tuning, pipe *saver.Pipeline, reg *catalogs.BlockRegistry, logger *log.Logger) *host {
	h := &host{
		tune:     tune,
		pipe:     pipe,
		meta:     loadMetadata(tune, pipe, logger),
		entities: loadEntities(pipe, logger),
		logger:   logger,
	}
	h.store = store.NewChunkStore(gen.Flat{Seed: tune.WorldSeed}, reg, pipe, logger)
	h.store.WorldAge = h.meta.Time
	return h
}

func loadMetadata(tune tuning.Tuning, pipe *saver.Pipeline, logger *log.Logger) records.WorldMetadata {
	meta := records.DefaultMetadata()
	meta.DataVersion = int32(tune.DataVersion)
	meta.LevelName = tune.LevelName
	meta.SpawnX, meta.SpawnY, meta.SpawnZ = int32(tune.Spawn[0]), int32(tune.Spawn[1]), int32(tune.Spawn[2])

	raw, ok, err := pipe.LoadMetadata()
	switch {
	case err != nil:
		logger.Printf("level.dat read failed err=%v action=defaults", err)
	case ok:
		m, err := records.UnmarshalMetadata(raw)
		if err != nil {
			logger.Printf("level.dat decode failed err=%v action=defaults", err)
			break
		}
		logger.Printf("resumed level=%q time=%d", m.LevelName, m.Time)
		return m
	}
	return meta
}

func loadEntities(pipe *saver.Pipeline, logger *log.Logger) map[uuid.UUID]records.EntityRecord {
	out := map[uuid.UUID]records.EntityRecord{}
	ents, err := os.ReadDir(filepath.Join(pipe.Dir(), saver.PlayerDataDir))
	if err != nil {
		return out
	}
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".dat") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".dat"))
		if err != nil {
			continue
		}
		raw, ok, err := pipe.LoadEntity(id)
		if err != nil || !ok {
			logger.Printf("entity read failed id=%s err=%v", id, err)
			continue
		}
		rec, err := records.UnmarshalEntity(raw)
		if err != nil {
			logger.Printf("entity decode failed id=%s err=%v", id, err)
			continue
		}
		out[id] = rec
	}
	return out
}

// warmSpawn makes the chunks within radius of the spawn chunk resident.
func (h *host) warmSpawn(radius int) {
	cx, cz := h.meta.SpawnX>>4, h.meta.SpawnZ>>4
	r := int32(radius)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			h.store.GetOrLoadChunk(cx+dx, cz+dz)
		}
	}
	h.resident.Store(int64(len(h.store.Chunks)))
}

func (h *host) step() {
	t := h.tick.Add(1)
	h.meta.Time++
	h.meta.DayTime = (h.meta.DayTime + 1) % dayTicks
	h.store.WorldAge = h.meta.Time
	if h.tune.SaveEveryTicks > 0 && t%uint64(h.tune.SaveEveryTicks) == 0 {
		if err := h.save(); err != nil {
			h.logger.Printf("periodic save tick=%d err=%v", t, err)
		}
	}
	h.resident.Store(int64(len(h.store.Chunks)))
}

// save enqueues dirty chunks and the world metadata.
func (h *host) save() error {
	n, err := h.store.SaveAll(false)
	data, merr := h.meta.Marshal()
	if merr == nil {
		merr = h.pipe.EnqueueMetadata(data)
	}
	if n > 0 {
		h.logger.Printf("save chunks=%d tick=%d", n, h.tick.Load())
	}
	return errors.Join(err, merr)
}

// shutdown runs the final save in order: entities, chunks, metadata, then
// the pipeline sentinel. It returns once everything is on disk.
func (h *host) shutdown() error {
	start := time.Now()
	var errs []error
	ids := make([]uuid.UUID, 0, len(h.entities))
	for id := range h.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		data, err := h.entities[id].Marshal()
		if err == nil {
			err = h.pipe.EnqueueEntity(id, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %s: %w", id, err))
		}
	}
	if err := h.save(); err != nil {
		errs = append(errs, err)
	}
	if err := h.pipe.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	st := h.pipe.Stats()
	h.logger.Printf("shutdown complete entities=%d chunks_saved=%d failed=%d dur=%s",
		len(ids), st.ChunkSavedTotal, st.ChunkFailedTotal+st.EntityFailedTotal+st.MetadataFailedTotal, time.Since(start))
	return errors.Join(errs...)
}

// run ticks at the configured rate until ctx is cancelled, then shuts down.
func (h *host) run(ctx context.Context) error {
	hz := h.tune.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return h.shutdown()
		case <-ticker.C:
			h.step()
		}
	}
}

func (h *host) state() hostState {
	return hostState{
		Tick:           h.tick.Load(),
		ResidentChunks: h.resident.Load(),
		QueueDepth:     h.pipe.Stats().QueueDepth,
	}
}
