package main

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/records"
	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
)

func openHost(t *testing.T, dir string, tune tuning.Tuning) *host {
	t.Helper()
	pipe, err := saver.Open(saver.Config{WorldDir: dir})
	if err != nil {
		t.Fatalf("saver.Open: %v", err)
	}
	return newHost(tune, pipe, catalogs.DefaultBlocks(), log.New(&bytes.Buffer{}, "", 0))
}

func TestHostShutdownPersistsEverything(t *testing.T) {
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.SaveEveryTicks = 5
	tune.LevelName = "Persisted"

	h := openHost(t, dir, tune)
	h.warmSpawn(1)
	if n := len(h.store.Chunks); n != 9 {
		t.Fatalf("resident after warm: got=%d want=9", n)
	}
	id := uuid.New()
	rec := records.NewEntity(id)
	rec.Pos = [3]float64{1.5, -59, 2.5}
	h.entities[id] = rec
	h.store.SetBlock(3, 10, 3, catalogs.DiamondOreID)
	for i := 0; i < 12; i++ {
		h.step()
	}
	if err := h.shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	h2 := openHost(t, dir, tuning.Defaults())
	defer h2.pipe.Shutdown()
	if h2.meta.LevelName != "Persisted" || h2.meta.Time != 12 {
		t.Fatalf("metadata: got=%+v", h2.meta)
	}
	got, ok := h2.entities[id]
	if !ok || got.Pos != rec.Pos {
		t.Fatalf("entity: ok=%v got=%+v", ok, got.Pos)
	}
	if b := h2.store.GetBlock(3, 10, 3); b != catalogs.DiamondOreID {
		t.Fatalf("block after restart: got=%d want=%d", b, catalogs.DiamondOreID)
	}
	if st := h2.store.Stats(); st.Generated != 0 || st.Loaded != 1 {
		t.Fatalf("restart should load, not generate: %+v", st)
	}
}

func TestHostRunStopsOnCancel(t *testing.T) {
	tune := tuning.Defaults()
	tune.TickRateHz = 1000
	h := openHost(t, t.TempDir(), tune)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if st := h.pipe.Stats(); st.MetadataSavedTotal == 0 {
		t.Fatalf("final metadata save missing: %+v", st)
	}
	if err := h.pipe.EnqueueMetadata(nil); err == nil {
		t.Fatalf("pipeline should be closed after run returns")
	}
}
