package indexdb

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "saves.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestChunkSavesUpsert(t *testing.T) {
	idx := openTest(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	idx.OnSave(saver.Event{Kind: saver.OpChunk, CX: 1, CZ: -2, Path: "region/r.0.-1.mca", Bytes: 10, At: at})
	idx.OnSave(saver.Event{Kind: saver.OpChunk, CX: 1, CZ: -2, Path: "region/r.0.-1.mca", Bytes: 20, At: at.Add(time.Second)})
	idx.OnSave(saver.Event{Kind: saver.OpChunk, CX: -40, CZ: 0, Path: "region/r.-2.0.mca", Bytes: 5, At: at})

	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, err := idx.ChunkSaves(ctx)
	if err != nil {
		t.Fatalf("ChunkSaves: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got=%d want=2", len(got))
	}
	if got[0].CX != -40 || got[1].CX != 1 || got[1].CZ != -2 {
		t.Fatalf("order: got=%+v", got)
	}
	if got[1].Saves != 2 || got[1].Bytes != 20 || !got[1].SavedAt.Equal(at.Add(time.Second)) {
		t.Fatalf("upsert: got=%+v", got[1])
	}
	if st := idx.Stats(); st.AppliedTotal != 3 || st.DropTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestFailuresAndFiles(t *testing.T) {
	idx := openTest(t)
	now := time.Now()
	idx.OnSave(saver.Event{Kind: saver.OpEntity, EntityID: uuid.New(), Path: "playerdata/a.dat", Bytes: 50, At: now})
	idx.OnSave(saver.Event{Kind: saver.OpMetadata, Path: "level.dat", Bytes: 80, At: now})
	idx.OnSave(saver.Event{Kind: saver.OpChunk, CX: 3, CZ: 4, Path: "region/r.0.0.mca", Err: errors.New("too large"), At: now})

	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	fails, err := idx.Failures(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fails) != 1 || fails[0].Kind != "chunk" || fails[0].CX != 3 || fails[0].CZ != 4 || fails[0].Error != "too large" {
		t.Fatalf("failures: %+v", fails)
	}
	if n, err := idx.FileSaveCount(ctx, "entity"); err != nil || n != 1 {
		t.Fatalf("entity files: n=%d err=%v", n, err)
	}
	if n, err := idx.FileSaveCount(ctx, "metadata"); err != nil || n != 1 {
		t.Fatalf("metadata files: n=%d err=%v", n, err)
	}
	saves, _ := idx.ChunkSaves(ctx)
	if len(saves) != 0 {
		t.Fatalf("failed chunk should not be indexed as saved: %+v", saves)
	}
}

func TestQueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.OnSave(saver.Event{Kind: saver.OpChunk})
	s.OnSave(saver.Event{Kind: saver.OpChunk})
	s.OnSave(saver.Event{Kind: saver.OpEntity})

	st := s.Stats()
	if st.DropTotal != 2 {
		t.Fatalf("DropTotal=%d want=2", st.DropTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestUpsertCatalogs(t *testing.T) {
	idx := openTest(t)
	reg := catalogs.DefaultBlocks()
	if err := idx.UpsertCatalogs(reg, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	ctx := context.Background()
	d, ok, err := idx.CatalogDigest(ctx, "blocks")
	if err != nil || !ok || d == "" {
		t.Fatalf("blocks digest: %q %v %v", d, ok, err)
	}
	if _, ok, _ := idx.CatalogDigest(ctx, "tuning"); !ok {
		t.Fatalf("tuning row missing")
	}
	if _, ok, _ := idx.CatalogDigest(ctx, "items"); ok {
		t.Fatalf("unexpected row")
	}
}

func TestIndexAsPipelineObserver(t *testing.T) {
	idx := openTest(t)
	p, err := saver.Open(saver.Config{WorldDir: t.TempDir(), Observers: []saver.Observer{idx}})
	if err != nil {
		t.Fatal(err)
	}
	for i := int32(0); i < 5; i++ {
		if err := p.EnqueueChunk(i, 0, []byte{10, 0, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	saves, err := idx.ChunkSaves(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(saves) != 5 || saves[4].Path != filepath.Join("region", "r.0.0.mca") {
		t.Fatalf("saves: %+v", saves)
	}
}

func TestCloseRacesWithSenders(t *testing.T) {
	idx := openTest(t)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				idx.OnSave(saver.Event{Kind: saver.OpChunk, CX: int32(i), At: time.Now()})
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = idx.Flush(ctx)
				cancel()
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(stop)
	wg.Wait()

	before := idx.Stats().DropTotal
	idx.OnSave(saver.Event{Kind: saver.OpChunk})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after close: %v", err)
	}
	if got := idx.Stats().DropTotal; got != before {
		t.Fatalf("events after close should be ignored, not dropped: got=%d want=%d", got, before)
	}
}
