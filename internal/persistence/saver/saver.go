// Package saver is the world persistence pipeline: one worker goroutine
// applies chunk, entity and metadata saves in FIFO order, while loads run
// synchronously on the caller.
package saver

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/region"
)

var ErrClosed = errors.New("saver: pipeline shut down")

const (
	RegionDir     = "region"
	PlayerDataDir = "playerdata"
	LevelFile     = "level.dat"
)

// Event describes one applied save. Err is nil on success.
type Event struct {
	Kind     OpKind
	CX, CZ   int32
	EntityID uuid.UUID
	Path     string
	Bytes    int
	Err      error
	At       time.Time
	Duration time.Duration
	// Waited is how long the op sat in the queue.
	Waited time.Duration
}

// Observer receives every event on the worker goroutine and must not block.
type Observer interface {
	OnSave(Event)
}

type Config struct {
	WorldDir  string
	Logger    *log.Logger
	Observers []Observer
}

type Stats struct {
	QueueDepth          int
	EnqueuedTotal       uint64
	RejectedTotal       uint64
	ChunkSavedTotal     uint64
	ChunkFailedTotal    uint64
	EntitySavedTotal    uint64
	EntityFailedTotal   uint64
	MetadataSavedTotal  uint64
	MetadataFailedTotal uint64
	BytesWrittenTotal   uint64
	LoadTotal           uint64
	LoadMissTotal       uint64
	LoadErrorTotal      uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type Pipeline struct {
	dir       string
	logger    *log.Logger
	observers []Observer

	// writer belongs to the worker goroutine; reader to the caller.
	writer *region.Storage
	reader *region.Storage

	q           *queue
	done        chan struct{}
	shutdownErr error
	readerOnce  sync.Once

	enqueuedTotal     atomic.Uint64
	rejectedTotal     atomic.Uint64
	savedTotal        [3]atomic.Uint64
	failedTotal       [3]atomic.Uint64
	bytesWrittenTotal atomic.Uint64
	loadTotal         atomic.Uint64
	loadMissTotal     atomic.Uint64
	loadErrorTotal    atomic.Uint64
	lastSuccessUnix   atomic.Int64
	lastErrorUnix     atomic.Int64
}

// Open prepares the world directory and starts the worker.
func Open(cfg Config) (*Pipeline, error) {
	if cfg.WorldDir == "" {
		return nil, fmt.Errorf("saver: empty world dir")
	}
	for _, d := range []string{cfg.WorldDir, filepath.Join(cfg.WorldDir, PlayerDataDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	regionDir := filepath.Join(cfg.WorldDir, RegionDir)
	writer, err := region.Open(regionDir)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		dir:       cfg.WorldDir,
		logger:    cfg.Logger,
		observers: cfg.Observers,
		writer:    writer,
		reader:    region.OpenReadOnly(regionDir),
		q:         newQueue(),
		done:      make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *Pipeline) Dir() string { return p.dir }

// EnqueueChunk queues raw chunk record bytes for (cx,cz). The pipeline owns
// data from here on; callers must not modify it.
func (p *Pipeline) EnqueueChunk(cx, cz int32, data []byte) error {
	return p.enqueue(op{kind: OpChunk, cx: cx, cz: cz, data: data})
}

// EnqueueEntity queues an uncompressed entity record; it is gzipped into
// playerdata/<id>.dat.
func (p *Pipeline) EnqueueEntity(id uuid.UUID, data []byte) error {
	return p.enqueue(op{kind: OpEntity, id: id, data: data})
}

// EnqueueMetadata queues an uncompressed level.dat record.
func (p *Pipeline) EnqueueMetadata(data []byte) error {
	return p.enqueue(op{kind: OpMetadata, data: data})
}

func (p *Pipeline) enqueue(o op) error {
	o.enqueued = time.Now()
	if !p.q.push(o) {
		p.rejectedTotal.Add(1)
		return ErrClosed
	}
	p.enqueuedTotal.Add(1)
	return nil
}

// Shutdown enqueues the sentinel and blocks until every earlier op has been
// applied and the region files are synced and closed. Later calls wait for
// the same completion and return the same result.
func (p *Pipeline) Shutdown() error {
	p.q.close(op{kind: OpShutdown, enqueued: time.Now()})
	<-p.done
	p.readerOnce.Do(func() {
		if err := p.reader.Close(); err != nil {
			p.printf("saver reader close err=%v", err)
		}
	})
	return p.shutdownErr
}

// Done is closed once the worker has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

func (p *Pipeline) run() {
	for {
		o := p.q.pop()
		if o.kind == OpShutdown {
			start := time.Now()
			err := p.writer.Close()
			if err != nil {
				p.shutdownErr = fmt.Errorf("saver: close regions: %w", err)
				p.printf("saver shutdown close err=%v", err)
			}
			p.notify(Event{Kind: OpShutdown, Err: err, At: time.Now(), Duration: time.Since(start), Waited: start.Sub(o.enqueued)})
			close(p.done)
			return
		}
		p.apply(o)
	}
}

func (p *Pipeline) apply(o op) {
	start := time.Now()
	ev := Event{Kind: o.kind, CX: o.cx, CZ: o.cz, EntityID: o.id, Bytes: len(o.data), Waited: start.Sub(o.enqueued)}
	switch o.kind {
	case OpChunk:
		ev.Path = filepath.Join(RegionDir, region.FileName(o.cx>>5, o.cz>>5))
		ev.Err = p.writer.WriteChunk(o.cx, o.cz, o.data)
	case OpEntity:
		ev.Path = entityPath(p.dir, o.id)
		ev.Err = writeGzipAtomic(ev.Path, o.data)
	case OpMetadata:
		ev.Path = filepath.Join(p.dir, LevelFile)
		ev.Err = writeGzipAtomic(ev.Path, o.data)
	}
	ev.At = time.Now()
	ev.Duration = ev.At.Sub(start)

	if ev.Err != nil {
		p.failedTotal[o.kind].Add(1)
		p.lastErrorUnix.Store(ev.At.UTC().Unix())
		switch o.kind {
		case OpChunk:
			p.printf("saver chunk failed cx=%d cz=%d err=%v", o.cx, o.cz, ev.Err)
		case OpEntity:
			p.printf("saver entity failed id=%s err=%v", o.id, ev.Err)
		default:
			p.printf("saver %s failed path=%s err=%v", o.kind, ev.Path, ev.Err)
		}
	} else {
		p.savedTotal[o.kind].Add(1)
		p.bytesWrittenTotal.Add(uint64(len(o.data)))
		p.lastSuccessUnix.Store(ev.At.UTC().Unix())
	}
	p.notify(ev)
}

func (p *Pipeline) notify(ev Event) {
	for _, o := range p.observers {
		o.OnSave(ev)
	}
}

// LoadChunk reads a chunk record synchronously. It returns false when the
// chunk was never saved.
func (p *Pipeline) LoadChunk(cx, cz int32) ([]byte, bool, error) {
	p.loadTotal.Add(1)
	data, ok, err := p.reader.ReadChunk(cx, cz)
	switch {
	case err != nil:
		p.loadErrorTotal.Add(1)
	case !ok:
		p.loadMissTotal.Add(1)
	}
	return data, ok, err
}

// LoadEntity reads and gunzips playerdata/<id>.dat.
func (p *Pipeline) LoadEntity(id uuid.UUID) ([]byte, bool, error) {
	return p.loadAux(entityPath(p.dir, id))
}

// LoadMetadata reads and gunzips level.dat.
func (p *Pipeline) LoadMetadata() ([]byte, bool, error) {
	return p.loadAux(filepath.Join(p.dir, LevelFile))
}

func (p *Pipeline) loadAux(path string) ([]byte, bool, error) {
	p.loadTotal.Add(1)
	data, ok, err := readGzip(path)
	switch {
	case err != nil:
		p.loadErrorTotal.Add(1)
	case !ok:
		p.loadMissTotal.Add(1)
	}
	return data, ok, err
}

func (p *Pipeline) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          p.q.len(),
		EnqueuedTotal:       p.enqueuedTotal.Load(),
		RejectedTotal:       p.rejectedTotal.Load(),
		ChunkSavedTotal:     p.savedTotal[OpChunk].Load(),
		ChunkFailedTotal:    p.failedTotal[OpChunk].Load(),
		EntitySavedTotal:    p.savedTotal[OpEntity].Load(),
		EntityFailedTotal:   p.failedTotal[OpEntity].Load(),
		MetadataSavedTotal:  p.savedTotal[OpMetadata].Load(),
		MetadataFailedTotal: p.failedTotal[OpMetadata].Load(),
		BytesWrittenTotal:   p.bytesWrittenTotal.Load(),
		LoadTotal:           p.loadTotal.Load(),
		LoadMissTotal:       p.loadMissTotal.Load(),
		LoadErrorTotal:      p.loadErrorTotal.Load(),
		LastSuccessUnix:     p.lastSuccessUnix.Load(),
		LastErrorUnix:       p.lastErrorUnix.Load(),
	}
}

func (p *Pipeline) printf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
