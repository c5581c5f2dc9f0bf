package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary record of what the save pipeline
// wrote. Region and aux files remain the source of truth; the index may lag
// or drop events under load.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu makes the closed check and the channel send atomic with
	// respect to Close.
	sendMu sync.RWMutex
	closed bool

	dropTotal       atomic.Uint64
	appliedTotal    atomic.Uint64
	writeErrorTotal atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind
	ev   saver.Event
	done chan struct{}
}

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropTotal       uint64
	AppliedTotal    uint64
	WriteErrorTotal uint64
}

// ChunkSave is the latest successful write of one chunk.
type ChunkSave struct {
	CX, CZ     int32
	Path       string
	Bytes      int
	Saves      int
	SavedAt    time.Time
	DurationUS int64
}

type Failure struct {
	At    time.Time
	Kind  string
	CX    int32
	CZ    int32
	Path  string
	Error string
}

const queueCapacity = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_saves (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			path TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			saves INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			duration_us INTEGER NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_saves_path ON chunk_saves(path);`,
		`CREATE TABLE IF NOT EXISTS file_saves (
			path TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			entity_id TEXT,
			bytes INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			cx INTEGER,
			cz INTEGER,
			path TEXT NOT NULL,
			error TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// OnSave queues ev for indexing. It never blocks the pipeline worker: when
// the indexer falls behind the event is dropped and counted.
func (s *SQLiteIndex) OnSave(ev saver.Event) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- req{kind: reqEvent, ev: ev}:
	default:
		s.dropTotal.Add(1)
	}
}

// Flush blocks until every event queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.sendMu.RLock()
	if s.closed {
		s.sendMu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.sendMu.RUnlock()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTotal:       s.dropTotal.Load(),
		AppliedTotal:    s.appliedTotal.Load(),
		WriteErrorTotal: s.writeErrorTotal.Load(),
	}
}

// UpsertCatalogs records the block registry and the tuning values in effect.
func (s *SQLiteIndex) UpsertCatalogs(reg *catalogs.BlockRegistry, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if reg != nil {
		if b, _ := json.Marshal(reg.States); len(b) > 0 {
			digest := reg.Digest
			if digest == "" {
				digest = sha256Hex(b)
			}
			rows = append(rows, kv{name: "blocks", digest: digest, json: b})
		}
	}
	if b, _ := json.Marshal(tune); len(b) > 0 {
		rows = append(rows, kv{name: "tuning", digest: sha256Hex(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

// ChunkSaves lists indexed chunks ordered by (cx, cz).
func (s *SQLiteIndex) ChunkSaves(ctx context.Context) ([]ChunkSave, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cx,cz,path,bytes,saves,saved_at,duration_us FROM chunk_saves ORDER BY cx,cz`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChunkSave
	for rows.Next() {
		var c ChunkSave
		var at string
		if err := rows.Scan(&c.CX, &c.CZ, &c.Path, &c.Bytes, &c.Saves, &at, &c.DurationUS); err != nil {
			return nil, err
		}
		c.SavedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Failures returns the most recent failures first.
func (s *SQLiteIndex) Failures(ctx context.Context, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT at,kind,COALESCE(cx,0),COALESCE(cz,0),path,error FROM failures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Failure
	for rows.Next() {
		var f Failure
		var at string
		if err := rows.Scan(&at, &f.Kind, &f.CX, &f.CZ, &f.Path, &f.Error); err != nil {
			return nil, err
		}
		f.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) FileSaveCount(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_saves WHERE kind=?`, kind).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertChunk, _ := s.db.Prepare(`INSERT INTO chunk_saves(cx,cz,path,bytes,saves,saved_at,duration_us) VALUES(?,?,?,?,1,?,?)
		ON CONFLICT(cx,cz) DO UPDATE SET path=excluded.path, bytes=excluded.bytes, saves=saves+1, saved_at=excluded.saved_at, duration_us=excluded.duration_us`)
	upsertFile, _ := s.db.Prepare(`INSERT OR REPLACE INTO file_saves(path,kind,entity_id,bytes,saved_at) VALUES(?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT INTO failures(at,kind,cx,cz,path,error) VALUES(?,?,?,?,?,?)`)
	setMeta, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertChunk, upsertFile, insertFailure, setMeta} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrorTotal.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrorTotal.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrorTotal.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		ev := r.ev
		at := ev.At.UTC().Format(time.RFC3339Nano)
		ok := true
		switch {
		case ev.Err != nil:
			var cx, cz any
			if ev.Kind == saver.OpChunk {
				cx, cz = ev.CX, ev.CZ
			}
			ok = exec(insertFailure, at, ev.Kind.String(), cx, cz, ev.Path, ev.Err.Error())
		case ev.Kind == saver.OpChunk:
			ok = exec(upsertChunk, ev.CX, ev.CZ, ev.Path, ev.Bytes, at, ev.Duration.Microseconds())
		case ev.Kind == saver.OpEntity:
			ok = exec(upsertFile, ev.Path, ev.Kind.String(), ev.EntityID.String(), ev.Bytes, at)
		case ev.Kind == saver.OpMetadata:
			ok = exec(upsertFile, ev.Path, ev.Kind.String(), nil, ev.Bytes, at)
		case ev.Kind == saver.OpShutdown:
			if ok = exec(setMeta, "last_shutdown", at); ok {
				commit()
			}
		}
		if ok {
			s.appliedTotal.Add(1)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
