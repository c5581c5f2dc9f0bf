package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelsave.ai/internal/persistence/saver"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder without ending the frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// SaveEntry is one line of the save log.
type SaveEntry struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	CX         *int32    `json:"cx,omitempty"`
	CZ         *int32    `json:"cz,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	Bytes      int       `json:"bytes"`
	DurationUS int64     `json:"duration_us"`
	WaitedUS   int64     `json:"waited_us"`
	Error      string    `json:"error,omitempty"`
}

func EntryFor(ev saver.Event) SaveEntry {
	e := SaveEntry{
		At:         ev.At.UTC(),
		Kind:       ev.Kind.String(),
		Path:       ev.Path,
		Bytes:      ev.Bytes,
		DurationUS: ev.Duration.Microseconds(),
		WaitedUS:   ev.Waited.Microseconds(),
	}
	switch ev.Kind {
	case saver.OpChunk:
		cx, cz := ev.CX, ev.CZ
		e.CX, e.CZ = &cx, &cz
	case saver.OpEntity:
		e.EntityID = ev.EntityID.String()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// SaveLogger records every pipeline event under <worldDir>/logs. It is a
// saver.Observer; write errors are counted, never returned to the worker.
type SaveLogger struct {
	w *JSONLZstdWriter

	mu     sync.Mutex
	errors int
}

func NewSaveLogger(worldDir string) *SaveLogger {
	return &SaveLogger{w: NewJSONLZstdWriter(filepath.Join(worldDir, "logs"), "saves")}
}

func (l *SaveLogger) OnSave(ev saver.Event) {
	err := l.w.Write(EntryFor(ev))
	if err == nil && ev.Kind == saver.OpShutdown {
		err = l.w.Flush()
	}
	if err != nil {
		l.mu.Lock()
		l.errors++
		l.mu.Unlock()
	}
}

func (l *SaveLogger) WriteErrors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

func (l *SaveLogger) Close() error { return l.w.Close() }
