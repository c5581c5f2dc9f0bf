package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) (*File, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "r.0.0.mca")
	f, err := OpenFile(p)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f, p
}

func TestNewFileHasHeader(t *testing.T) {
	_, p := openTemp(t)
	st, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != HeaderSectors*SectorSize {
		t.Fatalf("size: got=%d want=%d", st.Size(), HeaderSectors*SectorSize)
	}
}

func TestReadWriteSlot(t *testing.T) {
	f, _ := openTemp(t)
	if _, ok, err := f.Read(5, 5); ok || err != nil {
		t.Fatalf("empty slot: ok=%v err=%v", ok, err)
	}
	want := []byte("Hello chunk NBT data")
	if err := f.Write(0, 0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok, err := f.Read(0, 0)
	if err != nil || !ok || !bytes.Equal(got, want) {
		t.Fatalf("Read: got=%q ok=%v err=%v", got, ok, err)
	}
	info := f.Chunks()
	if len(info) != 1 || info[0].Offset != 2 || info[0].Sectors != 1 {
		t.Fatalf("Chunks: got=%+v", info)
	}
}

func TestRecordLayout(t *testing.T) {
	f, p := openTemp(t)
	fixed := time.Unix(1700000000, 0)
	f.now = func() time.Time { return fixed }
	if err := f.Write(1, 2, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3*SectorSize {
		t.Fatalf("file size: got=%d want=%d", len(raw), 3*SectorSize)
	}
	idx := 1 + 2*32
	loc := binary.BigEndian.Uint32(raw[idx*4:])
	if loc != 2<<8|1 {
		t.Fatalf("location: got=%#x want=%#x", loc, 2<<8|1)
	}
	ts := binary.BigEndian.Uint32(raw[SectorSize+idx*4:])
	if ts != uint32(fixed.Unix()) {
		t.Fatalf("timestamp: got=%d want=%d", ts, fixed.Unix())
	}
	length := binary.BigEndian.Uint32(raw[2*SectorSize:])
	if raw[2*SectorSize+4] != MethodDeflate {
		t.Fatalf("method: got=%d", raw[2*SectorSize+4])
	}
	for _, b := range raw[2*SectorSize+4+int(length):] {
		if b != 0 {
			t.Fatalf("record padding must be zero")
		}
	}
}

func TestOverwriteRelocates(t *testing.T) {
	f, _ := openTemp(t)
	if err := f.Write(1, 0, []byte("neighbor")); err != nil {
		t.Fatal(err)
	}
	if err := f.Write(3, 7, []byte("first version")); err != nil {
		t.Fatal(err)
	}
	// Incompressible payload forces a multi-sector record.
	big := make([]byte, 3*SectorSize)
	rand.New(rand.NewSource(1)).Read(big)
	if err := f.Write(3, 7, big); err != nil {
		t.Fatal(err)
	}
	got, ok, err := f.Read(3, 7)
	if err != nil || !ok || !bytes.Equal(got, big) {
		t.Fatalf("overwrite read: ok=%v err=%v", ok, err)
	}
	if err := f.Write(3, 7, []byte("second version, which is longer")); err != nil {
		t.Fatal(err)
	}
	got, _, _ = f.Read(3, 7)
	if string(got) != "second version, which is longer" {
		t.Fatalf("got=%q", got)
	}
	n, _, _ := f.Read(1, 0)
	if string(n) != "neighbor" {
		t.Fatalf("neighbor: got=%q", n)
	}
	// The small record reuses the first free sector after the neighbor.
	for _, c := range f.Chunks() {
		if c.LocalX == 3 && c.LocalZ == 7 && c.Offset != 3 {
			t.Fatalf("first-fit: got offset %d want 3", c.Offset)
		}
	}
}

func TestBitmapMatchesLocations(t *testing.T) {
	f, _ := openTemp(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		buf := make([]byte, rng.Intn(3*SectorSize))
		rng.Read(buf)
		if err := f.Write(rng.Intn(32), rng.Intn(4), buf); err != nil {
			t.Fatal(err)
		}
	}
	want := make([]bool, len(f.used))
	want[0], want[1] = true, true
	for _, c := range f.Chunks() {
		for s := c.Offset; s < c.Offset+c.Sectors; s++ {
			if want[s] {
				t.Fatalf("sector %d owned twice", s)
			}
			want[s] = true
		}
	}
	for i := range want {
		if want[i] != f.used[i] {
			t.Fatalf("bitmap mismatch at sector %d: got=%v want=%v", i, f.used[i], want[i])
		}
	}
}

func TestReopenRebuildsBitmap(t *testing.T) {
	f, p := openTemp(t)
	for i := 0; i < 10; i++ {
		if err := f.Write(i, 0, bytes.Repeat([]byte{byte(i)}, 100)); err != nil {
			t.Fatal(err)
		}
	}
	inUse := f.SectorsInUse()
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	g, err := OpenFile(p)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if g.SectorsInUse() != inUse {
		t.Fatalf("sectors in use: got=%d want=%d", g.SectorsInUse(), inUse)
	}
	got, ok, err := g.Read(9, 0)
	if err != nil || !ok || !bytes.Equal(got, bytes.Repeat([]byte{9}, 100)) {
		t.Fatalf("reopen read: ok=%v err=%v", ok, err)
	}
}

func TestReadErrors(t *testing.T) {
	f, p := openTemp(t)
	if err := f.Write(0, 0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.Read(32, 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("out of range: got=%v", err)
	}

	raw, _ := os.ReadFile(p)
	raw[2*SectorSize+4] = 1
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := OpenFileReadOnly(p)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if _, _, err := g.Read(0, 0); !errors.Is(err, ErrUnsupportedCompression) || !errors.Is(err, ErrCorrupt) {
		t.Fatalf("method 1: got=%v", err)
	}
	if err := g.Write(0, 0, []byte("y")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("read-only write: got=%v", err)
	}
}

func TestReadTruncatedRecord(t *testing.T) {
	f, p := openTemp(t)
	if err := f.Write(0, 0, bytes.Repeat([]byte("abc"), 10)); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if err := os.Truncate(p, 2*SectorSize+3); err != nil {
		t.Fatal(err)
	}
	g, err := OpenFileReadOnly(p)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if _, _, err := g.Read(0, 0); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated: got=%v", err)
	}
}

func TestChunkTooLarge(t *testing.T) {
	f, _ := openTemp(t)
	big := make([]byte, 256*SectorSize)
	rand.New(rand.NewSource(3)).Read(big)
	if err := f.Write(0, 0, big); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("got=%v want=%v", err, ErrChunkTooLarge)
	}
	if f.Exists(0, 0) {
		t.Fatalf("rejected write must not touch the slot")
	}
}

func TestReadsRawDeflate(t *testing.T) {
	payload, err := deflate([]byte("zlib form"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := inflate(payload)
	if err != nil || string(got) != "zlib form" {
		t.Fatalf("zlib: got=%q err=%v", got, err)
	}
	// Strip the zlib header and checksum to get the bare DEFLATE stream.
	got, err = inflate(payload[2 : len(payload)-4])
	if err != nil || string(got) != "zlib form" {
		t.Fatalf("raw: got=%q err=%v", got, err)
	}
}

func TestReadOnlyHandleSeesLaterWrites(t *testing.T) {
	f, p := openTemp(t)
	if err := f.Write(0, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	g, err := OpenFileReadOnly(p)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if got, ok, err := g.Read(0, 0); err != nil || !ok || string(got) != "a" {
		t.Fatalf("initial read: got=%q ok=%v err=%v", got, ok, err)
	}

	if err := f.Write(1, 0, []byte("b")); err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 2*SectorSize)
	rand.New(rand.NewSource(5)).Read(big)
	if err := f.Write(0, 0, big); err != nil {
		t.Fatal(err)
	}

	if got, ok, err := g.Read(1, 0); err != nil || !ok || string(got) != "b" {
		t.Fatalf("new slot: got=%q ok=%v err=%v", got, ok, err)
	}
	if !g.Exists(1, 0) {
		t.Fatalf("Exists(1,0) on read-only handle: got=false want=true")
	}
	got, ok, err := g.Read(0, 0)
	if err != nil || !ok || !bytes.Equal(got, big) {
		t.Fatalf("relocated slot: len=%d ok=%v err=%v", len(got), ok, err)
	}
}

func TestRewriteKeepsSectorsOfOverlappingSlot(t *testing.T) {
	f, _ := openTemp(t)
	if err := f.Write(0, 0, []byte("original")); err != nil {
		t.Fatal(err)
	}
	// A corrupt header where slot (1,0) points at the same span as (0,0).
	f.locations[1] = f.locations[0]

	if err := f.Write(0, 0, []byte("rewritten")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := f.Read(1, 0)
	if err != nil || !ok || string(got) != "original" {
		t.Fatalf("overlapping slot: got=%q ok=%v err=%v", got, ok, err)
	}
	for _, c := range f.Chunks() {
		if c.LocalX == 0 && c.LocalZ == 0 && c.Offset == HeaderSectors {
			t.Fatalf("rewrite reused a sector still claimed by slot (1,0)")
		}
	}
	if got, _, _ := f.Read(0, 0); string(got) != "rewritten" {
		t.Fatalf("rewritten slot: got=%q", got)
	}
}
