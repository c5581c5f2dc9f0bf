// Package region reads and writes Anvil-style region files: a 32x32 grid of
// compressed chunk records in 4096-byte sectors behind two header tables.
package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

const (
	SectorSize    = 4096
	HeaderSectors = 2
	Slots         = 32 * 32

	// MethodDeflate is the only compression method written or accepted.
	MethodDeflate = 2

	recordHeader = 5
	maxSectors   = 255
	readRetries  = 3
)

var (
	ErrCorrupt                = errors.New("region: corrupt data")
	ErrUnsupportedCompression = fmt.Errorf("%w: unsupported compression method", ErrCorrupt)
	ErrChunkTooLarge          = errors.New("region: chunk needs more than 255 sectors")
	ErrOutOfRange             = errors.New("region: local coordinate out of range")
	ErrReadOnly               = errors.New("region: file opened read-only")
)

// File is one open region file. It is not safe for concurrent use; the
// persistence worker is its only writer.
type File struct {
	path     string
	f        *os.File
	readOnly bool

	locations  [Slots]uint32
	timestamps [Slots]uint32
	// used has one entry per sector of the file; sectors 0 and 1 are the
	// header and always set.
	used []bool

	now func() time.Time
}

// SlotInfo describes one present chunk record.
type SlotInfo struct {
	LocalX, LocalZ int
	Offset         uint32
	Sectors        uint32
	Timestamp      uint32
}

func slot(lx, lz int) (int, error) {
	if lx < 0 || lx >= 32 || lz < 0 || lz >= 32 {
		return 0, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, lx, lz)
	}
	return lx + lz*32, nil
}

// OpenFile opens or creates a region file. A new file starts as two zeroed
// header sectors.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	r, err := load(path, f, false)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// OpenFileReadOnly opens an existing region file for reading only.
func OpenFileReadOnly(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := load(path, f, true)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func load(path string, f *os.File, readOnly bool) (*File, error) {
	r := &File{path: path, f: f, readOnly: readOnly, now: time.Now}
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()

	if size < HeaderSectors*SectorSize {
		if !readOnly {
			// New or short file: pad the header out to its full size.
			hdr := make([]byte, HeaderSectors*SectorSize)
			if size > 0 {
				if _, err := f.ReadAt(hdr[:size], 0); err != nil && !errors.Is(err, io.EOF) {
					return nil, err
				}
			}
			if _, err := f.WriteAt(hdr, 0); err != nil {
				return nil, fmt.Errorf("region: init header: %w", err)
			}
			size = HeaderSectors * SectorSize
		} else if size > 0 {
			return nil, fmt.Errorf("%w: %s is %d bytes, shorter than the header", ErrCorrupt, path, size)
		}
	}

	hdr := make([]byte, HeaderSectors*SectorSize)
	if size > 0 {
		if _, err := f.ReadAt(hdr, 0); err != nil {
			return nil, fmt.Errorf("region: read header: %w", err)
		}
	}
	for i := 0; i < Slots; i++ {
		r.locations[i] = binary.BigEndian.Uint32(hdr[i*4:])
		r.timestamps[i] = binary.BigEndian.Uint32(hdr[SectorSize+i*4:])
	}

	sectors := int((size + SectorSize - 1) / SectorSize)
	if sectors < HeaderSectors {
		sectors = HeaderSectors
	}
	r.used = make([]bool, sectors)
	r.used[0], r.used[1] = true, true
	for _, loc := range r.locations {
		if loc == 0 {
			continue
		}
		off, cnt := int(loc>>8), int(loc&0xFF)
		r.mark(off, cnt, true)
	}
	return r, nil
}

// mark sets a span in the bitmap, growing it for spans past EOF.
func (r *File) mark(off, cnt int, v bool) {
	if v && off+cnt > len(r.used) {
		r.used = append(r.used, make([]bool, off+cnt-len(r.used))...)
	}
	for i := off; i < off+cnt && i < len(r.used); i++ {
		if i < HeaderSectors {
			continue
		}
		r.used[i] = v
	}
}

// release clears slot i's span in the bitmap but keeps any sector another
// slot still claims. Spans only overlap in a corrupt header.
func (r *File) release(i int) {
	loc := r.locations[i]
	off, cnt := int(loc>>8), int(loc&0xFF)
	r.mark(off, cnt, false)
	for j, other := range r.locations {
		if j == i || other == 0 {
			continue
		}
		o, c := int(other>>8), int(other&0xFF)
		if o < off+cnt && off < o+c {
			r.mark(o, c, true)
		}
	}
}

// allocate returns the first free run of n sectors after the header,
// extending the bitmap when none exists.
func (r *File) allocate(n int) int {
	run := 0
	for i := HeaderSectors; i < len(r.used); i++ {
		if r.used[i] {
			run = 0
			continue
		}
		run++
		if run == n {
			return i - n + 1
		}
	}
	start := len(r.used) - run
	r.used = append(r.used, make([]bool, n-run)...)
	return start
}

func (r *File) Path() string { return r.path }

// Read returns the decompressed record for a slot, or false if it is empty.
// A read-only handle takes the slot's location from disk on every call, so
// it sees records another handle wrote after it was opened.
func (r *File) Read(lx, lz int) ([]byte, bool, error) {
	i, err := slot(lx, lz)
	if err != nil {
		return nil, false, err
	}
	for attempt := 0; ; attempt++ {
		loc, err := r.location(i)
		if err != nil {
			return nil, false, err
		}
		if loc == 0 {
			return nil, false, nil
		}
		data, ok, err := r.readRecord(lx, lz, loc)
		if !r.readOnly || attempt == readRetries {
			return data, ok, err
		}
		// The writer may have relocated the slot while the record was read.
		if again, lerr := r.location(i); lerr == nil && again == loc {
			return data, ok, err
		}
	}
}

// location returns slot i's location entry. Read-only handles re-read it
// from the header table.
func (r *File) location(i int) (uint32, error) {
	if !r.readOnly {
		return r.locations[i], nil
	}
	var b [4]byte
	if _, err := r.f.ReadAt(b[:], int64(i)*4); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("region: read location: %w", err)
	}
	r.locations[i] = binary.BigEndian.Uint32(b[:])
	return r.locations[i], nil
}

func (r *File) readRecord(lx, lz int, loc uint32) ([]byte, bool, error) {
	off, cnt := int64(loc>>8), int64(loc&0xFF)
	if off < HeaderSectors || cnt == 0 {
		return nil, false, fmt.Errorf("%w: slot (%d,%d) location %#x", ErrCorrupt, lx, lz, loc)
	}

	var hdr [recordHeader]byte
	if _, err := r.f.ReadAt(hdr[:], off*SectorSize); err != nil {
		return nil, false, fmt.Errorf("%w: slot (%d,%d) record header: %v", ErrCorrupt, lx, lz, err)
	}
	length := int64(binary.BigEndian.Uint32(hdr[:4]))
	if length <= 1 {
		return nil, false, nil
	}
	if 4+length > cnt*SectorSize {
		return nil, false, fmt.Errorf("%w: slot (%d,%d) length %d exceeds %d sectors", ErrCorrupt, lx, lz, length, cnt)
	}
	if hdr[4] != MethodDeflate {
		return nil, false, fmt.Errorf("%w: %d at slot (%d,%d)", ErrUnsupportedCompression, hdr[4], lx, lz)
	}

	payload := make([]byte, length-1)
	if _, err := r.f.ReadAt(payload, off*SectorSize+recordHeader); err != nil {
		return nil, false, fmt.Errorf("%w: slot (%d,%d) payload: %v", ErrCorrupt, lx, lz, err)
	}
	data, err := inflate(payload)
	if err != nil {
		return nil, false, fmt.Errorf("%w: slot (%d,%d): %v", ErrCorrupt, lx, lz, err)
	}
	return data, true, nil
}

// Write compresses data into slot (lx,lz). The slot's old span is released
// before first-fit allocation, the record is written, then both header
// tables are rewritten.
func (r *File) Write(lx, lz int, data []byte) error {
	if r.readOnly {
		return ErrReadOnly
	}
	i, err := slot(lx, lz)
	if err != nil {
		return err
	}
	compressed, err := deflate(data)
	if err != nil {
		return fmt.Errorf("region: compress: %w", err)
	}
	total := recordHeader + len(compressed)
	n := (total + SectorSize - 1) / SectorSize
	if n > maxSectors {
		return fmt.Errorf("%w: %d bytes compressed", ErrChunkTooLarge, len(compressed))
	}

	old := r.locations[i]
	if old != 0 {
		r.release(i)
	}
	off := r.allocate(n)

	buf := make([]byte, n*SectorSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(compressed)+1))
	buf[4] = MethodDeflate
	copy(buf[recordHeader:], compressed)
	if _, err := r.f.WriteAt(buf, int64(off)*SectorSize); err != nil {
		if old != 0 {
			r.mark(int(old>>8), int(old&0xFF), true)
		}
		return fmt.Errorf("region: write record: %w", err)
	}
	r.mark(off, n, true)

	r.locations[i] = uint32(off)<<8 | uint32(n)
	r.timestamps[i] = uint32(r.now().Unix())
	return r.writeHeader()
}

func (r *File) writeHeader() error {
	hdr := make([]byte, HeaderSectors*SectorSize)
	for i := 0; i < Slots; i++ {
		binary.BigEndian.PutUint32(hdr[i*4:], r.locations[i])
		binary.BigEndian.PutUint32(hdr[SectorSize+i*4:], r.timestamps[i])
	}
	if _, err := r.f.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("region: write header: %w", err)
	}
	return nil
}

// Timestamp returns the last-modified unix time of a slot, 0 if never written.
func (r *File) Timestamp(lx, lz int) (uint32, error) {
	i, err := slot(lx, lz)
	if err != nil {
		return 0, err
	}
	return r.timestamps[i], nil
}

// Exists reports whether the slot has a location entry.
func (r *File) Exists(lx, lz int) bool {
	i, err := slot(lx, lz)
	if err != nil {
		return false
	}
	loc, err := r.location(i)
	return err == nil && loc != 0
}

// Chunks lists present slots in index order.
func (r *File) Chunks() []SlotInfo {
	var out []SlotInfo
	for i, loc := range r.locations {
		if loc == 0 {
			continue
		}
		out = append(out, SlotInfo{
			LocalX:    i % 32,
			LocalZ:    i / 32,
			Offset:    loc >> 8,
			Sectors:   loc & 0xFF,
			Timestamp: r.timestamps[i],
		})
	}
	return out
}

// SectorsInUse counts occupied sectors including the header.
func (r *File) SectorsInUse() int {
	n := 0
	for _, u := range r.used {
		if u {
			n++
		}
	}
	return n
}

// Sync flushes OS buffers for the file.
func (r *File) Sync() error {
	if r.readOnly {
		return nil
	}
	return r.f.Sync()
}

func (r *File) Close() error {
	err := r.Sync()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// deflate writes a zlib-wrapped DEFLATE stream, the form vanilla tooling
// expects for method 2.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflate accepts both zlib-wrapped and raw DEFLATE payloads.
func inflate(payload []byte) ([]byte, error) {
	if looksZlib(payload) {
		if zr, err := zlib.NewReader(bytes.NewReader(payload)); err == nil {
			out, rerr := io.ReadAll(zr)
			_ = zr.Close()
			if rerr == nil {
				return out, nil
			}
		}
	}
	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close()
	return io.ReadAll(fr)
}

func looksZlib(p []byte) bool {
	if len(p) < 2 {
		return false
	}
	cmf, flg := p[0], p[1]
	return cmf&0x0F == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0 && flg&0x20 == 0
}
