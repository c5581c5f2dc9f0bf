package region

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type Coord struct {
	X, Z int32
}

// Locate splits a chunk coordinate into its region and the local slot.
func Locate(cx, cz int32) (rx, rz int32, lx, lz int) {
	return cx >> 5, cz >> 5, int(cx & 31), int(cz & 31)
}

// FileName is the region file name for region (rx,rz).
func FileName(rx, rz int32) string {
	return fmt.Sprintf("r.%d.%d.mca", rx, rz)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (Coord, bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 4 || parts[0] != "r" || parts[3] != "mca" {
		return Coord{}, false
	}
	x, err1 := strconv.ParseInt(parts[1], 10, 32)
	z, err2 := strconv.ParseInt(parts[2], 10, 32)
	if err1 != nil || err2 != nil {
		return Coord{}, false
	}
	return Coord{X: int32(x), Z: int32(z)}, true
}

// Storage routes chunk coordinates to lazily opened region files in one
// directory. Files stay open until Close.
type Storage struct {
	dir      string
	readOnly bool
	files    map[Coord]*File
}

// Open returns a writable storage, creating dir if needed.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Storage{dir: dir, files: map[Coord]*File{}}, nil
}

// OpenReadOnly returns a storage that never creates or modifies files.
// Regions without a file read as empty. Reads follow the location tables on
// disk, so records a writable storage on the same directory saves later are
// visible.
func OpenReadOnly(dir string) *Storage {
	return &Storage{dir: dir, readOnly: true, files: map[Coord]*File{}}
}

func (s *Storage) Dir() string { return s.dir }

func (s *Storage) file(rx, rz int32, create bool) (*File, error) {
	c := Coord{X: rx, Z: rz}
	if f, ok := s.files[c]; ok {
		return f, nil
	}
	path := filepath.Join(s.dir, FileName(rx, rz))
	var (
		f   *File
		err error
	)
	if s.readOnly {
		f, err = OpenFileReadOnly(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	} else {
		if !create {
			if _, serr := os.Stat(path); errors.Is(serr, fs.ErrNotExist) {
				return nil, nil
			}
		}
		f, err = OpenFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.files[c] = f
	return f, nil
}

// ReadChunk returns the decompressed record for chunk (cx,cz), or false
// when it was never written.
func (s *Storage) ReadChunk(cx, cz int32) ([]byte, bool, error) {
	rx, rz, lx, lz := Locate(cx, cz)
	f, err := s.file(rx, rz, false)
	if err != nil || f == nil {
		return nil, false, err
	}
	return f.Read(lx, lz)
}

func (s *Storage) WriteChunk(cx, cz int32, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	rx, rz, lx, lz := Locate(cx, cz)
	f, err := s.file(rx, rz, true)
	if err != nil {
		return err
	}
	return f.Write(lx, lz, data)
}

// Flush syncs every open region file.
func (s *Storage) Flush() error {
	var errs []error
	for _, c := range s.sortedCoords() {
		if err := s.files[c].Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close syncs and closes every open file.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.sortedCoords() {
		if err := s.files[c].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = map[Coord]*File{}
	return errors.Join(errs...)
}

// Open returns the number of region files currently held open.
func (s *Storage) OpenFiles() int { return len(s.files) }

func (s *Storage) sortedCoords() []Coord {
	out := make([]Coord, 0, len(s.files))
	for c := range s.files {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out
}

// Regions lists the region files present in dir, sorted by coordinate.
func Regions(dir string) ([]Coord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Coord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c, ok := ParseFileName(e.Name()); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out, nil
}
