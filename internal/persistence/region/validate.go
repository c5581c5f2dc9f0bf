package region

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

type ProblemKind string

const (
	ProblemZeroSectors  ProblemKind = "zero_sectors"
	ProblemInHeader     ProblemKind = "offset_in_header"
	ProblemPastEOF      ProblemKind = "past_eof"
	ProblemOverlap      ProblemKind = "overlap"
	ProblemBadRecord    ProblemKind = "bad_record"
	ProblemShortFile    ProblemKind = "short_file"
	ProblemUnreadable   ProblemKind = "unreadable"
	ProblemMisalignment ProblemKind = "size_not_sector_aligned"
)

type Problem struct {
	Kind           ProblemKind
	LocalX, LocalZ int
	Detail         string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s chunk(%d,%d): %s", p.Kind, p.LocalX, p.LocalZ, p.Detail)
}

// Validate checks a region file's header against its size and itself
// without modifying it. With deep set every record is also decompressed.
func Validate(path string, deep bool) ([]Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < HeaderSectors*SectorSize {
		return []Problem{{Kind: ProblemShortFile, LocalX: -1, LocalZ: -1, Detail: fmt.Sprintf("%d bytes", size)}}, nil
	}

	var problems []Problem
	if size%SectorSize != 0 {
		problems = append(problems, Problem{Kind: ProblemMisalignment, LocalX: -1, LocalZ: -1, Detail: fmt.Sprintf("%d bytes", size)})
	}
	hdr := make([]byte, SectorSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, err
	}

	sectors := int((size + SectorSize - 1) / SectorSize)
	owner := make([]string, sectors)
	owner[0], owner[1] = "location header", "timestamp header"
	for i := 0; i < Slots; i++ {
		loc := binary.BigEndian.Uint32(hdr[i*4:])
		if loc == 0 {
			continue
		}
		x, z := i%32, i/32
		off, cnt := int(loc>>8), int(loc&0xFF)
		switch {
		case cnt == 0:
			problems = append(problems, Problem{ProblemZeroSectors, x, z, fmt.Sprintf("offset %d", off)})
			continue
		case off < HeaderSectors:
			problems = append(problems, Problem{ProblemInHeader, x, z, fmt.Sprintf("offset %d", off)})
			continue
		case off+cnt > sectors:
			problems = append(problems, Problem{ProblemPastEOF, x, z, fmt.Sprintf("offset %d count %d, file has %d sectors", off, cnt, sectors)})
			continue
		}
		name := fmt.Sprintf("chunk(%d,%d)", x, z)
		for s := off; s < off+cnt; s++ {
			if owner[s] != "" {
				problems = append(problems, Problem{ProblemOverlap, x, z, fmt.Sprintf("sector %d already owned by %s", s, owner[s])})
				break
			}
			owner[s] = name
		}

		var rec [recordHeader]byte
		if _, err := f.ReadAt(rec[:], int64(off)*SectorSize); err != nil {
			problems = append(problems, Problem{ProblemBadRecord, x, z, err.Error()})
			continue
		}
		length := int(binary.BigEndian.Uint32(rec[:4]))
		if 4+length > cnt*SectorSize {
			problems = append(problems, Problem{ProblemBadRecord, x, z, fmt.Sprintf("length %d exceeds %d sectors", length, cnt)})
			continue
		}
		if length > 1 && rec[4] != MethodDeflate {
			problems = append(problems, Problem{ProblemBadRecord, x, z, fmt.Sprintf("compression method %d", rec[4])})
		}
	}

	if deep {
		r, err := OpenFileReadOnly(path)
		if err != nil {
			return problems, err
		}
		defer r.Close()
		for _, c := range r.Chunks() {
			if _, _, err := r.Read(c.LocalX, c.LocalZ); err != nil {
				problems = append(problems, Problem{ProblemUnreadable, c.LocalX, c.LocalZ, err.Error()})
			}
		}
	}
	return problems, nil
}
