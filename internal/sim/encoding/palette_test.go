package encoding

import (
	"errors"
	"testing"
)

func sectionWithDistinct(n int) []int32 {
	blocks := make([]int32, SectionVolume)
	for i := range blocks {
		blocks[i] = int32(100 + (i*7)%n)
	}
	return blocks
}

func TestBitsForPalette(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 4}, {2, 4}, {15, 4}, {16, 4}, {17, 5}, {32, 5}, {33, 6}, {256, 8}, {257, 9}, {4096, 12},
	}
	for _, tc := range cases {
		if got := BitsForPalette(tc.n); got != tc.want {
			t.Fatalf("BitsForPalette(%d): got=%d want=%d", tc.n, got, tc.want)
		}
	}
}

func TestPaletteWidthBoundaries(t *testing.T) {
	cases := []struct {
		distinct  int
		width     int
		wantWords int
	}{
		{1, 0, 0},
		{15, 4, 256},
		{16, 4, 256},
		{17, 5, 342},
		{300, 9, 586},
	}
	for _, tc := range cases {
		blocks := sectionWithDistinct(tc.distinct)
		palette, data, err := EncodePalette(blocks)
		if err != nil {
			t.Fatalf("EncodePalette(%d): %v", tc.distinct, err)
		}
		if len(palette) != tc.distinct {
			t.Fatalf("palette size: got=%d want=%d", len(palette), tc.distinct)
		}
		if len(data) != tc.wantWords {
			t.Fatalf("distinct=%d words: got=%d want=%d", tc.distinct, len(data), tc.wantWords)
		}
		if tc.width > 0 && BitsForPalette(len(palette)) != tc.width {
			t.Fatalf("distinct=%d width: got=%d want=%d", tc.distinct, BitsForPalette(len(palette)), tc.width)
		}
		out, err := DecodePalette(palette, data, 0)
		if err != nil {
			t.Fatalf("DecodePalette(%d): %v", tc.distinct, err)
		}
		for i := range blocks {
			if out[i] != blocks[i] {
				t.Fatalf("distinct=%d mismatch at %d: got=%d want=%d", tc.distinct, i, out[i], blocks[i])
			}
		}
	}
}

func TestPaletteFirstOccurrenceOrder(t *testing.T) {
	blocks := make([]int32, SectionVolume)
	blocks[0] = 9
	blocks[1] = 1
	blocks[2] = 9
	palette, _, err := EncodePalette(blocks)
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{9, 1, 0}
	if len(palette) != len(want) {
		t.Fatalf("palette: got=%v want=%v", palette, want)
	}
	for i := range want {
		if palette[i] != want[i] {
			t.Fatalf("palette: got=%v want=%v", palette, want)
		}
	}
}

func TestPackLayout(t *testing.T) {
	vals := make([]uint32, 17)
	for i := range vals {
		vals[i] = uint32(i % 16)
	}
	data := PackBits(vals, 4)
	if len(data) != 2 {
		t.Fatalf("words: got=%d want=2", len(data))
	}
	if uint64(data[0]) != 0xFEDCBA9876543210 {
		t.Fatalf("word 0: got=%#x", uint64(data[0]))
	}
	if data[1] != 0 {
		t.Fatalf("word 1 high bits must be zero: got=%#x", data[1])
	}

	// 5-bit entries: 12 per word, top 4 bits unused.
	five := []uint32{31, 31, 31, 31, 31, 31, 31, 31, 31, 31, 31, 31, 1}
	data = PackBits(five, 5)
	if uint64(data[0]) != 1<<60-1 {
		t.Fatalf("5-bit word 0: got=%#x", uint64(data[0]))
	}
	if data[1] != 1 {
		t.Fatalf("5-bit word 1: got=%#x", data[1])
	}
}

func TestDecodeLenient(t *testing.T) {
	idx := make([]uint32, SectionVolume)
	idx[10] = 7
	data := PackBits(idx, 4)
	out, err := DecodePalette([]int32{5, 6}, data, -1)
	if err != nil {
		t.Fatalf("DecodePalette: %v", err)
	}
	if out[0] != 5 || out[10] != -1 {
		t.Fatalf("got out[0]=%d out[10]=%d want 5,-1", out[0], out[10])
	}
}

func TestDecodeInfersWiderWidth(t *testing.T) {
	idx := make([]uint32, SectionVolume)
	for i := range idx {
		idx[i] = uint32(i % 3)
	}
	data := PackBits(idx, 6)
	out, err := DecodePalette([]int32{1, 2, 3}, data, 0)
	if err != nil {
		t.Fatalf("DecodePalette: %v", err)
	}
	for i := range out {
		if out[i] != int32(i%3)+1 {
			t.Fatalf("mismatch at %d: got=%d", i, out[i])
		}
	}
}

func TestDecodeRejectsZeroWidth(t *testing.T) {
	if _, err := DecodePalette([]int32{1, 2}, nil, 0); !errors.Is(err, ErrZeroWidth) {
		t.Fatalf("empty data: got=%v want=%v", err, ErrZeroWidth)
	}
	if _, err := UnpackBits(make([]int64, 10), 0, 10); !errors.Is(err, ErrZeroWidth) {
		t.Fatalf("width 0: got=%v want=%v", err, ErrZeroWidth)
	}
	if _, err := DecodePalette([]int32{1, 2}, make([]int64, 3), 0); !errors.Is(err, ErrBadLength) {
		t.Fatalf("bad length: got=%v want=%v", err, ErrBadLength)
	}
}

func TestSingleEntryNoData(t *testing.T) {
	out, err := DecodePalette([]int32{42}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != 42 {
			t.Fatalf("at %d: got=%d want=42", i, v)
		}
	}
}
