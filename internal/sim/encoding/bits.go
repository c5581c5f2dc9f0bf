package encoding

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// SectionVolume is the number of blocks in a 16x16x16 section.
	SectionVolume = 16 * 16 * 16
	// MinBits is the smallest index width used for block palettes.
	MinBits = 4
)

var (
	ErrZeroWidth = errors.New("encoding: zero bit width")
	ErrBadLength = errors.New("encoding: packed array length does not match width")
)

// BitsForPalette returns max(4, ceil(log2(n))).
func BitsForPalette(n int) int {
	if n <= 1 {
		return MinBits
	}
	w := bits.Len(uint(n - 1))
	if w < MinBits {
		return MinBits
	}
	return w
}

// WordsFor returns how many 64-bit words hold n entries of the given width.
// Entries never straddle a word boundary.
func WordsFor(n, width int) int {
	if width <= 0 || width > 64 {
		return 0
	}
	per := 64 / width
	return (n + per - 1) / per
}

// PackBits stores values[i] in word i/epw at bit (i%epw)*width, epw = 64/width.
// Unused high bits stay zero. Values wider than width are truncated.
func PackBits(values []uint32, width int) []int64 {
	if width <= 0 || width > 32 {
		return nil
	}
	per := 64 / width
	mask := uint64(1)<<uint(width) - 1
	out := make([]int64, WordsFor(len(values), width))
	for i, v := range values {
		shift := uint((i % per) * width)
		out[i/per] |= int64((uint64(v) & mask) << shift)
	}
	return out
}

// UnpackBits is the inverse of PackBits for n entries.
func UnpackBits(data []int64, width, n int) ([]uint32, error) {
	if width == 0 {
		return nil, ErrZeroWidth
	}
	if width < 0 || width > 32 {
		return nil, fmt.Errorf("encoding: unsupported bit width %d", width)
	}
	if need := WordsFor(n, width); len(data) < need {
		return nil, fmt.Errorf("%w: have %d words, need %d for %d entries at %d bits", ErrBadLength, len(data), need, n, width)
	}
	per := 64 / width
	mask := uint64(1)<<uint(width) - 1
	out := make([]uint32, n)
	for i := range out {
		shift := uint((i % per) * width)
		out[i] = uint32((uint64(data[i/per]) >> shift) & mask)
	}
	return out, nil
}
