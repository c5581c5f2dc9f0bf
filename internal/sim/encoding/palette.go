package encoding

import "fmt"

// EncodePalette deduplicates a section's block state ids in first-occurrence
// order and packs the per-block palette indices. A single-entry palette
// returns nil data.
func EncodePalette(blocks []int32) (palette []int32, data []int64, err error) {
	if len(blocks) != SectionVolume {
		return nil, nil, fmt.Errorf("encoding: section has %d blocks, want %d", len(blocks), SectionVolume)
	}
	index := make(map[int32]uint32, 16)
	idx := make([]uint32, len(blocks))
	for i, b := range blocks {
		p, ok := index[b]
		if !ok {
			p = uint32(len(palette))
			index[b] = p
			palette = append(palette, b)
		}
		idx[i] = p
	}
	if len(palette) == 1 {
		return palette, nil, nil
	}
	return palette, PackBits(idx, BitsForPalette(len(palette))), nil
}

// DecodePalette expands a palette and packed indices into SectionVolume
// block state ids. The width is normally derived from the palette size; when
// the array length disagrees (a writer that used a wider width) it is
// inferred from the array length instead. Indices past the end of the
// palette decode as fallback.
func DecodePalette(palette []int32, data []int64, fallback int32) ([]int32, error) {
	out := make([]int32, SectionVolume)
	switch {
	case len(palette) == 0:
		for i := range out {
			out[i] = fallback
		}
		return out, nil
	case len(palette) == 1 && len(data) == 0:
		for i := range out {
			out[i] = palette[0]
		}
		return out, nil
	}

	width := BitsForPalette(len(palette))
	if len(data) != WordsFor(SectionVolume, width) {
		var err error
		if width, err = widthFromLength(len(data)); err != nil {
			return nil, err
		}
	}
	idx, err := UnpackBits(data, width, SectionVolume)
	if err != nil {
		return nil, err
	}
	for i, p := range idx {
		if int(p) < len(palette) {
			out[i] = palette[p]
		} else {
			out[i] = fallback
		}
	}
	return out, nil
}

// widthFromLength recovers the index width from a packed array length:
// epw = ceil(4096/len), width = 64/epw.
func widthFromLength(words int) (int, error) {
	if words == 0 {
		return 0, ErrZeroWidth
	}
	per := (SectionVolume + words - 1) / words
	width := 64 / per
	if width == 0 || width > 32 || WordsFor(SectionVolume, width) != words {
		return 0, fmt.Errorf("%w: %d words", ErrBadLength, words)
	}
	return width, nil
}
