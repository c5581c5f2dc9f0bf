package gen

import (
	"testing"

	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

func TestFlatLayers(t *testing.T) {
	ch := Flat{}.Generate(0, 0)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			if got := ch.Get(x, chunk.MinY, z); got != catalogs.BedrockID {
				t.Fatalf("(%d,%d) bedrock: got=%d", x, z, got)
			}
			if got := ch.Get(x, SurfaceY, z); got != catalogs.GrassBlockID {
				t.Fatalf("(%d,%d) grass: got=%d", x, z, got)
			}
			if got := ch.Get(x, SurfaceY-1, z); got != catalogs.DirtID {
				t.Fatalf("(%d,%d) dirt: got=%d", x, z, got)
			}
			if got := ch.Get(x, SurfaceY+1, z); got != chunk.Air {
				t.Fatalf("(%d,%d) above surface: got=%d", x, z, got)
			}
		}
	}
	if h, _ := chunk.HeightAt(ch.MotionBlocking(), 0, 0); h != 14 {
		t.Fatalf("heightmap: got=%d want=14", h)
	}
}

func TestOresOnlyInStoneBand(t *testing.T) {
	ores := 0
	ch := Flat{}.Generate(3, -5)
	for y := chunk.MinY + 1; y <= chunk.MinY+10; y++ {
		for z := 0; z < 16; z++ {
			for x := 0; x < 16; x++ {
				if b := ch.Get(x, y, z); b != catalogs.StoneID {
					if b == chunk.Air {
						t.Fatalf("air in stone band at (%d,%d,%d)", x, y, z)
					}
					ores++
				}
			}
		}
	}
	if ores == 0 {
		t.Fatalf("expected ore veins in the stone band")
	}
}

func TestDeterministic(t *testing.T) {
	a := Flat{}.Generate(7, 9)
	b := Flat{}.Generate(7, 9)
	if a.Digest() != b.Digest() {
		t.Fatalf("same coordinate produced different chunks")
	}
	c := Flat{}.Generate(8, 9)
	if a.Digest() == c.Digest() {
		t.Fatalf("neighbouring chunks should differ in ore layout")
	}
	d := Flat{Seed: 42}.Generate(7, 9)
	if a.Digest() == d.Digest() {
		t.Fatalf("seed should change the ore layout")
	}
}

func TestHashWraps(t *testing.T) {
	if Hash(0, 0, 0, 0) != 0 {
		t.Fatalf("zero input should hash to zero")
	}
	if Hash(-1, 5, 9, 0xDEADBEEF) == Hash(1, 5, 9, 0xDEADBEEF) {
		t.Fatalf("sign of x should matter")
	}
}
