package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultBlocksResolve(t *testing.T) {
	r := DefaultBlocks()
	cases := []struct {
		name  string
		props map[string]string
		want  int32
		ok    bool
	}{
		{"minecraft:stone", nil, StoneID, true},
		{"stone", nil, StoneID, true},
		{"minecraft:grass_block", map[string]string{"snowy": "false"}, GrassBlockID, true},
		{"minecraft:grass_block", map[string]string{"snowy": "true"}, 8, true},
		{"minecraft:grass_block", nil, GrassBlockID, true},
		{"minecraft:redstone_ore", map[string]string{"lit": "maybe"}, RedstoneOreID, true},
		{"minecraft:unobtainium", nil, AirID, false},
	}
	for _, tc := range cases {
		got, ok := r.Resolve(tc.name, tc.props)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Resolve(%s,%v): got=%d,%v want=%d,%v", tc.name, tc.props, got, ok, tc.want, tc.ok)
		}
	}
	s, ok := r.Lookup(CopperOreID)
	if !ok || s.Name != "minecraft:copper_ore" {
		t.Fatalf("Lookup copper: got=%+v,%v", s, ok)
	}
}

func TestLoadBlocks(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "blocks.json")
	doc := `[
	  {"id": 0, "name": "minecraft:air"},
	  {"id": 1, "name": "stone"},
	  {"id": 2, "name": "minecraft:oak_log", "properties": {"axis": "y"}, "default": true},
	  {"id": 3, "name": "minecraft:oak_log", "properties": {"axis": "x"}}
	]`
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadBlocks(p)
	if err != nil {
		t.Fatalf("LoadBlocks: %v", err)
	}
	if r.Len() != 4 || r.Digest == "" {
		t.Fatalf("len=%d digest=%q", r.Len(), r.Digest)
	}
	if id, _ := r.Resolve("oak_log", map[string]string{"axis": "x"}); id != 3 {
		t.Fatalf("oak_log[axis=x]: got=%d want=3", id)
	}
	if id, _ := r.Resolve("minecraft:oak_log", nil); id != 2 {
		t.Fatalf("oak_log default: got=%d want=2", id)
	}
}

func TestLoadBlocksRejects(t *testing.T) {
	cases := map[string]string{
		"schema: bad type":  `[{"id": "zero", "name": "minecraft:air"}]`,
		"schema: extra key": `[{"id": 0, "name": "minecraft:air", "solid": true}]`,
		"no air":            `[{"id": 1, "name": "minecraft:stone"}]`,
		"duplicate id":      `[{"id": 0, "name": "minecraft:air"}, {"id": 0, "name": "minecraft:stone"}]`,
		"empty":             `[]`,
	}
	dir := t.TempDir()
	for name, doc := range cases {
		p := filepath.Join(dir, "blocks.json")
		if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadBlocks(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
