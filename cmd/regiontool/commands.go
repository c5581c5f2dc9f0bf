package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"voxelsave.ai/internal/persistence/indexdb"
	"voxelsave.ai/internal/persistence/nbt"
	"voxelsave.ai/internal/persistence/region"
	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/encoding"
	"voxelsave.ai/internal/sim/world/io/chunkcodec"
	"voxelsave.ai/internal/sim/world/terrain/chunk"
)

var errProblems = errors.New("region problems found")

func validateCmd(args []string) error {
	fs := newFlags("validate")
	deep := fs.Bool("deep", false, "also decompress and parse every record")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("missing region file or directory")
	}
	n, err := runValidate(os.Stdout, fs.Args(), *deep)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d", errProblems, n)
	}
	return nil
}

// runValidate expands directories to their region files and reports every
// problem found. It returns the number of problems.
func runValidate(w io.Writer, paths []string, deep bool) (int, error) {
	var files []string
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		if !st.IsDir() {
			files = append(files, p)
			continue
		}
		coords, err := region.Regions(p)
		if err != nil {
			return 0, err
		}
		for _, c := range coords {
			files = append(files, filepath.Join(p, region.FileName(c.X, c.Z)))
		}
	}
	total := 0
	for _, f := range files {
		probs, err := region.Validate(f, deep)
		if err != nil {
			return total, fmt.Errorf("%s: %w", f, err)
		}
		for _, pr := range probs {
			fmt.Fprintf(w, "%s: %s\n", f, pr)
		}
		if len(probs) == 0 {
			fmt.Fprintf(w, "%s: ok\n", f)
		}
		total += len(probs)
	}
	return total, nil
}

func listCmd(args []string) error {
	fs := newFlags("list")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: list <file.mca>")
	}
	return runList(os.Stdout, fs.Arg(0))
}

func runList(w io.Writer, path string) error {
	f, err := region.OpenFileReadOnly(path)
	if err != nil {
		return err
	}
	defer f.Close()
	base, ok := region.ParseFileName(filepath.Base(path))
	for _, s := range f.Chunks() {
		ts := time.Unix(int64(s.Timestamp), 0).UTC().Format(time.RFC3339)
		if ok {
			fmt.Fprintf(w, "chunk=(%d,%d) ", base.X*32+int32(s.LocalX), base.Z*32+int32(s.LocalZ))
		}
		fmt.Fprintf(w, "local=(%d,%d) offset=%d sectors=%d saved=%s\n", s.LocalX, s.LocalZ, s.Offset, s.Sectors, ts)
	}
	fmt.Fprintf(w, "chunks=%d sectors_in_use=%d\n", len(f.Chunks()), f.SectorsInUse())
	return nil
}

func dumpCmd(args []string) error {
	fs := newFlags("dump")
	worldDir := fs.String("world", "", "world directory (contains region/)")
	cx := fs.Int("x", 0, "chunk x")
	cz := fs.Int("z", 0, "chunk z")
	raw := fs.Bool("raw", false, "print the NBT tree")
	blocksPath := fs.String("blocks", "", "blocks.json (default: built-in registry)")
	_ = fs.Parse(args)
	if *worldDir == "" {
		return fmt.Errorf("missing -world")
	}
	reg := catalogs.DefaultBlocks()
	if *blocksPath != "" {
		var err error
		if reg, err = catalogs.LoadBlocks(*blocksPath); err != nil {
			return err
		}
	}
	return runDump(os.Stdout, filepath.Join(*worldDir, saver.RegionDir), int32(*cx), int32(*cz), reg, *raw)
}

func runDump(w io.Writer, regionDir string, cx, cz int32, reg *catalogs.BlockRegistry, raw bool) error {
	st := region.OpenReadOnly(regionDir)
	defer st.Close()
	data, ok, err := st.ReadChunk(cx, cz)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("chunk (%d,%d) not present", cx, cz)
	}
	name, root, err := nbt.Unmarshal(data)
	if err != nil {
		return err
	}
	if raw {
		fmt.Fprint(w, nbt.Format(name, root))
	}
	ch, err := chunkcodec.FromRecord(root, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "chunk=(%d,%d) status=%s data_version=%d last_update=%d bytes=%d block_entities=%d\n",
		ch.CX, ch.CZ, ch.Status, ch.DataVersion, ch.LastUpdate, len(data), len(ch.BlockEntities))
	for i := range ch.Sections {
		sec := &ch.Sections[i]
		if sec.IsEmpty() {
			continue
		}
		palette, packed, err := encoding.EncodePalette(sec.Blocks)
		if err != nil {
			return err
		}
		names := make([]string, len(palette))
		for j, id := range palette {
			s, _ := reg.Lookup(id)
			names[j] = strings.TrimPrefix(s.Name, catalogs.Namespace)
		}
		fmt.Fprintf(w, "  section y=%d palette=%d bits=%d words=%d [%s]\n",
			i+chunk.MinSectionY, len(palette), encoding.BitsForPalette(len(palette)), len(packed), strings.Join(names, ","))
		fmt.Fprintf(w, "    rle=%s\n", encoding.EncodeRLE(sec.Blocks))
	}
	return nil
}

func nbtCmd(args []string) error {
	fs := newFlags("nbt")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: nbt <file>")
	}
	return runNBT(os.Stdout, fs.Arg(0))
}

// runNBT prints a named NBT file, gunzipping it first when it carries the
// gzip magic.
func runNBT(w io.Writer, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return err
		}
		defer zr.Close()
		if b, err = io.ReadAll(zr); err != nil {
			return err
		}
	}
	name, root, err := nbt.Unmarshal(b)
	if err != nil {
		return err
	}
	fmt.Fprint(w, nbt.Format(name, root))
	return nil
}

func indexCmd(args []string) error {
	fs := newFlags("index")
	worldDir := fs.String("world", "", "world directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <world>/index/saves.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if *worldDir == "" {
			return fmt.Errorf("missing -world or -db")
		}
		path = filepath.Join(*worldDir, "index", "saves.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	q := "chunks"
	if fs.NArg() > 0 {
		q = fs.Arg(0)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer idx.Close()
	return runIndex(context.Background(), os.Stdout, idx, q, *limit)
}

func runIndex(ctx context.Context, w io.Writer, idx *indexdb.SQLiteIndex, q string, limit int) error {
	switch q {
	case "chunks":
		rows, err := idx.ChunkSaves(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].SavedAt.After(rows[j].SavedAt) })
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		for _, r := range rows {
			fmt.Fprintf(w, "chunk=(%d,%d) path=%s bytes=%d saves=%d saved_at=%s\n",
				r.CX, r.CZ, r.Path, r.Bytes, r.Saves, r.SavedAt.Format(time.RFC3339))
		}
	case "failures":
		rows, err := idx.Failures(ctx, limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%s kind=%s chunk=(%d,%d) path=%s err=%s\n",
				r.At.Format(time.RFC3339), r.Kind, r.CX, r.CZ, r.Path, r.Error)
		}
	default:
		return fmt.Errorf("unknown index query %q (chunks|failures)", q)
	}
	return nil
}
