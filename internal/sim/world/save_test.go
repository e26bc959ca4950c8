package world

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"buildinggame.io/internal/persistence/worldfile"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.dat")

	w1 := newTestWorld(t)
	w1.SpawnPos = Vec2f{X: 17.25, Y: 3.5}
	w1.PlaceTile(0, 0, TileInfo{Type: tStone, Flags: TileFlags{Rotation: 90, Flip: true}})
	w1.PlaceTile(Side-1, Side-1, TileInfo{Type: tDoor, Flags: TileFlags{Rotation: 270}})
	w1.PlaceTile(100, 37, FromByte(tWater))
	w1.PlaceTile(37, 100, TileInfo{Type: 250, Flags: TileFlags{Rotation: -45.5}})
	if err := w1.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	w2 := newTestWorld(t)
	if err := w2.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if w2.WorldFile != path {
		t.Fatalf("world file: got %s want %s", w2.WorldFile, path)
	}
	if w2.SpawnPos != w1.SpawnPos {
		t.Fatalf("spawn: got %+v want %+v", w2.SpawnPos, w1.SpawnPos)
	}
	for x := 0; x < Side; x++ {
		for y := 0; y < Side; y++ {
			if a, b := w1.GetTile(x, y), w2.GetTile(x, y); a != b {
				t.Fatalf("tile (%d,%d): got %+v want %+v", x, y, b, a)
			}
		}
	}
	if w1.Digest() != w2.Digest() {
		t.Fatalf("digest mismatch after load")
	}
}

func TestSave_UsesWorldFile(t *testing.T) {
	w := newTestWorld(t)
	w.WorldFile = filepath.Join(t.TempDir(), "nested", "world.dat")
	put(w, 1, 1, tSand)
	if err := w.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	lvl, err := worldfile.ReadFile(w.WorldFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lvl.Tiles[worldfile.Index(1, 1)].Type != tSand {
		t.Fatalf("saved tile missing")
	}
}

func TestLoad_LegacyMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "level.dat")

	types := make([]uint8, worldfile.Side*worldfile.Side)
	for i := range types {
		types[i] = uint8(i % 5)
	}
	var buf bytes.Buffer
	if err := worldfile.WriteLegacy(&buf, types); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := newTestWorld(t)
	w.SpawnPos = Vec2f{X: 9, Y: 9}
	sink := &recordingSink{}
	w.SetEventSink(sink)
	if err := w.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	for x := 0; x < Side; x++ {
		for y := 0; y < Side; y++ {
			want := FromByte(types[worldfile.Index(x, y)])
			if got := w.GetTile(x, y); got != want {
				t.Fatalf("tile (%d,%d): got %+v want %+v", x, y, got, want)
			}
		}
	}
	if w.SpawnPos != (Vec2f{}) {
		t.Fatalf("spawn: got %+v want zero", w.SpawnPos)
	}

	backup, err := os.ReadFile(path + ".old")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !bytes.Equal(backup, buf.Bytes()) {
		t.Fatalf("backup is not byte-identical to the legacy file")
	}

	var ops []PersistOp
	for _, e := range sink.persists {
		ops = append(ops, e.Op)
	}
	if len(ops) != 2 || ops[0] != OpMigrate || ops[1] != OpLoad {
		t.Fatalf("persist ops: got %v", ops)
	}
	if sink.persists[1].Format != worldfile.HeaderLegacy {
		t.Fatalf("load format: got %q", sink.persists[1].Format)
	}
}

func TestLoad_InvalidHeaderLeavesEmptyWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.dat")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte{3, 'X', 'Y', 'Z', 1, 2, 3, 4})
	_ = zw.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := newTestWorld(t)
	w.SpawnPos = Vec2f{X: 4, Y: 4}
	put(w, 10, 10, tStone)

	err := w.Load(path)
	if !errors.Is(err, worldfile.ErrInvalidHeader) {
		t.Fatalf("load: got %v want ErrInvalidHeader", err)
	}
	if n := w.NonEmpty(); n != 0 {
		t.Fatalf("non-empty after failed load: %d", n)
	}
	if w.SpawnPos != (Vec2f{}) {
		t.Fatalf("spawn after failed load: %+v", w.SpawnPos)
	}
	if _, err := os.Stat(path + ".old"); !os.IsNotExist(err) {
		t.Fatalf("unexpected backup: %v", err)
	}
}

func TestLoad_TruncatedLeavesEmptyWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.dat")
	src := newTestWorld(t)
	for x := 0; x < Side; x++ {
		put(src, x, 0, tStone)
	}
	if err := src.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if err := os.WriteFile(path, raw[:len(raw)/2], 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	w := newTestWorld(t)
	put(w, 5, 5, tSand)
	err := w.Load(path)
	if !errors.Is(err, worldfile.ErrDecompression) {
		t.Fatalf("load: got %v want ErrDecompression", err)
	}
	if n := w.NonEmpty(); n != 0 {
		t.Fatalf("non-empty after failed load: %d", n)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	w := newTestWorld(t)
	put(w, 5, 5, tSand)
	err := w.Load(filepath.Join(t.TempDir(), "nope.dat"))
	if !errors.Is(err, fs.ErrNotExist) || !errors.Is(err, worldfile.ErrIO) {
		t.Fatalf("load: got %v", err)
	}
	if n := w.NonEmpty(); n != 0 {
		t.Fatalf("non-empty after failed load: %d", n)
	}
}

func TestSave_FailureKeepsWorldAndFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := newTestWorld(t)
	sink := &recordingSink{}
	w.SetEventSink(sink)
	put(w, 2, 2, tLava)
	before := w.Digest()

	err := w.SaveTo(filepath.Join(blocker, "level.dat"))
	if !errors.Is(err, worldfile.ErrIO) {
		t.Fatalf("save: got %v want ErrIO", err)
	}
	if w.Digest() != before {
		t.Fatalf("failed save changed the world")
	}
	if len(sink.persists) != 1 || sink.persists[0].Err == "" {
		t.Fatalf("persist entry: got %+v", sink.persists)
	}
	if b, _ := os.ReadFile(blocker); string(b) != "x" {
		t.Fatalf("blocker modified")
	}
}
