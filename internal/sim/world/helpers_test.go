package world

import (
	"io"
	"log"
	"testing"

	"buildinggame.io/internal/sim/catalogs"
)

// Types in testCatalog: stone=1 water=2 lava=3 sand=4 obsidian=5 glass=6 door=7.
const (
	tStone uint8 = iota + 1
	tWater
	tLava
	tSand
	tObsidian
	tGlass
	tDoor
)

func testCatalog(t *testing.T) *catalogs.Catalog {
	t.Helper()
	c, err := catalogs.New([]catalogs.Tile{
		{ID: "stone", DisplayName: "Stone"},
		{ID: "water", DisplayName: "Water"},
		{ID: "lava", DisplayName: "Lava"},
		{ID: "sand", DisplayName: "Sand"},
		{ID: "obsidian", DisplayName: "Obsidian"},
		{ID: "glass", DisplayName: "Glass"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(WorldConfig{EnablePhysics: true}, testCatalog(t), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func put(w *World, x, y int, t uint8) { w.PlaceTile(x, y, FromByte(t)) }

func expectType(t *testing.T, w *World, x, y int, want uint8) {
	t.Helper()
	if got := w.GetTile(x, y).Type; got != want {
		t.Fatalf("tile (%d,%d): got %d want %d", x, y, got, want)
	}
}

type recordingSink struct {
	ticks    []TickLogEntry
	persists []PersistEntry
}

func (s *recordingSink) WriteTick(e TickLogEntry) error {
	s.ticks = append(s.ticks, e)
	return nil
}

func (s *recordingSink) WritePersist(e PersistEntry) error {
	s.persists = append(s.persists, e)
	return nil
}

type drawCall struct {
	x, y  int
	id    string
	flags TileFlags
}

type recordingRenderer struct{ calls []drawCall }

func (r *recordingRenderer) DrawTile(x, y int, tile catalogs.Tile, flags TileFlags) {
	r.calls = append(r.calls, drawCall{x: x, y: y, id: tile.ID, flags: flags})
}
