package world

import "testing"

func TestChunk_DigestTracksChanges(t *testing.T) {
	var c Chunk
	d0 := c.Digest()

	c.Set(3, 4, FromByte(tSand))
	d1 := c.Digest()
	if d1 == d0 {
		t.Fatalf("digest unchanged after set")
	}

	c.Set(3, 4, TileInfo{Type: tSand, Flags: TileFlags{Flip: true}})
	if c.Digest() == d1 {
		t.Fatalf("digest ignores flags")
	}

	c.Reset()
	if c.Digest() != d0 {
		t.Fatalf("digest after reset: want empty digest")
	}
	if c.NonEmpty() != 0 {
		t.Fatalf("reset left tiles")
	}
}

func TestChunk_TypesOrder(t *testing.T) {
	var c Chunk
	c.Set(0, 1, FromByte(7))
	c.Set(1, 0, FromByte(9))
	types := c.Types()
	if types[1] != 7 || types[ChunkSize] != 9 {
		t.Fatalf("types not x-major: %v", types[:ChunkSize+1])
	}
}

func TestWorldDraw_SkipsEmptyAndUnknown(t *testing.T) {
	w := newTestWorld(t)
	w.PlaceTile(0, 0, TileInfo{Type: tStone, Flags: TileFlags{Rotation: 180}})
	w.PlaceTile(17, 33, FromByte(tDoor))
	w.PlaceTile(200, 200, FromByte(99)) // not in the catalog

	r := &recordingRenderer{}
	w.Draw(r)

	if len(r.calls) != 2 {
		t.Fatalf("draw calls: got %+v", r.calls)
	}
	if c := r.calls[0]; c.x != 0 || c.y != 0 || c.id != "stone" || c.flags.Rotation != 180 {
		t.Fatalf("first call: got %+v", c)
	}
	if c := r.calls[1]; c.x != 17 || c.y != 33 || c.id != "door" {
		t.Fatalf("second call: got %+v", c)
	}
}
