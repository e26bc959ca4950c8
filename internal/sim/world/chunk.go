package world

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"buildinggame.io/internal/sim/catalogs"
)

// ChunkSize is the chunk edge length in cells.
const ChunkSize = 16

type Chunk struct {
	tiles [ChunkSize][ChunkSize]TileInfo // [lx][ly]

	dirty bool
	hash  [32]byte
}

// Get and Set expect lx, ly in [0, ChunkSize); World clamps before calling.
func (c *Chunk) Get(lx, ly int) TileInfo {
	return c.tiles[lx][ly]
}

func (c *Chunk) Set(lx, ly int, t TileInfo) {
	if c.tiles[lx][ly] == t {
		return
	}
	c.tiles[lx][ly] = t
	c.dirty = true
}

func (c *Chunk) Reset() {
	c.tiles = [ChunkSize][ChunkSize]TileInfo{}
	c.dirty = true
}

// NonEmpty counts occupied cells.
func (c *Chunk) NonEmpty() int {
	n := 0
	for lx := range ChunkSize {
		for ly := range ChunkSize {
			if c.tiles[lx][ly].Type != 0 {
				n++
			}
		}
	}
	return n
}

// Types returns the cell types x-major, the same order the level file uses.
func (c *Chunk) Types() []uint8 {
	out := make([]uint8, 0, ChunkSize*ChunkSize)
	for lx := range ChunkSize {
		for ly := range ChunkSize {
			out = append(out, c.tiles[lx][ly].Type)
		}
	}
	return out
}

// Digest hashes every cell including flags; cached until the next change.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [6]byte
		for lx := range ChunkSize {
			for ly := range ChunkSize {
				t := c.tiles[lx][ly]
				tmp[0] = t.Type
				binary.LittleEndian.PutUint32(tmp[1:5], math.Float32bits(t.Flags.Rotation))
				tmp[5] = 0
				if t.Flags.Flip {
					tmp[5] = 1
				}
				h.Write(tmp[:])
			}
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Draw hands every non-empty cell to r at originX+lx, originY+ly. Cells
// whose type is not in the catalog are skipped.
func (c *Chunk) Draw(r Renderer, cats *catalogs.Catalog, originX, originY int) {
	for lx := range ChunkSize {
		for ly := range ChunkSize {
			t := c.tiles[lx][ly]
			if t.Type == 0 {
				continue
			}
			tile, err := cats.ByIndex(t.Type)
			if err != nil {
				continue
			}
			r.DrawTile(originX+lx, originY+ly, tile, t.Flags)
		}
	}
}
