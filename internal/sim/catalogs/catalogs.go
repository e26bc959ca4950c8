package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrNotFound        = errors.New("tile not found")
	ErrIndexOutOfRange = errors.New("tile index out of range")
)

// MaxTiles is the number of catalog entries a one-byte tile type can address
// (type 0 is reserved for empty cells).
const MaxTiles = 255

type Vec2i struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Tile is an immutable catalog entry. Cells store Type = index+1.
type Tile struct {
	AtlasOffset Vec2i  `json:"atlas_offset"`
	Size        Vec2i  `json:"size"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Door is always appended after the configured entries.
var Door = Tile{
	AtlasOffset: Vec2i{X: 9, Y: 0},
	Size:        Vec2i{X: 1, Y: 2},
	ID:          "door",
	DisplayName: "Door",
}

type Catalog struct {
	tiles  []Tile
	index  map[string]int
	digest string
}

// New builds a catalog from tiles in order and appends Door.
func New(tiles []Tile) (*Catalog, error) {
	all := make([]Tile, 0, len(tiles)+1)
	all = append(all, tiles...)
	all = append(all, Door)
	if len(all) > MaxTiles {
		return nil, fmt.Errorf("catalog: %d tiles exceeds max %d", len(all), MaxTiles)
	}

	c := &Catalog{
		tiles: all,
		index: make(map[string]int, len(all)),
	}
	ids := make([]string, 0, len(all))
	for i := range c.tiles {
		t := &c.tiles[i]
		t.ID = strings.ToLower(strings.TrimSpace(t.ID))
		if t.ID == "" {
			return nil, fmt.Errorf("catalog: entry %d: empty id", i)
		}
		if t.Size == (Vec2i{}) {
			t.Size = Vec2i{X: 1, Y: 1}
		}
		if _, dup := c.index[t.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", t.ID)
		}
		c.index[t.ID] = i
		ids = append(ids, t.ID)
	}
	idsJSON, _ := json.Marshal(ids)
	c.digest = sha256Hex(idsJSON)
	return c, nil
}

// Load reads an ordered atlas config (see atlas.go) and builds the catalog.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tiles, err := parseAtlas(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(tiles)
}

func (c *Catalog) Len() int { return len(c.tiles) }

// Tiles returns a copy of the entries in type order (entry i has type i+1).
func (c *Catalog) Tiles() []Tile {
	out := make([]Tile, len(c.tiles))
	copy(out, c.tiles)
	return out
}

// Palette returns tile ids in type order.
func (c *Catalog) Palette() []string {
	out := make([]string, len(c.tiles))
	for i, t := range c.tiles {
		out[i] = t.ID
	}
	return out
}

func (c *Catalog) Digest() string { return c.digest }

// ByIndex resolves a cell type. Type 0 is empty and has no entry.
func (c *Catalog) ByIndex(t uint8) (Tile, error) {
	if t == 0 || int(t) > len(c.tiles) {
		return Tile{}, fmt.Errorf("%w: %d (catalog has %d)", ErrIndexOutOfRange, t, len(c.tiles))
	}
	return c.tiles[t-1], nil
}

func (c *Catalog) ByID(id string) (Tile, error) {
	i, ok := c.index[strings.ToLower(id)]
	if !ok {
		return Tile{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.tiles[i], nil
}

func (c *Catalog) IDToIndex(id string) (uint8, error) {
	i, ok := c.index[strings.ToLower(id)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return uint8(i + 1), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
