package world

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"buildinggame.io/internal/sim/catalogs"
)

const DefaultWorldFile = "level.dat"

type Vec2f struct {
	X, Y float32
}

// Renderer draws one catalog tile at a global cell position. Empty cells are
// never passed to it.
type Renderer interface {
	DrawTile(x, y int, tile catalogs.Tile, flags TileFlags)
}

type WorldConfig struct {
	WorldFile     string
	EnablePhysics bool
}

// World owns the chunk grid. It is not safe for concurrent use: Update, Draw,
// Save and Load are called from the host loop goroutine.
type World struct {
	WorldFile string
	SpawnPos  Vec2f

	cats   *catalogs.Catalog
	logger *log.Logger
	sink   EventSink

	chunks [ChunkArea][ChunkArea]Chunk // [cx][cy]

	tick    int
	physics bool
	mat     materials
	scanBuf []cell
}

func New(cfg WorldConfig, cats *catalogs.Catalog, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalog")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.WorldFile == "" {
		cfg.WorldFile = DefaultWorldFile
	}
	w := &World{
		WorldFile: cfg.WorldFile,
		cats:      cats,
		logger:    logger,
		physics:   cfg.EnablePhysics,
		mat:       resolveMaterials(cats),
	}
	for _, k := range []PassKind{PassObsidian, PassWater, PassSand, PassLava} {
		if !w.mat.ready(k) {
			logger.Printf("world: %s pass disabled, catalog lacks its tiles", k)
		}
	}
	return w, nil
}

func (w *World) Catalog() *catalogs.Catalog { return w.cats }

// SetEventSink installs a sink for pass and persistence records; nil disables.
func (w *World) SetEventSink(s EventSink) { w.sink = s }

func (w *World) Chunk(cx, cy int) *Chunk {
	return &w.chunks[cx][cy]
}

func (w *World) GetTile(x, y int) TileInfo {
	cx, cy, lx, ly := GetChunkArea(x, y)
	return w.chunks[cx][cy].Get(lx, ly)
}

func (w *World) PlaceTile(x, y int, t TileInfo) {
	cx, cy, lx, ly := GetChunkArea(x, y)
	w.chunks[cx][cy].Set(lx, ly, t)
}

// GetChunkTile reads a cell by chunk and local coordinates, unclamped.
func (w *World) GetChunkTile(cx, cy, lx, ly int) TileInfo {
	return w.chunks[cx][cy].Get(lx, ly)
}

func (w *World) PlaceChunkTile(cx, cy, lx, ly int, t TileInfo) {
	w.chunks[cx][cy].Set(lx, ly, t)
}

// IsTileType reports whether (x, y) is inside the world and holds type t.
func (w *World) IsTileType(x, y int, t uint8) bool {
	return IsValidTile(x, y) && w.GetTile(x, y).Type == t
}

// IsTileA is IsTileType with a catalog id. Unknown ids never match.
func (w *World) IsTileA(x, y int, id string) bool {
	t, err := w.cats.IDToIndex(id)
	if err != nil {
		return false
	}
	return w.IsTileType(x, y, t)
}

func (w *World) IsValidTile(x, y int) bool { return IsValidTile(x, y) }

func (w *World) Draw(r Renderer) {
	for cx := range ChunkArea {
		for cy := range ChunkArea {
			w.chunks[cx][cy].Draw(r, w.cats, cx*ChunkSize, cy*ChunkSize)
		}
	}
}

// Flush empties every chunk.
func (w *World) Flush() {
	for cx := range ChunkArea {
		for cy := range ChunkArea {
			w.chunks[cx][cy].Reset()
		}
	}
}

// NonEmpty counts occupied cells across the world.
func (w *World) NonEmpty() int {
	n := 0
	for cx := range ChunkArea {
		for cy := range ChunkArea {
			n += w.chunks[cx][cy].NonEmpty()
		}
	}
	return n
}

// Digest hashes the chunk digests in chunk order plus the spawn position.
func (w *World) Digest() string {
	h := sha256.New()
	for cx := range ChunkArea {
		for cy := range ChunkArea {
			d := w.chunks[cx][cy].Digest()
			h.Write(d[:])
		}
	}
	fmt.Fprintf(h, "spawn:%v,%v", w.SpawnPos.X, w.SpawnPos.Y)
	return hex.EncodeToString(h.Sum(nil))
}
