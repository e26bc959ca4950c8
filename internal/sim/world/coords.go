package world

const (
	// ChunkArea is the number of chunks per world edge.
	ChunkArea = 16
	// Side is the world edge length in cells.
	Side = ChunkArea * ChunkSize
)

// GetChunkArea maps a global cell to its chunk and local cell. Out-of-range
// coordinates clamp into the border chunk/cell; use IsValidTile to reject them.
func GetChunkArea(x, y int) (cx, cy, lx, ly int) {
	cx = clamp(x/ChunkSize, 0, ChunkArea-1)
	cy = clamp(y/ChunkSize, 0, ChunkArea-1)
	lx = clamp(x-ChunkSize*cx, 0, ChunkSize-1)
	ly = clamp(y-ChunkSize*cy, 0, ChunkSize-1)
	return cx, cy, lx, ly
}

func IsValidTile(x, y int) bool {
	return x >= 0 && x < Side && y >= 0 && y < Side
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
