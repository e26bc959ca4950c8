package world

type TileFlags struct {
	Rotation float32
	Flip     bool
}

// TileInfo is the value stored in every cell. Type is the 1-based catalog
// index; Type 0 is empty and has no catalog entry.
type TileInfo struct {
	Type  uint8
	Flags TileFlags
}

// Empty is the zero cell.
var Empty = TileInfo{}

// FromByte converts a raw tile type (legacy levels, physics placements) to a
// cell with default flags: Rotation 0, Flip false.
func FromByte(t uint8) TileInfo { return TileInfo{Type: t} }

// Byte drops the flags.
func (t TileInfo) Byte() uint8 { return t.Type }

func (t TileInfo) IsEmpty() bool { return t.Type == 0 }
