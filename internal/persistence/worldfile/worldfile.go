// Package worldfile encodes and decodes level files.
//
// A level file is a single gzip stream. It starts with a length-prefixed
// header string (unsigned LEB128 length, then UTF-8 bytes):
//
//	"BGWORLD2"  spawn x f32, spawn y f32, then Side*Side records of
//	            {type u8, rotation f32, flip u8}
//	"LVL"       Side*Side raw type bytes, no spawn, no flags
//
// Multi-byte values are little endian. Cells are stored x-major: for each x,
// every y from 0 to Side-1.
package worldfile

import (
	"errors"
)

const (
	HeaderCurrent = "BGWORLD2"
	HeaderLegacy  = "LVL"

	// Side is the level edge length in cells.
	Side = 256

	// maxHeaderLen bounds the header allocation when reading garbage.
	maxHeaderLen = 64

	recordSize = 6
)

var (
	ErrIO            = errors.New("world file io")
	ErrDecompression = errors.New("world file decompression")
	ErrInvalidHeader = errors.New("world header is invalid")
)

type Format int

const (
	FormatCurrent Format = iota + 1
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatCurrent:
		return HeaderCurrent
	case FormatLegacy:
		return HeaderLegacy
	default:
		return "unknown"
	}
}

type Record struct {
	Type     uint8
	Rotation float32
	Flip     bool
}

type Level struct {
	Format Format
	SpawnX float32
	SpawnY float32
	Tiles  []Record // len Side*Side, index Index(x, y)
}

func NewLevel() Level {
	return Level{Format: FormatCurrent, Tiles: make([]Record, Side*Side)}
}

func Index(x, y int) int { return x*Side + y }

// BackupPath is where a legacy level is copied before it is migrated.
func BackupPath(path string) string { return path + ".old" }
