package worldfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
)

// Write encodes lvl in the current format.
func Write(w io.Writer, lvl Level) error {
	if len(lvl.Tiles) != Side*Side {
		return fmt.Errorf("world file: level has %d tiles, want %d", len(lvl.Tiles), Side*Side)
	}
	zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(zw, 256*1024)

	if err := writeString(bw, HeaderCurrent); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	var spawn [8]byte
	binary.LittleEndian.PutUint32(spawn[0:4], math.Float32bits(lvl.SpawnX))
	binary.LittleEndian.PutUint32(spawn[4:8], math.Float32bits(lvl.SpawnY))
	if _, err := bw.Write(spawn[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	var buf [recordSize]byte
	for _, r := range lvl.Tiles {
		buf[0] = r.Type
		binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(r.Rotation))
		buf[5] = 0
		if r.Flip {
			buf[5] = 1
		}
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// WriteLegacy encodes raw cell types in the old "LVL" format.
func WriteLegacy(w io.Writer, types []uint8) error {
	if len(types) != Side*Side {
		return fmt.Errorf("world file: legacy level has %d tiles, want %d", len(types), Side*Side)
	}
	zw := gzip.NewWriter(w)
	if err := writeString(zw, HeaderLegacy); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if _, err := zw.Write(types); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// Decoder reads the header eagerly so callers can act on the format (e.g.
// back up a legacy file) before the body is decoded.
type Decoder struct {
	zr     *gzip.Reader
	br     *bufio.Reader
	format Format
}

func NewDecoder(r io.Reader) (*Decoder, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompression, err)
	}
	d := &Decoder{zr: zr, br: bufio.NewReaderSize(zr, 256*1024)}

	header, err := readString(d.br)
	if err != nil {
		_ = zr.Close()
		return nil, err
	}
	switch header {
	case HeaderCurrent:
		d.format = FormatCurrent
	case HeaderLegacy:
		d.format = FormatLegacy
	default:
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
	}
	return d, nil
}

func (d *Decoder) Format() Format { return d.format }

// Decode reads the body. The returned level is complete or an error is
// returned; there is no partial result.
func (d *Decoder) Decode() (Level, error) {
	lvl := NewLevel()
	lvl.Format = d.format

	switch d.format {
	case FormatLegacy:
		raw := make([]byte, Side*Side)
		if _, err := io.ReadFull(d.br, raw); err != nil {
			return Level{}, fmt.Errorf("%w: legacy tiles: %w", ErrDecompression, err)
		}
		for i, b := range raw {
			lvl.Tiles[i] = Record{Type: b}
		}
	default:
		var buf [recordSize]byte
		if _, err := io.ReadFull(d.br, buf[:4]); err != nil {
			return Level{}, fmt.Errorf("%w: spawn: %w", ErrDecompression, err)
		}
		lvl.SpawnX = math.Float32frombits(binary.LittleEndian.Uint32(buf[:4]))
		if _, err := io.ReadFull(d.br, buf[:4]); err != nil {
			return Level{}, fmt.Errorf("%w: spawn: %w", ErrDecompression, err)
		}
		lvl.SpawnY = math.Float32frombits(binary.LittleEndian.Uint32(buf[:4]))

		for i := range lvl.Tiles {
			if _, err := io.ReadFull(d.br, buf[:]); err != nil {
				return Level{}, fmt.Errorf("%w: tile %d: %w", ErrDecompression, i, err)
			}
			lvl.Tiles[i] = Record{
				Type:     buf[0],
				Rotation: math.Float32frombits(binary.LittleEndian.Uint32(buf[1:5])),
				Flip:     buf[5] != 0,
			}
		}
	}
	return lvl, nil
}

func (d *Decoder) Close() error { return d.zr.Close() }

// Read decodes a whole level from r.
func Read(r io.Reader) (Level, error) {
	d, err := NewDecoder(r)
	if err != nil {
		return Level{}, err
	}
	defer d.Close()
	return d.Decode()
}

func writeString(w io.Writer, s string) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(br *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return "", fmt.Errorf("%w: header length: %w", ErrDecompression, err)
	}
	if n > maxHeaderLen {
		return "", fmt.Errorf("%w: header length %d", ErrInvalidHeader, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return "", fmt.Errorf("%w: header: %w", ErrDecompression, err)
	}
	return string(b), nil
}
