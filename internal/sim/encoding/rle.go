// Package encoding holds compact wire encodings for tile data.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes tile types as base64 of (type, run_len) uvarint pairs.
func EncodeRLE(types []uint8) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(types); {
		t := types[i]
		run := 1
		for j := i + 1; j < len(types) && types[j] == t; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(t))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. Output longer than limit is an error.
func DecodeRLE(b64 string, limit int) ([]uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint8
	for i := 0; i < len(raw); {
		t, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if t > 0xFF {
			return nil, fmt.Errorf("tile type too large: %d", t)
		}
		if run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("run of %d exceeds limit %d", run, limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint8(t))
		}
	}
	return out, nil
}
