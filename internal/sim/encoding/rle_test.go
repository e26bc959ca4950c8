package encoding

import (
	"encoding/base64"
	"testing"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint8, 0, 256)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 255, 255, 0)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_EmptyChunkIsTiny(t *testing.T) {
	enc := EncodeRLE(make([]uint8, 256))
	raw, _ := base64.StdEncoding.DecodeString(enc)
	// type 0, run 256 (two varint bytes)
	if len(raw) != 3 {
		t.Fatalf("encoded size: got %d want 3", len(raw))
	}
}

func TestDecodeRLE_Errors(t *testing.T) {
	if _, err := DecodeRLE("!!!", 10); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err := DecodeRLE(EncodeRLE(make([]uint8, 20)), 10); err == nil {
		t.Fatalf("expected limit error")
	}
	// type 300 does not fit a tile byte
	bad := base64.StdEncoding.EncodeToString([]byte{0xAC, 0x02, 0x01})
	if _, err := DecodeRLE(bad, 10); err == nil {
		t.Fatalf("expected type error")
	}
	truncated := base64.StdEncoding.EncodeToString([]byte{0x01})
	if _, err := DecodeRLE(truncated, 10); err == nil {
		t.Fatalf("expected varint error")
	}
}
