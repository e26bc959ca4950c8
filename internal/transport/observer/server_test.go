package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"buildinggame.io/internal/sim/catalogs"
	"buildinggame.io/internal/sim/encoding"
	"buildinggame.io/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.New([]catalogs.Tile{
		{ID: "stone", DisplayName: "Stone"},
		{ID: "sand", DisplayName: "Sand"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	w, err := world.New(world.WorldConfig{}, cats, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func newServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

type frame struct {
	Type  string `json:"type"`
	CX    int    `json:"cx"`
	CY    int    `json:"cy"`
	RLE   string `json:"rle"`
	Tick  uint64 `json:"tick"`
	Count int    `json:"changed"`
}

func (f frame) types(t *testing.T) []uint8 {
	t.Helper()
	out, err := encoding.DecodeRLE(f.RLE, world.ChunkSize*world.ChunkSize)
	if err != nil {
		t.Fatalf("rle: %v", err)
	}
	return out
}

func readFrame(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return f
}

func TestObserver_SnapshotThenChanges(t *testing.T) {
	w := newWorld(t)
	w.PlaceTile(1, 2, world.FromByte(1))
	s := newServer(t)
	s.Publish(1, w)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	total := world.ChunkArea * world.ChunkArea
	for i := 0; i < total; i++ {
		f := readFrame(t, conn)
		if f.Type != "CHUNK" {
			t.Fatalf("frame %d: got type %q", i, f.Type)
		}
		types := f.types(t)
		if len(types) != world.ChunkSize*world.ChunkSize {
			t.Fatalf("frame %d: got %d types", i, len(types))
		}
		if f.CX == 0 && f.CY == 0 && types[1*world.ChunkSize+2] != 1 {
			t.Fatalf("chunk 0,0 missing placed tile")
		}
	}
	if f := readFrame(t, conn); f.Type != "TICK" || f.Tick != 1 || f.Count != total {
		t.Fatalf("snapshot tick: got %+v", f)
	}

	// Only the touched chunk is sent next.
	w.PlaceTile(40, 50, world.FromByte(2))
	s.Publish(2, w)

	f := readFrame(t, conn)
	if f.Type != "CHUNK" || f.CX != 2 || f.CY != 3 {
		t.Fatalf("changed chunk: got %+v", f)
	}
	if types := f.types(t); types[8*world.ChunkSize+2] != 2 {
		t.Fatalf("changed chunk types: got %v", types)
	}
	if f := readFrame(t, conn); f.Type != "TICK" || f.Tick != 2 || f.Count != 1 {
		t.Fatalf("tick: got %+v", f)
	}

	// Nothing changed: a bare TICK.
	s.Publish(3, w)
	if f := readFrame(t, conn); f.Type != "TICK" || f.Count != 0 {
		t.Fatalf("idle tick: got %+v", f)
	}
}

func TestObserver_Bootstrap(t *testing.T) {
	s := newServer(t)
	h := s.BootstrapHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before publish: got %d", rec.Code)
	}

	w := newWorld(t)
	w.SpawnPos = world.Vec2f{X: 3, Y: 4.5}
	s.Publish(1, w)

	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var boot Bootstrap
	if err := json.Unmarshal(rec.Body.Bytes(), &boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Format != "BGWORLD2" || boot.Side != 256 || boot.ChunkSize != 16 || boot.ChunkArea != 16 {
		t.Fatalf("bootstrap: got %+v", boot)
	}
	if len(boot.Palette) != 3 || boot.Palette[0] != "stone" || boot.Palette[2] != "door" {
		t.Fatalf("palette: got %v", boot.Palette)
	}
	if boot.Spawn != [2]float32{3, 4.5} {
		t.Fatalf("spawn: got %v", boot.Spawn)
	}

	remote := httptest.NewRequest(http.MethodGet, "/v1/bootstrap", nil)
	remote.RemoteAddr = "192.0.2.7:1234"
	rec = httptest.NewRecorder()
	h(rec, remote)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote: got %d want 403", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:9000":   true,
		"10.0.0.1:80":  false,
		"not-an-ip:80": false,
		"127.0.0.1":    true,
		"":             false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestObserver_PingsKeepQuietViewers(t *testing.T) {
	w := newWorld(t)
	s := newServer(t)
	s.pongWait = 150 * time.Millisecond
	s.pingEvery = 40 * time.Millisecond
	s.Publish(1, w)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observe"

	// Reading lets the client answer pings.
	reader, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer reader.Close()
	go func() {
		for {
			if _, _, err := reader.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Never reads, so never pongs.
	stalled, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stalled.Close()

	deadline := time.Now().Add(3 * time.Second)
	for s.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.Clients(); got != 1 {
		t.Fatalf("clients after stalled viewer timed out: got %d want 1", got)
	}

	time.Sleep(4 * s.pongWait)
	if got := s.Clients(); got != 1 {
		t.Fatalf("reading viewer dropped: clients=%d", got)
	}
}

func TestObserver_BootstrapBuiltOnce(t *testing.T) {
	w := newWorld(t)
	s := newServer(t)

	s.Publish(1, w)
	boot := s.boot
	s.Publish(2, w)
	if s.boot != boot {
		t.Fatalf("bootstrap rebuilt without a spawn change")
	}
	if s.lastTick.Tick != 2 || s.lastTick.Digest != w.Digest() {
		t.Fatalf("last tick: got %+v", s.lastTick)
	}

	w.SpawnPos = world.Vec2f{X: 7, Y: 9}
	s.Publish(3, w)
	if s.boot == boot {
		t.Fatalf("bootstrap not replaced after spawn moved")
	}
	if s.boot.Spawn != [2]float32{7, 9} || boot.Spawn != [2]float32{0, 0} {
		t.Fatalf("spawn: got %v (previous %v)", s.boot.Spawn, boot.Spawn)
	}
	if len(s.boot.Palette) != len(boot.Palette) {
		t.Fatalf("palette: got %v want %v", s.boot.Palette, boot.Palette)
	}
	if s.lastTick.Digest != w.Digest() {
		t.Fatalf("digest not refreshed after spawn moved")
	}
}
