package observer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gorilla/websocket"

	"buildinggame.io/internal/persistence/worldfile"
	"buildinggame.io/internal/sim/encoding"
	"buildinggame.io/internal/sim/world"
)

// ChunkMsg carries the tile types of one chunk, x-major, run-length encoded.
type ChunkMsg struct {
	Type string `json:"type"` // "CHUNK"
	CX   int    `json:"cx"`
	CY   int    `json:"cy"`
	RLE  string `json:"rle"`
}

// TickMsg follows the chunk frames of one publish.
type TickMsg struct {
	Type    string `json:"type"` // "TICK"
	Tick    uint64 `json:"tick"`
	Changed int    `json:"changed"`
	Digest  string `json:"digest"`
}

type Bootstrap struct {
	Format    string     `json:"format"`
	Side      int        `json:"side"`
	ChunkSize int        `json:"chunk_size"`
	ChunkArea int        `json:"chunk_area"`
	Palette   []string   `json:"palette"`
	Spawn     [2]float32 `json:"spawn"`
}

const (
	clientBuffer = 1024

	defaultPongWait  = 60 * time.Second
	defaultPingEvery = 30 * time.Second
)

type client struct {
	out chan []byte
}

// Server pushes world changes to loopback viewers. Publish must be called
// from the goroutine that owns the world; handlers only see encoded frames.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader
	frames   *ristretto.Cache[string, []byte]

	// A viewer is dropped when nothing, pongs included, arrives within
	// pongWait. Pings go out every pingEvery, which must be shorter.
	pongWait  time.Duration
	pingEvery time.Duration

	// Owned by the publishing goroutine.
	digests     [world.ChunkArea][world.ChunkArea][32]byte
	seen        bool
	worldDigest string
	spawn       world.Vec2f

	mu       sync.Mutex
	clients  map[uint64]*client
	latest   [world.ChunkArea][world.ChunkArea][]byte
	lastTick *TickMsg
	boot     *Bootstrap

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func NewServer(logger *log.Logger) (*Server, error) {
	cache, err := ristretto.NewCache[string, []byte](&ristretto.Config[string, []byte]{
		NumCounters: 10 * world.ChunkArea * world.ChunkArea * 4,
		MaxCost:     8 * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("observer: frame cache: %w", err)
	}
	return &Server{
		log:    logger,
		frames: cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients:   map[uint64]*client{},
		pongWait:  defaultPongWait,
		pingEvery: defaultPingEvery,
	}, nil
}

// Handler serves /v1/bootstrap and /v1/observe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observe", s.WSHandler())
	return mux
}

func (s *Server) Close() {
	s.mu.Lock()
	for id, c := range s.clients {
		close(c.out)
		delete(s.clients, id)
	}
	s.mu.Unlock()
	s.frames.Close()
}

// Clients returns the number of connected viewers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts frames not delivered to slow viewers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish encodes chunks whose digest changed since the previous call and
// sends them, followed by a TICK frame, to every viewer.
func (s *Server) Publish(tick uint64, w *world.World) {
	type frame struct {
		cx, cy int
		b      []byte
	}
	var frames []frame
	for cx := range world.ChunkArea {
		for cy := range world.ChunkArea {
			sum := w.Chunk(cx, cy).Digest()
			if s.seen && sum == s.digests[cx][cy] {
				continue
			}
			b, err := s.chunkFrame(w, cx, cy, sum)
			if err != nil {
				s.log.Printf("observer: encode chunk %d,%d: %v", cx, cy, err)
				continue
			}
			s.digests[cx][cy] = sum
			frames = append(frames, frame{cx: cx, cy: cy, b: b})
		}
	}
	first := !s.seen
	spawnMoved := first || w.SpawnPos != s.spawn
	if len(frames) > 0 || spawnMoved {
		s.worldDigest = w.Digest()
	}
	s.seen = true
	s.spawn = w.SpawnPos

	var boot *Bootstrap
	if first {
		boot = &Bootstrap{
			Format:    worldfile.HeaderCurrent,
			Side:      world.Side,
			ChunkSize: world.ChunkSize,
			ChunkArea: world.ChunkArea,
			Palette:   w.Catalog().Palette(),
			Spawn:     [2]float32{w.SpawnPos.X, w.SpawnPos.Y},
		}
	}
	tm := &TickMsg{Type: "TICK", Tick: tick, Changed: len(frames), Digest: s.worldDigest}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case boot != nil:
		s.boot = boot
	case spawnMoved:
		// Handlers encode s.boot outside the lock.
		next := *s.boot
		next.Spawn = [2]float32{w.SpawnPos.X, w.SpawnPos.Y}
		s.boot = &next
	}
	s.lastTick = tm
	for _, f := range frames {
		s.latest[f.cx][f.cy] = f.b
		s.broadcastLocked(f.b)
	}
	if len(s.clients) > 0 {
		b, _ := json.Marshal(tm)
		s.broadcastLocked(b)
	}
}

func (s *Server) chunkFrame(w *world.World, cx, cy int, sum [32]byte) ([]byte, error) {
	key := fmt.Sprintf("%d,%d:%s", cx, cy, hex.EncodeToString(sum[:]))
	if b, ok := s.frames.Get(key); ok {
		return b, nil
	}
	b, err := json.Marshal(ChunkMsg{Type: "CHUNK", CX: cx, CY: cy, RLE: encoding.EncodeRLE(w.Chunk(cx, cy).Types())})
	if err != nil {
		return nil, err
	}
	s.frames.Set(key, b, int64(len(b)))
	return b, nil
}

func (s *Server) broadcastLocked(b []byte) {
	for _, c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		boot := s.boot
		s.mu.Unlock()
		if boot == nil {
			http.Error(rw, "world not ready", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(boot)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := s.nextID.Add(1)
		c := &client{out: make(chan []byte, clientBuffer)}

		// Register and queue the snapshot atomically so no publish slips
		// between them.
		s.mu.Lock()
		for cx := range world.ChunkArea {
			for cy := range world.ChunkArea {
				if f := s.latest[cx][cy]; f != nil {
					c.out <- f
				}
			}
		}
		if s.lastTick != nil {
			if b, err := json.Marshal(s.lastTick); err == nil {
				c.out <- b
			}
		}
		s.clients[id] = c
		pongWait, pingEvery := s.pongWait, s.pingEvery
		s.mu.Unlock()
		s.log.Printf("observer: viewer %d connected from %s", id, r.RemoteAddr)

		done := make(chan struct{})
		go func() {
			defer close(done)
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						return
					}
				}
			}
		}()

		// Viewers only answer pings; reading detects disconnects.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}

		s.mu.Lock()
		if _, ok := s.clients[id]; ok {
			delete(s.clients, id)
			close(c.out)
		}
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("observer: viewer %d disconnected", id)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
