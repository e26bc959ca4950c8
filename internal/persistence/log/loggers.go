package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"buildinggame.io/internal/sim/world"
)

// JSONLZstdWriter appends one JSON document per line to an hourly rotated,
// zstd-compressed file: <baseDir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Event is one line of the world event log.
type Event struct {
	Time    string              `json:"time"`
	Kind    string              `json:"kind"` // "pass" or "persist"
	Pass    *world.TickLogEntry `json:"pass,omitempty"`
	Persist *world.PersistEntry `json:"persist,omitempty"`
}

// EventLogger writes pass and persistence records to <dir>/events. It
// implements world.EventSink.
type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "events"), "events")}
}

func (l *EventLogger) WriteTick(e world.TickLogEntry) error {
	return l.w.Write(Event{Time: l.stamp(), Kind: "pass", Pass: &e})
}

// WritePersist also flushes, so save/load records survive a crash.
func (l *EventLogger) WritePersist(e world.PersistEntry) error {
	if err := l.w.Write(Event{Time: l.stamp(), Kind: "persist", Persist: &e}); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *EventLogger) Close() error { return l.w.Close() }

func (l *EventLogger) stamp() string {
	return l.w.now().UTC().Format(time.RFC3339Nano)
}
