package world

import "errors"

// TickLogEntry records one physics pass.
type TickLogEntry struct {
	Tick      int    `json:"tick"`
	Pass      string `json:"pass"`
	Scanned   int    `json:"scanned"`
	Mutations int    `json:"mutations"`
}

type PersistOp string

const (
	OpSave    PersistOp = "save"
	OpLoad    PersistOp = "load"
	OpMigrate PersistOp = "migrate"
)

// PersistEntry records one save, load or legacy migration.
type PersistEntry struct {
	Op       PersistOp `json:"op"`
	Path     string    `json:"path"`
	Format   string    `json:"format,omitempty"`
	Digest   string    `json:"digest,omitempty"`
	SpawnX   float32   `json:"spawn_x"`
	SpawnY   float32   `json:"spawn_y"`
	NonEmpty int       `json:"non_empty"`
	Err      string    `json:"err,omitempty"`
}

// EventSink receives records from the world loop goroutine. Implementations
// must not block for long; the tick waits on them.
type EventSink interface {
	WriteTick(TickLogEntry) error
	WritePersist(PersistEntry) error
}

// MultiSink fans records out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) WriteTick(e TickLogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteTick(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) WritePersist(e PersistEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.WritePersist(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *World) emitTick(e TickLogEntry) {
	if w.sink == nil {
		return
	}
	if err := w.sink.WriteTick(e); err != nil {
		w.logger.Printf("world: tick sink: %v", err)
	}
}

func (w *World) emitPersist(e PersistEntry) {
	if w.sink == nil {
		return
	}
	if err := w.sink.WritePersist(e); err != nil {
		w.logger.Printf("world: persist sink: %v", err)
	}
}
