package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"buildinggame.io/internal/sim/world"
)

// SQLiteIndex is a queryable read-model of pass and persistence events.
// Writes are queued and applied by a single goroutine; the JSONL event log
// stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropPersist atomic.Uint64
	failed      atomic.Uint64

	now func() time.Time
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqPersist
)

type req struct {
	kind reqKind

	tick    world.TickLogEntry
	persist world.PersistEntry
	at      string
}

// SaveRow is one row of the saves table.
type SaveRow struct {
	ID         int64
	Path       string
	Op         string
	Format     string
	Digest     string
	SpawnX     float64
	SpawnY     float64
	NonEmpty   int
	Err        string
	RecordedAt string
}

// Stats reports queue pressure. FailedTotal counts rows that were dequeued
// but never committed.
type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropTickTotal    uint64
	DropPersistTotal uint64
	FailedTotal      uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		ch:  make(chan req, 4096),
		now: time.Now,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			op TEXT NOT NULL,
			format TEXT NOT NULL,
			digest TEXT NOT NULL,
			spawn_x REAL NOT NULL,
			spawn_y REAL NOT NULL,
			non_empty INTEGER NOT NULL,
			err TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS saves_path ON saves(path, id);`,
		`CREATE TABLE IF NOT EXISTS passes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			pass TEXT NOT NULL,
			scanned INTEGER NOT NULL,
			mutations INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry, at: s.stamp()}:
	default:
		// Drop if the indexer falls behind.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WritePersist(entry world.PersistEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqPersist, persist: entry, at: s.stamp()}:
	default:
		s.dropPersist.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropTickTotal:    s.dropTick.Load(),
		DropPersistTotal: s.dropPersist.Load(),
		FailedTotal:      s.failed.Load(),
	}
}

// RecentSaves returns the newest rows of the saves table, newest first.
// Rows still queued in the writer are not visible yet.
func (s *SQLiteIndex) RecentSaves(ctx context.Context, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,path,op,format,digest,spawn_x,spawn_y,non_empty,err,recorded_at
		 FROM saves ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		if err := rows.Scan(&r.ID, &r.Path, &r.Op, &r.Format, &r.Digest, &r.SpawnX, &r.SpawnY, &r.NonEmpty, &r.Err, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PassTotals sums mutations per pass kind.
func (s *SQLiteIndex) PassTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pass, SUM(mutations) FROM passes GROUP BY pass`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var pass string
		var n int64
		if err := rows.Scan(&pass, &n); err != nil {
			return nil, err
		}
		out[pass] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) stamp() string {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSave, _ := s.db.Prepare(`INSERT INTO saves(path,op,format,digest,spawn_x,spawn_y,non_empty,err,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertPass, _ := s.db.Prepare(`INSERT INTO passes(tick,pass,scanned,mutations,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertSave != nil {
			_ = insertSave.Close()
		}
		if insertPass != nil {
			_ = insertPass.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failed.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		// The batch goes with it.
		s.failed.Add(uint64(opCount))
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.failed.Add(1)
			continue
		}
		switch r.kind {
		case reqTick:
			if insertPass == nil {
				s.failed.Add(1)
				continue
			}
			e := r.tick
			if _, err := tx.Stmt(insertPass).Exec(e.Tick, e.Pass, e.Scanned, e.Mutations, r.at); err != nil {
				s.failed.Add(1)
				rollback()
				continue
			}
			opCount++

		case reqPersist:
			if insertSave == nil {
				s.failed.Add(1)
				continue
			}
			e := r.persist
			if _, err := tx.Stmt(insertSave).Exec(
				e.Path,
				string(e.Op),
				e.Format,
				e.Digest,
				float64(e.SpawnX),
				float64(e.SpawnY),
				e.NonEmpty,
				e.Err,
				r.at,
			); err != nil {
				s.failed.Add(1)
				rollback()
				continue
			}
			opCount++
			// Persistence events are rare; make them visible right away.
			commit()
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
