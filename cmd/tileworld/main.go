package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"buildinggame.io/internal/persistence/indexdb"
	"buildinggame.io/internal/persistence/worldfile"
	persistlog "buildinggame.io/internal/persistence/log"
	"buildinggame.io/internal/sim/catalogs"
	"buildinggame.io/internal/sim/tuning"
	"buildinggame.io/internal/sim/world"
	"buildinggame.io/internal/transport/observer"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory (atlas.yaml, tuning.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		worldPath  = flag.String("world", "", "level file (default: <data>/<world_file from tuning>)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		maxTicks   = flag.Uint64("ticks", 0, "stop after N ticks (0 runs until interrupted)")
		view       = flag.Bool("view", false, "run the terminal viewer")
		obsAddr    = flag.String("observer", "", "observer listen address, loopback only (default: observer_addr from tuning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite save/pass index")
		logFile    = flag.String("log_file", "", "also write logs to this rotated file (default: <log_dir>/tileworld.log when log_dir is set)")
		history    = flag.Int("history", 0, "print the last N save/load records from the index and exit")
	)
	flag.Parse()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil && !errors.Is(tuneErr, fs.ErrNotExist) {
		log.Fatalf("load tuning: %v", tuneErr)
	}

	lf := strings.TrimSpace(*logFile)
	if lf == "" && tune.LogDir != "" {
		lf = filepath.Join(tune.LogDir, "tileworld.log")
	}
	logger := newLogger(lf, *view)
	if tuneErr != nil {
		logger.Printf("tuning not found (%s); using defaults", tp)
	}

	cats, err := catalogs.Load(filepath.Join(*configDir, "atlas.yaml"))
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalog: %d tiles digest=%s", cats.Len(), cats.Digest()[:12])

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "saves.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}
	if *history > 0 {
		if idx == nil {
			logger.Fatalf("-history needs the index (drop -disable_db)")
		}
		if err := printHistory(os.Stdout, idx, *history); err != nil {
			logger.Fatalf("history: %v", err)
		}
		return
	}

	wf := strings.TrimSpace(*worldPath)
	if wf == "" {
		wf = tune.WorldFile
		if !filepath.IsAbs(wf) {
			wf = filepath.Join(*dataDir, wf)
		}
	}
	w, err := world.New(world.WorldConfig{WorldFile: wf, EnablePhysics: tune.EnablePhysics}, cats, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	evLogDir := tune.LogDir
	if evLogDir == "" {
		evLogDir = *dataDir
	}
	events := persistlog.NewEventLogger(evLogDir)
	defer events.Close()
	sinks := world.MultiSink{events}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	w.SetEventSink(sinks)

	if err := loadWorld(w, wf, logger); err != nil {
		logger.Fatalf("%v", err)
	}

	h := newHost(w, tune, logger)

	ctx, cancel := signalContext()
	defer cancel()

	addr := strings.TrimSpace(*obsAddr)
	if addr == "" {
		addr = tune.ObserverAddr
	}
	if addr != "" {
		obs, err := observer.NewServer(logger)
		if err != nil {
			logger.Fatalf("observer: %v", err)
		}
		defer obs.Close()
		h.obs = obs
		srv := &http.Server{
			Addr:              addr,
			Handler:           h.mux(idx),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("observer listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer: %v", err)
			}
		}()
	}

	if *view {
		if err := runViewer(ctx, h, *maxTicks); err != nil {
			logger.Printf("viewer: %v", err)
		}
	} else {
		h.run(ctx, *maxTicks)
	}
	h.shutdown()
}

func newLogger(path string, quietStdout bool) *log.Logger {
	var out io.Writer = os.Stdout
	if quietStdout {
		// The viewer owns the terminal.
		out = io.Discard
	}
	if path != "" {
		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		if quietStdout {
			out = rot
		} else {
			out = io.MultiWriter(os.Stdout, rot)
		}
	}
	return log.New(out, "[tileworld] ", log.LstdFlags|log.Lmicroseconds)
}

// loadWorld restores the level at path. A missing file starts a fresh world.
// An unreadable one is moved to worldfile.BadPath first, and the world starts
// empty; if it cannot be moved the error is returned and nothing may save.
func loadWorld(w *world.World, path string, logger *log.Logger) error {
	err := w.Load(path)
	switch {
	case err == nil:
		logger.Printf("loaded %s (%d tiles)", path, w.NonEmpty())
	case errors.Is(err, fs.ErrNotExist):
		logger.Printf("no level at %s; starting a fresh world", path)
	default:
		bad, mvErr := worldfile.SetAside(path)
		if mvErr != nil {
			return fmt.Errorf("%s could not be loaded (%v) or moved aside: %w", path, err, mvErr)
		}
		logger.Printf("%s could not be loaded: %v; moved to %s, starting empty", path, err, bad)
	}
	return nil
}

func printHistory(out io.Writer, idx *indexdb.SQLiteIndex, n int) error {
	rows, err := idx.RecentSaves(context.Background(), n)
	if err != nil {
		return err
	}
	for _, r := range rows {
		status := "ok"
		if r.Err != "" {
			status = r.Err
		}
		fmt.Fprintf(out, "%s  %-7s %-8s %6d tiles  %s  %s\n", r.RecordedAt, r.Op, r.Format, r.NonEmpty, r.Path, status)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
