package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"buildinggame.io/internal/persistence/indexdb"
	"buildinggame.io/internal/sim/tuning"
	"buildinggame.io/internal/sim/world"
	"buildinggame.io/internal/transport/observer"
)

// host owns the world and drives it from a single goroutine. Counters are
// mirrored into atomics for the HTTP side.
type host struct {
	w      *world.World
	logger *log.Logger
	obs    *observer.Server

	rateHz        int
	autosaveEvery uint64
	tick          uint64

	metrics struct {
		tick     atomic.Uint64
		nonEmpty atomic.Int64
		saves    atomic.Uint64
		saveErrs atomic.Uint64
		stepNS   atomic.Int64
	}
}

func newHost(w *world.World, tune tuning.Tuning, logger *log.Logger) *host {
	rate := tune.TickRateHz
	if rate <= 0 {
		rate = tuning.Defaults().TickRateHz
	}
	return &host{
		w:             w,
		logger:        logger,
		rateHz:        rate,
		autosaveEvery: uint64(tune.AutosaveEveryTicks),
	}
}

// step advances one host tick: physics, autosave, observer publish.
func (h *host) step() {
	start := time.Now()
	h.w.Update()
	h.tick++
	if h.autosaveEvery > 0 && h.tick%h.autosaveEvery == 0 {
		h.save("autosave")
	}
	if h.obs != nil {
		h.obs.Publish(h.tick, h.w)
	}
	h.metrics.tick.Store(h.tick)
	h.metrics.nonEmpty.Store(int64(h.w.NonEmpty()))
	h.metrics.stepNS.Store(int64(time.Since(start)))
}

func (h *host) save(reason string) error {
	h.metrics.saves.Add(1)
	if err := h.w.Save(); err != nil {
		h.metrics.saveErrs.Add(1)
		h.logger.Printf("%s failed: %v", reason, err)
		return err
	}
	return nil
}

// reload re-reads the current world file, discarding unsaved changes.
func (h *host) reload() error {
	err := h.w.Load(h.w.WorldFile)
	if h.obs != nil {
		h.obs.Publish(h.tick, h.w)
	}
	return err
}

func (h *host) interval() time.Duration {
	return time.Second / time.Duration(h.rateHz)
}

// run ticks until ctx is done or maxTicks have run (0 means no limit).
func (h *host) run(ctx context.Context, maxTicks uint64) {
	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()
	h.logger.Printf("running at %d Hz (physics=%v)", h.rateHz, h.w.PhysicsEnabled())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.step()
			if maxTicks > 0 && h.tick >= maxTicks {
				return
			}
		}
	}
}

func (h *host) shutdown() {
	if err := h.save("save on exit"); err == nil {
		h.logger.Printf("saved %s at tick %d", h.w.WorldFile, h.tick)
	}
}

func (h *host) mux(idx *indexdb.SQLiteIndex) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP tileworld_tick Host ticks since start.\n")
		fmt.Fprintf(rw, "# TYPE tileworld_tick counter\n")
		fmt.Fprintf(rw, "tileworld_tick %d\n", h.metrics.tick.Load())

		fmt.Fprintf(rw, "# HELP tileworld_tiles Non-empty tiles in the grid.\n")
		fmt.Fprintf(rw, "# TYPE tileworld_tiles gauge\n")
		fmt.Fprintf(rw, "tileworld_tiles %d\n", h.metrics.nonEmpty.Load())

		fmt.Fprintf(rw, "# HELP tileworld_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE tileworld_step_ms gauge\n")
		fmt.Fprintf(rw, "tileworld_step_ms %.3f\n", float64(h.metrics.stepNS.Load())/1e6)

		fmt.Fprintf(rw, "# HELP tileworld_saves_total Save attempts.\n")
		fmt.Fprintf(rw, "# TYPE tileworld_saves_total counter\n")
		fmt.Fprintf(rw, "tileworld_saves_total{result=%q} %d\n", "error", h.metrics.saveErrs.Load())
		fmt.Fprintf(rw, "tileworld_saves_total{result=%q} %d\n", "all", h.metrics.saves.Load())

		if h.obs != nil {
			fmt.Fprintf(rw, "# HELP tileworld_observers Connected observers.\n")
			fmt.Fprintf(rw, "# TYPE tileworld_observers gauge\n")
			fmt.Fprintf(rw, "tileworld_observers %d\n", h.obs.Clients())
			fmt.Fprintf(rw, "# HELP tileworld_observer_dropped_total Frames dropped for slow observers.\n")
			fmt.Fprintf(rw, "# TYPE tileworld_observer_dropped_total counter\n")
			fmt.Fprintf(rw, "tileworld_observer_dropped_total %d\n", h.obs.Dropped())
		}
		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP tileworld_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE tileworld_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "tileworld_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP tileworld_index_dropped_total Index rows dropped.\n")
			fmt.Fprintf(rw, "# TYPE tileworld_index_dropped_total counter\n")
			fmt.Fprintf(rw, "tileworld_index_dropped_total{kind=%q} %d\n", "pass", st.DropTickTotal)
			fmt.Fprintf(rw, "tileworld_index_dropped_total{kind=%q} %d\n", "persist", st.DropPersistTotal)
			fmt.Fprintf(rw, "# HELP tileworld_index_failed_total Index rows lost to failed writes.\n")
			fmt.Fprintf(rw, "# TYPE tileworld_index_failed_total counter\n")
			fmt.Fprintf(rw, "tileworld_index_failed_total %d\n", st.FailedTotal)
		}
	})
	if h.obs != nil {
		obs := h.obs.Handler()
		mux.Handle("/v1/", obs)
	}
	return mux
}
