package world

import "buildinggame.io/internal/sim/catalogs"

type PassKind int

const (
	PassObsidian PassKind = iota + 1
	PassWater
	PassSand
	PassLava
)

func (k PassKind) String() string {
	switch k {
	case PassObsidian:
		return "obsidian"
	case PassWater:
		return "water"
	case PassSand:
		return "sand"
	case PassLava:
		return "lava"
	default:
		return "unknown"
	}
}

// TickCycle is the length of the tick counter cycle (ticks run 1..TickCycle).
const TickCycle = 20

// passSchedule maps a tick within the cycle to the pass that runs on it.
var passSchedule = map[int]PassKind{
	7:  PassObsidian,
	10: PassWater,
	15: PassSand,
	20: PassLava,
}

// ScheduledPass returns the pass that runs on tick, if any.
func ScheduledPass(tick int) (PassKind, bool) {
	k, ok := passSchedule[tick]
	return k, ok
}

type PassStats struct {
	Kind      PassKind
	Tick      int
	Scanned   int
	Mutations int
}

// materials holds catalog types used by the passes; 0 means absent.
type materials struct {
	water, lava, sand, obsidian, glass uint8
}

func resolveMaterials(cats *catalogs.Catalog) materials {
	get := func(id string) uint8 {
		t, err := cats.IDToIndex(id)
		if err != nil {
			return 0
		}
		return t
	}
	return materials{
		water:    get("water"),
		lava:     get("lava"),
		sand:     get("sand"),
		obsidian: get("obsidian"),
		glass:    get("glass"),
	}
}

func (m materials) ready(k PassKind) bool {
	switch k {
	case PassWater:
		return m.water != 0
	case PassLava:
		return m.lava != 0
	case PassSand:
		return m.sand != 0
	case PassObsidian:
		return m.lava != 0 && m.water != 0 && m.obsidian != 0
	default:
		return false
	}
}

type cell struct{ x, y int }

func (w *World) CurrentTick() int { return w.tick }

func (w *World) SetPhysics(on bool) { w.physics = on }

func (w *World) PhysicsEnabled() bool { return w.physics }

// Update advances the tick counter and runs the pass scheduled for the new
// tick when physics is enabled.
func (w *World) Update() {
	if w.tick >= TickCycle {
		w.tick = 0
	}
	w.tick++

	if !w.physics {
		return
	}
	if k, ok := passSchedule[w.tick]; ok {
		w.RunPass(k)
	}
}

// RunPass runs one pass immediately, regardless of the tick or physics flag.
func (w *World) RunPass(k PassKind) PassStats {
	st := PassStats{Kind: k, Tick: w.tick}
	if !w.mat.ready(k) {
		return st
	}
	switch k {
	case PassWater:
		st = w.updateLiquid(k, w.mat.water)
	case PassLava:
		st = w.updateLiquid(k, w.mat.lava)
	case PassSand:
		st = w.updateSand()
	case PassObsidian:
		st = w.updateObsidian()
	}
	w.emitTick(TickLogEntry{Tick: st.Tick, Pass: k.String(), Scanned: st.Scanned, Mutations: st.Mutations})
	return st
}

// scan collects every cell of type t, x outer and y inner. Passes mutate
// only after the scan so a moved tile is not processed twice.
func (w *World) scan(t uint8) []cell {
	w.scanBuf = w.scanBuf[:0]
	for x := range Side {
		for y := range Side {
			if w.GetTile(x, y).Type == t {
				w.scanBuf = append(w.scanBuf, cell{x, y})
			}
		}
	}
	return w.scanBuf
}

func (w *World) isEmpty(x, y int) bool { return w.IsTileType(x, y, 0) }

// isMaterial is IsTileType that never matches an unresolved (zero) material.
func (w *World) isMaterial(x, y int, t uint8) bool {
	return t != 0 && w.IsTileType(x, y, t)
}

func (w *World) place(x, y int, t uint8, st *PassStats) {
	w.PlaceTile(x, y, FromByte(t))
	st.Mutations++
}

// updateLiquid spreads a liquid by copying it: sideways into empty cells when
// the cell below is solid (neither empty nor the same liquid), and down into
// an empty cell below. The source cell is never cleared.
func (w *World) updateLiquid(k PassKind, liquid uint8) PassStats {
	cells := w.scan(liquid)
	st := PassStats{Kind: k, Tick: w.tick, Scanned: len(cells)}
	for _, c := range cells {
		x, y := c.x, c.y

		if w.isEmpty(x-1, y) && !w.isEmpty(x, y+1) && !w.isMaterial(x, y+1, liquid) {
			w.place(x-1, y, liquid, &st)
		}
		if w.isEmpty(x+1, y) && !w.isEmpty(x, y+1) && !w.isMaterial(x, y+1, liquid) {
			w.place(x+1, y, liquid, &st)
		}
		if w.isEmpty(x, y+1) {
			w.place(x, y+1, liquid, &st)
		}
	}
	return st
}

// updateObsidian turns lava touching water on any side into obsidian. Only
// the lava cell changes.
func (w *World) updateObsidian() PassStats {
	cells := w.scan(w.mat.lava)
	st := PassStats{Kind: PassObsidian, Tick: w.tick, Scanned: len(cells)}
	for _, c := range cells {
		x, y := c.x, c.y
		if w.isMaterial(x, y-1, w.mat.water) ||
			w.isMaterial(x, y+1, w.mat.water) ||
			w.isMaterial(x-1, y, w.mat.water) ||
			w.isMaterial(x+1, y, w.mat.water) {
			w.place(x, y, w.mat.obsidian, &st)
		}
	}
	return st
}

// updateSand drops sand one cell into empty space or water, clearing the
// source. Independently, sand resting on lava becomes glass in place.
func (w *World) updateSand() PassStats {
	sand := w.mat.sand
	cells := w.scan(sand)
	st := PassStats{Kind: PassSand, Tick: w.tick, Scanned: len(cells)}
	for _, c := range cells {
		x, y := c.x, c.y
		if w.isEmpty(x, y+1) || w.isMaterial(x, y+1, w.mat.water) {
			w.place(x, y+1, sand, &st)
			w.PlaceTile(x, y, Empty)
		}
		if w.mat.glass != 0 && w.isMaterial(x, y+1, w.mat.lava) {
			w.place(x, y, w.mat.glass, &st)
		}
	}
	return st
}
