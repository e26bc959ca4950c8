package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"buildinggame.io/internal/render/term"
)

const panStep = 4

// viewer binds a host to a terminal screen.
type viewer struct {
	h      *host
	screen tcell.Screen
	r      *term.Renderer

	msg      string
	msgUntil time.Time
}

func runViewer(ctx context.Context, h *host, maxTicks uint64) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	v := newViewer(h, screen)
	v.loop(ctx, maxTicks)
	return nil
}

func newViewer(h *host, screen tcell.Screen) *viewer {
	v := &viewer{h: h, screen: screen, r: term.NewRenderer(screen)}
	v.r.CenterOn(int(h.w.SpawnPos.X), int(h.w.SpawnPos.Y))
	return v
}

func (v *viewer) loop(ctx context.Context, maxTicks uint64) {
	ticker := time.NewTicker(v.h.interval())
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				// Screen finalized.
				return
			}
			events <- ev
		}
	}()

	v.draw()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !v.handle(ev) {
				return
			}
			v.draw()
		case <-ticker.C:
			v.h.step()
			v.draw()
			if maxTicks > 0 && v.h.tick >= maxTicks {
				return
			}
		}
	}
}

// handle applies one input event; false means quit.
func (v *viewer) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			v.r.Pan(-panStep, 0)
		case tcell.KeyRight:
			v.r.Pan(panStep, 0)
		case tcell.KeyUp:
			v.r.Pan(0, -panStep)
		case tcell.KeyDown:
			v.r.Pan(0, panStep)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case 'p':
				on := !v.h.w.PhysicsEnabled()
				v.h.w.SetPhysics(on)
				v.flash(fmt.Sprintf("physics %v", on))
			case 's':
				if err := v.h.save("save"); err != nil {
					v.flash("save failed: " + err.Error())
				} else {
					v.flash("saved " + v.h.w.WorldFile)
				}
			case 'l':
				if err := v.h.reload(); err != nil {
					v.flash("load failed: " + err.Error())
				} else {
					v.flash("loaded " + v.h.w.WorldFile)
				}
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

func (v *viewer) flash(msg string) {
	v.msg = msg
	v.msgUntil = time.Now().Add(3 * time.Second)
}

func (v *viewer) status() string {
	w := v.h.w
	s := fmt.Sprintf(" tick %d  cycle %2d  physics %-5v  tiles %d  view %d,%d ",
		v.h.tick, w.CurrentTick(), w.PhysicsEnabled(), w.NonEmpty(), v.r.OffsetX, v.r.OffsetY)
	if v.msg != "" && time.Now().Before(v.msgUntil) {
		return s + "| " + v.msg
	}
	return s + "| arrows pan  p physics  s save  l load  q quit"
}

func (v *viewer) draw() {
	v.r.Frame(v.h.w, v.status())
}
