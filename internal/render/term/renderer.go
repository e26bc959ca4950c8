// Package term draws the tile grid onto a terminal screen, one cell per tile.
package term

import (
	"hash/fnv"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"

	"buildinggame.io/internal/sim/catalogs"
	"buildinggame.io/internal/sim/world"
)

// StatusRows are reserved at the top of the screen.
const StatusRows = 1

type glyph struct {
	r     rune
	style tcell.Style
}

var glyphs = map[string]glyph{
	"grass":       {'"', tcell.StyleDefault.Foreground(tcell.ColorGreen)},
	"dirt":        {'.', tcell.StyleDefault.Foreground(tcell.ColorMaroon)},
	"stone":       {'#', tcell.StyleDefault.Foreground(tcell.ColorGray)},
	"planks":      {'=', tcell.StyleDefault.Foreground(tcell.ColorOlive)},
	"bricks":      {'#', tcell.StyleDefault.Foreground(tcell.ColorFireBrick)},
	"glass":       {'#', tcell.StyleDefault.Foreground(tcell.ColorLightCyan)},
	"water":       {'~', tcell.StyleDefault.Foreground(tcell.ColorBlue)},
	"lava":        {'~', tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)},
	"sand":        {':', tcell.StyleDefault.Foreground(tcell.ColorYellow)},
	"obsidian":    {'#', tcell.StyleDefault.Foreground(tcell.ColorPurple)},
	"log":         {'|', tcell.StyleDefault.Foreground(tcell.ColorOlive)},
	"leaves":      {'*', tcell.StyleDefault.Foreground(tcell.ColorDarkGreen)},
	"cobblestone": {'%', tcell.StyleDefault.Foreground(tcell.ColorSilver)},
	"torch":       {'!', tcell.StyleDefault.Foreground(tcell.ColorOrange)},
	"door":        {'+', tcell.StyleDefault.Foreground(tcell.ColorSaddleBrown)},
}

var fallbackColors = []tcell.Color{
	tcell.ColorTeal, tcell.ColorNavy, tcell.ColorLime, tcell.ColorFuchsia,
	tcell.ColorAqua, tcell.ColorCoral, tcell.ColorKhaki, tcell.ColorOrchid,
}

// Renderer implements world.Renderer on a tcell screen. OffsetX/OffsetY is
// the world coordinate shown in the top-left map cell.
type Renderer struct {
	screen  tcell.Screen
	OffsetX int
	OffsetY int
}

func NewRenderer(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen}
}

// DrawTile paints every cell the tile covers. Flipped tiles are drawn reversed.
func (r *Renderer) DrawTile(x, y int, tile catalogs.Tile, flags world.TileFlags) {
	g := glyphFor(tile)
	if flags.Flip {
		g.style = g.style.Reverse(true)
	}
	w, h := r.screen.Size()
	sx, sy := tile.Size.X, tile.Size.Y
	if sx < 1 {
		sx = 1
	}
	if sy < 1 {
		sy = 1
	}
	for dx := range sx {
		for dy := range sy {
			cx := x + dx - r.OffsetX
			cy := y + dy - r.OffsetY + StatusRows
			if cx < 0 || cy < StatusRows || cx >= w || cy >= h {
				continue
			}
			r.screen.SetContent(cx, cy, g.r, nil, g.style)
		}
	}
}

// Pan moves the view, keeping at least one tile of the world on screen.
func (r *Renderer) Pan(dx, dy int) {
	r.OffsetX = clampOffset(r.OffsetX + dx)
	r.OffsetY = clampOffset(r.OffsetY + dy)
}

// CenterOn puts the world position in the middle of the map area.
func (r *Renderer) CenterOn(x, y int) {
	w, h := r.screen.Size()
	r.OffsetX = clampOffset(x - w/2)
	r.OffsetY = clampOffset(y - (h-StatusRows)/2)
}

// Frame clears the screen, draws the world and the status line, and shows it.
func (r *Renderer) Frame(w *world.World, status string) {
	r.screen.Clear()
	w.Draw(r)
	r.drawStatus(status)
	r.screen.Show()
}

func (r *Renderer) drawStatus(s string) {
	width, _ := r.screen.Size()
	style := tcell.StyleDefault.Reverse(true)
	x := 0
	for _, ch := range s {
		if x >= width {
			break
		}
		r.screen.SetContent(x, 0, ch, nil, style)
		x++
	}
	for ; x < width; x++ {
		r.screen.SetContent(x, 0, ' ', nil, style)
	}
}

func glyphFor(t catalogs.Tile) glyph {
	if g, ok := glyphs[t.ID]; ok {
		return g
	}
	name := t.DisplayName
	if name == "" {
		name = t.ID
	}
	ch, _ := utf8.DecodeRuneInString(name)
	if ch == utf8.RuneError {
		ch = '?'
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(t.ID))
	color := fallbackColors[h.Sum32()%uint32(len(fallbackColors))]
	return glyph{r: unicode.ToUpper(ch), style: tcell.StyleDefault.Foreground(color)}
}

func clampOffset(v int) int {
	if v < 0 {
		return 0
	}
	if v > world.Side-1 {
		return world.Side - 1
	}
	return v
}
