package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Jdcabreradev/gridclash/client"
	"github.com/Jdcabreradev/gridclash/grid"
	"github.com/Jdcabreradev/gridclash/protocol"
	"github.com/Jdcabreradev/gridclash/reliability"
)

// Board geometry in terminal cells.
const (
	originX = 2
	originY = 2
	cellW   = 5
	cellH   = 2
)

var playerRGB = [grid.MaxPlayers + 1][3]int32{
	{40, 40, 40},   // Empty
	{220, 60, 60},  // P1
	{70, 120, 230}, // P2
	{60, 190, 90},  // P3
	{230, 200, 60}, // P4
}

type game struct {
	screen tcell.Screen
	client *client.Client
	cues   *cues
	frame  time.Duration

	cursor grid.Coord
	status string
	banner string
}

func (g *game) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			g.move(-1, 0)
		case tcell.KeyDown:
			g.move(1, 0)
		case tcell.KeyLeft:
			g.move(0, -1)
		case tcell.KeyRight:
			g.move(0, 1)
		case tcell.KeyEnter:
			g.claim(g.cursor)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case ' ':
				g.claim(g.cursor)
			}
		}

	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 == 0 {
			return true
		}
		x, y := ev.Position()
		if c, ok := cellAt(x, y); ok {
			g.cursor = c
			g.claim(c)
		}

	case *tcell.EventResize:
		g.screen.Sync()
	}
	return true
}

func (g *game) move(dr, dc int) {
	next := grid.Coord{Row: g.cursor.Row + dr, Col: g.cursor.Col + dc}
	if next.InBounds() {
		g.cursor = next
	}
}

func (g *game) claim(c grid.Coord) {
	_, err := g.client.Claim(c)
	switch {
	case err == nil:
		g.status = fmt.Sprintf("Claiming %s ...", c)
	case errors.Is(err, client.ErrCellOwned):
		g.status = fmt.Sprintf("%s is already taken", c)
	case errors.Is(err, client.ErrClaimPending):
		g.status = fmt.Sprintf("%s already requested", c)
	default:
		g.status = err.Error()
	}
}

func (g *game) onOutcome(out reliability.Outcome) {
	c := grid.CoordOf(out.Cell)
	switch out.Status {
	case reliability.StatusDelivered:
		g.status = fmt.Sprintf("Got %s (%s)", c, out.ResolvedAt.Sub(out.SentAt).Round(time.Millisecond))
		g.cues.delivered()
	case reliability.StatusLost:
		g.status = fmt.Sprintf("Lost %s to another player", c)
		g.cues.lost()
	case reliability.StatusRoundOver:
		g.status = fmt.Sprintf("Round ended before %s landed", c)
	case reliability.StatusFailed:
		g.status = fmt.Sprintf("No answer for %s after %d retries", c, out.Retries)
	}
}

func (g *game) onGameOver(over protocol.GameOver) {
	won := over.Winner == g.client.Slot()
	if won {
		g.banner = fmt.Sprintf("Round %d: you win with %d cells!", over.Round, over.Claims[over.Winner-1])
	} else if over.Winner.IsPlayer() {
		g.banner = fmt.Sprintf("Round %d: %s wins with %d cells", over.Round, over.Winner, over.Claims[over.Winner-1])
	} else {
		g.banner = fmt.Sprintf("Round %d over", over.Round)
	}
	g.cues.gameOver(won)
}

func cellAt(x, y int) (grid.Coord, bool) {
	if x < originX || y < originY {
		return grid.Coord{}, false
	}
	c := grid.Coord{Row: (y - originY) / cellH, Col: (x - originX) / cellW}
	return c, c.InBounds()
}

func cellStyle(pc client.PresentedCell) tcell.Style {
	rgb := playerRGB[0]
	if pc.Owner.IsPlayer() {
		base := playerRGB[pc.Owner]
		for i := range rgb {
			rgb[i] += int32(float64(base[i]-rgb[i]) * pc.Level)
		}
	}
	return tcell.StyleDefault.Background(tcell.NewRGBColor(rgb[0], rgb[1], rgb[2])).Foreground(tcell.ColorWhite)
}

func (g *game) draw() {
	g.screen.Clear()
	state := g.client.Reconciler().State()
	presented := g.client.Reconciler().Presented()

	g.text(originX, 0, tcell.StyleDefault.Bold(true),
		fmt.Sprintf("GridClash  %s  round %d  %d/%d claimed", g.client.Slot(), state.Round, state.Grid.Claimed(), grid.Cells))

	for i, pc := range presented {
		c := grid.CoordOf(i)
		style := cellStyle(pc)
		x0, y0 := originX+c.Col*cellW, originY+c.Row*cellH
		for dy := 0; dy < cellH; dy++ {
			for dx := 0; dx < cellW-1; dx++ {
				g.screen.SetContent(x0+dx, y0+dy, ' ', nil, style)
			}
		}
		if pc.Owner.IsPlayer() && pc.Level > 0.5 {
			g.text(x0+1, y0, style, pc.Owner.String())
		}
		if c == g.cursor {
			g.screen.SetContent(x0, y0+cellH-1, '[', nil, style.Bold(true))
			g.screen.SetContent(x0+cellW-2, y0+cellH-1, ']', nil, style.Bold(true))
		}
	}

	y := originY + grid.Size*cellH + 1
	g.text(originX, y, tcell.StyleDefault,
		fmt.Sprintf("snapshot %d  latency %s  pending %d  converging %d",
			state.SnapshotID, g.client.LastLatency().Round(time.Millisecond), g.client.Pending(), g.client.Reconciler().Divergence()))
	g.text(originX, y+1, tcell.StyleDefault, g.status)
	if g.banner != "" {
		g.text(originX, y+2, tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true), g.banner)
	}
	g.text(originX, y+4, tcell.StyleDefault.Dim(true), "arrows move, space claims, click claims, q quits")

	g.screen.Show()
}

func (g *game) text(x, y int, style tcell.Style, s string) {
	for i, r := range []rune(s) {
		g.screen.SetContent(x+i, y, r, nil, style)
	}
}
