// Package roomgrid is a grid of square rooms sharing walls, with doors
// between neighbors, objects inside rooms and an agent start in the middle
// room. All randomness comes from one seeded stream owned by the Env.
package roomgrid

import (
	"fmt"

	"roomscene.ai/internal/sim/mathx"
	"roomscene.ai/internal/sim/palette"
)

type Env struct {
	cfg  Config
	seed int64
	rng  *mathx.Rand

	width, height int
	grid          []*Cell
	rooms         []*Room
	placed        []Placed

	start    Pos
	startDir int
}

// New builds the walls and door slots of every room and seeds the stream.
// Door slot positions are the first values drawn from the stream.
func New(cfg Config, seed int64) (*Env, error) {
	cfg.applyDefaults()
	if cfg.RoomSize < 3 || cfg.NumCols < 1 || cfg.NumRows < 1 {
		return nil, fmt.Errorf("%w: room_size=%d cols=%d rows=%d", ErrBadShape, cfg.RoomSize, cfg.NumCols, cfg.NumRows)
	}

	e := &Env{
		cfg:    cfg,
		seed:   seed,
		rng:    mathx.NewRand(seed),
		width:  (cfg.RoomSize-1)*cfg.NumCols + 1,
		height: (cfg.RoomSize-1)*cfg.NumRows + 1,
	}
	e.grid = make([]*Cell, e.width*e.height)
	e.genGrid()
	return e, nil
}

func (e *Env) genGrid() {
	rs := e.cfg.RoomSize
	e.rooms = make([]*Room, e.cfg.NumCols*e.cfg.NumRows)
	for j := 0; j < e.cfg.NumRows; j++ {
		for i := 0; i < e.cfg.NumCols; i++ {
			r := &Room{
				Coord: RoomCoord{Col: i, Row: j},
				Top:   Pos{X: i * (rs - 1), Y: j * (rs - 1)},
				Size:  Pos{X: rs, Y: rs},
			}
			e.rooms[j*e.cfg.NumCols+i] = r
			e.wallRect(r.Top, r.Size)
		}
	}

	for j := 0; j < e.cfg.NumRows; j++ {
		for i := 0; i < e.cfg.NumCols; i++ {
			r := e.rooms[j*e.cfg.NumCols+i]
			xl, yl := r.Top.X+1, r.Top.Y+1
			xm, ym := r.Top.X+r.Size.X-1, r.Top.Y+r.Size.Y-1

			if i < e.cfg.NumCols-1 {
				r.Neighbors[DoorRight] = e.rooms[j*e.cfg.NumCols+i+1]
				r.DoorPos[DoorRight] = Pos{X: xm, Y: e.RandInt(yl, ym)}
				r.HasDoorPos[DoorRight] = true
			}
			if j < e.cfg.NumRows-1 {
				r.Neighbors[DoorDown] = e.rooms[(j+1)*e.cfg.NumCols+i]
				r.DoorPos[DoorDown] = Pos{X: e.RandInt(xl, xm), Y: ym}
				r.HasDoorPos[DoorDown] = true
			}
			if i > 0 {
				n := e.rooms[j*e.cfg.NumCols+i-1]
				r.Neighbors[DoorLeft] = n
				r.DoorPos[DoorLeft] = n.DoorPos[DoorRight]
				r.HasDoorPos[DoorLeft] = true
			}
			if j > 0 {
				n := e.rooms[(j-1)*e.cfg.NumCols+i]
				r.Neighbors[DoorUp] = n
				r.DoorPos[DoorUp] = n.DoorPos[DoorDown]
				r.HasDoorPos[DoorUp] = true
			}
		}
	}

	e.start = Pos{
		X: (e.cfg.NumCols/2)*(rs-1) + rs/2,
		Y: (e.cfg.NumRows/2)*(rs-1) + rs/2,
	}
	e.startDir = 0
}

func (e *Env) wallRect(top, size Pos) {
	for x := top.X; x < top.X+size.X; x++ {
		e.set(Pos{X: x, Y: top.Y}, &Cell{Kind: palette.KindWall, Color: palette.Grey})
		e.set(Pos{X: x, Y: top.Y + size.Y - 1}, &Cell{Kind: palette.KindWall, Color: palette.Grey})
	}
	for y := top.Y; y < top.Y+size.Y; y++ {
		e.set(Pos{X: top.X, Y: y}, &Cell{Kind: palette.KindWall, Color: palette.Grey})
		e.set(Pos{X: top.X + size.X - 1, Y: y}, &Cell{Kind: palette.KindWall, Color: palette.Grey})
	}
}

func (e *Env) inBounds(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < e.width && p.Y < e.height
}

func (e *Env) set(p Pos, c *Cell) {
	if !e.inBounds(p) {
		return
	}
	e.grid[p.X+p.Y*e.width] = c
}

// At returns the cell at p, or nil for an empty or out-of-bounds tile.
func (e *Env) At(p Pos) *Cell {
	if !e.inBounds(p) {
		return nil
	}
	return e.grid[p.X+p.Y*e.width]
}

// RandInt returns a value in [lo, hi) from the environment's stream.
func (e *Env) RandInt(lo, hi int) int {
	return e.rng.RandInt(lo, hi)
}

// Draws reports how many values the environment's stream has produced.
func (e *Env) Draws() uint64 { return e.rng.Draws() }

func (e *Env) Seed() int64       { return e.seed }
func (e *Env) Config() Config    { return e.cfg }
func (e *Env) Width() int        { return e.width }
func (e *Env) Height() int       { return e.height }
func (e *Env) NumCols() int      { return e.cfg.NumCols }
func (e *Env) NumRows() int      { return e.cfg.NumRows }
func (e *Env) MaxSteps() int     { return e.cfg.MaxSteps }
func (e *Env) StartPos() Pos     { return e.start }
func (e *Env) StartDir() int     { return e.startDir }
func (e *Env) Objects() []Placed { return e.placed }

// Room returns the room at c, or nil when c is outside the grid.
func (e *Env) Room(c RoomCoord) *Room {
	if c.Col < 0 || c.Row < 0 || c.Col >= e.cfg.NumCols || c.Row >= e.cfg.NumRows {
		return nil
	}
	return e.rooms[c.Row*e.cfg.NumCols+c.Col]
}

// RoomFromPos returns the room containing p. Tiles on a shared wall belong
// to the room to their right or below, except on the last column/row.
func (e *Env) RoomFromPos(p Pos) RoomCoord {
	i := p.X / (e.cfg.RoomSize - 1)
	j := p.Y / (e.cfg.RoomSize - 1)
	if i >= e.cfg.NumCols {
		i = e.cfg.NumCols - 1
	}
	if j >= e.cfg.NumRows {
		j = e.cfg.NumRows - 1
	}
	return RoomCoord{Col: i, Row: j}
}
