package roomgrid

import (
	"fmt"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"roomscene.ai/internal/sim/palette"
)

// ConnectAll adds unlocked doors at random until every room is reachable
// from the start room. Walls of locked rooms are left alone, so a grid where
// locked rooms wall off other rooms fails with ErrUnconnectable before any
// door is drawn.
func (e *Env) ConnectAll() error {
	start := e.RoomFromPos(e.start)
	total := len(e.rooms)
	if n := e.openable(start).Size(); n < total {
		return fmt.Errorf("%w: %d of %d rooms can be reached", ErrUnconnectable, n, total)
	}

	for itr := 0; ; itr++ {
		if itr > e.cfg.MaxConnectIters {
			return fmt.Errorf("%w after %d iterations", ErrConnectExhausted, e.cfg.MaxConnectIters)
		}
		if e.reach(start).Size() == total {
			return nil
		}

		i := e.RandInt(0, e.cfg.NumCols)
		j := e.RandInt(0, e.cfg.NumRows)
		k := DoorIndex(e.RandInt(0, 4))
		r := e.Room(RoomCoord{Col: i, Row: j})
		if !r.HasDoorPos[k] || r.Doors[k] != nil {
			continue
		}
		if !canOpen(r, k) {
			continue
		}
		color := palette.ColorNames[e.RandInt(0, len(palette.ColorNames))]
		if err := e.AddDoor(r.Coord, k, color, false); err != nil {
			return err
		}
	}
}

func (e *Env) reach(from RoomCoord) mapset.Set[RoomCoord] {
	return e.walk(from, func(r *Room, k DoorIndex) bool { return r.Doors[k] != nil })
}

// openable is the set of rooms reachable once every wall ConnectAll may
// still open has a door.
func (e *Env) openable(from RoomCoord) mapset.Set[RoomCoord] {
	return e.walk(from, func(r *Room, k DoorIndex) bool {
		if r.Doors[k] != nil {
			return true
		}
		return r.HasDoorPos[k] && canOpen(r, k)
	})
}

func canOpen(r *Room, k DoorIndex) bool {
	return !r.Locked && !r.Neighbors[k].Locked
}

func (e *Env) walk(from RoomCoord, pass func(*Room, DoorIndex) bool) mapset.Set[RoomCoord] {
	seen := mapset.New[RoomCoord]()
	queue := []*Room{e.Room(from)}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if seen.Has(r.Coord) {
			continue
		}
		seen.Put(r.Coord)
		for k := DoorRight; k <= DoorUp; k++ {
			if r.Neighbors[k] == nil || !pass(r, k) {
				continue
			}
			if n := r.Neighbors[k]; !seen.Has(n.Coord) {
				queue = append(queue, n)
			}
		}
	}
	return seen
}

// ReachableRooms lists, in row-major order, the rooms reachable from the
// agent's start room through doors of any state.
func (e *Env) ReachableRooms() []RoomCoord {
	seen := e.reach(e.RoomFromPos(e.start))
	out := make([]RoomCoord, 0, seen.Size())
	seen.Each(func(c RoomCoord) {
		out = append(out, c)
	})
	sort.Slice(out, func(a, b int) bool {
		if out[a].Row != out[b].Row {
			return out[a].Row < out[b].Row
		}
		return out[a].Col < out[b].Col
	})
	return out
}
