package roomgrid

import (
	"fmt"

	"roomscene.ai/internal/sim/palette"
)

// AddDoor puts a door in wall idx of room c and links it on both sides.
// The room's Locked flag takes the value of locked.
func (e *Env) AddDoor(c RoomCoord, idx DoorIndex, color palette.Color, locked bool) error {
	r := e.Room(c)
	if r == nil {
		return fmt.Errorf("add door %+v: %w", c, ErrNoRoom)
	}
	if idx < DoorRight || idx > DoorUp {
		return fmt.Errorf("add door %+v/%d: %w", c, idx, ErrBadDoorIndex)
	}
	if !r.HasDoorPos[idx] || r.Neighbors[idx] == nil {
		return fmt.Errorf("add door %+v/%d: %w", c, idx, ErrNoNeighbor)
	}
	if r.Doors[idx] != nil {
		return fmt.Errorf("add door %+v/%d: %w", c, idx, ErrDoorExists)
	}

	r.Locked = locked
	door := &Cell{Kind: palette.KindDoor, Color: color, Locked: locked}
	e.set(r.DoorPos[idx], door)
	r.Doors[idx] = door
	r.Neighbors[idx].Doors[idx.Opposite()] = door
	return nil
}

// AddObject places a new object somewhere inside room c. Candidate tiles are
// drawn until one is empty, is not the agent start and is not rejected.
func (e *Env) AddObject(c RoomCoord, kind palette.Kind, color palette.Color, reject func(Pos) bool) error {
	r := e.Room(c)
	if r == nil {
		return fmt.Errorf("add object %+v: %w", c, ErrNoRoom)
	}
	obj := &Cell{Kind: kind, Color: color}
	pos, err := e.placeObj(obj, r.Top, r.Size, reject)
	if err != nil {
		return fmt.Errorf("add %s %s in %+v: %w", color, kind, c, err)
	}
	r.Objects = append(r.Objects, obj)
	e.placed = append(e.placed, Placed{Room: c, Pos: pos, Cell: obj})
	return nil
}

func (e *Env) placeObj(obj *Cell, top, size Pos, reject func(Pos) bool) (Pos, error) {
	xHi := min(top.X+size.X, e.width)
	yHi := min(top.Y+size.Y, e.height)
	for tries := 0; tries < e.cfg.MaxPlaceTries; tries++ {
		p := Pos{
			X: e.RandInt(top.X, xHi),
			Y: e.RandInt(top.Y, yHi),
		}
		if e.At(p) != nil {
			continue
		}
		if p == e.start {
			continue
		}
		if reject != nil && reject(p) {
			continue
		}
		e.set(p, obj)
		return p, nil
	}
	return Pos{}, ErrPlacementExhausted
}
