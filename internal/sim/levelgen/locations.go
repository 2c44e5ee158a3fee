package levelgen

import (
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/roomgrid"
)

// locSlot places a location relative to the center room. Door is the wall
// of that room which faces the center.
type locSlot struct {
	dCol, dRow int
	door       roomgrid.DoorIndex
}

// The agent starts facing east, so each relative token lands on the same
// room and door as one absolute token.
var locTable = map[instr.Loc]locSlot{
	instr.LocNorth: {dCol: 0, dRow: -1, door: roomgrid.DoorDown},
	instr.LocSouth: {dCol: 0, dRow: 1, door: roomgrid.DoorUp},
	instr.LocWest:  {dCol: -1, dRow: 0, door: roomgrid.DoorRight},
	instr.LocEast:  {dCol: 1, dRow: 0, door: roomgrid.DoorLeft},

	instr.LocLeft:   {dCol: 0, dRow: -1, door: roomgrid.DoorDown},
	instr.LocRight:  {dCol: 0, dRow: 1, door: roomgrid.DoorUp},
	instr.LocBehind: {dCol: -1, dRow: 0, door: roomgrid.DoorRight},
	instr.LocFront:  {dCol: 1, dRow: 0, door: roomgrid.DoorLeft},
}

func centerRoom(cols, rows int) roomgrid.RoomCoord {
	return roomgrid.RoomCoord{Col: cols / 2, Row: rows / 2}
}

// resolveRoom maps loc to a room. Unknown and empty locations map to the
// center room.
func resolveRoom(cols, rows int, loc instr.Loc) roomgrid.RoomCoord {
	c := centerRoom(cols, rows)
	s, ok := locTable[loc]
	if !ok {
		return c
	}
	return roomgrid.RoomCoord{Col: c.Col + s.dCol, Row: c.Row + s.dRow}
}

// resolveDoor maps loc to the door slot between the center room and the room
// in that direction. It panics when loc is not a known location: every door
// must have been given one during normalization.
func resolveDoor(cols, rows int, loc instr.Loc) (roomgrid.RoomCoord, roomgrid.DoorIndex) {
	s, ok := locTable[loc]
	if !ok {
		panic(&LocationUnresolvedError{Loc: loc})
	}
	c := centerRoom(cols, rows)
	return roomgrid.RoomCoord{Col: c.Col + s.dCol, Row: c.Row + s.dRow}, s.door
}
