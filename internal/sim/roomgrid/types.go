package roomgrid

import (
	"errors"

	"roomscene.ai/internal/sim/palette"
)

var (
	ErrBadShape           = errors.New("roomgrid: bad grid shape")
	ErrNoRoom             = errors.New("roomgrid: room out of range")
	ErrBadDoorIndex       = errors.New("roomgrid: door index out of range")
	ErrNoNeighbor         = errors.New("roomgrid: no neighbor behind wall")
	ErrDoorExists         = errors.New("roomgrid: door already exists")
	ErrPlacementExhausted = errors.New("roomgrid: rejection sampling failed in place_obj")
	ErrConnectExhausted   = errors.New("roomgrid: connect_all failed")
	ErrUnconnectable      = errors.New("roomgrid: locked rooms cut off part of the grid")
)

// Pos is a tile position; X grows east, Y grows south.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type RoomCoord struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// DoorIndex selects a wall of a room.
type DoorIndex int

const (
	DoorRight DoorIndex = 0
	DoorDown  DoorIndex = 1
	DoorLeft  DoorIndex = 2
	DoorUp    DoorIndex = 3
)

// Opposite returns the index of the same wall seen from the neighbor.
func (d DoorIndex) Opposite() DoorIndex { return (d + 2) % 4 }

type Cell struct {
	Kind   palette.Kind
	Color  palette.Color
	Locked bool
	Open   bool
}

func (c *Cell) state() uint8 {
	if c.Kind != palette.KindDoor {
		return 0
	}
	switch {
	case c.Locked:
		return palette.DoorLocked
	case c.Open:
		return palette.DoorOpen
	default:
		return palette.DoorClosed
	}
}

// Placed is an object put into a room by AddObject.
type Placed struct {
	Room RoomCoord
	Pos  Pos
	Cell *Cell
}

type Room struct {
	Coord RoomCoord
	// Top is the top-left wall tile; Size includes the walls.
	Top  Pos
	Size Pos

	Neighbors  [4]*Room
	DoorPos    [4]Pos
	HasDoorPos [4]bool
	Doors      [4]*Cell

	// Locked is set by the last AddDoor on this room. ConnectAll never opens
	// a new wall into a locked room.
	Locked bool

	Objects []*Cell
}

type Config struct {
	RoomSize int
	NumCols  int
	NumRows  int
	MaxSteps int

	MaxPlaceTries   int
	MaxConnectIters int
}

func (c *Config) applyDefaults() {
	if c.RoomSize == 0 {
		c.RoomSize = 7
	}
	if c.NumCols == 0 {
		c.NumCols = 3
	}
	if c.NumRows == 0 {
		c.NumRows = 3
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 200
	}
	if c.MaxPlaceTries <= 0 {
		c.MaxPlaceTries = 1000
	}
	if c.MaxConnectIters <= 0 {
		c.MaxConnectIters = 5000
	}
}
