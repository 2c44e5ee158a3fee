// Package palette holds the object and color vocabulary shared by the room
// engine and the level generator, plus the stable index tables used when a
// grid is encoded.
package palette

type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Blue   Color = "blue"
	Purple Color = "purple"
	Yellow Color = "yellow"
	Grey   Color = "grey"
)

// ColorNames is the sampling order for colors. Changing it changes every
// seeded scene.
var ColorNames = []Color{Red, Green, Blue, Purple, Yellow, Grey}

type Kind string

const (
	KindEmpty Kind = "empty"
	KindWall  Kind = "wall"
	KindDoor  Kind = "door"
	KindKey   Kind = "key"
	KindBall  Kind = "ball"
	KindBox   Kind = "box"
)

// PickableKinds are the object kinds that can be placed inside a room.
var PickableKinds = []Kind{KindKey, KindBall, KindBox}

type State string

const (
	StateNone   State = ""
	StateLocked State = "locked"
)

// Door cell states in the encoded grid.
const (
	DoorOpen   uint8 = 0
	DoorClosed uint8 = 1
	DoorLocked uint8 = 2
)

var kindIndex = map[Kind]uint8{
	KindEmpty: 1,
	KindWall:  2,
	KindDoor:  4,
	KindKey:   5,
	KindBall:  6,
	KindBox:   7,
}

var colorIndex = map[Color]uint8{
	Red:    0,
	Green:  1,
	Blue:   2,
	Purple: 3,
	Yellow: 4,
	Grey:   5,
}

// KindIndex returns the encoding index of k, or 0 for an unknown kind.
func KindIndex(k Kind) uint8 { return kindIndex[k] }

// ColorIndex returns the encoding index of c. Unknown colors encode as 0.
func ColorIndex(c Color) uint8 { return colorIndex[c] }

func ValidColor(c Color) bool {
	_, ok := colorIndex[c]
	return ok
}

// ValidState reports whether s is a state an instruction may request. Only
// doors act on it.
func ValidState(s State) bool {
	return s == StateNone || s == StateLocked
}

// ValidObjectKind reports whether k can be requested by an instruction.
func ValidObjectKind(k Kind) bool {
	switch k {
	case KindKey, KindBall, KindBox, KindDoor:
		return true
	default:
		return false
	}
}

// Pair is an object reduced to its identity for uniqueness checks.
type Pair struct {
	Kind  Kind  `json:"kind"`
	Color Color `json:"color"`
}
