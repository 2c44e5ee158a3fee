package instr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"roomscene.ai/internal/sim/palette"
)

type Action string

const (
	ActionPickup Action = "pickup"
	ActionGoTo   Action = "goto"
	ActionOpen   Action = "open"
	ActionDrop   Action = "drop"
)

// Materializes reports whether the object referenced by a is required to
// exist in the generated scene. Other actions refer to objects an earlier
// instruction already brought in.
func (a Action) Materializes() bool {
	switch a {
	case ActionPickup, ActionGoTo, ActionOpen:
		return true
	default:
		return false
	}
}

// Loc is a symbolic location. The empty Loc means "no location".
type Loc string

const (
	LocNone Loc = ""

	// Absolute.
	LocNorth Loc = "north"
	LocSouth Loc = "south"
	LocEast  Loc = "east"
	LocWest  Loc = "west"

	// Relative to the agent, which starts facing east.
	LocLeft   Loc = "left"
	LocRight  Loc = "right"
	LocFront  Loc = "front"
	LocBehind Loc = "behind"
)

// AbsoluteLocs is the sampling order used when a door has no location.
var AbsoluteLocs = []Loc{LocNorth, LocSouth, LocWest, LocEast}

func KnownLoc(l Loc) bool {
	switch l {
	case LocNorth, LocSouth, LocEast, LocWest, LocLeft, LocRight, LocFront, LocBehind:
		return true
	default:
		return false
	}
}

// Object describes an object an instruction refers to. Color, Loc and State
// may be left empty.
type Object struct {
	Type  palette.Kind  `json:"type"`
	Color palette.Color `json:"color,omitempty"`
	Loc   Loc           `json:"loc,omitempty"`
	State palette.State `json:"state,omitempty"`
}

func (o Object) Locked() bool { return o.State == palette.StateLocked }

func (o Object) IsDoor() bool { return o.Type == palette.KindDoor }

func (o Object) Pair() palette.Pair { return palette.Pair{Kind: o.Type, Color: o.Color} }

type Instr struct {
	Action Action `json:"action"`
	Object Object `json:"object"`
}

var ErrInvalid = errors.New("invalid instruction")

// Validate checks every instruction against the known vocabulary.
func Validate(instrs []Instr) error {
	for i, in := range instrs {
		if in.Action == "" {
			return fmt.Errorf("instr %d: %w: empty action", i, ErrInvalid)
		}
		o := in.Object
		if !palette.ValidObjectKind(o.Type) {
			return fmt.Errorf("instr %d: %w: unknown object type %q", i, ErrInvalid, o.Type)
		}
		if o.Color != "" && !palette.ValidColor(o.Color) {
			return fmt.Errorf("instr %d: %w: unknown color %q", i, ErrInvalid, o.Color)
		}
		if o.Loc != LocNone && !KnownLoc(o.Loc) {
			return fmt.Errorf("instr %d: %w: unknown location %q", i, ErrInvalid, o.Loc)
		}
		if !palette.ValidState(o.State) {
			return fmt.Errorf("instr %d: %w: unknown state %q", i, ErrInvalid, o.State)
		}
	}
	return nil
}

// Requirements returns the objects that must be placed for instrs, in
// instruction order.
func Requirements(instrs []Instr) []Object {
	out := make([]Object, 0, len(instrs))
	for _, in := range instrs {
		if in.Action.Materializes() {
			out = append(out, in.Object)
		}
	}
	return out
}

// Digest is the hex sha256 of the JSON encoding of instrs. Equal lists have
// equal digests.
func Digest(instrs []Instr) string {
	if instrs == nil {
		instrs = []Instr{}
	}
	b, _ := json.Marshal(instrs)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
