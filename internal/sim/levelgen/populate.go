package levelgen

import (
	"fmt"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/roomgrid"
)

// populate places every requirement in order. Doors go into the slot their
// location names; everything else goes somewhere in the located room.
func populate(env Env, reqs []instr.Object, reject func(roomgrid.Pos) bool) error {
	cols, rows := env.NumCols(), env.NumRows()
	for i, o := range reqs {
		if o.IsDoor() {
			room, door := resolveDoor(cols, rows, o.Loc)
			if err := env.AddDoor(room, door, o.Color, o.Locked()); err != nil {
				return fmt.Errorf("requirement %d: %w", i, err)
			}
			continue
		}
		room := resolveRoom(cols, rows, o.Loc)
		if err := env.AddObject(room, o.Type, o.Color, reject); err != nil {
			return fmt.Errorf("requirement %d: %w", i, err)
		}
	}
	return nil
}

func connect(env Env) error {
	if err := env.ConnectAll(); err != nil {
		return fmt.Errorf("connect rooms: %w", err)
	}
	return nil
}
