package levelgen

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/palette"
	"roomscene.ai/internal/sim/roomgrid"
)

// assignColors gives every colorless requirement a random color. The result
// keeps the order of reqs; reqs itself is not modified.
func assignColors(reqs []instr.Object, s Sampler) []instr.Object {
	out := make([]instr.Object, len(reqs))
	for i, o := range reqs {
		if o.Color == "" {
			o.Color = pick(s, palette.ColorNames)
		}
		out[i] = o
	}
	return out
}

type doorSlot struct {
	room roomgrid.RoomCoord
	door roomgrid.DoorIndex
}

// assignDoorLocs gives every door without a location one of the absolute
// locations whose slot no other door occupies. Doors that came with a
// location keep it and count as occupying their slot.
func assignDoorLocs(reqs []instr.Object, s Sampler, cols, rows, maxAttempts int) ([]instr.Object, error) {
	out := make([]instr.Object, len(reqs))
	copy(out, reqs)

	slotOf := func(loc instr.Loc) doorSlot {
		room, door := resolveDoor(cols, rows, loc)
		return doorSlot{room: room, door: door}
	}

	taken := mapset.New[doorSlot]()
	for _, o := range out {
		if o.IsDoor() && o.Loc != instr.LocNone {
			taken.Put(slotOf(o.Loc))
		}
	}

	for i, o := range out {
		if !o.IsDoor() || o.Loc != instr.LocNone {
			continue
		}
		free := 0
		for _, l := range instr.AbsoluteLocs {
			if !taken.Has(slotOf(l)) {
				free++
			}
		}
		if free == 0 {
			return nil, fmt.Errorf("door requirement %d (%s): %w", i, o.Color, ErrDoorSlotsExhausted)
		}

		loc, err := sampleUntil(s, instr.AbsoluteLocs, maxAttempts, func(l instr.Loc) bool {
			return !taken.Has(slotOf(l))
		})
		if err != nil {
			return nil, fmt.Errorf("door requirement %d (%s): %w", i, o.Color, err)
		}
		taken.Put(slotOf(loc))
		o.Loc = loc
		out[i] = o
	}
	return out, nil
}
