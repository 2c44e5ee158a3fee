package levelgen

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"roomscene.ai/internal/sim/palette"
	"roomscene.ai/internal/sim/roomgrid"
)

// addDistractors places objects with new (kind, color) pairs in random rooms
// until placed holds one pair per room. Pairs are added to placed as they
// are drawn.
func addDistractors(env Env, placed mapset.Set[palette.Pair], reject func(roomgrid.Pos) bool, maxAttempts int) ([]palette.Pair, error) {
	target := env.NumCols() * env.NumRows()
	if space := len(palette.PickableKinds) * len(palette.ColorNames); target > space {
		return nil, fmt.Errorf("%w: %d rooms, %d pairs", ErrDistractorSpace, target, space)
	}

	var added []palette.Pair
	for placed.Size() < target {
		p, ok := drawNewPair(env, placed, maxAttempts)
		if !ok {
			return added, fmt.Errorf("distractor %d: %w after %d draws", len(added), ErrSamplingExhausted, maxAttempts)
		}
		placed.Put(p)
		added = append(added, p)

		room := roomgrid.RoomCoord{
			Col: env.RandInt(0, env.NumCols()),
			Row: env.RandInt(0, env.NumRows()),
		}
		if err := env.AddObject(room, p.Kind, p.Color, reject); err != nil {
			return added, fmt.Errorf("distractor %d: %w", len(added)-1, err)
		}
	}
	return added, nil
}

func drawNewPair(s Sampler, placed mapset.Set[palette.Pair], maxAttempts int) (palette.Pair, bool) {
	for n := 0; n < maxAttempts; n++ {
		color := pick(s, palette.ColorNames)
		kind := pick(s, palette.PickableKinds)
		p := palette.Pair{Kind: kind, Color: color}
		if !placed.Has(p) {
			return p, true
		}
	}
	return palette.Pair{}, false
}
