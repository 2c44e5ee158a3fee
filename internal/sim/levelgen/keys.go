package levelgen

import (
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/palette"
)

// matchKeys appends a key of the door's color for every locked door that
// has none among the requirements. Door colors must already be assigned.
func matchKeys(reqs []instr.Object) []instr.Object {
	out := make([]instr.Object, len(reqs), len(reqs)+1)
	copy(out, reqs)
	for _, d := range reqs {
		if !d.IsDoor() || !d.Locked() {
			continue
		}
		if hasKey(out, d.Color) {
			continue
		}
		out = append(out, instr.Object{Type: palette.KindKey, Color: d.Color})
	}
	return out
}

func hasKey(reqs []instr.Object, color palette.Color) bool {
	for _, o := range reqs {
		if o.Type == palette.KindKey && o.Color == color {
			return true
		}
	}
	return false
}
