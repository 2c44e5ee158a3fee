package levelgen

import (
	"roomscene.ai/internal/sim/mathx"
	"roomscene.ai/internal/sim/roomgrid"
)

// RejectNearStart returns a placement filter that refuses tiles within
// Manhattan distance 1 of start.
func RejectNearStart(start roomgrid.Pos) func(roomgrid.Pos) bool {
	return func(p roomgrid.Pos) bool {
		return mathx.Manhattan(start.X, start.Y, p.X, p.Y) < 2
	}
}
