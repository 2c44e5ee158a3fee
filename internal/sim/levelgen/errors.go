package levelgen

import (
	"errors"
	"fmt"

	"roomscene.ai/internal/sim/instr"
)

var (
	ErrGridTooSmall       = errors.New("levelgen: grid needs at least 3x3 rooms for locations")
	ErrDoorSlotsExhausted = errors.New("levelgen: no free door slot left")
	ErrSamplingExhausted  = errors.New("levelgen: rejection sampling exhausted")
	ErrDistractorSpace    = errors.New("levelgen: not enough distinct objects to fill every room")
)

// LocationUnresolvedError is the panic value raised when a door reaches
// placement without a location.
type LocationUnresolvedError struct {
	Loc instr.Loc
}

func (e *LocationUnresolvedError) Error() string {
	if e.Loc == instr.LocNone {
		return "levelgen: door without location"
	}
	return fmt.Sprintf("levelgen: door with unknown location %q", e.Loc)
}
