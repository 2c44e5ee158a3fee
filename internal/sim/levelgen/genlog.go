package levelgen

import (
	"time"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/roomgrid"
)

// GenLogEntry records one generation attempt.
type GenLogEntry struct {
	Time         time.Time `json:"time"`
	Seed         int64     `json:"seed"`
	InstrDigest  string    `json:"instr_digest"`
	GridDigest   string    `json:"grid_digest,omitempty"`
	Requirements int       `json:"requirements"`
	Distractors  int       `json:"distractors"`
	Doors        int       `json:"doors"`
	Draws        uint64    `json:"draws"`
	DurationMs   float64   `json:"duration_ms"`
	Source       string    `json:"source,omitempty"`
	Err          string    `json:"err,omitempty"`

	// Instrs is kept on failures only so they can be replayed.
	Instrs []instr.Instr `json:"instrs,omitempty"`
}

// NewGenLogEntry summarizes a Build call. res may be nil when err is set.
func NewGenLogEntry(instrs []instr.Instr, seed int64, res *Result[*roomgrid.Env], dur time.Duration, err error) GenLogEntry {
	e := GenLogEntry{
		Time:        time.Now().UTC(),
		Seed:        seed,
		InstrDigest: instr.Digest(instrs),
		DurationMs:  float64(dur.Microseconds()) / 1000,
	}
	if err != nil {
		e.Err = err.Error()
		e.Instrs = instrs
	}
	if res != nil && res.Env != nil {
		e.GridDigest = res.Env.Digest()
		e.Requirements = len(res.Requirements)
		e.Distractors = len(res.Distractors)
		e.Doors = res.Env.DoorCount()
		e.Draws = res.Env.Draws()
	}
	return e
}
