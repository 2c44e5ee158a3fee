// Package levelgen turns a list of instructions into a room grid that
// contains every object the instructions refer to, with every room reachable
// from the agent start. Generation is a pure function of the instructions,
// the seed and the Config.
package levelgen

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/palette"
	"roomscene.ai/internal/sim/roomgrid"
)

// Env is what generation needs from the room engine.
type Env interface {
	Sampler
	NumCols() int
	NumRows() int
	StartPos() roomgrid.Pos
	AddDoor(room roomgrid.RoomCoord, door roomgrid.DoorIndex, color palette.Color, locked bool) error
	AddObject(room roomgrid.RoomCoord, kind palette.Kind, color palette.Color, reject func(roomgrid.Pos) bool) error
	ConnectAll() error
}

type Config struct {
	RoomSize    int
	NumCols     int
	NumRows     int
	MaxSteps    int
	Distractors bool

	MaxPlaceTries     int
	MaxConnectIters   int
	MaxSampleAttempts int
}

func DefaultConfig() Config {
	return Config{
		RoomSize:          7,
		NumCols:           3,
		NumRows:           3,
		MaxSteps:          200,
		MaxPlaceTries:     1000,
		MaxConnectIters:   5000,
		MaxSampleAttempts: 1000,
	}
}

func (c Config) maxSampleAttempts() int {
	if c.MaxSampleAttempts <= 0 {
		return DefaultConfig().MaxSampleAttempts
	}
	return c.MaxSampleAttempts
}

// RoomGridConfig is the engine configuration matching c.
func (c Config) RoomGridConfig() roomgrid.Config {
	return roomgrid.Config{
		RoomSize:        c.RoomSize,
		NumCols:         c.NumCols,
		NumRows:         c.NumRows,
		MaxSteps:        c.MaxSteps,
		MaxPlaceTries:   c.MaxPlaceTries,
		MaxConnectIters: c.MaxConnectIters,
	}
}

// OpenRoomGrid creates and seeds a roomgrid engine for c.
func OpenRoomGrid(c Config, seed int64) (*roomgrid.Env, error) {
	return roomgrid.New(c.RoomGridConfig(), seed)
}

type Builder[E Env] struct {
	Config Config
	Open   func(c Config, seed int64) (E, error)
}

func NewBuilder(c Config) *Builder[*roomgrid.Env] {
	return &Builder[*roomgrid.Env]{Config: c, Open: OpenRoomGrid}
}

type Result[E Env] struct {
	Env E
	// Requirements after normalization and key matching, in placement order.
	Requirements []instr.Object
	Distractors  []palette.Pair
}

// Build generates a scene and reports what was placed. Invalid instructions
// are rejected before the environment is created. A door reaching placement
// without a location panics with *LocationUnresolvedError.
func (b *Builder[E]) Build(instrs []instr.Instr, seed int64) (*Result[E], error) {
	if err := instr.Validate(instrs); err != nil {
		return nil, err
	}
	reqs := instr.Requirements(instrs)

	env, err := b.Open(b.Config, seed)
	if err != nil {
		return nil, fmt.Errorf("open env: %w", err)
	}
	cols, rows := env.NumCols(), env.NumRows()
	if cols < 3 || rows < 3 {
		return nil, fmt.Errorf("%w: %dx%d", ErrGridTooSmall, cols, rows)
	}
	maxAttempts := b.Config.maxSampleAttempts()

	reqs = assignColors(reqs, env)
	reqs, err = assignDoorLocs(reqs, env, cols, rows, maxAttempts)
	if err != nil {
		return nil, err
	}
	reqs = matchKeys(reqs)

	reject := RejectNearStart(env.StartPos())
	if err := populate(env, reqs, reject); err != nil {
		return nil, err
	}
	if err := connect(env); err != nil {
		return nil, err
	}

	res := &Result[E]{Env: env, Requirements: reqs}
	if !b.Config.Distractors {
		return res, nil
	}

	placed := mapset.New[palette.Pair]()
	for _, o := range reqs {
		if !o.IsDoor() {
			placed.Put(o.Pair())
		}
	}
	res.Distractors, err = addDistractors(env, placed, reject, maxAttempts)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Generate is Build without the report.
func (b *Builder[E]) Generate(instrs []instr.Instr, seed int64) (E, error) {
	res, err := b.Build(instrs, seed)
	if err != nil {
		var zero E
		return zero, err
	}
	return res.Env, nil
}

type Option func(*Config)

func WithMaxSteps(n int) Option { return func(c *Config) { c.MaxSteps = n } }

func WithDistractors(on bool) Option { return func(c *Config) { c.Distractors = on } }

// WithConfig replaces the whole configuration; later options still apply.
func WithConfig(cfg Config) Option { return func(c *Config) { *c = cfg } }

// Generate builds a scene on a roomgrid engine with DefaultConfig, 200 max
// steps and no distractors unless opts say otherwise.
func Generate(instrs []instr.Instr, seed int64, opts ...Option) (*roomgrid.Env, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return NewBuilder(cfg).Generate(instrs, seed)
}
