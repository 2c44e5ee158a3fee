package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"roomscene.ai/internal/sim/levelgen"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	RoomSize    int  `yaml:"room_size"`
	NumCols     int  `yaml:"num_cols"`
	NumRows     int  `yaml:"num_rows"`
	MaxSteps    int  `yaml:"max_steps"`
	Distractors bool `yaml:"distractors"`

	Limits Limits `yaml:"limits"`
}

// Limits bound every retry loop of the generator.
type Limits struct {
	MaxPlaceTries     int `yaml:"max_place_tries"`
	MaxConnectIters   int `yaml:"max_connect_iters"`
	MaxSampleAttempts int `yaml:"max_sample_attempts"`
}

func Defaults() Tuning {
	d := levelgen.DefaultConfig()
	return Tuning{
		ProtocolVersion: "1.0",
		RoomSize:        d.RoomSize,
		NumCols:         d.NumCols,
		NumRows:         d.NumRows,
		MaxSteps:        d.MaxSteps,
		Distractors:     d.Distractors,
		Limits: Limits{
			MaxPlaceTries:     d.MaxPlaceTries,
			MaxConnectIters:   d.MaxConnectIters,
			MaxSampleAttempts: d.MaxSampleAttempts,
		},
	}
}

// Load reads a tuning file over Defaults. An empty path returns Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.RoomSize < 3 {
		return fmt.Errorf("room_size must be >= 3, got %d", t.RoomSize)
	}
	if t.NumCols < 3 || t.NumRows < 3 {
		return fmt.Errorf("grid must be at least 3x3 rooms, got %dx%d", t.NumCols, t.NumRows)
	}
	if t.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be > 0")
	}
	if t.Limits.MaxPlaceTries <= 0 || t.Limits.MaxConnectIters <= 0 || t.Limits.MaxSampleAttempts <= 0 {
		return fmt.Errorf("limits must be > 0")
	}
	return nil
}

func (t Tuning) GenConfig() levelgen.Config {
	return levelgen.Config{
		RoomSize:          t.RoomSize,
		NumCols:           t.NumCols,
		NumRows:           t.NumRows,
		MaxSteps:          t.MaxSteps,
		Distractors:       t.Distractors,
		MaxPlaceTries:     t.Limits.MaxPlaceTries,
		MaxConnectIters:   t.Limits.MaxConnectIters,
		MaxSampleAttempts: t.Limits.MaxSampleAttempts,
	}
}
