package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/palette"
	"roomscene.ai/internal/sim/roomgrid"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	SceneID string `json:"scene_id"`
	Seed    int64  `json:"seed"`
}

type SceneV1 struct {
	Header Header `json:"header"`

	// Generation inputs, enough to regenerate the scene.
	Config levelgen.Config `json:"config"`
	Instrs []instr.Instr   `json:"instrs"`

	Requirements []instr.Object `json:"requirements"`
	Distractors  []palette.Pair `json:"distractors,omitempty"`
	Objects      []ObjectV1     `json:"objects"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	StartPos     [2]int         `json:"start_pos"`
	StartDir     int            `json:"start_dir"`
	MaxSteps     int            `json:"max_steps"`
	Grid         []byte         `json:"grid"`
	Digest       string         `json:"digest"`
}

type ObjectV1 struct {
	Room  [2]int        `json:"room"`
	Pos   [2]int        `json:"pos"`
	Kind  palette.Kind  `json:"kind"`
	Color palette.Color `json:"color"`
}

// SceneID names a scene by its seed and grid digest.
func SceneID(seed int64, digest string) string {
	if len(digest) > 12 {
		digest = digest[:12]
	}
	return fmt.Sprintf("s%d-%s", seed, digest)
}

// FromResult captures a generated scene together with its inputs.
func FromResult(cfg levelgen.Config, instrs []instr.Instr, res *levelgen.Result[*roomgrid.Env]) SceneV1 {
	env := res.Env
	digest := env.Digest()
	s := SceneV1{
		Header: Header{
			Version: Version,
			SceneID: SceneID(env.Seed(), digest),
			Seed:    env.Seed(),
		},
		Config:       cfg,
		Instrs:       instrs,
		Requirements: res.Requirements,
		Distractors:  res.Distractors,
		Width:        env.Width(),
		Height:       env.Height(),
		StartPos:     [2]int{env.StartPos().X, env.StartPos().Y},
		StartDir:     env.StartDir(),
		MaxSteps:     env.MaxSteps(),
		Grid:         env.Encode(),
		Digest:       digest,
	}
	for _, p := range env.Objects() {
		s.Objects = append(s.Objects, ObjectV1{
			Room:  [2]int{p.Room.Col, p.Room.Row},
			Pos:   [2]int{p.Pos.X, p.Pos.Y},
			Kind:  p.Cell.Kind,
			Color: p.Cell.Color,
		})
	}
	return s
}

// WriteScene stores s at path. A partially written file is removed.
func WriteScene(path string, s SceneV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	err = encodeScene(f, s)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// encodeScene writes the JSON header line and the gob body through zstd and
// returns the first error from writing, flushing or closing the stream.
func encodeScene(w io.Writer, s SceneV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	err = writeBody(bw, s)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeBody(bw *bufio.Writer, s SceneV1) error {
	hb, err := json.Marshal(s.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&s); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadScene(path string) (SceneV1, error) {
	var s SceneV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return s, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return s, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("gob decode: %w", err)
	}
	if s.Header.Version != Version {
		return s, fmt.Errorf("unsupported scene version %d", s.Header.Version)
	}
	return s, nil
}
