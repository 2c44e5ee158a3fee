package snapshot

import (
	"errors"
	"path/filepath"
	"testing"

	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/palette"
)

func TestScene_WriteReadKeepsGridAndInputs(t *testing.T) {
	cfg := levelgen.DefaultConfig()
	cfg.Distractors = true
	instrs := []instr.Instr{
		{Action: instr.ActionPickup, Object: instr.Object{Type: palette.KindKey, Color: palette.Yellow}},
		{Action: instr.ActionOpen, Object: instr.Object{Type: palette.KindDoor, Color: palette.Yellow, State: palette.StateLocked}},
	}
	res, err := levelgen.NewBuilder(cfg).Build(instrs, 21)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := FromResult(cfg, instrs, res)

	path := filepath.Join(t.TempDir(), "scenes", want.Header.SceneID+".scene.zst")
	if err := WriteScene(path, want); err != nil {
		t.Fatalf("WriteScene: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header=%+v want %+v", h, want.Header)
	}

	got, err := ReadScene(path)
	if err != nil {
		t.Fatalf("ReadScene: %v", err)
	}
	if got.Digest != want.Digest || string(got.Grid) != string(want.Grid) {
		t.Fatalf("grid changed across write/read")
	}
	if got.Config != cfg || len(got.Instrs) != 2 || got.Instrs[1].Object.State != palette.StateLocked {
		t.Fatalf("inputs changed across write/read: %+v", got)
	}
	if len(got.Objects) != len(want.Objects) || len(got.Distractors) != len(want.Distractors) {
		t.Fatalf("objects=%d/%d distractors=%d/%d", len(got.Objects), len(want.Objects), len(got.Distractors), len(want.Distractors))
	}

	// The stored inputs regenerate the same grid.
	again, err := levelgen.NewBuilder(got.Config).Build(got.Instrs, got.Header.Seed)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if again.Env.Digest() != got.Digest {
		t.Fatalf("replayed digest %s want %s", again.Env.Digest(), got.Digest)
	}
}

func TestReadScene_MissingFile(t *testing.T) {
	if _, err := ReadScene(filepath.Join(t.TempDir(), "nope.scene.zst")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}

// shortWriter accepts limit bytes and then fails every write.
type shortWriter struct {
	limit int
	n     int
}

var errDiskFull = errors.New("disk full")

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errDiskFull
	}
	w.n += len(p)
	return len(p), nil
}

func TestEncodeScene_ReportsFlushFailure(t *testing.T) {
	s := SceneV1{Header: Header{Version: Version, SceneID: "s1-abc", Seed: 1}, Grid: make([]byte, 4096)}
	for _, limit := range []int{0, 8} {
		if err := encodeScene(&shortWriter{limit: limit}, s); err == nil {
			t.Fatalf("limit %d: truncated write reported success", limit)
		}
	}
	if err := encodeScene(&shortWriter{limit: 1 << 20}, s); err != nil {
		t.Fatalf("encodeScene: %v", err)
	}
}
