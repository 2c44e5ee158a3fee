package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	persistlog "roomscene.ai/internal/persistence/log"
	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/palette"
)

func TestVerifyScene(t *testing.T) {
	instrs := []instr.Instr{{Action: instr.ActionOpen, Object: instr.Object{Type: palette.KindDoor, Color: palette.Green, State: palette.StateLocked}}}
	cfg := levelgen.DefaultConfig()
	cfg.Distractors = true
	res, err := levelgen.NewBuilder(cfg).Build(instrs, 77)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sc := snapshot.FromResult(cfg, instrs, res)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.scene.zst")
	if err := snapshot.WriteScene(good, sc); err != nil {
		t.Fatalf("WriteScene: %v", err)
	}
	if err := verifyScene(good); err != nil {
		t.Fatalf("verifyScene: %v", err)
	}

	sc.Header.Seed = 78
	bad := filepath.Join(dir, "bad.scene.zst")
	if err := snapshot.WriteScene(bad, sc); err != nil {
		t.Fatalf("WriteScene: %v", err)
	}
	if err := verifyScene(bad); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}

	paths, err := listFiles(dir, "", ".scene.zst")
	if err != nil || len(paths) != 2 || filepath.Base(paths[0]) != "bad.scene.zst" {
		t.Fatalf("listFiles=%v err=%v", paths, err)
	}
}

func TestReplayFailures(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewFailureLogger(dir)

	five := make([]instr.Instr, 5)
	for i := range five {
		five[i] = instr.Instr{Action: instr.ActionOpen, Object: instr.Object{Type: palette.KindDoor}}
	}
	entries := []levelgen.GenLogEntry{
		levelgen.NewGenLogEntry(five, 1, nil, 0, levelgen.ErrDoorSlotsExhausted),
		// Logged as failed, but generates under the current code.
		levelgen.NewGenLogEntry(five[:2], 2, nil, 0, errors.New("old bug")),
	}
	for _, e := range entries {
		if err := l.WriteFailure(e); err != nil {
			t.Fatalf("WriteFailure: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var out bytes.Buffer
	still, fixed, err := replayFailures(filepath.Join(dir, "failures"), levelgen.DefaultConfig(), &out)
	if err != nil {
		t.Fatalf("replayFailures: %v", err)
	}
	if still != 1 || fixed != 1 {
		t.Fatalf("still=%d fixed=%d out=%s", still, fixed, out.String())
	}
}
