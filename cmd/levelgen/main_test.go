package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roomscene.ai/internal/persistence/snapshot"
)

func writeInstrs(t *testing.T, doc string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "instrs.json")
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestRun_WritesScenesInSeedOrder(t *testing.T) {
	data := t.TempDir()
	o := options{
		InstrsPath: writeInstrs(t, `[{"action":"pickup","object":{"type":"key","color":"red","loc":"front"}},{"action":"drop","object":{"type":"key"}}]`),
		Seed:       10,
		Count:      5,
		Workers:    3,
		DataDir:    data,
		Logs:       true,
	}
	var out bytes.Buffer
	failed, err := run(context.Background(), o, &out, nil)
	if err != nil || failed != 0 {
		t.Fatalf("run: failed=%d err=%v", failed, err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines=%q", lines)
	}
	for i, line := range lines {
		f := strings.Split(line, "\t")
		if len(f) != 3 || f[0] != []string{"10", "11", "12", "13", "14"}[i] {
			t.Fatalf("line %d=%q", i, line)
		}
		sc, err := snapshot.ReadScene(f[2])
		if err != nil {
			t.Fatalf("ReadScene: %v", err)
		}
		if sc.Digest != f[1] {
			t.Fatalf("digest=%s want %s", sc.Digest, f[1])
		}
	}
	if _, err := os.Stat(filepath.Join(data, "index", "scenes.sqlite")); err != nil {
		t.Fatalf("index missing: %v", err)
	}
}

func TestRun_DryRunReportsFailures(t *testing.T) {
	doors := `[` + strings.Repeat(`{"action":"open","object":{"type":"door"}},`, 4) + `{"action":"open","object":{"type":"door"}}]`
	o := options{InstrsPath: writeInstrs(t, doors), Count: 2, Workers: 2, DryRun: true}
	var out bytes.Buffer
	failed, err := run(context.Background(), o, &out, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 2 || strings.Count(out.String(), "\terror\t") != 2 {
		t.Fatalf("failed=%d out=%q", failed, out.String())
	}
}

func TestRun_RejectsBadInstrs(t *testing.T) {
	o := options{InstrsPath: writeInstrs(t, `[{"action":"goto","object":{"type":"dragon"}}]`), DryRun: true}
	if _, err := run(context.Background(), o, &bytes.Buffer{}, nil); err == nil {
		t.Fatalf("expected a decode error")
	}
}
