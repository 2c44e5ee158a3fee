// Command replay regenerates stored scenes and checks that the result is
// bit-identical, or re-runs logged failures to see whether they still fail.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"roomscene.ai/internal/persistence/indexdb"
	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/roomgrid"
	"roomscene.ai/internal/sim/tuning"
)

func main() {
	var (
		scenePath   = flag.String("scene", "", "path to a .scene.zst file")
		scenesDir   = flag.String("scenes", "", "verify every .scene.zst in this directory")
		dbPath      = flag.String("db", "", "sqlite index used to resolve -id")
		sceneID     = flag.String("id", "", "scene id to look up in -db")
		failuresDir = flag.String("failures", "", "directory of failures-*.jsonl.zst to re-run")
		tuningPath  = flag.String("tuning", "", "tuning.yaml used to re-run failures (empty: defaults)")
	)
	flag.Parse()

	var paths []string
	switch {
	case *scenePath != "":
		paths = []string{*scenePath}
	case *scenesDir != "":
		ps, err := listFiles(*scenesDir, "", ".scene.zst")
		if err != nil {
			fatal("list scenes", err)
		}
		paths = ps
	case *sceneID != "":
		if *dbPath == "" {
			fmt.Fprintln(os.Stderr, "-id needs -db")
			os.Exit(2)
		}
		p, err := lookup(*dbPath, *sceneID)
		if err != nil {
			fatal("lookup", err)
		}
		paths = []string{p}
	case *failuresDir != "":
		tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
		if err != nil {
			fatal("load tuning", err)
		}
		still, fixed, err := replayFailures(*failuresDir, tune.GenConfig(), os.Stdout)
		if err != nil {
			fatal("replay failures", err)
		}
		fmt.Printf("failures: still_failing=%d now_ok=%d\n", still, fixed)
		return
	default:
		fmt.Fprintln(os.Stderr, "need one of -scene, -scenes, -id or -failures")
		os.Exit(2)
	}

	bad := 0
	for _, p := range paths {
		if err := verifyScene(p); err != nil {
			bad++
			fmt.Printf("FAIL %s: %v\n", p, err)
			continue
		}
		fmt.Printf("ok   %s\n", p)
	}
	fmt.Printf("replay: checked=%d mismatched=%d\n", len(paths), bad)
	if bad > 0 {
		os.Exit(1)
	}
}

func fatal(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

// verifyScene regenerates the scene at path from its stored inputs and
// compares the full grid and the digest.
func verifyScene(path string) error {
	sc, err := snapshot.ReadScene(path)
	if err != nil {
		return err
	}
	res, err := levelgen.NewBuilder(sc.Config).Build(sc.Instrs, sc.Header.Seed)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	got := snapshot.FromResult(sc.Config, sc.Instrs, res)
	if got.Digest != sc.Digest {
		return fmt.Errorf("digest mismatch: got=%s want=%s", got.Digest, sc.Digest)
	}
	if string(got.Grid) != string(sc.Grid) {
		return errors.New("grid mismatch with equal digest")
	}
	if got.StartPos != sc.StartPos || got.StartDir != sc.StartDir {
		return fmt.Errorf("start mismatch: got=%v/%d want=%v/%d", got.StartPos, got.StartDir, sc.StartPos, sc.StartDir)
	}
	return nil
}

func lookup(dbPath, id string) (string, error) {
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		return "", err
	}
	defer idx.Close()
	row, err := idx.SceneByID(context.Background(), id)
	if err != nil {
		return "", fmt.Errorf("scene %s: %w", id, err)
	}
	return row.Path, nil
}

// replayFailures re-runs every logged failure with cfg. A failure counts as
// fixed when it now generates.
func replayFailures(dir string, cfg levelgen.Config, out io.Writer) (still, fixed int, err error) {
	files, err := listFiles(dir, "failures-", ".jsonl.zst")
	if err != nil {
		return 0, 0, err
	}
	b := levelgen.NewBuilder(cfg)
	for _, path := range files {
		err := eachEntry(path, func(e levelgen.GenLogEntry) {
			if _, gerr := rerun(b, e); gerr != nil {
				still++
				fmt.Fprintf(out, "still failing seed=%d instrs=%s: %v\n", e.Seed, e.InstrDigest, gerr)
				return
			}
			fixed++
			fmt.Fprintf(out, "now ok seed=%d instrs=%s (was: %s)\n", e.Seed, e.InstrDigest, e.Err)
		})
		if err != nil {
			return still, fixed, err
		}
	}
	return still, fixed, nil
}

func rerun(b *levelgen.Builder[*roomgrid.Env], e levelgen.GenLogEntry) (res *levelgen.Result[*roomgrid.Env], err error) {
	defer func() {
		if r := recover(); r != nil {
			lu, ok := r.(*levelgen.LocationUnresolvedError)
			if !ok {
				panic(r)
			}
			res, err = nil, lu
		}
	}()
	return b.Build(e.Instrs, e.Seed)
}

func eachEntry(path string, fn func(levelgen.GenLogEntry)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e levelgen.GenLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		fn(e)
	}
	return sc.Err()
}

func listFiles(dir, prefix, suffix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
