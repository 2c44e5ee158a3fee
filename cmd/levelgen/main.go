// Command levelgen generates scenes for a range of seeds from one
// instruction file and prints one line per seed: seed, digest, scene path.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"roomscene.ai/internal/persistence/indexdb"
	persistlog "roomscene.ai/internal/persistence/log"
	"roomscene.ai/internal/persistence/recorder"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/roomgrid"
	"roomscene.ai/internal/sim/tuning"
)

type options struct {
	InstrsPath  string
	Seed        int64
	Count       int
	Workers     int
	TuningPath  string
	Distractors bool
	DataDir     string
	DryRun      bool
	DisableDB   bool
	Logs        bool
}

type outcome struct {
	seed   int64
	digest string
	path   string
	err    error
}

func main() {
	var o options
	flag.StringVar(&o.InstrsPath, "instrs", "", "instruction list as JSON (\"-\" for stdin)")
	flag.Int64Var(&o.Seed, "seed", 0, "first seed")
	flag.IntVar(&o.Count, "count", 1, "number of consecutive seeds")
	flag.IntVar(&o.Workers, "workers", 4, "concurrent generations")
	flag.StringVar(&o.TuningPath, "tuning", "", "path to tuning.yaml (empty: built-in defaults)")
	flag.BoolVar(&o.Distractors, "distractors", false, "fill rooms with distractor objects")
	flag.StringVar(&o.DataDir, "data", "./data", "output data directory")
	flag.BoolVar(&o.DryRun, "dry_run", false, "generate only; write nothing")
	flag.BoolVar(&o.DisableDB, "disable_db", false, "do not record scenes in the sqlite index")
	flag.BoolVar(&o.Logs, "logs", true, "append generation logs under <data>/logs")
	flag.Parse()

	logger := log.New(os.Stderr, "[levelgen] ", log.LstdFlags)
	if o.InstrsPath == "" {
		fmt.Fprintln(os.Stderr, "missing -instrs")
		os.Exit(2)
	}
	failed, err := run(context.Background(), o, os.Stdout, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if failed > 0 {
		logger.Printf("%d of %d seeds failed", failed, o.Count)
		os.Exit(1)
	}
}

// run generates every seed and reports how many failed. Lines are written in
// seed order regardless of completion order.
func run(ctx context.Context, o options, stdout io.Writer, logger *log.Logger) (int, error) {
	instrs, err := readInstrs(o.InstrsPath)
	if err != nil {
		return 0, err
	}
	tune, err := tuning.Load(strings.TrimSpace(o.TuningPath))
	if err != nil {
		return 0, err
	}
	cfg := tune.GenConfig()
	if o.Distractors {
		cfg.Distractors = true
	}
	if o.Count <= 0 {
		o.Count = 1
	}

	var rec *recorder.Recorder
	if !o.DryRun {
		ropts := recorder.Options{DataDir: o.DataDir, Source: "levelgen", Logger: logger}
		if !o.DisableDB {
			idx, err := indexdb.OpenSQLite(filepath.Join(o.DataDir, "index", "scenes.sqlite"))
			if err != nil {
				return 0, err
			}
			if err := idx.UpsertTuning(tune); err != nil {
				_ = idx.Close()
				return 0, err
			}
			ropts.Index = idx
		}
		if o.Logs {
			logDir := filepath.Join(o.DataDir, "logs")
			ropts.Gens = persistlog.NewGenLogger(logDir)
			ropts.Failures = persistlog.NewFailureLogger(logDir)
		}
		rec = recorder.New(ropts)
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Printf("close: %v", err)
			}
		}()
	}

	results := make([]outcome, o.Count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.Workers, 1))
	builder := levelgen.NewBuilder(cfg)
	for i := range results {
		seed := o.Seed + int64(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = generateOne(builder, cfg, instrs, seed, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(stdout, "%d\terror\t%v\n", r.seed, r.err)
			continue
		}
		fmt.Fprintf(stdout, "%d\t%s\t%s\n", r.seed, r.digest, r.path)
	}
	return failed, nil
}

func generateOne(b *levelgen.Builder[*roomgrid.Env], cfg levelgen.Config, instrs []instr.Instr, seed int64, rec *recorder.Recorder) (out outcome) {
	out.seed = seed
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lu, ok := r.(*levelgen.LocationUnresolvedError)
			if !ok {
				panic(r)
			}
			out.err = lu
		}
		if out.err != nil && rec != nil {
			rec.Failure(levelgen.NewGenLogEntry(instrs, seed, nil, time.Since(start), out.err))
		}
	}()

	res, err := b.Build(instrs, seed)
	if err != nil {
		out.err = err
		return out
	}
	out.digest = res.Env.Digest()
	if rec == nil {
		out.path = "-"
		return out
	}
	out.path, out.err = rec.Save(cfg, instrs, res, time.Since(start))
	return out
}

func readInstrs(path string) ([]instr.Instr, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	instrs, err := instr.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return instrs, nil
}
