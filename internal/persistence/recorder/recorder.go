// Package recorder persists generated scenes: the scene file, the JSONL
// generation logs, the scene index and the optional object-storage mirror.
package recorder

import (
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"roomscene.ai/internal/persistence/indexdb"
	persistlog "roomscene.ai/internal/persistence/log"
	"roomscene.ai/internal/persistence/r2s3"
	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/roomgrid"
)

type Options struct {
	DataDir string
	// Source tags log entries ("server", "levelgen").
	Source string

	// Any of these may be nil.
	Index    indexdb.SceneIndex
	Gens     *persistlog.GenLogger
	Failures *persistlog.FailureLogger
	Mirror   *r2s3.Mirror
	Logger   *log.Logger
}

type Stats struct {
	Scenes      uint64 `json:"scenes"`
	Failures    uint64 `json:"failures"`
	WriteErrors uint64 `json:"write_errors"`
}

type Recorder struct {
	opts Options

	scenes      atomic.Uint64
	failures    atomic.Uint64
	writeErrors atomic.Uint64
}

// New builds a recorder. With a mirror configured, log segments are
// uploaded once they are sealed.
func New(opts Options) *Recorder {
	if opts.Mirror != nil {
		mirror := func(path string) { opts.Mirror.Enqueue(path) }
		if opts.Gens != nil {
			opts.Gens.OnSeal(mirror)
		}
		if opts.Failures != nil {
			opts.Failures.OnSeal(mirror)
		}
	}
	return &Recorder{opts: opts}
}

// ScenePath is where the scene with the given id is stored.
func (r *Recorder) ScenePath(sceneID string) string {
	return filepath.Join(r.opts.DataDir, "scenes", sceneID+".scene.zst")
}

// Save writes the scene file and records it everywhere else. It returns the
// scene file path.
func (r *Recorder) Save(cfg levelgen.Config, instrs []instr.Instr, res *levelgen.Result[*roomgrid.Env], dur time.Duration) (string, error) {
	sc := snapshot.FromResult(cfg, instrs, res)
	path := r.ScenePath(sc.Header.SceneID)
	if err := snapshot.WriteScene(path, sc); err != nil {
		r.writeErrors.Add(1)
		return "", fmt.Errorf("write scene %s: %w", sc.Header.SceneID, err)
	}
	r.scenes.Add(1)

	if r.opts.Gens != nil {
		e := levelgen.NewGenLogEntry(instrs, res.Env.Seed(), res, dur, nil)
		e.Source = r.opts.Source
		if err := r.opts.Gens.WriteGen(e); err != nil {
			r.writeErrors.Add(1)
			r.printf("gen log write failed scene=%s err=%v", sc.Header.SceneID, err)
		}
	}
	if r.opts.Index != nil {
		r.opts.Index.RecordScene(path, sc)
	}
	if r.opts.Mirror != nil {
		r.opts.Mirror.Enqueue(path)
	}
	return path, nil
}

// Scene implements the websocket sink; errors are logged.
func (r *Recorder) Scene(cfg levelgen.Config, instrs []instr.Instr, res *levelgen.Result[*roomgrid.Env], dur time.Duration) {
	if _, err := r.Save(cfg, instrs, res, dur); err != nil {
		r.printf("%v", err)
	}
}

func (r *Recorder) Failure(e levelgen.GenLogEntry) {
	r.failures.Add(1)
	if e.Source == "" {
		e.Source = r.opts.Source
	}
	if r.opts.Failures != nil {
		if err := r.opts.Failures.WriteFailure(e); err != nil {
			r.writeErrors.Add(1)
			r.printf("failure log write failed seed=%d err=%v", e.Seed, err)
		}
	}
	if r.opts.Index != nil {
		r.opts.Index.RecordFailure(e)
	}
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Scenes:      r.scenes.Load(),
		Failures:    r.failures.Load(),
		WriteErrors: r.writeErrors.Load(),
	}
}

// Close flushes the logs, then the index, then drains the mirror.
func (r *Recorder) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if r.opts.Gens != nil {
		keep(r.opts.Gens.Close())
	}
	if r.opts.Failures != nil {
		keep(r.opts.Failures.Close())
	}
	if r.opts.Index != nil {
		keep(r.opts.Index.Close())
	}
	r.opts.Mirror.Close()
	return first
}

func (r *Recorder) printf(format string, args ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Printf(format, args...)
	}
}
