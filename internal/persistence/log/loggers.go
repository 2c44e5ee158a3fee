package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"roomscene.ai/internal/sim/levelgen"
)

// Segments appends JSON lines to zstd files cut per UTC hour, named
// <dir>/<name>-YYYY-MM-DD-HH.jsonl.zst. Each Append flushes a zstd block to
// the file.
type Segments struct {
	dir  string
	name string
	now  func() time.Time

	mu     sync.Mutex
	onSeal func(path string)
	path   string // open segment; empty when none is open
	file   *os.File
	zw     *zstd.Encoder
}

func NewSegments(dir, name string) *Segments {
	return &Segments{dir: dir, name: name, now: time.Now}
}

// OnSeal registers fn to receive the path of every segment once it is
// closed, either on rotation or on Close.
func (s *Segments) OnSeal(fn func(path string)) {
	s.mu.Lock()
	s.onSeal = fn
	s.mu.Unlock()
}

func (s *Segments) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openFor(s.now()); err != nil {
		return err
	}
	if _, err := s.zw.Write(line); err != nil {
		return err
	}
	return s.zw.Flush()
}

func (s *Segments) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seal()
}

// openFor makes the segment for hour t current, sealing the previous one.
func (s *Segments) openFor(t time.Time) error {
	path := s.segmentPath(t)
	if path == s.path {
		return nil
	}
	if err := s.seal(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.path, s.file, s.zw = path, f, zw
	return nil
}

func (s *Segments) seal() error {
	if s.path == "" {
		return nil
	}
	path := s.path
	err := s.zw.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.path, s.file, s.zw = "", nil, nil
	if err == nil && s.onSeal != nil {
		s.onSeal(path)
	}
	return err
}

func (s *Segments) segmentPath(t time.Time) string {
	return filepath.Join(s.dir, s.name+"-"+t.UTC().Format("2006-01-02-15")+".jsonl.zst")
}

// GenLogger writes one entry per successful generation under <dir>/gens.
type GenLogger struct{ seg *Segments }

func NewGenLogger(dir string) *GenLogger {
	return &GenLogger{seg: NewSegments(filepath.Join(dir, "gens"), "gens")}
}

func (l *GenLogger) WriteGen(e levelgen.GenLogEntry) error { return l.seg.Append(e) }
func (l *GenLogger) OnSeal(fn func(path string))           { l.seg.OnSeal(fn) }
func (l *GenLogger) Close() error                          { return l.seg.Close() }

// FailureLogger keeps failed generations apart, under <dir>/failures, so
// they can be replayed.
type FailureLogger struct{ seg *Segments }

func NewFailureLogger(dir string) *FailureLogger {
	return &FailureLogger{seg: NewSegments(filepath.Join(dir, "failures"), "failures")}
}

func (l *FailureLogger) WriteFailure(e levelgen.GenLogEntry) error { return l.seg.Append(e) }
func (l *FailureLogger) OnSeal(fn func(path string))               { l.seg.OnSeal(fn) }
func (l *FailureLogger) Close() error                              { return l.seg.Close() }
