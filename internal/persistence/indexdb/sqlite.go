package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// Senders hold mu for reading so Close never closes ch under them.
	mu     sync.RWMutex
	closed bool

	dropScene   atomic.Uint64
	dropFailure atomic.Uint64
}

type reqKind int

const (
	reqScene reqKind = iota + 1
	reqFailure
	reqFlush
)

type req struct {
	kind reqKind

	scene   SceneRow
	failure levelgen.GenLogEntry
	flushed chan struct{}
}

// SceneRow is one indexed scene.
type SceneRow struct {
	SceneID      string
	Seed         int64
	InstrDigest  string
	ConfigDigest string
	GridDigest   string
	Requirements int
	Distractors  int
	Objects      int
	Path         string
	RecordedAt   string
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropSceneTotal   uint64
	DropFailureTotal uint64
}

var ErrNotFound = errors.New("indexdb: not found")

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scenes (
			scene_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			instr_digest TEXT NOT NULL,
			config_digest TEXT NOT NULL,
			grid_digest TEXT NOT NULL,
			requirements INTEGER NOT NULL,
			distractors INTEGER NOT NULL,
			objects INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scenes_instr_seed ON scenes(instr_digest, seed);`,
		`CREATE TABLE IF NOT EXISTS failures (
			seed INTEGER NOT NULL,
			instr_digest TEXT NOT NULL,
			err TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (instr_digest, seed)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropSceneTotal:   s.dropScene.Load(),
		DropFailureTotal: s.dropFailure.Load(),
	}
}

// ConfigDigest is the hex sha256 of the JSON encoding of cfg.
func ConfigDigest(cfg levelgen.Config) string {
	b, _ := json.Marshal(cfg)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RecordScene queues a row for a scene written to path. Rows are dropped
// when the writer falls behind; the scene files remain the source of truth.
func (s *SQLiteIndex) RecordScene(path string, sc snapshot.SceneV1) {
	if s == nil {
		return
	}
	r := SceneRow{
		SceneID:      sc.Header.SceneID,
		Seed:         sc.Header.Seed,
		InstrDigest:  instr.Digest(sc.Instrs),
		ConfigDigest: ConfigDigest(sc.Config),
		GridDigest:   sc.Digest,
		Requirements: len(sc.Requirements),
		Distractors:  len(sc.Distractors),
		Objects:      len(sc.Objects),
		Path:         path,
		RecordedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if !s.enqueue(req{kind: reqScene, scene: r}) {
		s.dropScene.Add(1)
	}
}

func (s *SQLiteIndex) RecordFailure(e levelgen.GenLogEntry) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqFailure, failure: e}) {
		s.dropFailure.Add(1)
	}
}

// enqueue reports false only when the queue is full. Requests sent after
// Close are discarded.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// UpsertTuning stores the tuning actually applied, keyed by the digest of
// its generator config.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, t.ProtocolVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(digest,json,updated_at) VALUES(?,?,?)`, ConfigDigest(t.GenConfig()), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

// FindScene returns the most recent scene generated from instructions with
// the given digest and seed.
func (s *SQLiteIndex) FindScene(ctx context.Context, instrDigest string, seed int64) (SceneRow, error) {
	var r SceneRow
	row := s.db.QueryRowContext(ctx, `SELECT scene_id,seed,instr_digest,config_digest,grid_digest,requirements,distractors,objects,path,recorded_at
		FROM scenes WHERE instr_digest=? AND seed=? ORDER BY recorded_at DESC LIMIT 1`, instrDigest, seed)
	err := row.Scan(&r.SceneID, &r.Seed, &r.InstrDigest, &r.ConfigDigest, &r.GridDigest, &r.Requirements, &r.Distractors, &r.Objects, &r.Path, &r.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// SceneByID looks a scene up by its id.
func (s *SQLiteIndex) SceneByID(ctx context.Context, id string) (SceneRow, error) {
	var r SceneRow
	row := s.db.QueryRowContext(ctx, `SELECT scene_id,seed,instr_digest,config_digest,grid_digest,requirements,distractors,objects,path,recorded_at
		FROM scenes WHERE scene_id=?`, id)
	err := row.Scan(&r.SceneID, &r.Seed, &r.InstrDigest, &r.ConfigDigest, &r.GridDigest, &r.Requirements, &r.Distractors, &r.Objects, &r.Path, &r.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// Flush waits until every queued row has been committed. It must not be
// called concurrently with Close.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertScene, _ := s.db.Prepare(`INSERT OR REPLACE INTO scenes(scene_id,seed,instr_digest,config_digest,grid_digest,requirements,distractors,objects,path,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT OR REPLACE INTO failures(seed,instr_digest,err,raw_json,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertScene != nil {
			_ = insertScene.Close()
		}
		if insertFailure != nil {
			_ = insertFailure.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqScene:
			sc := r.scene
			if insertScene != nil {
				if _, err := tx.Stmt(insertScene).Exec(
					sc.SceneID,
					sc.Seed,
					sc.InstrDigest,
					sc.ConfigDigest,
					sc.GridDigest,
					sc.Requirements,
					sc.Distractors,
					sc.Objects,
					sc.Path,
					sc.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqFailure:
			f := r.failure
			raw, _ := json.Marshal(f)
			if insertFailure != nil {
				if _, err := tx.Stmt(insertFailure).Exec(
					f.Seed,
					f.InstrDigest,
					f.Err,
					string(raw),
					f.Time.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
