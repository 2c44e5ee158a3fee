package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
)

// SceneIndex is implemented by every index backend.
type SceneIndex interface {
	RecordScene(path string, sc snapshot.SceneV1)
	RecordFailure(e levelgen.GenLogEntry)
	Close() error
}

var (
	_ SceneIndex = (*SQLiteIndex)(nil)
	_ SceneIndex = (*D1Index)(nil)
)

// D1Config points at an HTTP ingest endpoint in front of a Cloudflare D1
// database.
type D1Config struct {
	Endpoint      string
	Token         string
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// D1Index batches scene rows and posts them to a remote ingest endpoint.
type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
	drops  atomic.Uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Payload any    `json:"payload"`
}

type d1ScenePayload struct {
	SceneID      string `json:"scene_id"`
	Seed         int64  `json:"seed"`
	InstrDigest  string `json:"instr_digest"`
	ConfigDigest string `json:"config_digest"`
	GridDigest   string `json:"grid_digest"`
	Requirements int    `json:"requirements"`
	Distractors  int    `json:"distractors"`
	Objects      int    `json:"objects"`
	Path         string `json:"path"`
	RecordedAt   string `json:"recorded_at"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Source = strings.TrimSpace(cfg.Source)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.Source == "" {
		cfg.Source = "roomscene"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 8192),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
	return nil
}

// Drops reports how many events were discarded because the queue was full.
func (d *D1Index) Drops() uint64 { return d.drops.Load() }

func (d *D1Index) RecordScene(path string, sc snapshot.SceneV1) {
	d.enqueue(d1Event{Kind: "scene", Payload: d1ScenePayload{
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
	}})
}

func (d *D1Index) RecordFailure(e levelgen.GenLogEntry) {
	d.enqueue(d1Event{Kind: "failure", Payload: e})
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil {
		return
	}
	ev.Source = d.cfg.Source
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.drops.Add(1)
		d.printf("d1 index queue full; drop kind=%s", ev.Kind)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next tick unless it has grown too large.
			if len(batch) < 8*d.cfg.BatchSize {
				return
			}
			d.drops.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-rs-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
