package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"roomscene.ai/internal/persistence/indexdb"
	persistlog "roomscene.ai/internal/persistence/log"
	"roomscene.ai/internal/persistence/r2s3"
	"roomscene.ai/internal/persistence/recorder"
	"roomscene.ai/internal/sim/tuning"
	"roomscene.ai/internal/transport/ws"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (empty: built-in defaults)")
		disableDB     = flag.Bool("disable_db", false, "disable the scene index")
		noScenes      = flag.Bool("no_scenes", false, "do not persist generated scenes")
		maxConcurrent = flag.Int64("max_concurrent", 8, "generations running at once across all connections")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	cfg := tune.GenConfig()
	tuningDigest := indexdb.ConfigDigest(cfg)
	_ = os.MkdirAll(*dataDir, 0o755)

	var sink ws.Sink
	var rec *recorder.Recorder
	var mirror *r2s3.Mirror
	var idx indexdb.SceneIndex
	if !*noScenes {
		idx, err = openIndex(*dataDir, *disableDB, tune, logger)
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		mirror, err = openMirror(*dataDir, logger)
		if err != nil {
			logger.Fatalf("r2 mirror: %v", err)
		}
		logDir := filepath.Join(*dataDir, "logs")
		rec = recorder.New(recorder.Options{
			DataDir:  *dataDir,
			Source:   "server",
			Index:    idx,
			Gens:     persistlog.NewGenLogger(logDir),
			Failures: persistlog.NewFailureLogger(logDir),
			Mirror:   mirror,
			Logger:   logger,
		})
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Printf("close recorder: %v", err)
			}
		}()
		sink = rec
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, rec, idx, mirror)
	})

	if envBool("RS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(stateResponse(tune, tuningDigest, rec, mirror))
		})
	} else {
		logger.Printf("admin endpoints disabled (RS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("RS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	sessions := ws.NewServer(ws.Options{
		Config:        cfg,
		TuningDigest:  tuningDigest,
		MaxConcurrent: *maxConcurrent,
		Sink:          sink,
	}, logger)
	mux.HandleFunc("/v1/ws", sessions.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (grid %dx%d room_size=%d tuning=%s)", *addr, cfg.NumCols, cfg.NumRows, cfg.RoomSize, tuningDigest[:12])
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	// Hijacked websocket sessions outlive srv.Shutdown. The recorder closes
	// on return, so wait for in-flight generations to reach it first.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := sessions.Shutdown(drainCtx); err != nil {
		logger.Printf("ws sessions still running at exit: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type serverState struct {
	Tuning       tuning.Tuning     `json:"tuning"`
	TuningDigest string            `json:"tuning_digest"`
	Recorder     recorder.Stats    `json:"recorder"`
	Mirror       *r2s3.MirrorStats `json:"mirror,omitempty"`
}

func stateResponse(tune tuning.Tuning, digest string, rec *recorder.Recorder, mirror *r2s3.Mirror) serverState {
	st := serverState{Tuning: tune, TuningDigest: digest}
	if rec != nil {
		st.Recorder = rec.Stats()
	}
	if mirror != nil {
		ms := mirror.Stats()
		st.Mirror = &ms
	}
	return st
}

// writeMetrics renders counters in the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, rec *recorder.Recorder, idx indexdb.SceneIndex, mirror *r2s3.Mirror) {
	if rec != nil {
		s := rec.Stats()
		fmt.Fprintf(rw, "# HELP roomscene_scenes_total Scenes generated and persisted.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_scenes_total counter\n")
		fmt.Fprintf(rw, "roomscene_scenes_total %d\n", s.Scenes)

		fmt.Fprintf(rw, "# HELP roomscene_failures_total Generation requests that failed.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_failures_total counter\n")
		fmt.Fprintf(rw, "roomscene_failures_total %d\n", s.Failures)

		fmt.Fprintf(rw, "# HELP roomscene_write_errors_total Scene or log writes that failed.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_write_errors_total counter\n")
		fmt.Fprintf(rw, "roomscene_write_errors_total %d\n", s.WriteErrors)
	}

	switch ix := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := ix.Stats()
		fmt.Fprintf(rw, "# HELP roomscene_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "roomscene_index_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP roomscene_index_dropped_total Index rows dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_index_dropped_total counter\n")
		fmt.Fprintf(rw, "roomscene_index_dropped_total{kind=%q} %d\n", "scene", s.DropSceneTotal)
		fmt.Fprintf(rw, "roomscene_index_dropped_total{kind=%q} %d\n", "failure", s.DropFailureTotal)
	case *indexdb.D1Index:
		fmt.Fprintf(rw, "# HELP roomscene_index_dropped_total Index rows dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_index_dropped_total counter\n")
		fmt.Fprintf(rw, "roomscene_index_dropped_total{kind=%q} %d\n", "all", ix.Drops())
	}

	if mirror != nil {
		s := mirror.Stats()
		fmt.Fprintf(rw, "# HELP roomscene_r2_mirror_queue_depth Current mirror queue depth.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_r2_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "roomscene_r2_mirror_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP roomscene_r2_mirror_files_total Mirror outcomes per file.\n")
		fmt.Fprintf(rw, "# TYPE roomscene_r2_mirror_files_total counter\n")
		fmt.Fprintf(rw, "roomscene_r2_mirror_files_total{result=%q} %d\n", "uploaded", s.Uploaded)
		fmt.Fprintf(rw, "roomscene_r2_mirror_files_total{result=%q} %d\n", "failed", s.Failed)
		fmt.Fprintf(rw, "roomscene_r2_mirror_files_total{result=%q} %d\n", "dropped", s.Dropped)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
