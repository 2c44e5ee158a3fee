package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomscene.ai/internal/protocol"
	"roomscene.ai/internal/sim/encoding"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/palette"
	"roomscene.ai/internal/sim/roomgrid"
)

type recordingSink struct {
	mu       sync.Mutex
	scenes   []string
	failures []levelgen.GenLogEntry
}

func (r *recordingSink) Scene(_ levelgen.Config, _ []instr.Instr, res *levelgen.Result[*roomgrid.Env], _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes = append(r.scenes, res.Env.Digest())
}

func (r *recordingSink) Failure(e levelgen.GenLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, e)
}

// blockingSink holds every Scene call until release is closed.
type blockingSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) Scene(cfg levelgen.Config, instrs []instr.Instr, res *levelgen.Result[*roomgrid.Env], dur time.Duration) {
	b.entered <- struct{}{}
	<-b.release
	b.recordingSink.Scene(cfg, instrs, res, dur)
}

func dial(t *testing.T, sink Sink) *websocket.Conn {
	t.Helper()
	conn, _ := dialServer(t, sink)
	return conn
}

func dialServer(t *testing.T, sink Sink) (*websocket.Conn, *Server) {
	t.Helper()
	srv := NewServer(Options{Config: levelgen.DefaultConfig(), TuningDigest: "tdigest", Sink: sink}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"})
	var welcome protocol.WelcomeMsg
	recv(t, conn, &welcome)
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	if welcome.GridParams.NumCols != 3 || welcome.GridParams.MaxSteps != 200 || welcome.TuningDigest != "tdigest" {
		t.Fatalf("unexpected grid params: %+v", welcome)
	}
	return conn, srv
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func TestServer_GenerateReturnsScene(t *testing.T) {
	sink := &recordingSink{}
	conn := dial(t, sink)

	instrs := []instr.Instr{
		{Action: instr.ActionPickup, Object: instr.Object{Type: palette.KindKey, Color: palette.Red, Loc: instr.LocFront}},
		{Action: instr.ActionDrop, Object: instr.Object{Type: palette.KindKey}},
	}
	send(t, conn, protocol.GenerateMsg{
		Type:            protocol.TypeGenerate,
		ProtocolVersion: protocol.Version,
		ID:              "g1",
		Seed:            0,
		Instrs:          instrs,
	})
	var scene protocol.SceneMsg
	recv(t, conn, &scene)
	if scene.Type != protocol.TypeScene || scene.ID != "g1" {
		t.Fatalf("unexpected reply: %+v", scene)
	}

	want, err := levelgen.Generate(instrs, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if scene.Digest != want.Digest() {
		t.Fatalf("digest=%s want %s", scene.Digest, want.Digest())
	}
	if scene.RoomsReachable != 9 || scene.Width != 19 || len(scene.Objects) != 1 {
		t.Fatalf("unexpected scene: %+v", scene)
	}
	ids, err := encoding.DecodeRLE(scene.Grid)
	if err != nil || len(ids) != scene.Width*scene.Height {
		t.Fatalf("grid decode: ids=%d err=%v", len(ids), err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.scenes) != 1 || sink.scenes[0] != scene.Digest {
		t.Fatalf("sink scenes=%v", sink.scenes)
	}
}

func TestServer_ErrorsKeepConnectionOpen(t *testing.T) {
	sink := &recordingSink{}
	conn := dial(t, sink)

	doors := make([]instr.Instr, 5)
	for i := range doors {
		doors[i] = instr.Instr{Action: instr.ActionOpen, Object: instr.Object{Type: palette.KindDoor}}
	}
	send(t, conn, protocol.GenerateMsg{Type: protocol.TypeGenerate, ProtocolVersion: protocol.Version, ID: "d5", Seed: 1, Instrs: doors})
	var e protocol.ErrorMsg
	recv(t, conn, &e)
	if e.Type != protocol.TypeError || e.Code != protocol.ErrDoorSlots || e.ID != "d5" {
		t.Fatalf("unexpected reply: %+v", e)
	}

	send(t, conn, map[string]any{"type": protocol.TypeGenerate, "protocol_version": protocol.Version, "seed": 1, "instrs": []any{}})
	recv(t, conn, &e)
	if e.Code != protocol.ErrBadRequest {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrBadRequest)
	}

	send(t, conn, map[string]any{"type": protocol.TypeGenerate, "protocol_version": "0.1", "id": "v", "seed": 1, "instrs": []any{}})
	recv(t, conn, &e)
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("code=%s want %s", e.Code, protocol.ErrProtoVersion)
	}

	// Still usable after errors.
	send(t, conn, protocol.GenerateMsg{Type: protocol.TypeGenerate, ProtocolVersion: protocol.Version, ID: "ok", Seed: 2, Instrs: []instr.Instr{}})
	var scene protocol.SceneMsg
	recv(t, conn, &scene)
	if scene.Type != protocol.TypeScene || scene.ID != "ok" || scene.RoomsReachable != 9 {
		t.Fatalf("unexpected reply: %+v", scene)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.failures) != 1 || sink.failures[0].Err == "" || sink.failures[0].Seed != 1 {
		t.Fatalf("sink failures=%+v", sink.failures)
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	srv := NewServer(Options{Config: levelgen.DefaultConfig()}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	send(t, conn, protocol.GenerateMsg{Type: protocol.TypeGenerate, ProtocolVersion: protocol.Version, ID: "x"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close the connection")
	}
}

func TestCodeFor(t *testing.T) {
	if got := CodeFor(levelgen.ErrDistractorSpace); got != protocol.ErrDistractorSpace {
		t.Fatalf("got %s", got)
	}
	if got := CodeFor(instr.ErrInvalid); got != protocol.ErrBadInstr {
		t.Fatalf("got %s", got)
	}
	if got := CodeFor(roomgrid.ErrConnectExhausted); got != protocol.ErrConnect {
		t.Fatalf("got %s", got)
	}
	if got := CodeFor(fmt.Errorf("connect rooms: %w", roomgrid.ErrUnconnectable)); got != protocol.ErrUnconnectable {
		t.Fatalf("got %s", got)
	}
}

func TestServer_LockedDoorsSealingRoomsReportUnconnectable(t *testing.T) {
	sink := &recordingSink{}
	conn := dial(t, sink)

	doors := make([]instr.Instr, 4)
	for i := range doors {
		doors[i] = instr.Instr{Action: instr.ActionOpen, Object: instr.Object{Type: palette.KindDoor, State: palette.StateLocked}}
	}
	send(t, conn, protocol.GenerateMsg{Type: protocol.TypeGenerate, ProtocolVersion: protocol.Version, ID: "l4", Seed: 3, Instrs: doors})
	var e protocol.ErrorMsg
	recv(t, conn, &e)
	if e.Type != protocol.TypeError || e.Code != protocol.ErrUnconnectable || e.ID != "l4" {
		t.Fatalf("unexpected reply: %+v", e)
	}
}

func TestServer_ShutdownWaitsForRunningGeneration(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	conn, srv := dialServer(t, sink)

	send(t, conn, protocol.GenerateMsg{Type: protocol.TypeGenerate, ProtocolVersion: protocol.Version, ID: "g", Seed: 5, Instrs: []instr.Instr{}})
	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("generation never reached the sink")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown with a generation running: err=%v want deadline exceeded", err)
	}

	close(sink.release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	sink.mu.Lock()
	n := len(sink.scenes)
	sink.mu.Unlock()
	if n != 1 {
		t.Fatalf("sink scenes=%d want 1", n)
	}
}

func TestServer_RefusesConnectionsAfterShutdown(t *testing.T) {
	srv := NewServer(Options{Config: levelgen.DefaultConfig()}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err == nil {
		t.Fatalf("dial succeeded after Shutdown")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("resp=%v want 503", resp)
	}
}
