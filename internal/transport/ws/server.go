package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"roomscene.ai/internal/persistence/snapshot"
	"roomscene.ai/internal/protocol"
	"roomscene.ai/internal/sim/instr"
	"roomscene.ai/internal/sim/levelgen"
	"roomscene.ai/internal/sim/roomgrid"
)

// Sink receives every generation the server runs. Implementations must be
// safe for concurrent use.
type Sink interface {
	Scene(cfg levelgen.Config, instrs []instr.Instr, res *levelgen.Result[*roomgrid.Env], dur time.Duration)
	Failure(entry levelgen.GenLogEntry)
}

type Options struct {
	Config       levelgen.Config
	TuningDigest string
	// MaxConcurrent bounds generations running across all connections.
	MaxConcurrent int64
	Sink          Sink
}

type Server struct {
	opts Options
	log  *log.Logger

	upgrader websocket.Upgrader
	sem      *semaphore.Weighted
	sessions atomic.Uint64

	// ctx is cancelled by Shutdown; every session derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	conns    map[*websocket.Conn]struct{}
	handlers sync.WaitGroup
}

func NewServer(opts Options, logger *log.Logger) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	s := &Server{
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sem:   semaphore.NewWeighted(opts.MaxConcurrent),
		conns: map[*websocket.Conn]struct{}{},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Shutdown refuses new connections, closes the live ones and waits until
// every handler has returned. A generation already running completes and
// reaches the Sink before its handler exits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter registers a handler; it fails once Shutdown has started.
func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(1)
	return true
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.enter() {
			http.Error(rw, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.handlers.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !s.track(conn) {
			return
		}
		defer s.untrack(conn)

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply, fatal := s.handle(ctx, sessionID, msg)
			if reply == nil {
				continue
			}
			b, err := json.Marshal(reply)
			if err != nil {
				break
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if fatal || ctx.Err() != nil {
				break
			}
		}

		// Let queued replies drain before the connection closes.
		close(out)
		<-done
	}
}

// handle runs one client message. fatal asks the caller to close the
// connection after sending reply.
func (s *Server) handle(ctx context.Context, sessionID string, msg []byte) (reply any, fatal bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json"), false
	}
	if base.Type != protocol.TypeGenerate {
		return protocol.NewError("", protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type)), false
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError("", protocol.ErrProtoVersion, "bad protocol_version"), false
	}
	req, err := protocol.DecodeGenerate(msg)
	if err != nil {
		return protocol.NewError(req.ID, protocol.ErrBadRequest, err.Error()), false
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return protocol.NewError(req.ID, protocol.ErrBusy, "server shutting down"), true
	}
	defer s.sem.Release(1)

	scene, err := s.generate(req)
	if err != nil {
		var lu *levelgen.LocationUnresolvedError
		if errors.As(err, &lu) {
			if s.log != nil {
				s.log.Printf("session=%s id=%s contract violation: %v", sessionID, req.ID, err)
			}
			return protocol.NewError(req.ID, protocol.ErrInternal, err.Error()), true
		}
		return protocol.NewError(req.ID, CodeFor(err), err.Error()), false
	}
	return scene, false
}

func (s *Server) generate(req protocol.GenerateMsg) (msg *protocol.SceneMsg, err error) {
	cfg := s.opts.Config
	if req.MaxSteps > 0 {
		cfg.MaxSteps = req.MaxSteps
	}
	if req.Distractors != nil {
		cfg.Distractors = *req.Distractors
	}

	start := time.Now()
	defer func() {
		// A door without a location is a bug in normalization; report it
		// on this request only.
		if r := recover(); r != nil {
			lu, ok := r.(*levelgen.LocationUnresolvedError)
			if !ok {
				panic(r)
			}
			msg, err = nil, lu
		}
		if s.opts.Sink != nil && err != nil {
			s.opts.Sink.Failure(levelgen.NewGenLogEntry(req.Instrs, req.Seed, nil, time.Since(start), err))
		}
	}()

	res, err := levelgen.NewBuilder(cfg).Build(req.Instrs, req.Seed)
	if err != nil {
		return nil, err
	}
	if s.opts.Sink != nil {
		s.opts.Sink.Scene(cfg, req.Instrs, res, time.Since(start))
	}
	return SceneMessage(req.ID, res.Env), nil
}

// SceneMessage renders env as a SCENE reply to request id.
func SceneMessage(id string, env *roomgrid.Env) *protocol.SceneMsg {
	digest := env.Digest()
	m := &protocol.SceneMsg{
		Type:            protocol.TypeScene,
		ProtocolVersion: protocol.Version,
		ID:              id,
		SceneID:         snapshot.SceneID(env.Seed(), digest),
		Seed:            env.Seed(),
		Width:           env.Width(),
		Height:          env.Height(),
		StartPos:        [2]int{env.StartPos().X, env.StartPos().Y},
		StartDir:        env.StartDir(),
		MaxSteps:        env.MaxSteps(),
		Digest:          digest,
		Grid:            env.EncodeRLE(),
		RoomsReachable:  len(env.ReachableRooms()),
	}
	for _, p := range env.Objects() {
		m.Objects = append(m.Objects, protocol.SceneObject{
			Type:  string(p.Cell.Kind),
			Color: string(p.Cell.Color),
			Pos:   [2]int{p.Pos.X, p.Pos.Y},
			Room:  [2]int{p.Room.Col, p.Room.Row},
		})
	}
	return m
}

// CodeFor maps a generation error to a wire error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, instr.ErrInvalid):
		return protocol.ErrBadInstr
	case errors.Is(err, levelgen.ErrGridTooSmall), errors.Is(err, roomgrid.ErrBadShape):
		return protocol.ErrGridTooSmall
	case errors.Is(err, levelgen.ErrDoorSlotsExhausted):
		return protocol.ErrDoorSlots
	case errors.Is(err, levelgen.ErrSamplingExhausted):
		return protocol.ErrSampling
	case errors.Is(err, levelgen.ErrDistractorSpace):
		return protocol.ErrDistractorSpace
	case errors.Is(err, roomgrid.ErrPlacementExhausted):
		return protocol.ErrPlacement
	case errors.Is(err, roomgrid.ErrConnectExhausted):
		return protocol.ErrConnect
	case errors.Is(err, roomgrid.ErrUnconnectable):
		return protocol.ErrUnconnectable
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	sessionID = fmt.Sprintf("S%d", s.sessions.Add(1))
	cfg := s.opts.Config
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		GridParams: protocol.GridParams{
			RoomSize:    cfg.RoomSize,
			NumCols:     cfg.NumCols,
			NumRows:     cfg.NumRows,
			MaxSteps:    cfg.MaxSteps,
			Distractors: cfg.Distractors,
		},
		TuningDigest: s.opts.TuningDigest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	if s.log != nil {
		s.log.Printf("session=%s client=%s connected", sessionID, hello.ClientName)
	}
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
