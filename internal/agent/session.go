// ABOUTME: Per-connection session handler running the PNCP handshake state machine.
// ABOUTME: Connected -> AwaitingAuth -> Authenticated -> Monitoring -> Closed.

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pifleet/pncp/internal/auth"
	"github.com/pifleet/pncp/internal/store"
	"github.com/pifleet/pncp/internal/wire"
)

// State is a session handler's position in its lifecycle.
type State int

const (
	StateConnected State = iota
	StateAwaitingAuth
	StateAuthenticated
	StateMonitoring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAuthenticated:
		return "authenticated"
	case StateMonitoring:
		return "monitoring"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultProbeInterval is the liveness check cadence.
const DefaultProbeInterval = 3 * time.Second

// DefaultAuthTimeout bounds how long a connection may sit silent before
// the auth message arrives. A client that connects and never speaks is
// closed instead of holding a handler goroutine open.
const DefaultAuthTimeout = 10 * time.Second

// HandlerConfig wires a session handler's collaborators.
type HandlerConfig struct {
	Codec         *wire.Codec
	Verifier      *auth.Verifier
	Registry      *Registry
	Recorder      store.Recorder
	ProbeInterval time.Duration
	AuthTimeout   time.Duration
	Logger        *slog.Logger
}

// Handler owns one accepted connection from handshake through cleanup.
// Errors on this connection never propagate beyond it: every exit path
// runs the same idempotent cleanup.
type Handler struct {
	cfg   HandlerConfig
	conn  net.Conn
	agent *Agent

	mu          sync.Mutex
	state       State
	cleanupOnce sync.Once
}

// NewHandler prepares a handler for an accepted connection.
func NewHandler(conn net.Conn, cfg HandlerConfig) *Handler {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.Recorder == nil {
		cfg.Recorder = store.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("remote_addr", conn.RemoteAddr().String())
	return &Handler{cfg: cfg, conn: conn, state: StateConnected}
}

// State reports the handler's current state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Agent returns the authenticated agent, or nil before the handshake
// completes.
func (h *Handler) Agent() *Agent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agent
}

// Run executes the session to completion. It returns when the session has
// closed and cleanup has finished.
func (h *Handler) Run(ctx context.Context) {
	defer h.cleanup()

	log := h.cfg.Logger
	h.setState(StateAwaitingAuth)

	h.conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	msg, err := h.cfg.Codec.Read(h.conn)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			log.Debug("connection closed before auth")
		case errors.Is(err, os.ErrDeadlineExceeded):
			log.Warn("closing silent connection, no auth message", "timeout", h.cfg.AuthTimeout)
		default:
			log.Warn("failed reading auth message", "error", err)
		}
		return
	}
	h.conn.SetReadDeadline(time.Time{})

	log.Debug("frame received", "type", msg.Type)

	if msg.Type != wire.TypeAuth || !h.cfg.Verifier.Verify(msg.Auth) {
		log.Warn("auth rejected", "type", msg.Type)
		// The message was at least well-formed, so the peer gets an
		// honest refusal before the close.
		if err := h.cfg.Codec.Write(h.conn, wire.NewAuthResult(false)); err != nil {
			log.Debug("failed sending auth refusal", "error", err)
		}
		return
	}

	a := NewAgent(msg.Auth.Agent, h.conn)
	h.mu.Lock()
	h.agent = a
	h.state = StateAuthenticated
	h.mu.Unlock()

	h.cfg.Registry.Register(a)
	if err := h.cfg.Codec.Write(h.conn, wire.NewAuthResult(true)); err != nil {
		log.Warn("failed sending auth result", "agent_id", a.ID, "error", err)
		return
	}
	log.Debug("frame sent", "agent_id", a.ID, "type", wire.TypeAuthResult)
	log.Info("agent authenticated", "agent_id", a.ID)
	h.recordStatus(ctx, store.StatusConnected)

	h.setState(StateMonitoring)
	h.monitor(ctx)
}

// monitor watches connection liveness on a fixed cadence. The probe never
// consumes bytes, so command/response frames driven by the dispatcher pass
// through untouched. It returns when the peer is gone or ctx is done.
func (h *Handler) monitor(ctx context.Context) {
	log := h.cfg.Logger
	ticker := time.NewTicker(h.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("session shutting down", "agent_id", h.agent.ID)
			return
		case <-ticker.C:
			switch probeConn(h.conn) {
			case probeAlive, probeSkipped:
				continue
			case probeClosed:
				log.Info("agent disconnected", "agent_id", h.agent.ID)
				return
			case probeError:
				log.Warn("agent connection lost", "agent_id", h.agent.ID)
				return
			}
		}
	}
}

// cleanup runs on every exit path exactly once: deregister, record the
// transition, close the connection.
func (h *Handler) cleanup() {
	h.cleanupOnce.Do(func() {
		if a := h.Agent(); a != nil {
			h.cfg.Registry.Unregister(a.ID)
			h.recordStatus(context.Background(), store.StatusDisconnected)
			a.Close()
		} else {
			h.conn.Close()
		}
		h.setState(StateClosed)
	})
}

// recordStatus persists a registry transition. Store failures are logged
// and swallowed; they never affect the session.
func (h *Handler) recordStatus(ctx context.Context, status store.AgentStatus) {
	a := h.Agent()
	if a == nil {
		return
	}
	if err := h.cfg.Recorder.RecordStatus(ctx, a.ID, status, time.Now()); err != nil {
		h.cfg.Logger.Warn("failed recording agent status",
			"agent_id", a.ID,
			"status", string(status),
			"error", err,
		)
	}
}
