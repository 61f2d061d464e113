// ABOUTME: Controller orchestrator that owns the listener, registry, and dispatcher.
// ABOUTME: Accepts agent connections and runs one session handler per connection.

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/pifleet/pncp/internal/agent"
	"github.com/pifleet/pncp/internal/auth"
	"github.com/pifleet/pncp/internal/config"
	"github.com/pifleet/pncp/internal/dispatch"
	"github.com/pifleet/pncp/internal/store"
	"github.com/pifleet/pncp/internal/wire"
)

// Controller wires the PNCP server components: the TCP listener, the agent
// registry, the command dispatcher, and the time-series store.
type Controller struct {
	cfg        *config.Config
	logger     *slog.Logger
	codec      *wire.Codec
	verifier   *auth.Verifier
	registry   *agent.Registry
	dispatcher *dispatch.Dispatcher
	store      store.Store

	mu    sync.Mutex
	addr  string
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New builds a controller from config. The store is optional: an empty
// database path disables persistence entirely.
func New(cfg *config.Config, logger *slog.Logger) (*Controller, error) {
	codec := wire.NewCodec(cfg.Limits.MaxMessageBytes)
	verifier := auth.NewVerifier([]byte(cfg.Auth.SharedSecret), cfg.Auth.FreshnessWindow)
	registry := agent.NewRegistry(logger.With("component", "registry"))

	var st store.Store
	var recorder store.Recorder = store.NopRecorder{}
	if cfg.Database.Path != "" {
		var err error
		st, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		recorder = st
	}

	dispatcher := dispatch.New(dispatch.Config{
		Registry: registry,
		Codec:    codec,
		Recorder: recorder,
		Timeout:  cfg.Dispatch.ResponseTimeout,
		Logger:   logger.With("component", "dispatch"),
	})

	return &Controller{
		cfg:        cfg,
		logger:     logger,
		codec:      codec,
		verifier:   verifier,
		registry:   registry,
		dispatcher: dispatcher,
		store:      st,
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Dispatcher returns the command dispatcher for the operator loop.
func (c *Controller) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Registry returns the agent registry.
func (c *Controller) Registry() *agent.Registry {
	return c.registry
}

// Store returns the time-series store, or nil when persistence is
// disabled.
func (c *Controller) Store() store.Store {
	return c.store
}

// ListenAddr returns the bound listen address once Run has started
// listening, or empty before that. Useful when the configured address
// carries port 0.
func (c *Controller) ListenAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Run listens for agent connections until ctx is cancelled, then closes
// the listener and every live agent connection and waits for the session
// handlers to unwind through their own cleanup paths.
func (c *Controller) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.cfg.Server.ListenAddr, err)
	}
	c.mu.Lock()
	c.addr = ln.Addr().String()
	c.mu.Unlock()
	c.logger.Info("controller listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			c.logger.Warn("accept failed", "error", err)
			continue
		}
		c.spawnSession(ctx, conn)
	}

	c.shutdown()
	return nil
}

// spawnSession starts one handler goroutine for an accepted connection.
func (c *Controller) spawnSession(ctx context.Context, conn net.Conn) {
	c.logger.Debug("connection accepted", "remote_addr", conn.RemoteAddr().String())

	var recorder store.Recorder = store.NopRecorder{}
	if c.store != nil {
		recorder = c.store
	}

	h := agent.NewHandler(conn, agent.HandlerConfig{
		Codec:         c.codec,
		Verifier:      c.verifier,
		Registry:      c.registry,
		Recorder:      recorder,
		ProbeInterval: c.cfg.Agents.ProbeInterval,
		Logger:        c.logger.With("component", "session"),
	})

	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		h.Run(ctx)
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
	}()
}

// shutdown closes every live connection, authenticated or not, so blocked
// handlers unwind, then waits for them and closes the store.
func (c *Controller) shutdown() {
	c.logger.Info("controller shutting down", "agents", c.registry.Len())
	c.mu.Lock()
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed closing store", "error", err)
		}
	}
}
