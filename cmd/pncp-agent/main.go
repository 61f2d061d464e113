// ABOUTME: Entry point for pncp-agent: authenticates to the controller and serves commands.
// ABOUTME: Usage: pncp-agent [-config agent.toml] [-controller host:port] [-name NAME]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pifleet/pncp/internal/auth"
	"github.com/pifleet/pncp/internal/sysinfo"
	"github.com/pifleet/pncp/internal/wire"
)

const dialTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to agent.toml")
	controller := flag.String("controller", "", "controller address (host:port)")
	name := flag.String("name", "", "agent display name")
	logsDir := flag.String("logs-dir", "", "directory listed by the lslogs command")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed loading config", "error", err)
		os.Exit(1)
	}
	if *controller != "" {
		cfg.Controller = *controller
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *logsDir != "" {
		cfg.LogsDir = *logsDir
	}
	if err := cfg.validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	conn, err := net.DialTimeout("tcp", cfg.Controller, dialTimeout)
	if err != nil {
		return fmt.Errorf("connecting to controller: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop on shutdown; the controller sees the close
	// through its liveness probe.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	codec := wire.NewCodec(0)

	ts := time.Now().Unix()
	code := auth.ComputeCode([]byte(cfg.SharedSecret), ts)
	if err := codec.Write(conn, wire.NewAuth(cfg.Name, ts, code)); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	resp, err := codec.Read(conn)
	if err != nil {
		return fmt.Errorf("reading auth result: %w", err)
	}
	if resp.Type != wire.TypeAuthResult || resp.AuthResult == nil || !resp.AuthResult.OK {
		return fmt.Errorf("controller rejected authentication")
	}
	logger.Info("authenticated to controller", "controller", cfg.Controller, "name", cfg.Name)

	runner := &sysinfo.Runner{LogsDir: cfg.LogsDir}

	for {
		msg, err := codec.Read(conn)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			if errors.Is(err, io.EOF) {
				logger.Info("controller disconnected")
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}

		if msg.Type != wire.TypeCommand || msg.Command == nil {
			logger.Warn("ignoring unexpected message", "type", msg.Type)
			continue
		}

		logger.Debug("running command", "request_id", msg.Command.ID, "command", msg.Command.Key)
		rc, output := runner.Run(ctx, msg.Command.Key)

		if err := codec.Write(conn, wire.NewResult(msg.Command.ID, rc, output)); err != nil {
			return fmt.Errorf("sending result: %w", err)
		}
		logger.Debug("frame sent", "request_id", msg.Command.ID, "type", wire.TypeResult, "rc", rc)
	}
}
