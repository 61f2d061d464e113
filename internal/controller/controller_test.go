// ABOUTME: End-to-end tests for the controller over loopback TCP.
// ABOUTME: Drives the full handshake and a dispatch round trip with persistence.

package controller

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pifleet/pncp/internal/auth"
	"github.com/pifleet/pncp/internal/config"
	"github.com/pifleet/pncp/internal/store"
	"github.com/pifleet/pncp/internal/wire"
)

const testSecret = "integration-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Auth:     config.AuthConfig{SharedSecret: testSecret},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "pncp.db")},
		Agents:   config.AgentsConfig{ProbeInterval: 10 * time.Millisecond},
		Dispatch: config.DispatchConfig{ResponseTimeout: 2 * time.Second},
	}
}

func startController(t *testing.T, ctx context.Context, cfg *config.Config) (*Controller, chan error) {
	t.Helper()
	ctrl, err := New(cfg, slog.Default())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Run(ctx)
	}()

	require.Eventually(t, func() bool { return ctrl.ListenAddr() != "" },
		2*time.Second, 10*time.Millisecond, "controller did not start listening")
	return ctrl, errCh
}

// connectAgent dials and completes the handshake as a well-behaved agent.
func connectAgent(t *testing.T, addr, name string, codec *wire.Codec) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ts := time.Now().Unix()
	require.NoError(t, codec.Write(conn, wire.NewAuth(name, ts, auth.ComputeCode([]byte(testSecret), ts))))

	resp, err := codec.Read(conn)
	require.NoError(t, err)
	require.Equal(t, wire.TypeAuthResult, resp.Type)
	require.True(t, resp.AuthResult.OK)
	return conn
}

func TestControllerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	ctrl, errCh := startController(t, ctx, cfg)
	codec := wire.NewCodec(0)

	conn := connectAgent(t, ctrl.ListenAddr(), "pi-1", codec)

	require.Eventually(t, func() bool { return ctrl.Registry().Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Serve exactly one command from the agent side.
	served := make(chan struct{})
	go func() {
		defer close(served)
		cmd, err := codec.Read(conn)
		if !assert.NoError(t, err) {
			return
		}
		if !assert.Equal(t, wire.TypeCommand, cmd.Type) {
			return
		}
		assert.NoError(t, codec.Write(conn, wire.NewResult(cmd.Command.ID, 0, "pi-1.local")))
	}()

	results, err := ctrl.Dispatcher().Dispatch(ctx, "hostname")
	require.NoError(t, err)
	<-served

	require.Len(t, results, 1)
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "pi-1.local", res.Output)
	}

	// Output and the connected transition were persisted.
	outputs, err := ctrl.Store().RecentOutputs(ctx, "", "hostname", 10)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "pi-1.local", outputs[0].Output)

	statuses, err := ctrl.Store().StatusHistory(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, store.StatusConnected, statuses[0].Status)

	// Shutdown closes the agent connection and drains handlers.
	cancel()
	require.NoError(t, <-errCh)

	_, err = codec.Read(conn)
	assert.Error(t, err, "agent connection is closed on shutdown")
}

func TestControllerRejectsBadSecret(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, errCh := startController(t, ctx, testConfig(t))
	codec := wire.NewCodec(0)

	conn, err := net.Dial("tcp", ctrl.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	ts := time.Now().Unix()
	require.NoError(t, codec.Write(conn, wire.NewAuth("pi-1", ts, auth.ComputeCode([]byte("wrong"), ts))))

	resp, err := codec.Read(conn)
	require.NoError(t, err)
	assert.False(t, resp.AuthResult.OK)
	assert.Equal(t, 0, ctrl.Registry().Len())

	cancel()
	require.NoError(t, <-errCh)
}

func TestControllerShutdownClosesSilentConn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, errCh := startController(t, ctx, testConfig(t))

	// Connect and never send the auth message.
	conn, err := net.Dial("tcp", ctrl.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hung on a connection that never authenticated")
	}
}

func TestControllerAgentDisconnectIsReaped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	ctrl, errCh := startController(t, ctx, cfg)
	codec := wire.NewCodec(0)

	conn := connectAgent(t, ctrl.ListenAddr(), "pi-1", codec)
	require.Eventually(t, func() bool { return ctrl.Registry().Len() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return ctrl.Registry().Len() == 0 },
		2*time.Second, 10*time.Millisecond, "probe should reap the dead agent")

	cancel()
	require.NoError(t, <-errCh)

	// Both transitions are on record after cleanup.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	defer st.Close()
	statuses, err := st.StatusHistory(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, store.StatusDisconnected, statuses[0].Status)
	assert.Equal(t, store.StatusConnected, statuses[1].Status)
}
