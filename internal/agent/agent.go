// ABOUTME: Represents one authenticated agent session and its live connection.
// ABOUTME: Serializes framed I/O on the connection so frames never interleave.

package agent

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pifleet/pncp/internal/wire"
)

// Agent is one authenticated session. It is owned by its session handler
// for the handler's lifetime; the Registry holds only a reference keyed by
// ID. The connection is driven either by the owning handler or by a
// dispatch round trip holding ioMu, never by two workers at once.
type Agent struct {
	ID          string
	Name        string
	RemoteAddr  string
	ConnectedAt time.Time

	conn      net.Conn
	ioMu      sync.Mutex
	closeOnce sync.Once
}

// Identity derives the logical agent identity from the claimed display
// name and the socket's remote address. Two physical agents never collide
// (addresses differ) and a reconnect produces a new identity (new port).
func Identity(name, remoteAddr string) string {
	return fmt.Sprintf("%s_%s", name, remoteAddr)
}

// NewAgent creates an Agent for an authenticated connection.
func NewAgent(name string, conn net.Conn) *Agent {
	remote := conn.RemoteAddr().String()
	return &Agent{
		ID:          Identity(name, remote),
		Name:        name,
		RemoteAddr:  remote,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// RoundTrip sends msg and reads the next framed message from the same
// connection, holding the agent's I/O lock for the whole exchange. A zero
// timeout means no deadline.
func (a *Agent) RoundTrip(codec *wire.Codec, msg wire.Message, timeout time.Duration) (wire.Message, error) {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if timeout > 0 {
		if err := a.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return wire.Message{}, fmt.Errorf("setting deadline: %w", err)
		}
		defer a.conn.SetDeadline(time.Time{})
	}

	if err := codec.Write(a.conn, msg); err != nil {
		return wire.Message{}, err
	}
	return codec.Read(a.conn)
}

// Close closes the underlying connection. Safe to call more than once.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.conn.Close()
	})
	return err
}
