// ABOUTME: Tests for the agent registry's mutation and snapshot contract.
// ABOUTME: Includes a concurrency check on the single-entry-per-identity invariant.

package agent

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAgent(t *testing.T, name string) *Agent {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewAgent(name, server)
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "pi-1_192.168.1.10:40210", Identity("pi-1", "192.168.1.10:40210"))
	assert.Equal(t, "_192.168.1.10:40210", Identity("", "192.168.1.10:40210"))
}

func TestRegistryRegisterUnregister(t *testing.T) {
	reg := NewRegistry(slog.Default())
	a := testAgent(t, "pi-1")

	replaced := reg.Register(a)
	assert.False(t, replaced)
	assert.Equal(t, 1, reg.Len())

	reg.Unregister(a.ID)
	assert.Equal(t, 0, reg.Len())

	// Unregistering a missing identity is a no-op.
	reg.Unregister(a.ID)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryReplacement(t *testing.T) {
	reg := NewRegistry(slog.Default())

	first := testAgent(t, "pi-1")
	second := &Agent{ID: first.ID, Name: first.Name, conn: first.conn}

	require.False(t, reg.Register(first))
	assert.True(t, reg.Register(second), "same identity should report replacement")
	assert.Equal(t, 1, reg.Len())

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Same(t, second, snapshot[0], "last write wins")
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	reg := NewRegistry(slog.Default())
	a := testAgent(t, "pi-1")
	reg.Register(a)

	snapshot := reg.Snapshot()
	reg.Unregister(a.ID)

	// The snapshot is unaffected by later mutation.
	require.Len(t, snapshot, 1)
	assert.Equal(t, a.ID, snapshot[0].ID)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(slog.Default())

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	const workers = 16
	const iterations = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("agent-%d", w)
			for i := 0; i < iterations; i++ {
				a := &Agent{ID: id, Name: id, ConnectedAt: time.Now(), conn: server}
				reg.Register(a)
				snapshot := reg.Snapshot()
				seen := make(map[string]int)
				for _, s := range snapshot {
					seen[s.ID]++
				}
				for sid, count := range seen {
					if count > 1 {
						t.Errorf("snapshot contains %d entries for %s", count, sid)
						return
					}
				}
				reg.Unregister(id)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len(), "every register was followed by unregister")
}
