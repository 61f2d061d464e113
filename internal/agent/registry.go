// ABOUTME: Concurrent registry mapping agent identity to its live session.
// ABOUTME: All access is serialized; snapshots copy so iteration never races.

package agent

import (
	"log/slog"
	"sync"
)

// Registry tracks the currently authenticated agents. At most one live
// entry exists per identity; entries are added only after a successful
// handshake and removed only by the owning handler's cleanup path.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger,
	}
}

// Register inserts the agent, replacing any existing entry for the same
// identity (last write wins). It reports whether an entry was replaced.
func (r *Registry) Register(a *Agent) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.agents[a.ID]
	r.agents[a.ID] = a
	r.logger.Info("agent registered",
		"agent_id", a.ID,
		"remote_addr", a.RemoteAddr,
		"replaced", replaced,
		"total_agents", len(r.agents),
	)
	return replaced
}

// Unregister removes the entry for id if present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; ok {
		delete(r.agents, id)
		r.logger.Info("agent unregistered",
			"agent_id", id,
			"total_agents", len(r.agents),
		)
	}
}

// Snapshot returns a point-in-time copy of the registered agents, safe to
// iterate without holding the registry lock. Callers must not perform
// network I/O while holding any registry lock, so all iteration happens
// over this copy.
func (r *Registry) Snapshot() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	return agents
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
