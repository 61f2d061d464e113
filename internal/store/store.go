// ABOUTME: Recorder interface and data types for PNCP time-series persistence.
// ABOUTME: Command outputs and agent status transitions, queryable by agent and command.

package store

import (
	"context"
	"time"
)

// AgentStatus is a registry transition recorded for an agent.
type AgentStatus string

const (
	StatusConnected    AgentStatus = "connected"
	StatusDisconnected AgentStatus = "disconnected"
)

// OutputRecord is one stored command output.
type OutputRecord struct {
	ID        string
	AgentID   string
	Command   string
	Output    string
	CreatedAt time.Time
}

// StatusRecord is one stored agent status transition.
type StatusRecord struct {
	ID        string
	AgentID   string
	Status    AgentStatus
	CreatedAt time.Time
}

// Recorder receives protocol events for persistence. Implementations must
// be safe for concurrent use; callers treat failures as log-and-continue,
// so a broken store never affects protocol behavior.
type Recorder interface {
	RecordOutput(ctx context.Context, agentID, command, output string, at time.Time) error
	RecordStatus(ctx context.Context, agentID string, status AgentStatus, at time.Time) error
}

// Store extends Recorder with the read side used by the history command.
type Store interface {
	Recorder

	RecentOutputs(ctx context.Context, agentID, command string, limit int) ([]OutputRecord, error)
	StatusHistory(ctx context.Context, agentID string, limit int) ([]StatusRecord, error)
	Close() error
}

// NopRecorder discards everything. Used when persistence is disabled.
type NopRecorder struct{}

func (NopRecorder) RecordOutput(ctx context.Context, agentID, command, output string, at time.Time) error {
	return nil
}

func (NopRecorder) RecordStatus(ctx context.Context, agentID string, status AgentStatus, at time.Time) error {
	return nil
}
