// ABOUTME: Fans a command out to every registered agent and correlates responses.
// ABOUTME: Enforces the command allowlist before any network activity.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pifleet/pncp/internal/agent"
	"github.com/pifleet/pncp/internal/store"
	"github.com/pifleet/pncp/internal/wire"
)

// ErrCommandNotAllowed rejects a command key outside the allowlist. It is
// returned before any agent is contacted.
var ErrCommandNotAllowed = errors.New("command key not allowed")

// allowedCommands is the server-enforced command key set.
var allowedCommands = map[string]struct{}{
	"uptime":   {},
	"hostname": {},
	"disk":     {},
	"lslogs":   {},
	"metrics":  {},
	"network":  {},
}

// Allowed reports whether key is in the command allowlist.
func Allowed(key string) bool {
	_, ok := allowedCommands[key]
	return ok
}

// AllowedCommands returns the allowlist sorted, for prompts and usage text.
func AllowedCommands() []string {
	keys := make([]string, 0, len(allowedCommands))
	for k := range allowedCommands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnexpectedResponseError reports a response whose type or correlation id
// does not match the request it should answer.
type UnexpectedResponseError struct {
	AgentID  string
	WantID   string
	GotID    string
	GotType  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response from %s: type=%q id=%q (want id %q)",
		e.AgentID, e.GotType, e.GotID, e.WantID)
}

// Result is one agent's outcome in a dispatch. Either Err is set, or
// ExitCode and Output carry the agent's reply.
type Result struct {
	AgentID  string
	ExitCode int
	Output   string
	Err      error
}

// DefaultTimeout bounds one agent's command round trip.
const DefaultTimeout = 30 * time.Second

// Dispatcher sends commands to all registered agents. Fan-out is
// sequential; one agent's round trip completes before the next begins,
// and one agent's failure never aborts the rest of the batch.
type Dispatcher struct {
	registry *agent.Registry
	codec    *wire.Codec
	recorder store.Recorder
	timeout  time.Duration
	logger   *slog.Logger
	newID    func() string
}

// Config wires a Dispatcher's collaborators.
type Config struct {
	Registry *agent.Registry
	Codec    *wire.Codec
	Recorder store.Recorder
	Timeout  time.Duration
	Logger   *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Recorder == nil {
		cfg.Recorder = store.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		codec:    cfg.Codec,
		recorder: cfg.Recorder,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// Dispatch sends key to every agent in the current registry snapshot and
// returns each agent's result keyed by identity. A disallowed key fails
// with ErrCommandNotAllowed before touching the network; an empty registry
// yields an empty, non-error map.
func (d *Dispatcher) Dispatch(ctx context.Context, key string) (map[string]Result, error) {
	if !Allowed(key) {
		return nil, fmt.Errorf("%w: %q", ErrCommandNotAllowed, key)
	}

	results := make(map[string]Result)
	snapshot := d.registry.Snapshot()
	if len(snapshot) == 0 {
		d.logger.Info("no agents registered, nothing to dispatch", "command", key)
		return results, nil
	}

	for _, a := range snapshot {
		if err := ctx.Err(); err != nil {
			results[a.ID] = Result{AgentID: a.ID, Err: err}
			continue
		}
		results[a.ID] = d.dispatchOne(ctx, a, key)
	}
	return results, nil
}

// dispatchOne runs the full round trip for one agent: fresh correlation
// id, framed cmd, framed reply, type and id check, persistence.
func (d *Dispatcher) dispatchOne(ctx context.Context, a *agent.Agent, key string) Result {
	requestID := d.newID()
	d.logger.Debug("dispatching command",
		"agent_id", a.ID,
		"request_id", requestID,
		"command", key,
	)

	resp, err := a.RoundTrip(d.codec, wire.NewCommand(requestID, key), d.timeout)
	if err != nil {
		d.logger.Warn("command round trip failed",
			"agent_id", a.ID,
			"request_id", requestID,
			"error", err,
		)
		return Result{AgentID: a.ID, Err: err}
	}
	d.logger.Debug("frame received", "agent_id", a.ID, "type", resp.Type)

	if resp.Type != wire.TypeResult || resp.Result == nil || resp.Result.ID != requestID {
		uerr := &UnexpectedResponseError{
			AgentID: a.ID,
			WantID:  requestID,
			GotType: resp.Type,
		}
		if resp.Result != nil {
			uerr.GotID = resp.Result.ID
		}
		d.logger.Warn("discarding uncorrelated response",
			"agent_id", a.ID,
			"request_id", requestID,
			"got_type", resp.Type,
		)
		return Result{AgentID: a.ID, Err: uerr}
	}

	res := Result{
		AgentID:  a.ID,
		ExitCode: resp.Result.ExitCode,
		Output:   resp.Result.Output,
	}

	// Persistence is best-effort; a broken store never fails the dispatch.
	if err := d.recorder.RecordOutput(ctx, a.ID, key, res.Output, time.Now()); err != nil {
		d.logger.Warn("failed recording command output",
			"agent_id", a.ID,
			"command", key,
			"error", err,
		)
	}
	return res
}
