// Package agent manages authenticated PNCP agent sessions.
//
// # Registry
//
// The Registry is the single shared structure in the controller. It maps
// logical agent identity to the live *Agent:
//
//	reg := agent.NewRegistry(logger)
//
// Key operations:
//
//   - Register(agent): insert after a successful handshake; last write wins
//   - Unregister(id): removed only by the owning handler's cleanup
//   - Snapshot(): point-in-time copy, safe to iterate without the lock
//
// No caller holds a registry lock while doing network I/O; the dispatcher
// iterates a snapshot and drives each agent's connection under that
// agent's own I/O lock.
//
// # Session lifecycle
//
// Each accepted connection gets one Handler goroutine running the state
// machine:
//
//	Connected -> AwaitingAuth -> Authenticated -> Monitoring -> Closed
//
// The first inbound message must be a valid auth message; anything else
// draws auth_result{ok:false} (when well-formed) and the connection
// closes. On success the handler computes the identity
// <name>_<remote-ip>:<remote-port>, registers it, replies ok:true, and
// settles into liveness monitoring.
//
// # Liveness
//
// Monitoring probes the socket every 3 seconds with a non-consuming
// MSG_PEEK read. A zero-byte read means the peer closed; a would-block
// means it is presumed alive; a reset means it is gone. The probe never
// consumes bytes, so dispatch round trips on the same connection are
// unaffected.
//
// Cleanup is idempotent and runs on every exit path: deregister, record
// the disconnected transition, close the connection.
package agent
