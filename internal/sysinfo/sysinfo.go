// ABOUTME: Local command execution for the allowlisted PNCP command keys.
// ABOUTME: Collects OS facts from /proc and runs the one subprocess-backed key.

package sysinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// SubprocessTimeout bounds the one command key that shells out.
const SubprocessTimeout = 30 * time.Second

// Runner maps command keys to local execution. rc conventions follow the
// original fleet tooling: 0 success, 1 unknown key, -1 internal failure,
// -124 subprocess timeout.
type Runner struct {
	// LogsDir is listed by the lslogs key.
	LogsDir string
}

// Run executes one command key and returns its exit code and output.
// Errors are folded into the (rc, output) pair; Run itself never fails,
// the result frame always goes back to the controller.
func (r *Runner) Run(ctx context.Context, key string) (int, string) {
	switch key {
	case "uptime":
		return r.uptime()
	case "hostname":
		return r.hostname()
	case "disk":
		return r.disk()
	case "lslogs":
		return r.lslogs(ctx)
	case "metrics":
		return r.metrics()
	case "network":
		return r.network()
	default:
		return 1, "Command key not allowed"
	}
}

func (r *Runner) uptime() (int, string) {
	up, err := readUptime()
	if err != nil {
		return -1, err.Error()
	}
	load, err := readLoadAvg()
	if err != nil {
		return -1, err.Error()
	}
	return 0, fmt.Sprintf("uptime_sec=%.1f, load_avg=(%.2f, %.2f, %.2f)",
		up, load.Load1, load.Load5, load.Load15)
}

func (r *Runner) hostname() (int, string) {
	name, err := os.Hostname()
	if err != nil {
		return -1, err.Error()
	}
	return 0, name
}

func (r *Runner) disk() (int, string) {
	d, err := readDisk("/")
	if err != nil {
		return -1, err.Error()
	}
	return 0, fmt.Sprintf("Total: %d, Used: %d, Free: %d, Percent: %.1f",
		d.Total, d.Used, d.Free, d.Percent)
}

func (r *Runner) lslogs(ctx context.Context) (int, string) {
	dir := r.LogsDir
	if dir == "" {
		dir = "/var/log"
	}

	ctx, cancel := context.WithTimeout(ctx, SubprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/usr/bin/ls", dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return -124, "Command timeout"
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), string(out)
		}
		return -1, err.Error()
	}
	return 0, string(out)
}

func (r *Runner) metrics() (int, string) {
	m, err := Collect()
	if err != nil {
		return -1, err.Error()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return -1, err.Error()
	}
	return 0, string(payload)
}

func (r *Runner) network() (int, string) {
	stats, err := readNetDev()
	if err != nil {
		return -1, err.Error()
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		s := stats[name]
		fmt.Fprintf(&b, "%s: bytes_sent=%d bytes_recv=%d packets_sent=%d packets_recv=%d\n",
			name, s.BytesSent, s.BytesRecv, s.PacketsSent, s.PacketsRecv)
	}
	return 0, b.String()
}
