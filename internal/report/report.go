// ABOUTME: Human-readable rendering of an agent's metrics payload.
// ABOUTME: Display only; the protocol treats the payload as an opaque string.

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
)

// Metrics mirrors the JSON document the metrics command produces on the
// agent. Fields the agent omits stay zero-valued.
type Metrics struct {
	CPUPercent []float64          `json:"cpu_percent"`
	Memory     Memory             `json:"memory"`
	LoadAvg    LoadAvg            `json:"load_avg"`
	Disk       Disk               `json:"disk"`
	Net        map[string]NetStat `json:"net,omitempty"`
}

// Memory reports physical and swap usage in bytes.
type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	Percent     float64 `json:"percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapFree    uint64  `json:"swap_free"`
	SwapPercent float64 `json:"swap_percent"`
}

// LoadAvg reports the 1/5/15-minute load averages.
type LoadAvg struct {
	Load1  float64 `json:"1min"`
	Load5  float64 `json:"5min"`
	Load15 float64 `json:"15min"`
}

// Disk reports root filesystem usage in bytes.
type Disk struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

// NetStat reports one interface's cumulative counters.
type NetStat struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

const (
	mib = 1 << 20
	gib = 1 << 30
	kib = 1 << 10
)

// Render writes a readable metrics block for one agent. A payload that is
// not valid metrics JSON is printed raw instead; display never fails the
// protocol operation that produced it.
func Render(w io.Writer, agentID, payload string) {
	var m Metrics
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		fmt.Fprintf(w, "[%s] unparseable metrics payload: %v\n%s\n", agentID, err, payload)
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgHiBlack)

	header.Fprintf(w, "\n[%s] Metrics:\n", agentID)

	label.Fprint(w, "CPU usage per core: ")
	fmt.Fprintf(w, "%v\n", m.CPUPercent)

	label.Fprint(w, "Memory: ")
	fmt.Fprintf(w, "%.1f MB used / %.1f MB total (%.1f%%)\n",
		float64(m.Memory.Used)/mib, float64(m.Memory.Total)/mib, m.Memory.Percent)

	label.Fprint(w, "Swap: ")
	fmt.Fprintf(w, "%.1f MB used / %.1f MB total (%.1f%%)\n",
		float64(m.Memory.SwapUsed)/mib, float64(m.Memory.SwapTotal)/mib, m.Memory.SwapPercent)

	label.Fprint(w, "Load Average: ")
	fmt.Fprintf(w, "1min=%.2f, 5min=%.2f, 15min=%.2f\n",
		m.LoadAvg.Load1, m.LoadAvg.Load5, m.LoadAvg.Load15)

	label.Fprint(w, "Disk: ")
	fmt.Fprintf(w, "%.2f GB used / %.2f GB total (%.1f%%)\n",
		float64(m.Disk.Used)/gib, float64(m.Disk.Total)/gib, m.Disk.Percent)

	if len(m.Net) > 0 {
		label.Fprintln(w, "Network Interfaces:")
		names := make([]string, 0, len(m.Net))
		for name := range m.Net {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stats := m.Net[name]
			fmt.Fprintf(w, "  %s: %.2f KB sent, %.2f KB received\n",
				name, float64(stats.BytesSent)/kib, float64(stats.BytesRecv)/kib)
		}
	}

	fmt.Fprintln(w, "----------------------------------------")
}
