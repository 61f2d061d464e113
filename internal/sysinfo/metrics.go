// ABOUTME: Metrics document assembly and /proc parsers for the metrics key.
// ABOUTME: The document schema matches what the controller's report package renders.

package sysinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Metrics is the JSON document the metrics command key produces. The
// controller treats it as an opaque string; only its report formatter
// decodes it again.
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

// cpuSampleInterval is how long Collect samples /proc/stat to derive
// per-core busy percentages.
const cpuSampleInterval = 200 * time.Millisecond

// Collect gathers the full metrics document.
func Collect() (*Metrics, error) {
	cpu, err := sampleCPUPercent(cpuSampleInterval)
	if err != nil {
		return nil, fmt.Errorf("collecting cpu: %w", err)
	}
	mem, err := readMemory()
	if err != nil {
		return nil, fmt.Errorf("collecting memory: %w", err)
	}
	load, err := readLoadAvg()
	if err != nil {
		return nil, fmt.Errorf("collecting load: %w", err)
	}
	disk, err := readDisk("/")
	if err != nil {
		return nil, fmt.Errorf("collecting disk: %w", err)
	}

	m := &Metrics{
		CPUPercent: cpu,
		Memory:     mem,
		LoadAvg:    load,
		Disk:       disk,
	}

	// Per-interface counters are optional in the schema.
	if net, err := readNetDev(); err == nil {
		m.Net = net
	}
	return m, nil
}

func readUptime() (float64, error) {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0, err
	}
	return parseUptime(string(data))
}

func parseUptime(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected /proc/uptime content %q", s)
	}
	return strconv.ParseFloat(fields[0], 64)
}

func readLoadAvg() (LoadAvg, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return LoadAvg{}, err
	}
	return parseLoadAvg(string(data))
}

func parseLoadAvg(s string) (LoadAvg, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return LoadAvg{}, fmt.Errorf("unexpected /proc/loadavg content %q", s)
	}
	var load LoadAvg
	var err error
	if load.Load1, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return LoadAvg{}, err
	}
	if load.Load5, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return LoadAvg{}, err
	}
	if load.Load15, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return LoadAvg{}, err
	}
	return load, nil
}

func readMemory() (Memory, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return Memory{}, err
	}
	return parseMeminfo(string(data))
}

// parseMeminfo reads the kB-denominated fields of /proc/meminfo and
// converts them to bytes. "Used" follows the available-memory convention:
// total minus MemAvailable.
func parseMeminfo(s string) (Memory, error) {
	values := make(map[string]uint64)
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := scanner.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 1 {
			continue
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		values[name] = kb * 1024
	}

	total, ok := values["MemTotal"]
	if !ok {
		return Memory{}, fmt.Errorf("meminfo missing MemTotal")
	}
	available := values["MemAvailable"]
	swapTotal := values["SwapTotal"]
	swapFree := values["SwapFree"]

	mem := Memory{
		Total:     total,
		Used:      total - available,
		Free:      available,
		SwapTotal: swapTotal,
		SwapUsed:  swapTotal - swapFree,
		SwapFree:  swapFree,
	}
	if total > 0 {
		mem.Percent = round1(float64(mem.Used) / float64(total) * 100)
	}
	if swapTotal > 0 {
		mem.SwapPercent = round1(float64(mem.SwapUsed) / float64(swapTotal) * 100)
	}
	return mem, nil
}

// cpuTimes is one core's jiffy counters from /proc/stat.
type cpuTimes struct {
	busy  uint64
	total uint64
}

func sampleCPUPercent(interval time.Duration) ([]float64, error) {
	first, err := readCPUTimes()
	if err != nil {
		return nil, err
	}
	time.Sleep(interval)
	second, err := readCPUTimes()
	if err != nil {
		return nil, err
	}
	return cpuPercent(first, second), nil
}

func readCPUTimes() ([]cpuTimes, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return nil, err
	}
	return parseCPUTimes(string(data))
}

// parseCPUTimes extracts per-core counters from /proc/stat, skipping the
// aggregate "cpu" line.
func parseCPUTimes(s string) ([]cpuTimes, error) {
	var cores []cpuTimes
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") || strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		var t cpuTimes
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %q: %w", line, err)
			}
			t.total += v
			// fields 4 and 5 after the name are idle and iowait
			if i != 3 && i != 4 {
				t.busy += v
			}
		}
		cores = append(cores, t)
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("no per-core lines in /proc/stat")
	}
	return cores, nil
}

func cpuPercent(first, second []cpuTimes) []float64 {
	n := len(first)
	if len(second) < n {
		n = len(second)
	}
	percents := make([]float64, n)
	for i := 0; i < n; i++ {
		totalDelta := second[i].total - first[i].total
		if totalDelta == 0 {
			continue
		}
		busyDelta := second[i].busy - first[i].busy
		percents[i] = round1(float64(busyDelta) / float64(totalDelta) * 100)
	}
	return percents
}

func readNetDev() (map[string]NetStat, error) {
	data, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return nil, err
	}
	return parseNetDev(string(data))
}

// parseNetDev reads per-interface counters from /proc/net/dev. The
// loopback interface is skipped; the controller cares about real traffic.
func parseNetDev(s string) (map[string]NetStat, error) {
	stats := make(map[string]NetStat)
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := scanner.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 12 {
			continue
		}

		var vals [12]uint64
		valid := true
		for i := 0; i < 12; i++ {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				valid = false
				break
			}
			vals[i] = v
		}
		if !valid {
			continue
		}

		stats[name] = NetStat{
			BytesRecv:   vals[0],
			PacketsRecv: vals[1],
			BytesSent:   vals[8],
			PacketsSent: vals[9],
		}
	}
	return stats, nil
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
