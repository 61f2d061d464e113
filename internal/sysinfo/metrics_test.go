// ABOUTME: Tests for the /proc parsers behind the metrics and network keys.
// ABOUTME: Uses captured sample file contents rather than the live system.

package sysinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUptime(t *testing.T) {
	up, err := parseUptime("12345.67 98765.43\n")
	require.NoError(t, err)
	assert.InDelta(t, 12345.67, up, 0.001)

	_, err = parseUptime("")
	assert.Error(t, err)
}

func TestParseLoadAvg(t *testing.T) {
	load, err := parseLoadAvg("0.52 0.58 0.59 1/257 12345\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, load.Load1, 0.001)
	assert.InDelta(t, 0.58, load.Load5, 0.001)
	assert.InDelta(t, 0.59, load.Load15, 0.001)

	_, err = parseLoadAvg("0.52 0.58")
	assert.Error(t, err)
}

const sampleMeminfo = `MemTotal:        3884376 kB
MemFree:          234560 kB
MemAvailable:    1942188 kB
Buffers:          123456 kB
Cached:           654321 kB
SwapTotal:       1048576 kB
SwapFree:         524288 kB
`

func TestParseMeminfo(t *testing.T) {
	mem, err := parseMeminfo(sampleMeminfo)
	require.NoError(t, err)

	assert.Equal(t, uint64(3884376*1024), mem.Total)
	assert.Equal(t, uint64(1942188*1024), mem.Free)
	assert.Equal(t, uint64((3884376-1942188)*1024), mem.Used)
	assert.InDelta(t, 50.0, mem.Percent, 0.1)
	assert.Equal(t, uint64(1048576*1024), mem.SwapTotal)
	assert.Equal(t, uint64(524288*1024), mem.SwapUsed)
	assert.InDelta(t, 50.0, mem.SwapPercent, 0.1)
}

func TestParseMeminfoMissingTotal(t *testing.T) {
	_, err := parseMeminfo("MemFree: 100 kB\n")
	assert.Error(t, err)
}

const sampleStatFirst = `cpu  100 0 100 800 0 0 0 0 0 0
cpu0 50 0 50 400 0 0 0 0 0 0
cpu1 50 0 50 400 0 0 0 0 0 0
intr 12345
`

const sampleStatSecond = `cpu  200 0 200 1600 0 0 0 0 0 0
cpu0 150 0 150 700 0 0 0 0 0 0
cpu1 50 0 50 900 0 0 0 0 0 0
intr 12399
`

func TestParseCPUTimes(t *testing.T) {
	cores, err := parseCPUTimes(sampleStatFirst)
	require.NoError(t, err)
	require.Len(t, cores, 2, "aggregate cpu line must be skipped")
	assert.Equal(t, uint64(100), cores[0].busy)
	assert.Equal(t, uint64(500), cores[0].total)
}

func TestCPUPercent(t *testing.T) {
	first, err := parseCPUTimes(sampleStatFirst)
	require.NoError(t, err)
	second, err := parseCPUTimes(sampleStatSecond)
	require.NoError(t, err)

	percents := cpuPercent(first, second)
	require.Len(t, percents, 2)
	// cpu0: busy 100->300 of total 500->1000 -> 200/500 = 40%
	assert.InDelta(t, 40.0, percents[0], 0.1)
	// cpu1: busy unchanged over 500 more jiffies -> 0%
	assert.InDelta(t, 0.0, percents[1], 0.1)
}

const sampleNetDev = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:   10000     100    0    0    0     0          0         0    10000     100    0    0    0     0       0          0
  eth0: 1234567    8901    0    0    0     0          0         0  7654321    1098    0    0    0     0       0          0
 wlan0:   20480      20    0    0    0     0          0         0    10240      10    0    0    0     0       0          0
`

func TestParseNetDev(t *testing.T) {
	stats, err := parseNetDev(sampleNetDev)
	require.NoError(t, err)

	assert.NotContains(t, stats, "lo", "loopback is skipped")
	require.Contains(t, stats, "eth0")
	assert.Equal(t, uint64(1234567), stats["eth0"].BytesRecv)
	assert.Equal(t, uint64(8901), stats["eth0"].PacketsRecv)
	assert.Equal(t, uint64(7654321), stats["eth0"].BytesSent)
	assert.Equal(t, uint64(1098), stats["eth0"].PacketsSent)
}

func TestRunnerUnknownKey(t *testing.T) {
	r := &Runner{}
	rc, out := r.Run(context.Background(), "reboot")
	assert.Equal(t, 1, rc)
	assert.Equal(t, "Command key not allowed", out)
}

func TestRunnerHostname(t *testing.T) {
	r := &Runner{}
	rc, out := r.Run(context.Background(), "hostname")
	assert.Equal(t, 0, rc)
	assert.NotEmpty(t, out)
}
