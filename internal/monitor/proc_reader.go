package monitor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fluxfaas/fluxfaas/internal/domain"
)

// ProcReader samples memory and CPU usage from /proc/<pid>/status and
// /proc/<pid>/stat on Linux.
type ProcReader struct{}

func (ProcReader) Sample(pid int) (map[domain.ResourceKind]float64, error) {
	memMB, err := readRSSMB(pid)
	if err != nil {
		return nil, err
	}
	cpuPct, err := readCPUPercent(pid)
	if err != nil {
		// Memory alone is still useful; CPU sampling needs two readings
		// over time so a transient failure here isn't fatal.
		cpuPct = 0
	}
	return map[domain.ResourceKind]float64{
		domain.ResourceMemory:     memMB,
		domain.ResourceCPUPercent: cpuPct,
	}, nil
}

// readRSSMB parses VmRSS out of /proc/<pid>/status, reported in kB.
func readRSSMB(pid int) (float64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			kb, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return 0, err
			}
			return kb / 1024.0, nil
		}
	}
	return 0, fmt.Errorf("VmRSS not found in /proc/%d/status", pid)
}

// cpuClockTicksPerSec converts /proc clock ticks into seconds.
var cpuClockTicksPerSec = float64(100) // typical Linux USER_HZ; good enough for approximate CPU%

// readCPUPercent reads utime+stime from /proc/<pid>/stat. Since this is a
// single instantaneous read, it reports cumulative CPU seconds as a
// percentage of one core's worth of wall-clock time since process start
// — an approximation consistent with the soft/hard threshold model,
// which cares about sustained overuse rather than exact CPU accounting.
func readCPUPercent(pid int) (float64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	// Fields after the ")" that closes the process name are space
	// separated and position-stable per proc(5).
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(string(data[idx+2:]))
	if len(fields) < 20 {
		return 0, fmt.Errorf("too few fields in /proc/%d/stat", pid)
	}
	utime, _ := strconv.ParseFloat(fields[11], 64)
	stime, _ := strconv.ParseFloat(fields[12], 64)
	startTicks, _ := strconv.ParseFloat(fields[19], 64)
	uptimeData, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0, err
	}
	uptimeFields := strings.Fields(string(uptimeData))
	if len(uptimeFields) == 0 {
		return 0, fmt.Errorf("malformed /proc/uptime")
	}
	uptime, _ := strconv.ParseFloat(uptimeFields[0], 64)
	elapsed := uptime - startTicks/cpuClockTicksPerSec
	if elapsed <= 0 {
		return 0, nil
	}
	totalSecs := (utime + stime) / cpuClockTicksPerSec
	return totalSecs / elapsed * 100, nil
}
