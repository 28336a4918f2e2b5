package agent

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// cpuSample is one read of the kernel's aggregate CPU counters, in
// jiffies, from the first line of /proc/stat.
type cpuSample struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (c cpuSample) idleTotal() uint64 {
	return c.idle + c.iowait
}

func (c cpuSample) total() uint64 {
	return c.user + c.nice + c.system + c.idle + c.iowait + c.irq + c.softirq + c.steal
}

// MetricsSampler computes CPU% from successive /proc/stat reads and
// memory% from /proc/meminfo. Its previous-sample state is private to the
// sampler so multiple independent samplers (e.g. in tests) don't share it.
type MetricsSampler struct {
	mu   sync.Mutex
	prev *cpuSample
}

// NewMetricsSampler creates a sampler with no prior CPU reading.
func NewMetricsSampler() *MetricsSampler {
	return &MetricsSampler{}
}

// SystemMetrics is a point-in-time snapshot of host resource usage.
type SystemMetrics struct {
	CPUPercent       float64 `json:"cpu_usage"`
	MemoryPercent    float64 `json:"memory_usage"`
	TotalMemoryKB    uint64  `json:"total_memory"`
	AvailableMemoryKB uint64  `json:"available_memory"`
}

// Sample reads current host CPU and memory usage. The very first call
// (no prior CPU sample) reports CPUPercent as 0.
func (m *MetricsSampler) Sample() (SystemMetrics, error) {
	cur, err := readCPUSample()
	if err != nil {
		return SystemMetrics{}, err
	}

	m.mu.Lock()
	prev := m.prev
	m.prev = &cur
	m.mu.Unlock()

	var cpuPct float64
	if prev != nil {
		cpuPct = cpuPercent(*prev, cur)
	}

	totalKB, availKB, err := readMemInfo()
	if err != nil {
		return SystemMetrics{}, err
	}

	return SystemMetrics{
		CPUPercent:        cpuPct,
		MemoryPercent:     memPercent(totalKB, availKB),
		TotalMemoryKB:     totalKB,
		AvailableMemoryKB: availKB,
	}, nil
}

// cpuPercent computes 100 * (1 - delta_idle / delta_total) between two
// samples, clamping non-finite or negative results to 0.
func cpuPercent(prev, cur cpuSample) float64 {
	deltaTotal := cur.total() - prev.total()
	if deltaTotal == 0 {
		return 0
	}
	deltaIdle := cur.idleTotal() - prev.idleTotal()

	pct := 100 * (1 - float64(deltaIdle)/float64(deltaTotal))
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
		return 0
	}
	return pct
}

// memPercent computes 100 * (1 - available/total), reporting 0 when total
// is 0 or otherwise unusable.
func memPercent(totalKB, availKB uint64) float64 {
	if totalKB == 0 {
		return 0
	}
	pct := 100 * (1 - float64(availKB)/float64(totalKB))
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// readCPUSample parses the aggregate "cpu" line of /proc/stat.
func readCPUSample() (cpuSample, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSample{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		vals := make([]uint64, 8)
		for i := 0; i < len(fields) && i < len(vals); i++ {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return cpuSample{}, err
			}
			vals[i] = v
		}
		return cpuSample{
			user: vals[0], nice: vals[1], system: vals[2], idle: vals[3],
			iowait: vals[4], irq: vals[5], softirq: vals[6], steal: vals[7],
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return cpuSample{}, err
	}
	return cpuSample{}, nil
}

// readMemInfo parses MemTotal and MemAvailable from /proc/meminfo,
// returning their values verbatim in the kernel's native kB units.
func readMemInfo() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMemInfoLine(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMemInfoLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	return total, available, nil
}

// parseMemInfoLine extracts the kB value out of a line like
// "MemTotal:       16313216 kB". Unparseable lines yield 0.
func parseMemInfoLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
