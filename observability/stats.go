// Package observability exposes the process self-stats served on the
// debug endpoint.
package observability

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SelfStats is a point-in-time snapshot of this node.
type SelfStats struct {
	Pid           int64     `json:"pid"`
	PidStatus     string    `json:"pidStatus"`
	CpuPercent    float64   `json:"cpuPercent"`
	RamBytes      uint64    `json:"ramBytes"`
	OnlineUsers   int       `json:"onlineUsers"`
	ActiveStreams int       `json:"activeStreams"`
	CollectedAt   time.Time `json:"collectedAt"`
}

// Collector samples OS-level metrics for the current process and is
// fed runtime gauges by the server.
type Collector struct {
	proc *process.Process
}

func NewCollector() (*Collector, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Collector{proc: p}, nil
}

// Collect retrieves technical metrics (Memory, CPU and OS status) for
// the running process.
func (c *Collector) Collect(onlineUsers, activeStreams int) (SelfStats, error) {
	memInfo, err := c.proc.MemoryInfo()
	if err != nil {
		return SelfStats{}, err
	}
	cpuPercent, err := c.proc.CPUPercent()
	if err != nil {
		return SelfStats{}, err
	}
	status, err := c.proc.Status()
	if err != nil {
		return SelfStats{}, err
	}

	return SelfStats{
		Pid:           int64(os.Getpid()),
		PidStatus:     status,
		CpuPercent:    cpuPercent,
		RamBytes:      memInfo.RSS,
		OnlineUsers:   onlineUsers,
		ActiveStreams: activeStreams,
		CollectedAt:   time.Now().UTC(),
	}, nil
}
