package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemMetricsResponse reports the Control Plane host's own resource
// usage, surfaced on the dashboard alongside per-project build/deploy
// status so an operator can tell project load from host exhaustion.
type SystemMetricsResponse struct {
	Hostname    string        `json:"hostname"`
	Platform    PlatformInfo  `json:"platform"`
	Uptime      time.Duration `json:"uptime"`
	CPU         CPUUsage      `json:"cpu"`
	Memory      MemoryUsage   `json:"memory"`
	Disk        DiskUsage     `json:"disk"`
	LoadAverage [3]float64    `json:"load_average"`
	LastUpdated time.Time     `json:"last_updated"`
}

type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
}

type CPUUsage struct {
	UsedPercent float64 `json:"used_percent"`
	NumCores    int     `json:"num_cores"`
}

type MemoryUsage struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

type DiskUsage struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemMetrics reports the host's CPU, memory, disk, and load, used by
// the dashboard to warn operators before the build queue backs up from
// host exhaustion rather than a code problem.
func (h *Handlers) SystemMetrics(c *gin.Context) {
	cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get cpu usage"})
		return
	}
	var cpuUsed float64
	if len(cpuPercents) > 0 {
		cpuUsed = cpuPercents[0]
	}

	memStats, err := mem.VirtualMemory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get memory usage"})
		return
	}

	diskStats, err := disk.Usage("/")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get disk usage"})
		return
	}

	hostInfo, err := host.Info()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get host info"})
		return
	}

	var loadAvg [3]float64
	if l, err := load.Avg(); err == nil {
		loadAvg = [3]float64{l.Load1, l.Load5, l.Load15}
	}

	numCPU := runtime.NumCPU()

	c.JSON(http.StatusOK, SystemMetricsResponse{
		Hostname: hostInfo.Hostname,
		Platform: PlatformInfo{
			OS:           hostInfo.OS,
			Architecture: hostInfo.KernelArch,
			GoVersion:    runtime.Version(),
			NumCPU:       numCPU,
		},
		Uptime: time.Duration(hostInfo.Uptime) * time.Second,
		CPU: CPUUsage{
			UsedPercent: cpuUsed,
			NumCores:    numCPU,
		},
		Memory: MemoryUsage{
			Total:       memStats.Total,
			Available:   memStats.Available,
			Used:        memStats.Used,
			UsedPercent: memStats.UsedPercent,
		},
		Disk: DiskUsage{
			Total:       diskStats.Total,
			Free:        diskStats.Free,
			Used:        diskStats.Used,
			UsedPercent: diskStats.UsedPercent,
		},
		LoadAverage: loadAvg,
		LastUpdated: time.Now(),
	})
}
