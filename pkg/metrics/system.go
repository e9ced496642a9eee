package metrics

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats 系统资源快照。模型加载受可用内存约束，前端据此提示可选的模型规格
type SystemStats struct {
	CPUPercent   float64 `json:"cpuPercent"`
	MemTotal     uint64  `json:"memTotal"`
	MemAvailable uint64  `json:"memAvailable"`
	MemPercent   float64 `json:"memPercent"`
	Goroutines   int     `json:"goroutines"`
}

// CollectSystem 采集当前系统资源
func CollectSystem() (*SystemStats, error) {
	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return stats, err
	}
	stats.MemTotal = vm.Total
	stats.MemAvailable = vm.Available
	stats.MemPercent = vm.UsedPercent
	return stats, nil
}

// AvailableMemory 当前可用物理内存（字节）
func AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
