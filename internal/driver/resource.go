package driver

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// 内存压力等级
const (
	PressureNormal    = "normal"
	PressureWarning   = "warning"
	PressureCritical  = "critical"
	PressureEmergency = "emergency"
)

// ResourceConfig 启动浏览器前的资源检查配置
type ResourceConfig struct {
	SafetyReserveMemory int64 `mapstructure:"safety_reserve_memory"` // 安全保留内存(字节)
	CPULoadThreshold    int   `mapstructure:"cpu_load_threshold"`    // CPU负载阈值(%), >=200 视为禁用
}

// DefaultResourceConfig 默认配置
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		SafetyReserveMemory: 256 * 1024 * 1024,
		CPULoadThreshold:    95,
	}
}

// ResourceStatus 资源采样结果
type ResourceStatus struct {
	TotalMemory     uint64
	AvailableMemory int64 // 扣除安全保留后的可用内存
	CPUUsage        float64
	Pressure        string
}

// ResourceMonitor 系统资源检查
type ResourceMonitor struct {
	config ResourceConfig

	// 采样函数,测试中替换
	memory func() (total, available uint64, err error)
	cpu    func() (float64, error)
}

// NewResourceMonitor 创建资源检查器
func NewResourceMonitor(config ResourceConfig) *ResourceMonitor {
	return &ResourceMonitor{
		config: config,
		memory: systemMemory,
		cpu:    systemCPU,
	}
}

func systemMemory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Available, nil
}

func systemCPU() (float64, error) {
	// 100毫秒采样,避免阻塞过久
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// Sample 采样当前资源状态. 采样失败时视为正常
func (rm *ResourceMonitor) Sample() ResourceStatus {
	var st ResourceStatus

	total, available, err := rm.memory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
		st.Pressure = PressureNormal
	} else {
		st.TotalMemory = total
		st.AvailableMemory = int64(available) - rm.config.SafetyReserveMemory
		st.Pressure = pressureLevel(st.AvailableMemory)
	}

	if rm.config.CPULoadThreshold < 200 {
		usage, err := rm.cpu()
		if err != nil {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
		}
		st.CPUUsage = usage
	}
	return st
}

// Preflight 启动浏览器前检查资源
// 紧急内存压力时拒绝启动,其余情况只记录警告
func (rm *ResourceMonitor) Preflight() (ResourceStatus, error) {
	st := rm.Sample()
	availableMB := st.AvailableMemory / (1024 * 1024)

	switch st.Pressure {
	case PressureEmergency:
		log.Error().Msgf("内存紧急状态(当前%dMB),拒绝启动浏览器", availableMB)
		return st, fmt.Errorf("内存严重不足(当前%dMB)", availableMB)
	case PressureCritical, PressureWarning:
		log.Warn().Msgf("可用内存不足(当前%dMB),浏览器可能运行缓慢", availableMB)
	}

	if rm.config.CPULoadThreshold < 200 && st.CPUUsage > float64(rm.config.CPULoadThreshold) {
		log.Warn().Msgf("CPU负载过高(当前%.1f%%)", st.CPUUsage)
	}
	return st, nil
}

func pressureLevel(available int64) string {
	availableMB := available / (1024 * 1024)
	switch {
	case availableMB < 200:
		return PressureEmergency
	case availableMB < 300:
		return PressureCritical
	case availableMB < 500:
		return PressureWarning
	default:
		return PressureNormal
	}
}
