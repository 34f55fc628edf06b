// Package hoststats samples the load generator's own host so a saturated
// client is visible next to the database numbers.
package hoststats

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one point-in-time reading.
type Sample struct {
	Time time.Time `json:"time" yaml:"time"`
	// CPUPercent is the host-wide CPU use since the previous sample.
	CPUPercent     float64 `json:"cpuPercent" yaml:"cpuPercent"`
	MemUsedPercent float64 `json:"memUsedPercent" yaml:"memUsedPercent"`
	MemUsedBytes   uint64  `json:"memUsedBytes" yaml:"memUsedBytes"`
	ProcessRSS     uint64  `json:"processRss" yaml:"processRss"`
	Goroutines     int     `json:"goroutines" yaml:"goroutines"`
}

// Report describes the host and its state before and after a run.
type Report struct {
	Hostname string   `json:"hostname" yaml:"hostname"`
	Platform string   `json:"platform" yaml:"platform"`
	CPUs     int      `json:"cpus" yaml:"cpus"`
	Before   Sample   `json:"before" yaml:"before"`
	After    Sample   `json:"after" yaml:"after"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Sampler takes a sample before and after a run. Failures to read a value are
// recorded as warnings and never abort the run.
type Sampler struct {
	proc   *process.Process
	report Report
}

// NewSampler returns a sampler for the current process.
func NewSampler() *Sampler {
	s := &Sampler{}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.warn("process", err)
	} else {
		s.proc = proc
	}
	return s
}

// Begin describes the host and takes the first sample. It also resets the
// CPU baseline, so the After sample covers exactly the run.
func (s *Sampler) Begin(ctx context.Context) {
	s.report.CPUs = runtime.NumCPU()

	if info, err := host.InfoWithContext(ctx); err != nil {
		s.warn("host", err)
	} else {
		s.report.Hostname = info.Hostname
		s.report.Platform = fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch)
	}
	if s.report.Hostname == "" {
		s.report.Hostname, _ = os.Hostname()
	}

	s.report.Before = s.sample(ctx)
}

// End takes the final sample and returns the report.
func (s *Sampler) End(ctx context.Context) Report {
	s.report.After = s.sample(ctx)
	return s.report
}

func (s *Sampler) sample(ctx context.Context) Sample {
	sample := Sample{
		Time:       time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.warn("cpu", err)
	} else if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.warn("memory", err)
	} else if vm != nil {
		sample.MemUsedPercent = vm.UsedPercent
		sample.MemUsedBytes = vm.Used
	}

	if s.proc != nil {
		if info, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
			s.warn("process memory", err)
		} else if info != nil {
			sample.ProcessRSS = info.RSS
		}
	}

	return sample
}

func (s *Sampler) warn(what string, err error) {
	s.report.Warnings = append(s.report.Warnings, fmt.Sprintf("%s: %v", what, err))
}
