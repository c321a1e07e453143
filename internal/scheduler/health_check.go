package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthCheckJob surfaces process/host health metrics on a fixed interval
// so operators can tell a wedged scheduler from a quiet market.
type HealthCheckJob struct {
	log zerolog.Logger

	memWarnPercent float64
}

// HealthCheckConfig configures the health check job.
type HealthCheckConfig struct {
	Log            zerolog.Logger
	MemWarnPercent float64 // defaults to 90 when zero
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	warn := cfg.MemWarnPercent
	if warn <= 0 {
		warn = 90
	}
	return &HealthCheckJob{
		log:            cfg.Log.With().Str("job", "health_check").Logger(),
		memWarnPercent: warn,
	}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run samples CPU and memory usage and logs a warning if memory pressure
// exceeds the configured threshold. A failed CPU sample just logs a
// warning and reports 0%; a failed memory sample is returned as an error
// since VirtualMemory failing usually means something is wrong with the
// host, not just a noisy sample.
func (j *HealthCheckJob) Run() error {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		j.log.Warn().Err(err).Msg("cpu sample failed")
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("memory sample failed: %w", err)
	}

	event := j.log.Info()
	if vm.UsedPercent >= j.memWarnPercent {
		event = j.log.Warn()
	}
	event.
		Float64("cpu_percent", cpuPct).
		Float64("mem_used_percent", vm.UsedPercent).
		Msg("health check")

	return nil
}
