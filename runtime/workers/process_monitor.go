package workers

import (
	"context"
	"final-draft/observability"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessMonitor samples CPU and resident memory of the server process into the gauges.
type ProcessMonitor struct {
	metrics  *observability.Metrics
	interval time.Duration
	log      *slog.Logger
}

func NewProcessMonitor(metrics *observability.Metrics, interval time.Duration, log *slog.Logger) *ProcessMonitor {
	return &ProcessMonitor{metrics: metrics, interval: interval, log: log}
}

func (w *ProcessMonitor) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cpu, err := p.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			memory, err := p.MemoryInfo()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			w.metrics.ProcessStats(cpu, memory.RSS)
		}
	}
}
