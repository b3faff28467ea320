package engine

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/okanri/machina/pkg/api"
)

const defaultSampleInterval = 5 * time.Second

// sampler is the machine-owned periodic background task that snapshots
// resource gauges and watches state dwell times. It runs only between
// Start and Stop, and gauge sampling is gated on monitoring-class
// (active or busy) states.
type sampler struct {
	m        *machine
	interval time.Duration
	host     func() api.ResourceUsage

	// alerted tracks gauges currently over their limit so each crossing
	// alerts once, not once per tick.
	alerted map[string]bool

	// timedOut is the state record id already reported via stateTimeout.
	timedOut string
}

func newSampler(m *machine) *sampler {
	return &sampler{
		m:        m,
		interval: defaultSampleInterval,
		host:     hostGauges,
		alerted:  make(map[string]bool),
	}
}

func (s *sampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *sampler) sample() {
	cur := s.m.CurrentState()
	s.checkDwell(cur)

	if cur.Type != api.StateActive && cur.Type != api.StateBusy {
		return
	}

	s.m.setHostSample(s.host())
	usage := s.m.ResourceUsage()

	for gauge, limit := range s.m.cfg.Policy.ResourceLimits {
		value, ok := usage[gauge]
		if !ok {
			continue
		}
		if value <= limit {
			delete(s.alerted, gauge)
			continue
		}
		if s.alerted[gauge] {
			continue
		}
		s.alerted[gauge] = true
		s.m.emit(api.Event{
			Type:  api.EventResourceLimitExceeded,
			Gauge: gauge,
			Value: value,
			Limit: limit,
		})
	}
}

// checkDwell emits stateTimeout once per state entry when the declared
// dwell timeout is exceeded. Terminal states never time out.
func (s *sampler) checkDwell(cur api.WorkerState) {
	decl, ok := s.m.cfg.Graph.State(cur.Name)
	if !ok || decl.Timeout <= 0 || s.m.cfg.Graph.IsFinal(cur.Name) {
		return
	}
	dwell := time.Since(cur.EnteredAt)
	if dwell <= decl.Timeout || s.timedOut == cur.ID {
		return
	}
	s.timedOut = cur.ID
	s.m.emit(api.Event{
		Type:  api.EventStateTimeout,
		State: cur.Name,
		Dwell: dwell,
	})
}

// hostGauges samples host cpu and memory via gopsutil. Errors leave the
// corresponding gauge out of the snapshot.
func hostGauges() api.ResourceUsage {
	out := api.ResourceUsage{}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		out["host_cpu"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["host_memory"] = vm.UsedPercent
	}
	return out
}
