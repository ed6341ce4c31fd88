// Package monitor watches one running process and raises a single breach
// event when it exceeds a configured memory or CPU ceiling.
package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/buildsim/osremote/internal/sampler"
)

// Reason says which ceiling was crossed.
type Reason string

const (
	// ReasonMemory indicates the instantaneous resident set exceeded the limit.
	ReasonMemory Reason = "memory"
	// ReasonCPU indicates the smoothed CPU average exceeded the limit.
	ReasonCPU Reason = "cpu"
)

// Breach is the single outcome a Monitor can produce. Sample is the reading
// that crossed the ceiling.
type Breach struct {
	Reason Reason
	Sample sampler.Sample
}

// Options configures one Monitor. Zero limits disable the corresponding
// check; zero tunables fall back to defaults.
type Options struct {
	// MemoryLimitMB is the resident-set ceiling in megabytes. 0 disables.
	MemoryLimitMB int
	// CPULimitPercent is the smoothed CPU ceiling as a share of one full
	// machine, 0-100. 0 disables.
	CPULimitPercent float64
	// PollInterval is the sampling cadence. Defaults to 1s.
	PollInterval time.Duration
	// CPUWindow is the rolling history length used to smooth CPU readings.
	// Defaults to 5.
	CPUWindow int
	// CPUMinSamples is how many readings must accumulate before the CPU
	// average is evaluated at all, so a single startup spike cannot kill a
	// process. Defaults to 3.
	CPUMinSamples int
}

// Monitor polls a Sampler on a fixed interval and reports at most one
// Breach on its Done channel. It owns its polling goroutine: Start begins
// polling, Stop cancels it and is idempotent.
//
// Memory is checked against the instantaneous reading because exceeding a
// hard ceiling is dangerous regardless of duration. CPU is checked against
// a rolling average because short-window CPU sampling is noisy.
type Monitor struct {
	sampler sampler.Sampler
	opts    Options

	breach chan Breach
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	// history of recent CPU percentages, oldest first. Only touched by the
	// polling goroutine.
	history []float64
}

// New builds a Monitor for the given sampler. Call Start to begin polling.
func New(s sampler.Sampler, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.CPUWindow <= 0 {
		opts.CPUWindow = 5
	}
	if opts.CPUMinSamples <= 0 {
		opts.CPUMinSamples = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		sampler: s,
		opts:    opts,
		breach:  make(chan Breach, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Done returns the channel on which at most one Breach is delivered. The
// channel never closes; a Monitor that is stopped, or whose process exits
// on its own, simply never sends.
func (m *Monitor) Done() <-chan Breach {
	return m.breach
}

// Start begins polling. Calling it more than once has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.loop()
	})
}

// Stop cancels polling and waits for the polling goroutine to exit. It is
// safe to call multiple times and safe to call on a Monitor that was never
// started; in both cases no breach is ever reported afterwards.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
	})
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.tick() {
				return
			}
		}
	}
}

// tick takes one sample and evaluates the limits. It returns true when
// monitoring should end, either because a breach was reported or because
// the process is gone.
func (m *Monitor) tick() bool {
	s, err := m.sampler.Sample()
	if err != nil {
		if errors.Is(err, sampler.ErrProcessNotFound) {
			// Process already exited. Not a limit violation.
			return true
		}
		// Degrade to a missing sample rather than aborting the watch.
		log.Printf("[Monitor] sample failed: %v", err)
		return false
	}

	if m.opts.MemoryLimitMB > 0 {
		limit := uint64(m.opts.MemoryLimitMB) * 1024 * 1024
		if s.MemoryBytes > limit {
			m.report(Breach{Reason: ReasonMemory, Sample: s})
			return true
		}
	}

	if m.opts.CPULimitPercent > 0 {
		m.history = append(m.history, s.CPUPercent)
		if len(m.history) > m.opts.CPUWindow {
			m.history = m.history[1:]
		}
		if len(m.history) >= m.opts.CPUMinSamples && mean(m.history) > m.opts.CPULimitPercent {
			m.report(Breach{Reason: ReasonCPU, Sample: s})
			return true
		}
	}

	return false
}

func (m *Monitor) report(b Breach) {
	select {
	case m.breach <- b:
	default:
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
