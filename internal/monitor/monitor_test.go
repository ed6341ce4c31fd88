package monitor_test

import (
	"sync"
	"testing"
	"time"

	"github.com/buildsim/osremote/internal/monitor"
	"github.com/buildsim/osremote/internal/sampler"
)

// scriptedSampler replays a fixed sequence of samples, repeating the last
// entry once the script runs out. A nil entry means ErrProcessNotFound.
type scriptedSampler struct {
	mu     sync.Mutex
	script []*sampler.Sample
	calls  int
}

func (s *scriptedSampler) Sample() (sampler.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++

	entry := s.script[idx]
	if entry == nil {
		return sampler.Sample{}, sampler.ErrProcessNotFound
	}
	return *entry, nil
}

func (s *scriptedSampler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func mem(mb int) *sampler.Sample {
	return &sampler.Sample{MemoryBytes: uint64(mb) * 1024 * 1024, Taken: time.Now()}
}

func cpu(pct float64) *sampler.Sample {
	return &sampler.Sample{CPUPercent: pct, MemoryBytes: 1 << 20, Taken: time.Now()}
}

func TestMonitor_MemoryBreach(t *testing.T) {
	s := &scriptedSampler{script: []*sampler.Sample{mem(2048)}}
	m := monitor.New(s, monitor.Options{
		MemoryLimitMB: 1024,
		PollInterval:  5 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	select {
	case b := <-m.Done():
		if b.Reason != monitor.ReasonMemory {
			t.Errorf("expected reason %q, got %q", monitor.ReasonMemory, b.Reason)
		}
		if b.Sample.MemoryBytes != uint64(2048)*1024*1024 {
			t.Errorf("breach should carry the offending sample, got %d bytes", b.Sample.MemoryBytes)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a memory breach within one polling interval")
	}
}

func TestMonitor_MemoryUnderLimitNoBreach(t *testing.T) {
	s := &scriptedSampler{script: []*sampler.Sample{mem(100)}}
	m := monitor.New(s, monitor.Options{
		MemoryLimitMB: 1024,
		PollInterval:  5 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	select {
	case b := <-m.Done():
		t.Fatalf("unexpected breach: %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitor_CPUBreachRequiresMinimumSamples(t *testing.T) {
	s := &scriptedSampler{script: []*sampler.Sample{cpu(90)}}
	m := monitor.New(s, monitor.Options{
		CPULimitPercent: 50,
		PollInterval:    5 * time.Millisecond,
		CPUWindow:       5,
		CPUMinSamples:   3,
	})
	m.Start()
	defer m.Stop()

	select {
	case b := <-m.Done():
		if b.Reason != monitor.ReasonCPU {
			t.Errorf("expected reason %q, got %q", monitor.ReasonCPU, b.Reason)
		}
		// The average must not be evaluated before three samples exist.
		if calls := s.callCount(); calls < 3 {
			t.Errorf("breach after %d samples, want at least 3", calls)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a CPU breach")
	}
}

func TestMonitor_SingleCPUSpikeDoesNotBreach(t *testing.T) {
	// One startup spike followed by idle readings. The smoothed average
	// stays under the limit, so the spike alone must not kill the process.
	s := &scriptedSampler{script: []*sampler.Sample{cpu(100), cpu(0), cpu(0), cpu(0), cpu(0)}}
	m := monitor.New(s, monitor.Options{
		CPULimitPercent: 50,
		PollInterval:    5 * time.Millisecond,
		CPUWindow:       5,
		CPUMinSamples:   3,
	})
	m.Start()
	defer m.Stop()

	select {
	case b := <-m.Done():
		t.Fatalf("unexpected breach: %+v", b)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMonitor_ProcessGoneStopsWithoutBreach(t *testing.T) {
	s := &scriptedSampler{script: []*sampler.Sample{nil}}
	m := monitor.New(s, monitor.Options{
		MemoryLimitMB: 1,
		PollInterval:  5 * time.Millisecond,
	})
	m.Start()
	defer m.Stop()

	select {
	case b := <-m.Done():
		t.Fatalf("process exit must not count as a breach, got %+v", b)
	case <-time.After(100 * time.Millisecond):
	}

	// Polling ended after the first not-found sample.
	if calls := s.callCount(); calls != 1 {
		t.Errorf("expected sampling to stop after 1 call, got %d", calls)
	}
}

func TestMonitor_StopIdempotent(t *testing.T) {
	s := &scriptedSampler{script: []*sampler.Sample{mem(1)}}
	m := monitor.New(s, monitor.Options{MemoryLimitMB: 1024, PollInterval: 5 * time.Millisecond})

	// Stop before Start must not panic or report anything.
	m.Stop()
	m.Stop()

	m.Start()
	m.Stop()
	m.Stop()

	select {
	case b := <-m.Done():
		t.Fatalf("unexpected breach after stop: %+v", b)
	case <-time.After(50 * time.Millisecond):
	}
}
