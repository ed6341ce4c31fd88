package executor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/buildsim/osremote/internal/sampler"
	"github.com/buildsim/osremote/internal/validation"
)

// fixedSampler always reports the same reading, so the breach paths can be
// exercised without a process that really allocates gigabytes or pins a core.
type fixedSampler struct {
	sample sampler.Sample
}

func (f *fixedSampler) Sample() (sampler.Sample, error) {
	f.sample.Taken = time.Now()
	return f.sample, nil
}

func newInjectedExecutor(s sampler.Sampler) *Executor {
	e := New(validation.New(), Config{
		GracePeriod:   500 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		CPUWindow:     5,
		CPUMinSamples: 3,
	})
	e.newSampler = func(pid int) (sampler.Sampler, error) { return s, nil }
	return e
}

func TestExecute_MemoryLimitBreach(t *testing.T) {
	// Reported residency of 2 GB against a 1 GB ceiling.
	e := newInjectedExecutor(&fixedSampler{sample: sampler.Sample{
		MemoryBytes: 2048 * 1024 * 1024,
	}})

	res := e.Execute(context.Background(), Command{
		Name: "sleep",
		Args: []string{"30"},
	}, Options{Timeout: 30 * time.Second, MemoryLimitMB: 1024})

	if res.Success {
		t.Fatal("expected failure for memory breach")
	}
	if res.Category != CategoryMemory {
		t.Errorf("expected category %q, got %q", CategoryMemory, res.Category)
	}
	if res.ExitCode != nil {
		t.Errorf("a terminated process has no exit code, got %d", *res.ExitCode)
	}
	if e.ActiveCount() != 0 {
		t.Errorf("expected empty registry after breach, got %d", e.ActiveCount())
	}
}

func TestExecute_CPULimitBreach(t *testing.T) {
	e := newInjectedExecutor(&fixedSampler{sample: sampler.Sample{
		CPUPercent:  95,
		MemoryBytes: 1 << 20,
	}})

	begun := time.Now()
	res := e.Execute(context.Background(), Command{
		Name: "sleep",
		Args: []string{"30"},
	}, Options{Timeout: 30 * time.Second, CPULimitPercent: 50})

	if res.Success {
		t.Fatal("expected failure for CPU breach")
	}
	if res.Category != CategoryCPU {
		t.Errorf("expected category %q, got %q", CategoryCPU, res.Category)
	}
	// Three samples at a 10ms cadence, plus termination.
	if elapsed := time.Since(begun); elapsed > 5*time.Second {
		t.Errorf("breach handling took too long: %v", elapsed)
	}
}

func TestExecute_LimitsWithinBoundsRunToCompletion(t *testing.T) {
	e := newInjectedExecutor(&fixedSampler{sample: sampler.Sample{
		CPUPercent:  5,
		MemoryBytes: 10 * 1024 * 1024,
	}})

	res := e.Execute(context.Background(), Command{
		Name: "echo",
		Args: []string{"ok"},
	}, Options{Timeout: 10 * time.Second, MemoryLimitMB: 1024, CPULimitPercent: 90})

	if !res.Success {
		t.Fatalf("expected success under limits, got %q (%s)", res.Err, res.Category)
	}
}

func TestRegistry_RejectsDuplicateID(t *testing.T) {
	r := newRegistry()

	first := newManagedExecution("same-id", Command{Name: "echo"}, Options{})
	second := newManagedExecution("same-id", Command{Name: "echo"}, Options{})

	if !r.add(first) {
		t.Fatal("first add should succeed")
	}
	if r.add(second) {
		t.Fatal("duplicate id must be refused")
	}
	if r.count() != 1 {
		t.Errorf("expected 1 tracked execution, got %d", r.count())
	}
}

func TestTerminate_BeforeSpawnIsHonoredAfterStart(t *testing.T) {
	e := New(validation.New(), Config{GracePeriod: 500 * time.Millisecond})
	me := newManagedExecution("pending-id", Command{Name: "sleep"}, Options{})

	// KillAll landing while the execution is still pending has no pid to
	// signal; the request must be recorded instead of dropped.
	e.terminate(me)
	if !me.killPending() {
		t.Fatal("terminate before spawn must record the kill request")
	}

	child := exec.Command("sleep", "30")
	setProcAttrs(child)
	if err := child.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	me.setPID(child.Process.Pid)

	// run checks the pending request right after Start succeeds.
	if me.killPending() {
		e.terminate(me)
	}

	done := make(chan error, 1)
	go func() { done <- child.Wait() }()
	select {
	case err := <-done:
		me.markExited()
		if err == nil {
			t.Error("expected the child to be terminated, but it exited cleanly")
		}
	case <-time.After(3 * time.Second):
		_ = child.Process.Kill()
		t.Fatal("child survived a pre-spawn kill request")
	}
}

func TestManagedExecution_TerminalStatusIsSticky(t *testing.T) {
	me := newManagedExecution("id", Command{Name: "echo"}, Options{})

	me.transition(StatusRunning)
	me.transition(StatusTimedOut)
	me.transition(StatusRunning)

	if got := me.currentStatus(); got != StatusTimedOut {
		t.Errorf("terminal status must not regress, got %q", got)
	}
}
