// Package executor validates, spawns, bounds, and reaps external processes
// on behalf of remote requests. One Executor owns the registry of all
// in-flight executions and is safe for concurrent use.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildsim/osremote/internal/monitor"
	"github.com/buildsim/osremote/internal/sampler"
	"github.com/buildsim/osremote/internal/validation"
)

// Config holds engine-wide policy. Zero fields fall back to defaults.
type Config struct {
	// DefaultTimeout applies when an invocation does not set its own.
	DefaultTimeout time.Duration
	// MaxTimeout caps any requested timeout.
	MaxTimeout time.Duration
	// GracePeriod is the delay between the graceful termination signal and
	// the escalated forced kill.
	GracePeriod time.Duration
	// MaxOutputSize bounds each captured stream, in bytes.
	MaxOutputSize int
	// PollInterval is the resource monitor's sampling cadence.
	PollInterval time.Duration
	// CPUWindow and CPUMinSamples tune the monitor's CPU smoothing.
	CPUWindow     int
	CPUMinSamples int
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Minute
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.MaxOutputSize <= 0 {
		c.MaxOutputSize = 10 * 1024 * 1024
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Executor runs allowlisted commands under timeout and resource bounds.
type Executor struct {
	validator *validation.Validator
	cfg       Config
	reg       *registry

	// newSampler builds the per-process resource sampler. Swapped in tests
	// to inject deterministic readings.
	newSampler func(pid int) (sampler.Sampler, error)

	streamsMu sync.RWMutex
	streams   map[string][]chan string
}

// New builds an Executor using the given validator and config.
func New(v *validation.Validator, cfg Config) *Executor {
	return &Executor{
		validator: v,
		cfg:       cfg.withDefaults(),
		reg:       newRegistry(),
		newSampler: func(pid int) (sampler.Sampler, error) {
			return sampler.NewProcessSampler(pid)
		},
		streams: make(map[string][]chan string),
	}
}

// Execute runs one command to a terminal state and returns its Result. It
// never returns a Go error: every outcome, including a validation failure,
// is delivered through the Result so callers have a single handling path.
// The call blocks until the execution is terminal; run independent commands
// from independent goroutines.
func (e *Executor) Execute(ctx context.Context, cmd Command, opts Options) Result {
	return e.run(ctx, uuid.New().String(), cmd, opts)
}

// Start launches a command in the background and returns its execution
// identifier immediately, plus a buffered channel that delivers the single
// final Result. The identifier can be used with Subscribe for live output
// before the process finishes.
func (e *Executor) Start(ctx context.Context, cmd Command, opts Options) (string, <-chan Result) {
	id := uuid.New().String()
	ch := make(chan Result, 1)
	go func() {
		ch <- e.run(ctx, id, cmd, opts)
	}()
	return id, ch
}

// ActiveCount returns the number of executions currently tracked.
func (e *Executor) ActiveCount() int {
	return e.reg.count()
}

// IsActive reports whether the given execution is still tracked.
func (e *Executor) IsActive(id string) bool {
	return e.reg.get(id) != nil
}

// ListActive describes every tracked execution for operational callers.
func (e *Executor) ListActive() []ActiveProcess {
	snapshot := e.reg.snapshot()
	list := make([]ActiveProcess, 0, len(snapshot))
	for _, me := range snapshot {
		list = append(list, ActiveProcess{
			ID:        me.id,
			PID:       me.getPID(),
			RuntimeMS: time.Since(me.started).Milliseconds(),
		})
	}
	return list
}

// KillAll dispatches a termination signal to every tracked process and
// returns how many were signaled. It does not wait for exit confirmation:
// each in-flight Execute observes its own child exiting and finishes through
// the normal path. Intended for process-wide shutdown so no orphaned
// children survive the parent.
func (e *Executor) KillAll() int {
	snapshot := e.reg.snapshot()
	if len(snapshot) == 0 {
		return 0
	}
	log.Printf("[Executor] terminating %d active process(es)", len(snapshot))
	for _, me := range snapshot {
		e.terminate(me)
	}
	return len(snapshot)
}

func (e *Executor) run(ctx context.Context, id string, cmd Command, opts Options) Result {
	start := time.Now()

	fail := func(category ErrorCategory, msg string) Result {
		return Result{Err: msg, Category: category, Duration: time.Since(start)}
	}

	if res := e.validator.ValidateCommand(cmd.Name, cmd.Args); !res.Valid {
		log.Printf("[Executor] rejected %q: %s (%s)", cmd.Name, res.Reason, res.Category)
		e.broadcastComplete(id, StatusFailed)
		return fail(CategoryValidation, res.Reason)
	}
	if cmd.Dir != "" {
		if res := e.validator.ValidatePath(cmd.Dir); !res.Valid {
			log.Printf("[Executor] rejected working directory for %q: %s", cmd.Name, res.Reason)
			e.broadcastComplete(id, StatusFailed)
			return fail(CategoryValidation, "working directory: "+res.Reason)
		}
	}

	opts = e.clampOptions(opts)

	me := newManagedExecution(id, cmd, opts)
	if !e.reg.add(me) {
		e.broadcastComplete(id, StatusFailed)
		return fail(CategoryProcess, "duplicate execution identifier")
	}
	defer e.release(me)

	child := exec.Command(cmd.Name, cmd.Args...)
	child.Dir = cmd.Dir
	child.Env = restrictedEnv(cmd.Env)
	setProcAttrs(child)

	stdout := newBoundedBuffer(e.cfg.MaxOutputSize)
	stderr := newBoundedBuffer(e.cfg.MaxOutputSize)
	var pumps sync.WaitGroup
	pumpErrs := make(chan error, 2)

	if !opts.DiscardOutput {
		outPipe, err := child.StdoutPipe()
		if err != nil {
			me.transition(StatusFailed)
			e.broadcastComplete(id, StatusFailed)
			return fail(CategoryProcess, "stdout pipe: "+err.Error())
		}
		errPipe, err := child.StderrPipe()
		if err != nil {
			me.transition(StatusFailed)
			e.broadcastComplete(id, StatusFailed)
			return fail(CategoryProcess, "stderr pipe: "+err.Error())
		}
		pumps.Add(2)
		go e.pump(id, outPipe, stdout, &pumps, pumpErrs)
		go e.pump(id, errPipe, stderr, &pumps, pumpErrs)
	}

	if err := child.Start(); err != nil {
		me.transition(StatusFailed)
		e.broadcastComplete(id, StatusFailed)
		return fail(CategorySpawn, fmt.Sprintf("failed to start %q: %v", cmd.Name, err))
	}

	me.setPID(child.Process.Pid)
	me.transition(StatusRunning)
	log.Printf("[Executor] started %s pid=%d command=%q", id, child.Process.Pid, cmd.Name)

	// A KillAll issued between registration and spawn could not signal a
	// process that had no pid yet; honor it now.
	if me.killPending() {
		e.terminate(me)
	}

	if opts.Nice != 0 {
		if err := setNice(child.Process.Pid, opts.Nice); err != nil {
			log.Printf("[Executor] could not set niceness for pid %d: %v", child.Process.Pid, err)
		}
	}

	breachCh := e.attachMonitor(me, child.Process.Pid)

	done := make(chan error, 1)
	go func() {
		// The pipes must hit EOF before Wait reaps the child.
		pumps.Wait()
		done <- child.Wait()
	}()

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()

	var waitErr error
	var timedOut bool
	var breach *monitor.Breach

	select {
	case waitErr = <-done:
	case <-timeout.C:
		timedOut = true
		me.transition(StatusTimingOut)
		log.Printf("[Executor] execution %s exceeded %s timeout, terminating pid %d", id, opts.Timeout, me.getPID())
		e.terminate(me)
		waitErr = <-done
	case b := <-breachCh:
		breach = &b
		me.transition(StatusTerminating)
		log.Printf("[Executor] execution %s breached %s limit, terminating pid %d", id, b.Reason, me.getPID())
		e.terminate(me)
		waitErr = <-done
	case <-ctx.Done():
		me.transition(StatusTerminating)
		e.terminate(me)
		<-done
		me.markExited()
		me.transition(StatusFailed)
		e.broadcastComplete(id, StatusFailed)
		return fail(CategoryProcess, "execution canceled: "+ctx.Err().Error())
	}
	me.markExited()

	var streamErr error
	select {
	case streamErr = <-pumpErrs:
	default:
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case timedOut:
		me.transition(StatusTimedOut)
		res.Err = fmt.Sprintf("execution timed out after %s", opts.Timeout)
		res.Category = CategoryTimeout
	case breach != nil:
		me.transition(StatusResourceExceeded)
		if breach.Reason == monitor.ReasonMemory {
			res.Category = CategoryMemory
			res.Err = fmt.Sprintf("memory limit of %d MB exceeded (%d bytes resident)",
				opts.MemoryLimitMB, breach.Sample.MemoryBytes)
		} else {
			res.Category = CategoryCPU
			res.Err = fmt.Sprintf("CPU limit of %.0f%% exceeded (%.1f%% smoothed)",
				opts.CPULimitPercent, breach.Sample.CPUPercent)
		}
	case streamErr != nil:
		me.transition(StatusFailed)
		res.Err = "output stream read failed: " + streamErr.Error()
		res.Category = CategoryProcess
		// The process itself finished; its exit code is still a known fact.
		if waitErr == nil {
			code := 0
			res.ExitCode = &code
		} else if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			res.ExitCode = &code
		}
	default:
		switch waitErr := waitErr.(type) {
		case nil:
			me.transition(StatusCompleted)
			code := 0
			res.ExitCode = &code
			res.Success = true
		case *exec.ExitError:
			// The engine ran the process to completion; a non-zero code is
			// the process's own verdict, not an engine failure.
			me.transition(StatusCompleted)
			code := waitErr.ExitCode()
			res.ExitCode = &code
			res.Err = fmt.Sprintf("process exited with code %d", code)
		default:
			me.transition(StatusFailed)
			res.Err = waitErr.Error()
			res.Category = CategoryProcess
		}
	}

	status := me.currentStatus()
	e.broadcastComplete(id, status)
	log.Printf("[Executor] finished %s status=%s success=%v in %s", id, status, res.Success, res.Duration)
	return res
}

// release enforces the teardown order on every exit path: the resource
// monitor is stopped before its execution leaves the registry.
func (e *Executor) release(me *managedExecution) {
	if mon := me.getMonitor(); mon != nil {
		mon.Stop()
	}
	e.reg.remove(me.id)
}

// attachMonitor starts a resource monitor when a limit is configured and
// returns its breach channel. A nil channel (no limits, or an unsampleable
// process) blocks forever in the caller's select, which is exactly the
// behavior of an execution with nothing to watch.
func (e *Executor) attachMonitor(me *managedExecution, pid int) <-chan monitor.Breach {
	if me.opts.MemoryLimitMB <= 0 && me.opts.CPULimitPercent <= 0 {
		return nil
	}

	s, err := e.newSampler(pid)
	if err != nil {
		log.Printf("[Executor] cannot sample pid %d, running %s unmonitored: %v", pid, me.id, err)
		return nil
	}

	mon := monitor.New(s, monitor.Options{
		MemoryLimitMB:   me.opts.MemoryLimitMB,
		CPULimitPercent: me.opts.CPULimitPercent,
		PollInterval:    e.cfg.PollInterval,
		CPUWindow:       e.cfg.CPUWindow,
		CPUMinSamples:   e.cfg.CPUMinSamples,
	})
	me.setMonitor(mon)
	mon.Start()
	return mon.Done()
}

// terminate asks the child's process group to exit and escalates to a
// forced kill if it has not exited within the grace period. The timeout
// path, the resource-breach path, and KillAll all come through here, so
// there is exactly one shutdown sequence.
func (e *Executor) terminate(me *managedExecution) {
	pid := me.getPID()
	if pid == 0 {
		// Not spawned yet. Flag it so run terminates the child as soon as
		// Start assigns a pid.
		me.requestKill()
		return
	}
	if err := signalTerm(pid); err != nil {
		log.Printf("[Executor] graceful signal to pid %d failed: %v", pid, err)
	}
	grace := e.cfg.GracePeriod
	go func() {
		select {
		case <-me.exited:
		case <-time.After(grace):
			log.Printf("[Executor] pid %d ignored graceful signal, killing", pid)
			if err := signalKill(pid); err != nil {
				log.Printf("[Executor] forced kill of pid %d failed: %v", pid, err)
			}
		}
	}()
}

func (e *Executor) pump(id string, r io.Reader, buf *boundedBuffer, pumps *sync.WaitGroup, errs chan<- error) {
	defer pumps.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.writeLine(line)
		e.broadcastLine(id, line)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			buf.markTruncated()
		}
		// Keep draining: the child must never block forever writing to a
		// pipe nobody reads.
		_, _ = io.Copy(io.Discard, r)
		errs <- err
	}
}

func (e *Executor) clampOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.DefaultTimeout
	}
	if opts.Timeout > e.cfg.MaxTimeout {
		opts.Timeout = e.cfg.MaxTimeout
	}
	if opts.MemoryLimitMB < 0 {
		opts.MemoryLimitMB = 0
	}
	if opts.CPULimitPercent < 0 {
		opts.CPULimitPercent = 0
	}
	return opts
}

// inheritedEnvKeys is the small base the child receives from the parent
// environment. Everything else must come in as an explicit override.
var inheritedEnvKeys = []string{
	"PATH", "HOME", "USER", "LANG", "LC_ALL",
	"TMPDIR", "TMP", "TEMP",
	"SYSTEMROOT", "USERPROFILE", "COMSPEC",
}

func restrictedEnv(overrides map[string]string) []string {
	env := make([]string, 0, len(inheritedEnvKeys)+len(overrides))
	for _, key := range inheritedEnvKeys {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}
