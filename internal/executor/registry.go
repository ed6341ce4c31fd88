package executor

import (
	"sync"
	"time"

	"github.com/buildsim/osremote/internal/monitor"
)

// managedExecution is the live record of one in-flight invocation. It is
// owned exclusively by its Executor and removed from the registry when it
// reaches a terminal status.
type managedExecution struct {
	id      string
	cmd     Command
	opts    Options
	started time.Time

	// exited closes exactly once, after Wait has returned for the child.
	// The grace-period escalation watches it to decide whether a forced
	// kill is still needed.
	exited    chan struct{}
	exitedOne sync.Once

	mu      sync.Mutex
	status  Status
	pid     int
	mon     *monitor.Monitor
	killReq bool
}

func newManagedExecution(id string, cmd Command, opts Options) *managedExecution {
	return &managedExecution{
		id:      id,
		cmd:     cmd,
		opts:    opts,
		started: time.Now(),
		status:  StatusPending,
		exited:  make(chan struct{}),
	}
}

// transition moves the execution to the next status. Terminal statuses are
// sticky: any transition attempted after one is ignored.
func (m *managedExecution) transition(next Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isTerminal(m.status) {
		return
	}
	m.status = next
}

func (m *managedExecution) currentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *managedExecution) setPID(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid = pid
}

func (m *managedExecution) getPID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

func (m *managedExecution) setMonitor(mon *monitor.Monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mon = mon
}

func (m *managedExecution) getMonitor() *monitor.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mon
}

// requestKill records a termination request that arrived before the child
// had a pid to signal.
func (m *managedExecution) requestKill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killReq = true
}

func (m *managedExecution) killPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killReq
}

func (m *managedExecution) markExited() {
	m.exitedOne.Do(func() { close(m.exited) })
}

// registry tracks every in-flight execution owned by one Executor. It is
// an explicit per-Executor structure rather than package-level state, so
// independent Executors can coexist (and be tested) without sharing.
type registry struct {
	mu     sync.RWMutex
	active map[string]*managedExecution
}

func newRegistry() *registry {
	return &registry{active: make(map[string]*managedExecution)}
}

// add registers an execution. It refuses a duplicate identifier; the
// registry never holds two executions with the same id.
func (r *registry) add(m *managedExecution) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[m.id]; exists {
		return false
	}
	r.active[m.id] = m
	return true
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func (r *registry) get(id string) *managedExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

func (r *registry) snapshot() []*managedExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*managedExecution, 0, len(r.active))
	for _, m := range r.active {
		list = append(list, m)
	}
	return list
}
