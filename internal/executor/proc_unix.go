//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcAttrs places the child in its own process group so termination
// signals reach the whole tree, not just the direct child.
func setProcAttrs(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTerm asks the child's process group to exit gracefully.
func signalTerm(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// signalKill forcibly kills the child's process group.
func signalKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// setNice applies the scheduling priority hint to the child.
func setNice(pid, nice int) error {
	return syscall.Setpriority(syscall.PRIO_PROCESS, pid, nice)
}
