//go:build windows

package executor

import (
	"os"
	"os/exec"
)

func setProcAttrs(c *exec.Cmd) {}

// signalTerm kills the child directly; Windows has no process-group
// equivalent of a graceful termination signal.
func signalTerm(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func signalKill(pid int) error {
	return signalTerm(pid)
}

// setNice is a no-op: the priority hint is not supported on Windows.
func setNice(pid, nice int) error {
	return nil
}
