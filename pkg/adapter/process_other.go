//go:build !windows

package adapter

import (
	"os/exec"
	"syscall"
)

// startInGroup starts cmd in its own process group and returns a
// terminator that SIGKILLs the whole group, so killing the tracked
// instance also reaps any worker processes the runtime forked.
func startInGroup(cmd *exec.Cmd) (func() error, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pgid := cmd.Process.Pid
	return func() error {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}, nil
}
