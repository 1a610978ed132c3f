package adapter

import (
	"context"
	"fmt"
	"os/exec"
)

// processHandle tracks a subprocess spawned by the LLM adapter's
// wrapped runtime. The runtime's own shutdown is not trusted to free
// accelerator memory: the adapter collects pids at load time and
// forcibly terminates them at unload time. Platform-specific
// termination lives in process_windows.go (job objects) and
// process_other.go (process groups).
type processHandle struct {
	cmd  *exec.Cmd
	kill func() error
}

// startProcess launches name/arg and wraps it so that Terminate kills
// the whole process tree, not just the direct child — llama.cpp-style
// runtimes may themselves fork worker processes. startInGroup both
// starts the command and assigns it to a process group / job object
// atomically, since assigning after Start risks missing children the
// process forks in the window between the two calls.
func startProcess(ctx context.Context, name string, arg ...string) (*processHandle, error) {
	cmd := exec.CommandContext(ctx, name, arg...)
	kill, err := startInGroup(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	return &processHandle{cmd: cmd, kill: kill}, nil
}

// Pid returns the direct child's pid.
func (p *processHandle) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate forcibly kills the process and any children it spawned
// into the same process group/job object.
func (p *processHandle) Terminate() error {
	return p.kill()
}

// Wait blocks until the process exits.
func (p *processHandle) Wait() error {
	return p.cmd.Wait()
}
