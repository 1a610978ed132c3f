package gpu

import (
	"context"
	"fmt"

	"github.com/elastic/go-sysinfo"
)

// runtimeStrategy falls back to host memory accounting when no driver
// is reachable. It is always available but under-reports memory held
// by subprocesses the runtime itself spawned, since it only sees what
// the host kernel reports as used, not what a given accelerator's own
// allocator has reserved.
type runtimeStrategy struct{}

func newRuntimeStrategy() strategy {
	return &runtimeStrategy{}
}

func (r *runtimeStrategy) name() string {
	return "runtime"
}

func (r *runtimeStrategy) sample(ctx context.Context) (Status, error) {
	host, err := sysinfo.Host()
	if err != nil {
		return Status{}, fmt.Errorf("reading host info: %w", err)
	}
	mem, err := host.Memory()
	if err != nil {
		return Status{}, fmt.Errorf("reading host memory: %w", err)
	}

	const mb = 1024 * 1024
	total := mem.Total / mb
	free := mem.Available / mb
	var used uint64
	if total > free {
		used = total - free
	}
	return Status{TotalMB: total, UsedMB: used, FreeMB: free}, nil
}
