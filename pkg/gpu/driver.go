package gpu

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
)

// driverStrategy queries the accelerator driver directly. This is the
// preferred strategy: it is the only view that accounts for memory
// consumed by runtime subprocesses that the in-process allocator
// never sees.
//
// ghw confirms an accelerator is actually present before shelling out
// to nvidia-smi for the live memory breakdown; ghw itself only
// reports static PCI inventory, not live usage.
type driverStrategy struct{}

func newDriverStrategy() strategy {
	return &driverStrategy{}
}

func (d *driverStrategy) name() string {
	return "driver"
}

func (d *driverStrategy) sample(ctx context.Context) (Status, error) {
	if !hasAcceleratorPresent() {
		return Status{}, fmt.Errorf("no accelerator device detected")
	}

	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return Status{}, fmt.Errorf("nvidia-smi query failed: %w", err)
	}

	sc := bufio.NewScanner(strings.NewReader(string(out)))
	if !sc.Scan() {
		return Status{}, fmt.Errorf("empty nvidia-smi output")
	}
	fields := strings.Split(sc.Text(), ",")
	if len(fields) != 3 {
		return Status{}, fmt.Errorf("unexpected nvidia-smi output format: %q", sc.Text())
	}
	total, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Status{}, fmt.Errorf("parsing total memory: %w", err)
	}
	used, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Status{}, fmt.Errorf("parsing used memory: %w", err)
	}
	free, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Status{}, fmt.Errorf("parsing free memory: %w", err)
	}
	return Status{TotalMB: total, UsedMB: used, FreeMB: free}, nil
}

// hasAcceleratorPresent uses ghw's PCI-level GPU inventory to confirm
// there is a graphics/compute accelerator before we bother invoking an
// external driver tool.
func hasAcceleratorPresent() bool {
	gpu, err := ghw.GPU()
	if err != nil || gpu == nil {
		return false
	}
	return len(gpu.GraphicsCards) > 0
}
