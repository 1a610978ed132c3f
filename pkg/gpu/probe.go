// Package gpu samples the accelerator's total/used/free memory,
// preferring a driver query and falling back to host runtime stats.
package gpu

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/logging"
)

// Status is a GPU memory snapshot in MB.
type Status struct {
	TotalMB uint64
	UsedMB  uint64
	FreeMB  uint64
}

// strategy is one way of sampling accelerator memory.
type strategy interface {
	name() string
	sample(ctx context.Context) (Status, error)
}

// Probe samples accelerator memory, preferring a driver query and
// falling back to runtime allocator stats when the driver is
// unavailable.
type Probe struct {
	log        logging.Logger
	strategies []strategy
}

// NewProbe builds a Probe trying the driver strategy first, then the
// runtime fallback strategy.
func NewProbe(log logging.Logger) *Probe {
	return &Probe{
		log: log,
		strategies: []strategy{
			newDriverStrategy(),
			newRuntimeStrategy(),
		},
	}
}

// GetStatus samples accelerator memory. It only returns an error if
// every strategy failed; a single strategy failure is logged at warn
// and the next strategy is tried. A failing strategy is never
// retried, only passed over.
func (p *Probe) GetStatus(ctx context.Context) (Status, error) {
	var lastErr error
	for _, s := range p.strategies {
		status, err := s.sample(ctx)
		if err == nil {
			return status, nil
		}
		p.log.Warnf("gpu: %s strategy failed: %v", s.name(), err)
		lastErr = err
	}
	return Status{}, fmt.Errorf("no memory probe strategy succeeded: %w", lastErr)
}
