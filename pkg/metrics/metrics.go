// Package metrics exposes Prometheus gauges and counters for GPU
// memory, resident models, task-queue depth, and task outcomes,
// scraped over the HTTP surface's /metrics route.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// Collector owns every metric this gateway exports. Constructed once
// and shared between the sampling loop, the Worker (via
// worker.OutcomeRecorder), and the HTTP surface's /metrics handler.
type Collector struct {
	gpuTotalMB      prometheus.Gauge
	gpuUsedMB       prometheus.Gauge
	gpuFreeMB       prometheus.Gauge
	residentModels  *prometheus.GaugeVec
	queuePending    prometheus.Gauge
	queueProcessing prometheus.Gauge
	taskOutcomes    *prometheus.CounterVec
}

// NewCollector builds and registers every metric against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gpuTotalMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "gpu", Name: "memory_total_mb",
			Help: "Total accelerator memory in MB, as last sampled by the Memory Probe.",
		}),
		gpuUsedMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "gpu", Name: "memory_used_mb",
			Help: "Used accelerator memory in MB, as last sampled by the Memory Probe.",
		}),
		gpuFreeMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "gpu", Name: "memory_free_mb",
			Help: "Free accelerator memory in MB, as last sampled by the Memory Probe.",
		}),
		residentModels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "orchestrator", Name: "resident_models",
			Help: "Number of resident model instances by type.",
		}, []string{"model_type"}),
		queuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "taskqueue", Name: "pending_depth",
			Help: "Number of tasks awaiting dequeue.",
		}),
		queueProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelgate", Subsystem: "taskqueue", Name: "processing_depth",
			Help: "Number of tasks currently in flight.",
		}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelgate", Subsystem: "taskqueue", Name: "task_outcomes_total",
			Help: "Terminal task outcomes by type and status.",
		}, []string{"task_type", "status"}),
	}
	reg.MustRegister(
		c.gpuTotalMB, c.gpuUsedMB, c.gpuFreeMB,
		c.residentModels, c.queuePending, c.queueProcessing, c.taskOutcomes,
	)
	return c
}

// ObserveGPU records the latest Memory Probe sample.
func (c *Collector) ObserveGPU(s gpu.Status) {
	c.gpuTotalMB.Set(float64(s.TotalMB))
	c.gpuUsedMB.Set(float64(s.UsedMB))
	c.gpuFreeMB.Set(float64(s.FreeMB))
}

// ObserveResidents records the current resident-model count per type.
func (c *Collector) ObserveResidents(models []*orchestrator.LoadedModel) {
	counts := make(map[orchestrator.ModelType]int)
	for _, m := range models {
		counts[m.Type]++
	}
	for _, t := range []orchestrator.ModelType{
		orchestrator.ModelTypeLLM, orchestrator.ModelTypeImage,
		orchestrator.ModelTypeImage2Image, orchestrator.ModelTypeVideo,
	} {
		c.residentModels.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}

// ObserveQueue records the latest Task Store queue depth snapshot.
func (c *Collector) ObserveQueue(stats taskqueue.QueueStats) {
	c.queuePending.Set(float64(stats.Pending))
	c.queueProcessing.Set(float64(stats.Processing))
}

// RecordOutcome implements worker.OutcomeRecorder.
func (c *Collector) RecordOutcome(t taskqueue.TaskType, status taskqueue.TaskStatus) {
	c.taskOutcomes.WithLabelValues(string(t), string(status)).Inc()
}

// gpuProbe, residentLister, and queueStatter are the minimal seams
// the sampling loop needs, reified so tests can substitute fakes.
type gpuProbe interface {
	GetStatus(ctx context.Context) (gpu.Status, error)
}

type residentLister interface {
	ListLoaded() []*orchestrator.LoadedModel
}

type queueStatter interface {
	QueueStats(ctx context.Context) (taskqueue.QueueStats, error)
}

// Sampler periodically feeds a Collector from the Memory Probe, the
// Orchestrator's resident registry, and the Task Store's queue depth.
type Sampler struct {
	collector *Collector
	probe     gpuProbe
	orch      residentLister
	store     queueStatter
	interval  time.Duration
}

// NewSampler constructs a Sampler; a zero interval defaults to 5s.
func NewSampler(c *Collector, probe gpuProbe, orch residentLister, store queueStatter, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{collector: c, probe: probe, orch: orch, store: store, interval: interval}
}

// Run samples on a ticker until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	if status, err := s.probe.GetStatus(ctx); err == nil {
		s.collector.ObserveGPU(status)
	}
	s.collector.ObserveResidents(s.orch.ListLoaded())
	if stats, err := s.store.QueueStats(ctx); err == nil {
		s.collector.ObserveQueue(stats)
	}
}
