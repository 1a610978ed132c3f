package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCollectorObserveGPU(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveGPU(gpu.Status{TotalMB: 10_000, UsedMB: 4_000, FreeMB: 6_000})

	require.Equal(t, 10_000.0, gaugeValue(t, c.gpuTotalMB))
	require.Equal(t, 4_000.0, gaugeValue(t, c.gpuUsedMB))
	require.Equal(t, 6_000.0, gaugeValue(t, c.gpuFreeMB))
}

func TestCollectorRecordOutcomeIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOutcome(taskqueue.TaskTypeImage, taskqueue.StatusCompleted)
	c.RecordOutcome(taskqueue.TaskTypeImage, taskqueue.StatusCompleted)
	c.RecordOutcome(taskqueue.TaskTypeImage, taskqueue.StatusFailed)

	var m dto.Metric
	require.NoError(t, c.taskOutcomes.WithLabelValues("image", "completed").Write(&m))
	require.Equal(t, 2.0, m.GetCounter().GetValue())
}

type fakeProbe struct{ status gpu.Status }

func (f fakeProbe) GetStatus(ctx context.Context) (gpu.Status, error) { return f.status, nil }

type fakeLister struct{ models []*orchestrator.LoadedModel }

func (f fakeLister) ListLoaded() []*orchestrator.LoadedModel { return f.models }

type fakeStatter struct{ stats taskqueue.QueueStats }

func (f fakeStatter) QueueStats(ctx context.Context) (taskqueue.QueueStats, error) {
	return f.stats, nil
}

func TestSamplerSampleOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	probe := fakeProbe{status: gpu.Status{TotalMB: 1000, UsedMB: 200, FreeMB: 800}}
	lister := fakeLister{models: []*orchestrator.LoadedModel{
		{ModelID: "a", Type: orchestrator.ModelTypeLLM},
		{ModelID: "b", Type: orchestrator.ModelTypeLLM},
		{ModelID: "c", Type: orchestrator.ModelTypeImage},
	}}
	statter := fakeStatter{stats: taskqueue.QueueStats{Pending: 3, Processing: 1}}

	s := NewSampler(c, probe, lister, statter, 0)
	s.sampleOnce(context.Background())

	require.Equal(t, 800.0, gaugeValue(t, c.gpuFreeMB))
	require.Equal(t, 3.0, gaugeValue(t, c.queuePending))

	var m dto.Metric
	require.NoError(t, c.residentModels.WithLabelValues("llm").Write(&m))
	require.Equal(t, 2.0, m.GetGauge().GetValue())
}
