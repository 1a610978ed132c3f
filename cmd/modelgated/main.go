// Command modelgated is the gateway daemon: it wires the memory
// probe, model orchestrator, task store, task handlers, worker, and
// HTTP surface together and runs them until a shutdown signal
// arrives.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/handler"
	"github.com/modelgate/modelgate/pkg/httpapi"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/metrics"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
	"github.com/modelgate/modelgate/pkg/worker"
)

func main() {
	log := logging.New(logrus.New())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(log, os.Getenv("MODELGATE_CONFIG"))
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	probe := gpu.NewProbe(log)

	adapters := orchestrator.NewAdapterRegistry()
	llmFlags := append([]string{
		"--tensor-parallel-size", strconv.Itoa(cfg.TensorParallelSize),
		"--gpu-memory-utilization", strconv.FormatFloat(cfg.GPUMemoryUtilization, 'f', -1, 64),
		"--max-model-len", strconv.Itoa(cfg.MaxModelLen),
	}, cfg.LLMRuntimeFlags...)
	llmAdapter := adapter.NewLLMAdapter(log, cfg.LLMRuntimeBin, llmFlags, gpuProbeShim{probe})
	adapters.Register(orchestrator.ModelTypeLLM, llmAdapter)
	if cfg.EnableImage {
		adapters.Register(orchestrator.ModelTypeImage, adapter.NewImageAdapter(log))
	}
	if cfg.EnableImage2Image {
		adapters.Register(orchestrator.ModelTypeImage2Image, adapter.NewImage2ImageAdapter(log))
	}
	if cfg.EnableVideo {
		adapters.Register(orchestrator.ModelTypeVideo, adapter.NewVideoAdapter(log))
	}

	orch := orchestrator.New(log, adapters, probe)

	for _, id := range cfg.ModelIDs {
		if _, err := orch.Load(ctx, id, orchestrator.ModelTypeLLM, false); err != nil {
			log.Warnf("preloading %s: %v", id, err)
		}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parsing REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	store := taskqueue.New(log, rdb, time.Duration(cfg.TaskTTLHours)*time.Hour)

	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeImage,
		handler.NewImageHandler(log, orch, adapter.NewImageAdapter(log), store, cfg.ImageModel).Handle)
	handlers.Register(taskqueue.TaskTypeImage2Image,
		handler.NewImage2ImageHandler(log, orch, adapter.NewImage2ImageAdapter(log), store, cfg.Image2ImageModel).Handle)
	handlers.Register(taskqueue.TaskTypeVideo,
		handler.NewVideoHandler(log, orch, adapter.NewVideoAdapter(log), store, cfg.VideoModel).Handle)
	handlers.Register(taskqueue.TaskTypeLLMCompare,
		handler.NewLLMCompareHandler(log, orch, llmAdapter, store).Handle)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	sampler := metrics.NewSampler(collector, probe, orch, store, 5*time.Second)

	w := worker.New(log, store, handlers, nil)
	w.SetMetrics(collector)

	server := httpapi.NewServer(log, cfg, orch, store, adapters, handlers, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	w.Start(ctx)
	go sampler.Run(ctx)

	log.Infof("modelgated: listening on %s", cfg.HTTPAddr)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	case <-ctx.Done():
		log.Infoln("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http server shutdown: %v", err)
	}

	log.Infoln("waiting for the worker to drain in-flight tasks")
	w.Stop()

	log.Infoln("modelgated stopped")
}

// gpuProbeShim adapts *gpu.Probe to adapter.LLMAdapter's unexported
// memoryProbe seam: pkg/adapter deliberately doesn't import pkg/gpu,
// so the two Status types are structurally identical but nominally
// distinct and need this one conversion at the wiring edge.
// pkg/orchestrator's memoryProbe uses gpu.Status itself, so *gpu.Probe
// is passed to orchestrator.New unwrapped.
type gpuProbeShim struct {
	probe *gpu.Probe
}

func (s gpuProbeShim) GetStatus(ctx context.Context) (adapter.ProbeStatus, error) {
	status, err := s.probe.GetStatus(ctx)
	if err != nil {
		return adapter.ProbeStatus{}, err
	}
	return adapter.ProbeStatus{TotalMB: status.TotalMB, UsedMB: status.UsedMB, FreeMB: status.FreeMB}, nil
}
