package adapter

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	parser "github.com/gpustack/gguf-parser-go"
	"github.com/modelgate/modelgate/pkg/logging"
)

// bytesPerBillionParamsFP16 approximates 2 bytes/param (fp16) plus a
// fixed overhead fraction for KV cache and activation buffers, used
// only when a naming heuristic is all we have (no local GGUF to
// inspect precisely). Estimates are advisory: admission decisions
// only, never memory accounting.
const bytesPerBillionParamsFP16 = 2.2e9

// LLMInstance is the opaque handle returned by LLMAdapter.Load: an
// inference runtime subprocess reached over a local socket, plus the
// process handle Unload uses to reap the runtime and any workers it
// forked.
type LLMInstance struct {
	ModelID string
	Socket  string
	proc    *processHandle
}

// LLMAdapter wraps a local llama.cpp-style inference runtime binary.
// Each Load spawns a fresh subprocess listening on a Unix socket;
// Generate proxies requests to it.
type LLMAdapter struct {
	log        logging.Logger
	runtimeBin string
	extraFlags []string
	probe      memoryProbe
}

// memoryProbe is the subset of the memory probe contract the LLM
// adapter needs to confirm reclamation after unload.
type memoryProbe interface {
	GetStatus(ctx context.Context) (ProbeStatus, error)
}

// ProbeStatus mirrors gpu.Status without importing pkg/gpu directly,
// keeping pkg/adapter decoupled from the probe's concrete package
// (pkg/orchestrator, by contrast, imports pkg/gpu and uses gpu.Status
// in its own memoryProbe interface).
type ProbeStatus struct {
	TotalMB uint64
	UsedMB  uint64
	FreeMB  uint64
}

// NewLLMAdapter constructs an LLMAdapter. runtimeBin is the path to
// the local inference runtime executable; extraFlags are appended to
// every invocation.
func NewLLMAdapter(log logging.Logger, runtimeBin string, extraFlags []string, probe memoryProbe) *LLMAdapter {
	return &LLMAdapter{log: log, runtimeBin: runtimeBin, extraFlags: extraFlags, probe: probe}
}

// Estimate derives a memory cost from the identifier's naming
// pattern, opportunistically refined by gguf-parser-go when modelID
// resolves to a local .gguf file.
func (a *LLMAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) {
	if strings.HasSuffix(strings.ToLower(modelID), ".gguf") {
		if _, err := os.Stat(modelID); err == nil {
			if mb, ok := estimateFromGGUF(modelID); ok {
				return mb, nil
			}
		}
	}

	paramsB := EstimateLLMParamsBillion(modelID)
	if paramsB == 0 {
		a.log.Warnf("adapter/llm: no parameter-count pattern found in %q, using a conservative flat estimate", modelID)
		paramsB = 7
	}
	bytes := paramsB * bytesPerBillionParamsFP16
	return uint64(math.Ceil(bytes / (1024 * 1024))), nil
}

// estimateFromGGUF parses a local GGUF file's metadata to derive an
// exact weight/KV-cache/compute memory estimate.
func estimateFromGGUF(path string) (uint64, bool) {
	f, err := parser.ParseGGUFFile(path)
	if err != nil {
		return 0, false
	}
	estimate := f.EstimateLLaMACppRun(
		parser.WithLLaMACppContextSize(4096),
		parser.WithLLaMACppLogicalBatchSize(2048),
		parser.WithLLaMACppOffloadLayers(999),
	)
	if len(estimate.Devices) == 0 {
		return 0, false
	}
	totalBytes := estimate.Devices[0].Weight.Sum() + estimate.Devices[0].KVCache.Sum() + estimate.Devices[0].Computation.Sum()
	return uint64(totalBytes) / (1024 * 1024), true
}

// Load spawns the inference runtime for modelID and waits for its
// socket to appear.
func (a *LLMAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	socket := filepath.Join(os.TempDir(), fmt.Sprintf("modelgate-llm-%d.sock", time.Now().UnixNano()))
	args := append([]string{"--model", modelID, "--socket", socket}, a.extraFlags...)

	proc, err := startProcess(ctx, a.runtimeBin, args...)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("starting llm runtime for %s: %w", modelID, err)
	}

	if err := waitForSocket(ctx, socket, 30*time.Second); err != nil {
		_ = proc.Terminate()
		return nil, 0, nil, fmt.Errorf("llm runtime for %s never became ready: %w", modelID, err)
	}

	memoryMB, _ := a.Estimate(ctx, modelID)
	instance := &LLMInstance{ModelID: modelID, Socket: socket, proc: proc}
	metadata := map[string]any{"pid": proc.Pid()}
	return instance, memoryMB, metadata, nil
}

// Unload terminates the runtime's whole process group (the runtime's
// own shutdown is not trusted to free accelerator memory held by
// workers it forked), sleeps briefly for the OS to reclaim device
// mappings, then re-samples memory via the driver probe — not the
// runtime's own accounting — to report what was actually freed.
func (a *LLMAdapter) Unload(ctx context.Context, instance any) (uint64, error) {
	inst, ok := instance.(*LLMInstance)
	if !ok {
		return 0, fmt.Errorf("adapter/llm: unexpected instance type %T", instance)
	}

	before, beforeErr := a.probe.GetStatus(ctx)

	if err := inst.proc.Terminate(); err != nil {
		a.log.Warnf("adapter/llm: terminating runtime for %s: %v", inst.ModelID, err)
	}
	_ = os.Remove(inst.Socket)

	// Give the OS a moment to reclaim device memory mappings before
	// re-sampling; the in-process allocator view is not trusted here.
	time.Sleep(200 * time.Millisecond)

	if beforeErr != nil {
		return 0, nil
	}
	after, err := a.probe.GetStatus(ctx)
	if err != nil {
		return 0, nil
	}
	if after.FreeMB <= before.FreeMB {
		return 0, nil
	}
	return after.FreeMB - before.FreeMB, nil
}

// Generate proxies a completion request to the resident runtime. The
// wire protocol to the subprocess belongs to the wrapped runtime;
// this is the seam a deployment wires to vLLM/llama.cpp's own client.
func (a *LLMAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	inst, ok := instance.(*LLMInstance)
	if !ok {
		return nil, fmt.Errorf("adapter/llm: unexpected instance type %T", instance)
	}
	req, ok := params.(GenerateTextParams)
	if !ok {
		return nil, fmt.Errorf("adapter/llm: unexpected params type %T", params)
	}
	return generateOverSocket(ctx, inst.Socket, req)
}

// GenerateTextParams are the parameters accepted by the LLM family's
// Generate call.
type GenerateTextParams struct {
	Prompt      string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// GenerateTextResult is the LLM family's Generate result.
type GenerateTextResult struct {
	Content string
}
