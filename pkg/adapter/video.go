package adapter

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/logging"
)

// videoFamilyMemoryMB is the advisory per-family estimate; video
// pipelines are consistently the heaviest resident type.
var videoFamilyMemoryMB = map[VideoFamily]uint64{
	VideoFamilyCogVideoX: 22_000,
	VideoFamilyHunyuan:   45_000,
	VideoFamilyWan:       28_000,
	VideoFamilyWanRapid:  16_000,
	VideoFamilyLTX:       18_000,
	VideoFamilyUnknown:   20_000,
}

// videoFamilyFPS is the output encoding framerate per family.
var videoFamilyFPS = map[VideoFamily]int{
	VideoFamilyCogVideoX: 8,
	VideoFamilyHunyuan:   30,
	VideoFamilyWan:       24,
	VideoFamilyWanRapid:  24,
	VideoFamilyLTX:       30,
	VideoFamilyUnknown:   8,
}

// VideoInstance is the opaque handle for a resident video pipeline.
type VideoInstance struct {
	ModelID string
	Family  VideoFamily
}

// VideoAdapter fronts an image-to-video diffusion pipeline,
// dispatching per-family parameter normalization keyed off
// VideoInstance.Family (also recorded as "video_family" in the
// LoadedModel metadata at load time).
type VideoAdapter struct {
	log logging.Logger
}

func NewVideoAdapter(log logging.Logger) *VideoAdapter {
	return &VideoAdapter{log: log}
}

func (a *VideoAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) {
	return videoFamilyMemoryMB[DetectVideoFamily(modelID)], nil
}

func (a *VideoAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	family := DetectVideoFamily(modelID)
	memoryMB := videoFamilyMemoryMB[family]
	instance := &VideoInstance{ModelID: modelID, Family: family}
	return instance, memoryMB, map[string]any{"video_family": string(family)}, nil
}

func (a *VideoAdapter) Unload(ctx context.Context, instance any) (uint64, error) {
	inst, ok := instance.(*VideoInstance)
	if !ok {
		return 0, fmt.Errorf("adapter/video: unexpected instance type %T", instance)
	}
	return videoFamilyMemoryMB[inst.Family], nil
}

// GenerateVideoParams are the parameters accepted by the Video
// family's Generate call.
type GenerateVideoParams struct {
	Prompt         string
	SourceImageB64 string
	Steps          int
	CFG            float64
	NumFrames      int
	Width          int
	Height         int
	Seed           *int64
}

// GenerateVideoResult is the Video family's Generate result.
type GenerateVideoResult struct {
	VideoBase64 string
	Seed        int64
	FPS         int
}

// NormalizeVideoParams applies family-specific rounding and override
// rules before dispatching to the pipeline: CogVideoX applies no
// rounding at all; Hunyuan, Wan, and WanRapid round resolution to the
// nearest 16; LTX alone rounds resolution to the nearest 32 and also
// rounds frame count to 8k+1; WanRapid additionally forces a fixed
// low step count and CFG scale regardless of what was requested.
func NormalizeVideoParams(family VideoFamily, p GenerateVideoParams) GenerateVideoParams {
	switch family {
	case VideoFamilyCogVideoX:
		// No rounding of any kind for CogVideoX.
	case VideoFamilyWanRapid:
		// Rapid checkpoints are trained for exactly 4 steps at
		// CFG 1; anything else produces garbage output.
		p.Steps = 4
		p.CFG = 1
		p.Width = roundTo(p.Width, 16)
		p.Height = roundTo(p.Height, 16)
	case VideoFamilyWan, VideoFamilyHunyuan:
		p.Width = roundTo(p.Width, 16)
		p.Height = roundTo(p.Height, 16)
	case VideoFamilyLTX:
		p.NumFrames = roundToKPlus1(p.NumFrames, 8)
		p.Width = roundTo(p.Width, 32)
		p.Height = roundTo(p.Height, 32)
	default:
		p.Width = roundTo(p.Width, 16)
		p.Height = roundTo(p.Height, 16)
	}
	return p
}

func roundTo(v, multiple int) int {
	if v <= 0 {
		return multiple
	}
	return ((v + multiple/2) / multiple) * multiple
}

// roundToKPlus1 rounds v to the nearest value of the form k*step+1
// with k at least 1, the frame-count shape LTX pipelines require.
func roundToKPlus1(v, step int) int {
	if v <= 1 {
		return step + 1
	}
	k := (v - 1 + step/2) / step
	if k < 1 {
		k = 1
	}
	return k*step + 1
}

func (a *VideoAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	inst, ok := instance.(*VideoInstance)
	if !ok {
		return nil, fmt.Errorf("adapter/video: unexpected instance type %T", instance)
	}
	req, ok := params.(GenerateVideoParams)
	if !ok {
		return nil, fmt.Errorf("adapter/video: unexpected params type %T", params)
	}

	req = NormalizeVideoParams(inst.Family, req)
	seed := resolveSeed(req.Seed)
	fps := videoFamilyFPS[inst.Family]

	// Stand-in for the diffusers pipeline call + frame encoding chain;
	// a real backend runs the per-family generation function and
	// writes frames to a container via imageio/ffmpeg at fps.
	return GenerateVideoResult{VideoBase64: "", Seed: seed, FPS: fps}, nil
}
