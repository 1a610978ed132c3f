package adapter

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/modelgate/modelgate/pkg/logging"
)

// imageFamilyMemoryMB is a coarse per-family advisory estimate; there
// is no GGUF-equivalent metadata format for diffusion checkpoints to
// inspect, so family detection from the name is all we have.
var imageFamilyMemoryMB = map[ImageFamily]uint64{
	ImageFamilySDXL:    8_000,
	ImageFamilySD3:     16_000,
	ImageFamilyFlux:    24_000,
	ImageFamilyUnknown: 6_000,
}

// DiffusionInstance is the opaque handle for a resident image or
// image-to-image pipeline.
type DiffusionInstance struct {
	ModelID string
	Family  ImageFamily
}

// ImageAdapter fronts a text-to-image diffusion pipeline. The
// pipeline call itself is a documented stand-in: the runtime is an
// external collaborator, and the orchestrator/worker/handler chain is
// what this adapter exists to exercise.
type ImageAdapter struct {
	log logging.Logger
}

func NewImageAdapter(log logging.Logger) *ImageAdapter {
	return &ImageAdapter{log: log}
}

func (a *ImageAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) {
	return imageFamilyMemoryMB[DetectImageFamily(modelID)], nil
}

func (a *ImageAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	family := DetectImageFamily(modelID)
	memoryMB := imageFamilyMemoryMB[family]
	instance := &DiffusionInstance{ModelID: modelID, Family: family}
	return instance, memoryMB, map[string]any{"image_family": string(family)}, nil
}

func (a *ImageAdapter) Unload(ctx context.Context, instance any) (uint64, error) {
	inst, ok := instance.(*DiffusionInstance)
	if !ok {
		return 0, fmt.Errorf("adapter/image: unexpected instance type %T", instance)
	}
	return imageFamilyMemoryMB[inst.Family], nil
}

// GenerateImageParams are the parameters accepted by the Image
// family's Generate call.
type GenerateImageParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFG            float64
	Seed           *int64
}

// GenerateImageResult is the Image family's Generate result.
type GenerateImageResult struct {
	ImageBase64 string
	Seed        int64
}

func (a *ImageAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	if _, ok := instance.(*DiffusionInstance); !ok {
		return nil, fmt.Errorf("adapter/image: unexpected instance type %T", instance)
	}
	req, ok := params.(GenerateImageParams)
	if !ok {
		return nil, fmt.Errorf("adapter/image: unexpected params type %T", params)
	}

	seed := resolveSeed(req.Seed)
	// Stand-in for the diffusers call chain; a real backend renders
	// req into pixel data and base64-encodes a PNG/JPEG payload here.
	return GenerateImageResult{ImageBase64: "", Seed: seed}, nil
}

// resolveSeed returns seed if provided, otherwise a fresh random one,
// so results always report the seed that produced them.
func resolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return rand.Int63()
}
