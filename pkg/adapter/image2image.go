package adapter

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/logging"
)

// Image2ImageAdapter fronts an image-conditioned diffusion pipeline.
// Structurally identical to ImageAdapter except Generate additionally
// takes a source image and a denoising strength.
type Image2ImageAdapter struct {
	log logging.Logger
}

func NewImage2ImageAdapter(log logging.Logger) *Image2ImageAdapter {
	return &Image2ImageAdapter{log: log}
}

func (a *Image2ImageAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) {
	return imageFamilyMemoryMB[DetectImageFamily(modelID)], nil
}

func (a *Image2ImageAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	family := DetectImageFamily(modelID)
	memoryMB := imageFamilyMemoryMB[family]
	instance := &DiffusionInstance{ModelID: modelID, Family: family}
	return instance, memoryMB, map[string]any{"image_family": string(family)}, nil
}

func (a *Image2ImageAdapter) Unload(ctx context.Context, instance any) (uint64, error) {
	inst, ok := instance.(*DiffusionInstance)
	if !ok {
		return 0, fmt.Errorf("adapter/image2image: unexpected instance type %T", instance)
	}
	return imageFamilyMemoryMB[inst.Family], nil
}

// GenerateImage2ImageParams are the parameters accepted by the
// Image2Image family's Generate call.
type GenerateImage2ImageParams struct {
	Prompt         string
	NegativePrompt string
	SourceImageB64 string
	Strength       float64
	Steps          int
	CFG            float64
	Seed           *int64
}

func (a *Image2ImageAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	if _, ok := instance.(*DiffusionInstance); !ok {
		return nil, fmt.Errorf("adapter/image2image: unexpected instance type %T", instance)
	}
	req, ok := params.(GenerateImage2ImageParams)
	if !ok {
		return nil, fmt.Errorf("adapter/image2image: unexpected params type %T", params)
	}

	seed := resolveSeed(req.Seed)
	return GenerateImageResult{ImageBase64: "", Seed: seed}, nil
}
