package adapter

import (
	"regexp"
	"strconv"
	"strings"
)

// VideoFamily identifies a video diffusion pipeline family, each of
// which needs different generation parameters and output framerate.
type VideoFamily string

const (
	VideoFamilyCogVideoX VideoFamily = "cogvideox"
	VideoFamilyHunyuan   VideoFamily = "hunyuan"
	VideoFamilyWan       VideoFamily = "wan"
	VideoFamilyWanRapid  VideoFamily = "wan_rapid"
	VideoFamilyLTX       VideoFamily = "ltx"
	VideoFamilyUnknown   VideoFamily = "unknown"
)

// DetectVideoFamily classifies modelID by substring match. Rapid
// variants are checked before the generic Wan family since "rapid"
// checkpoint names also contain "wan".
func DetectVideoFamily(modelID string) VideoFamily {
	id := strings.ToLower(modelID)

	switch {
	case strings.Contains(id, "cogvideo"), strings.Contains(id, "thudm"):
		return VideoFamilyCogVideoX
	case strings.Contains(id, "hunyuan"), strings.Contains(id, "tencent"):
		return VideoFamilyHunyuan
	case strings.Contains(id, "rapid"), strings.Contains(id, "phr00t"):
		return VideoFamilyWanRapid
	case strings.Contains(id, "wan"):
		return VideoFamilyWan
	case strings.Contains(id, "ltx"), strings.Contains(id, "lightricks"):
		return VideoFamilyLTX
	default:
		return VideoFamilyUnknown
	}
}

// ImageFamily identifies a diffusion image pipeline family, used only
// for the naming-based memory estimate — Generate itself is uniform
// across image families.
type ImageFamily string

const (
	ImageFamilySDXL    ImageFamily = "sdxl"
	ImageFamilySD3     ImageFamily = "sd3"
	ImageFamilyFlux    ImageFamily = "flux"
	ImageFamilyUnknown ImageFamily = "unknown"
)

// DetectImageFamily classifies modelID for the image/image2image
// memory estimator.
func DetectImageFamily(modelID string) ImageFamily {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "flux"):
		return ImageFamilyFlux
	case strings.Contains(id, "sd3"), strings.Contains(id, "stable-diffusion-3"):
		return ImageFamilySD3
	case strings.Contains(id, "sdxl"), strings.Contains(id, "xl-base"):
		return ImageFamilySDXL
	default:
		return ImageFamilyUnknown
	}
}

var paramCountPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*b(?:illion)?\b`)

// EstimateLLMParamsBillion extracts an approximate parameter count (in
// billions) from a model identifier by pattern, e.g. "llama-3-70b" →
// 70, "mixtral-8x7b" (a MoE naming convention) → 8*7=56. Returns 0 if
// no pattern matches, in which case the caller should fall back to a
// conservative flat estimate.
func EstimateLLMParamsBillion(modelID string) float64 {
	id := strings.ToLower(modelID)

	if experts, perExpert, ok := parseMoENaming(id); ok {
		return experts * perExpert
	}

	matches := paramCountPattern.FindAllStringSubmatch(id, -1)
	if len(matches) == 0 {
		return 0
	}
	// Take the largest match; some ids embed smaller numbers (e.g.
	// quantization bit-depths) earlier in the string.
	var best float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v > best {
			best = v
		}
	}
	return best
}

var moePattern = regexp.MustCompile(`(?i)(\d+)x(\d+(?:\.\d+)?)b`)

// parseMoENaming matches mixture-of-experts naming like "8x7b" or
// "8x22b" and returns (experts, billionParamsPerExpert, true).
func parseMoENaming(id string) (float64, float64, bool) {
	m := moePattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	experts, err1 := strconv.ParseFloat(m[1], 64)
	perExpert, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return experts, perExpert, true
}
