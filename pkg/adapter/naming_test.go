package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectVideoFamilyPrefersRapidOverGenericWan(t *testing.T) {
	require.Equal(t, VideoFamilyWanRapid, DetectVideoFamily("phr00t-wan-rapid-v2"))
	require.Equal(t, VideoFamilyWan, DetectVideoFamily("Wan2.1-T2V-14B"))
	require.Equal(t, VideoFamilyCogVideoX, DetectVideoFamily("THUDM/CogVideoX-5b"))
	require.Equal(t, VideoFamilyHunyuan, DetectVideoFamily("tencent/HunyuanVideo"))
	require.Equal(t, VideoFamilyLTX, DetectVideoFamily("Lightricks/LTX-Video"))
	require.Equal(t, VideoFamilyUnknown, DetectVideoFamily("some-custom-checkpoint"))
}

func TestDetectImageFamily(t *testing.T) {
	require.Equal(t, ImageFamilySDXL, DetectImageFamily("stabilityai/stable-diffusion-xl-base-1.0"))
	require.Equal(t, ImageFamilySD3, DetectImageFamily("stabilityai/stable-diffusion-3-medium"))
	require.Equal(t, ImageFamilyFlux, DetectImageFamily("black-forest-labs/FLUX.1-dev"))
	require.Equal(t, ImageFamilyUnknown, DetectImageFamily("some-custom-checkpoint"))
}

func TestEstimateLLMParamsBillionFromNaming(t *testing.T) {
	require.Equal(t, 70.0, EstimateLLMParamsBillion("llama-3-70b"))
	require.Equal(t, 7.0, EstimateLLMParamsBillion("mistral-7b-instruct"))
	require.Equal(t, 0.0, EstimateLLMParamsBillion("no-size-here"))
}

func TestEstimateLLMParamsBillionMoENaming(t *testing.T) {
	require.Equal(t, 56.0, EstimateLLMParamsBillion("mixtral-8x7b"))
}
