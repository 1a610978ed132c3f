// Package config assembles gateway configuration from environment
// variables, with an optional TOML overlay file for local
// development. Env vars always win over the overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/modelgate/modelgate/pkg/logging"
)

// Config collects every environment-configurable knob of the gateway.
type Config struct {
	ModelIDs []string

	TensorParallelSize   int
	GPUMemoryUtilization float64
	MaxModelLen          int
	LLMRuntimeBin        string
	LLMRuntimeFlags      []string

	ImageModel       string
	Image2ImageModel string
	VideoModel       string

	EnableImage       bool
	EnableImage2Image bool
	EnableVideo       bool

	RedisURL     string
	TaskTTLHours int

	HTTPAddr string
}

// overlay mirrors Config's optional TOML file shape. Pointer fields
// distinguish "absent" from an explicit zero value.
type overlay struct {
	ModelIDs []string `toml:"model_ids"`

	TensorParallelSize   *int     `toml:"tensor_parallel_size"`
	GPUMemoryUtilization *float64 `toml:"gpu_memory_utilization"`
	MaxModelLen          *int     `toml:"max_model_len"`
	LLMRuntimeBin        string   `toml:"llm_runtime_bin"`
	LLMRuntimeFlags      string   `toml:"llm_runtime_flags"`

	ImageModel       string `toml:"image_model"`
	Image2ImageModel string `toml:"image2image_model"`
	VideoModel       string `toml:"video_model"`

	EnableImage       *bool `toml:"enable_image"`
	EnableImage2Image *bool `toml:"enable_image2image"`
	EnableVideo       *bool `toml:"enable_video"`

	RedisURL     string `toml:"redis_url"`
	TaskTTLHours *int   `toml:"task_ttl_hours"`

	HTTPAddr string `toml:"http_addr"`
}

// Default returns the baseline configuration Load starts from before
// applying an optional TOML overlay and then the environment.
func Default() Config {
	return Config{
		TensorParallelSize:   1,
		GPUMemoryUtilization: 0.9,
		MaxModelLen:          8192,
		LLMRuntimeBin:        "llama-server",
		ImageModel:           "stabilityai/stable-diffusion-xl-base-1.0",
		Image2ImageModel:     "stabilityai/stable-diffusion-xl-base-1.0",
		VideoModel:           "THUDM/CogVideoX-5b",
		EnableImage:          true,
		EnableImage2Image:    true,
		EnableVideo:          true,
		RedisURL:             "redis://127.0.0.1:6379/0",
		TaskTTLHours:         24,
		HTTPAddr:             ":8080",
	}
}

// Load builds a Config: Default(), overlaid by tomlPath if it exists,
// overlaid by the process environment.
func Load(log logging.Logger, tomlPath string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			var ov overlay
			if _, err := toml.DecodeFile(tomlPath, &ov); err != nil {
				return Config{}, fmt.Errorf("decoding config overlay %s: %w", tomlPath, err)
			}
			if err := cfg.applyOverlay(ov); err != nil {
				return Config{}, err
			}
		} else {
			log.Debugf("config: no overlay file at %s, using defaults and environment", tomlPath)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyOverlay(ov overlay) error {
	if len(ov.ModelIDs) > 0 {
		c.ModelIDs = ov.ModelIDs
	}
	if ov.TensorParallelSize != nil {
		c.TensorParallelSize = *ov.TensorParallelSize
	}
	if ov.GPUMemoryUtilization != nil {
		c.GPUMemoryUtilization = *ov.GPUMemoryUtilization
	}
	if ov.MaxModelLen != nil {
		c.MaxModelLen = *ov.MaxModelLen
	}
	if ov.LLMRuntimeBin != "" {
		c.LLMRuntimeBin = ov.LLMRuntimeBin
	}
	if ov.LLMRuntimeFlags != "" {
		flags, err := shellwords.Parse(ov.LLMRuntimeFlags)
		if err != nil {
			return fmt.Errorf("parsing llm_runtime_flags overlay: %w", err)
		}
		c.LLMRuntimeFlags = flags
	}
	if ov.ImageModel != "" {
		c.ImageModel = ov.ImageModel
	}
	if ov.Image2ImageModel != "" {
		c.Image2ImageModel = ov.Image2ImageModel
	}
	if ov.VideoModel != "" {
		c.VideoModel = ov.VideoModel
	}
	if ov.EnableImage != nil {
		c.EnableImage = *ov.EnableImage
	}
	if ov.EnableImage2Image != nil {
		c.EnableImage2Image = *ov.EnableImage2Image
	}
	if ov.EnableVideo != nil {
		c.EnableVideo = *ov.EnableVideo
	}
	if ov.RedisURL != "" {
		c.RedisURL = ov.RedisURL
	}
	if ov.TaskTTLHours != nil {
		c.TaskTTLHours = *ov.TaskTTLHours
	}
	if ov.HTTPAddr != "" {
		c.HTTPAddr = ov.HTTPAddr
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("MODEL_IDS"); ok {
		c.ModelIDs = splitCommaList(v)
	}
	if v, ok := os.LookupEnv("TENSOR_PARALLEL_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing TENSOR_PARALLEL_SIZE=%q: %w", v, err)
		}
		c.TensorParallelSize = n
	}
	if v, ok := os.LookupEnv("GPU_MEMORY_UTILIZATION"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing GPU_MEMORY_UTILIZATION=%q: %w", v, err)
		}
		c.GPUMemoryUtilization = f
	}
	if v, ok := os.LookupEnv("MAX_MODEL_LEN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAX_MODEL_LEN=%q: %w", v, err)
		}
		c.MaxModelLen = n
	}
	if v, ok := os.LookupEnv("LLM_RUNTIME_BIN"); ok && v != "" {
		c.LLMRuntimeBin = v
	}
	if v, ok := os.LookupEnv("LLM_RUNTIME_FLAGS"); ok && v != "" {
		flags, err := shellwords.Parse(v)
		if err != nil {
			return fmt.Errorf("parsing LLM_RUNTIME_FLAGS=%q: %w", v, err)
		}
		c.LLMRuntimeFlags = flags
	}
	if v, ok := os.LookupEnv("IMAGE_MODEL"); ok && v != "" {
		c.ImageModel = v
	}
	if v, ok := os.LookupEnv("IMAGE2IMAGE_MODEL"); ok && v != "" {
		c.Image2ImageModel = v
	}
	if v, ok := os.LookupEnv("VIDEO_MODEL"); ok && v != "" {
		c.VideoModel = v
	}
	if v, ok := os.LookupEnv("ENABLE_IMAGE"); ok {
		c.EnableImage = parseBool(v, c.EnableImage)
	}
	if v, ok := os.LookupEnv("ENABLE_IMAGE2IMAGE"); ok {
		c.EnableImage2Image = parseBool(v, c.EnableImage2Image)
	}
	if v, ok := os.LookupEnv("ENABLE_VIDEO"); ok {
		c.EnableVideo = parseBool(v, c.EnableVideo)
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok && v != "" {
		c.RedisURL = v
	}
	if v, ok := os.LookupEnv("TASK_TTL_HOURS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing TASK_TTL_HOURS=%q: %w", v, err)
		}
		c.TaskTTLHours = n
	}
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok && v != "" {
		c.HTTPAddr = v
	}
	return nil
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool accepts the usual truthy spellings; an unparseable value
// falls back to the current setting rather than erroring, since a
// malformed feature flag shouldn't prevent startup.
func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
