// Package config loads slmassist configuration from .slm/config.json,
// applies environment overrides, and fills in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// Context window bounds. Out-of-range values are clamped, not rejected.
const (
	MinContextSize = 64
	MaxContextSize = 2048
)

// Config holds all slmassist configuration.
type Config struct {
	Model   ModelConfig   `json:"model"`
	Tools   ToolsConfig   `json:"tools"`
	Logging LoggingConfig `json:"logging"`
}

// ModelConfig configures the local GGUF model and the generation window.
type ModelConfig struct {
	// Path to the quantized GGUF model file.
	Path string `json:"path"`

	// ContextSize is the model context window in tokens, clamped to
	// [MinContextSize, MaxContextSize].
	ContextSize int `json:"context_size"`

	// Seed for deterministic model initialization.
	Seed int `json:"seed"`

	// Threads used for inference. 0 means NumCPU-1.
	Threads int `json:"threads"`

	// GPULayers offloaded to the GPU. -1 offloads everything.
	GPULayers int `json:"gpu_layers"`

	// MaxTokens bounds a single completion.
	MaxTokens int `json:"max_tokens"`

	// KeepLast is the number of user/assistant turn pairs included in the
	// generation window.
	KeepLast int `json:"keep_last"`

	// MaxGroundingChars caps the PDF text injected as grounding context.
	MaxGroundingChars int `json:"max_grounding_chars"`
}

// ToolsConfig configures the external tool collaborators.
type ToolsConfig struct {
	// WhisperBinary is the speech-to-text CLI used by the transcribe tool.
	WhisperBinary string `json:"whisper_binary"`

	// WhisperModel is passed to the transcriber via -m when set.
	WhisperModel string `json:"whisper_model"`
}

// LoggingConfig mirrors the logging section consumed by internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

// Default returns the baseline configuration.
func Default() *Config {
	threads := runtime.NumCPU() - 1
	if threads < 1 {
		threads = 1
	}
	return &Config{
		Model: ModelConfig{
			ContextSize:       2048,
			Seed:              42,
			Threads:           threads,
			GPULayers:         -1,
			MaxTokens:         512,
			KeepLast:          3,
			MaxGroundingChars: 8000,
		},
		Tools: ToolsConfig{
			WhisperBinary: "whisper-cli",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads .slm/config.json from the workspace, merges it over the
// defaults, applies environment overrides, and clamps bounded values.
// A missing config file is not an error.
func Load(ws string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(ws, ".slm", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg, nil
}

// applyEnvOverrides lets SLM_* environment variables win over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SLM_MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v, ok := envInt("SLM_CONTEXT_SIZE"); ok {
		c.Model.ContextSize = v
	}
	if v, ok := envInt("SLM_SEED"); ok {
		c.Model.Seed = v
	}
	if v, ok := envInt("SLM_KEEP_LAST"); ok {
		c.Model.KeepLast = v
	}
	if v, ok := envInt("SLM_GPU_LAYERS"); ok {
		c.Model.GPULayers = v
	}
	if v := os.Getenv("SLM_WHISPER_BIN"); v != "" {
		c.Tools.WhisperBinary = v
	}
}

func (c *Config) clamp() {
	c.Model.ContextSize = ClampContextSize(c.Model.ContextSize)
	if c.Model.KeepLast < 1 {
		c.Model.KeepLast = 1
	}
	if c.Model.MaxTokens < 1 {
		c.Model.MaxTokens = 512
	}
	if c.Model.Threads < 1 {
		c.Model.Threads = 1
	}
	if c.Model.MaxGroundingChars < 1 {
		c.Model.MaxGroundingChars = 8000
	}
}

// ClampContextSize bounds a requested context size to the supported range.
func ClampContextSize(n int) int {
	if n < MinContextSize {
		return MinContextSize
	}
	if n > MaxContextSize {
		return MaxContextSize
	}
	return n
}

// Save writes the configuration back to .slm/config.json.
func (c *Config) Save(ws string) error {
	dir := filepath.Join(ws, ".slm")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
