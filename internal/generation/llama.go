//go:build llama

package generation

import (
	"context"
	"fmt"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"slmassist/internal/config"
	"slmassist/internal/history"
	"slmassist/internal/logging"
)

// LlamaClient runs completions against a local GGUF model via llama.cpp.
// Not safe for concurrent invocation; the engine serializes access.
type LlamaClient struct {
	mu    sync.Mutex
	model *llama.LLama
	cfg   config.ModelConfig
}

// NewLlamaClient loads the model and runs a one-token pre-warm completion.
// A pre-warm failure is swallowed (logged, not returned): this is the single
// permitted silent failure in the system. Runtime completion failures always
// propagate.
func NewLlamaClient(cfg config.ModelConfig) (*LlamaClient, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: model path not configured", ErrNotLoaded)
	}

	timer := logging.StartTimer(logging.CategoryBoot, "model load")
	model, err := llama.New(cfg.Path,
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
		llama.SetModelSeed(cfg.Seed),
		llama.EnableF16Memory,
	)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", cfg.Path, err)
	}

	c := &LlamaClient{model: model, cfg: cfg}

	// Pre-warm (ignore failure, once).
	if _, err := model.Predict("Hello", llama.SetTokens(1), llama.SetThreads(cfg.Threads)); err != nil {
		logging.APIWarn("pre-warm completion failed (ignored): %v", err)
	}

	logging.Boot("model loaded: %s (ctx=%d, gpu_layers=%d)", cfg.Path, cfg.ContextSize, cfg.GPULayers)
	return c, nil
}

// StreamCompletion drives one completion over the message window, emitting
// fragments as the model produces tokens.
func (c *LlamaClient) StreamCompletion(ctx context.Context, turns []history.Turn, sampling Sampling) (*Stream, error) {
	if c.model == nil {
		return nil, ErrNotLoaded
	}

	prompt := BuildPrompt(turns)
	stream := NewStream(16)

	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		opts := []llama.PredictOption{
			llama.SetTemperature(sampling.Temperature),
			llama.SetTopK(sampling.TopK),
			llama.SetTopP(sampling.TopP),
			llama.SetTokens(sampling.MaxTokens),
			llama.SetThreads(c.cfg.Threads),
			llama.SetStopWords(endMarker),
			llama.SetTokenCallback(func(token string) bool {
				select {
				case <-ctx.Done():
					return false
				default:
				}
				stream.Emit(token)
				return true
			}),
		}

		timer := logging.StartTimer(logging.CategoryAPI, "completion")
		_, err := c.model.Predict(prompt, opts...)
		timer.Stop()

		if ctxErr := ctx.Err(); ctxErr != nil {
			stream.Fail(ctxErr)
			return
		}
		if err != nil {
			logging.APIError("completion failed: %v", err)
			stream.Fail(fmt.Errorf("completion failed: %w", err))
			return
		}
		stream.Finish()
	}()

	return stream, nil
}

// Close frees the underlying model.
func (c *LlamaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		c.model.Free()
		c.model = nil
	}
	return nil
}
