//go:build !llama

package generation

import (
	"fmt"

	"slmassist/internal/config"
)

// NewLlamaClient is the no-cgo stand-in. Local inference needs the llama
// build tag (and the llama.cpp bindings compiled in).
func NewLlamaClient(cfg config.ModelConfig) (Client, error) {
	return nil, fmt.Errorf("%w: binary built without llama support (rebuild with -tags llama)", ErrNotLoaded)
}
