//go:build !llama

package inference

// LlamaBuilt reports whether the in-process runtime was compiled in.
const LlamaBuilt = false

// LlamaAdapter is the stand-in used when the binary is built without the
// `llama` tag. Start always fails with a dependency-unavailable error.
type LlamaAdapter struct{}

// NewLlamaAdapter constructs the stub adapter.
func NewLlamaAdapter(ctxSize, threads, gpuLayers int) *LlamaAdapter { return &LlamaAdapter{} }

func (a *LlamaAdapter) Start(modelPath string, params Params) (Session, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (a *LlamaAdapter) Close() error { return nil }
