//go:build llama

package inference

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBuilt reports whether the in-process runtime was compiled in.
const LlamaBuilt = true

// LlamaAdapter runs go-llama.cpp inside the process. The loaded model is kept
// across sessions; go-llama.cpp is not safe for concurrent Predict calls, so
// sessions share a mutex.
type LlamaAdapter struct {
	ctxSize   int
	threads   int
	gpuLayers int

	mu    sync.Mutex
	path  string
	model *llama.LLama
}

// NewLlamaAdapter constructs the in-process adapter.
func NewLlamaAdapter(ctxSize, threads, gpuLayers int) *LlamaAdapter {
	return &LlamaAdapter{ctxSize: ctxSize, threads: threads, gpuLayers: gpuLayers}
}

func (a *LlamaAdapter) Start(modelPath string, params Params) (Session, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil || a.path != modelPath {
		if a.model != nil {
			a.model.Free()
		}
		opts := []llama.ModelOption{llama.SetContext(a.ctxSize)}
		if a.gpuLayers > 0 {
			opts = append(opts, llama.SetGPULayers(a.gpuLayers))
		}
		m, err := llama.New(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		a.model, a.path = m, modelPath
	}
	return &llamaSession{a: a, params: params}, nil
}

// Close frees the loaded model.
func (a *LlamaAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model != nil {
		a.model.Free()
		a.model = nil
	}
	return nil
}

type llamaSession struct {
	a      *LlamaAdapter
	params Params
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (Result, error) {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	if s.a.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	var cbErr error
	s.a.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			return false
		}
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	text, err := s.a.model.Predict(prompt, predictOptions(s.params, s.a.threads)...)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if cbErr != nil {
		return Result{}, cbErr
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Content: text, FinishReason: "stop"}, nil
}

func (s *llamaSession) Close() error { return nil }

func predictOptions(p Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(p.effectiveTemperature()),
	}
	if p.TopP > 0 {
		po = append(po, llama.SetTopP(p.TopP))
	}
	if p.TopK > 0 {
		po = append(po, llama.SetTopK(p.TopK))
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
