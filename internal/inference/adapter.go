package inference

import "context"

// Adapter abstracts the model runtime.
type Adapter interface {
	// Start prepares a session for the given model path and parameters.
	Start(modelPath string, params Params) (Session, error)
}

// Session is the lifecycle of one generation.
type Session interface {
	// Generate streams tokens for prompt to onToken. Implementations must
	// return when ctx is canceled.
	Generate(ctx context.Context, prompt string, onToken func(string) error) (Result, error)
	Close() error
}

// Params captures generation parameters passed to the adapter.
type Params struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	TopK        int
	DoSample    bool
	Stop        []string
	Seed        int
}

// DefaultParams: up to 256 new tokens, temperature 0.7, sampling enabled.
func DefaultParams() Params {
	return Params{MaxTokens: 256, Temperature: 0.7, DoSample: true}
}

// effectiveTemperature is 0 (greedy) when sampling is off.
func (p Params) effectiveTemperature() float32 {
	if !p.DoSample {
		return 0
	}
	return p.Temperature
}

// Result summarizes a generation after streaming.
type Result struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage contains token accounting when the runtime reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
