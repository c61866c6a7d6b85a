package inference

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Recorder persists completed generations.
type Recorder interface {
	RecordGeneration(ctx context.Context, prompt, response string, took time.Duration) error
}

// Pipeline is a text-generation pipeline bound to one model file.
type Pipeline struct {
	Adapter   Adapter
	ModelPath string
	Params    Params
	// Recorder is optional; failures are logged and never fail a generation.
	Recorder Recorder
	Log      zerolog.Logger
}

// NewPipeline returns a pipeline with DefaultParams.
func NewPipeline(a Adapter, modelPath string, log zerolog.Logger) *Pipeline {
	return &Pipeline{Adapter: a, ModelPath: modelPath, Params: DefaultParams(), Log: log}
}

// Generate runs one generation and returns the prompt followed by the
// completion. Each call opens its own session.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (string, error) {
	if p == nil || p.Adapter == nil {
		return "", ErrDependencyUnavailable("no inference backend configured")
	}
	start := time.Now()
	text, err := p.generate(ctx, prompt)
	took := time.Since(start)
	generationDuration.Observe(took.Seconds())
	if err != nil {
		generationsTotal.WithLabelValues(outcome(err)).Inc()
		p.Log.Error().Err(err).Dur("took", took).Msg("generation failed")
		return "", err
	}
	generationsTotal.WithLabelValues("ok").Inc()
	p.Log.Debug().Dur("took", took).Int("chars", len(text)).Msg("generation complete")
	if p.Recorder != nil {
		if rerr := p.Recorder.RecordGeneration(context.WithoutCancel(ctx), prompt, text, took); rerr != nil {
			p.Log.Warn().Err(rerr).Msg("record generation")
		}
	}
	return text, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	sess, err := p.Adapter.Start(p.ModelPath, p.Params)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	res, err := sess.Generate(ctx, prompt, func(string) error {
		generatedTokensTotal.Inc()
		return nil
	})
	if err != nil {
		return "", err
	}
	return prompt + res.Content, nil
}

// Ready reports whether the pipeline has a backend.
func (p *Pipeline) Ready() bool { return p != nil && p.Adapter != nil }

// Close releases adapter resources when the adapter holds any.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	if c, ok := p.Adapter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case IsDependencyUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
