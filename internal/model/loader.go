package model

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"aiserver/internal/device"
	"aiserver/internal/hub"
	"aiserver/internal/workspace"
)

// Hub is the part of the hub client the loader needs.
type Hub interface {
	ModelInfo(ctx context.Context, repo string) (*hub.RepoInfo, error)
	Download(ctx context.Context, repo, revision string, files []hub.File, destDir string) ([]string, error)
}

// Loader fetches models into the layout's model cache.
type Loader struct {
	Hub      Hub
	Layout   workspace.Layout
	Revision string
	// GGUF optionally selects one GGUF file of the repo to fetch for serving.
	GGUF     string
	Quantize QuantizeConfig
	Log      zerolog.Logger
}

// Load fetches name and its tokenizer and binds them to dev. Errors are
// logged and returned.
func (l *Loader) Load(ctx context.Context, name string, dev device.Device) (*Model, error) {
	l.Log.Info().Str("model", name).Msg("Loading model with quantized configuration")
	m, err := l.load(ctx, name, dev)
	if err != nil {
		l.Log.Error().Err(err).Str("model", name).Msg("Error loading model")
		return nil, err
	}
	l.Log.Info().Str("model", name).Str("dir", m.Dir).Str("device", dev.Kind).
		Int("bits", m.Quantize.Bits).Int("group_size", m.Quantize.GroupSize).Msg("model loaded")
	return m, nil
}

func (l *Loader) load(ctx context.Context, name string, dev device.Device) (*Model, error) {
	q := l.Quantize
	if q.Bits == 0 {
		q = DefaultQuantizeConfig()
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	info, err := l.Hub.ModelInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	files := SelectFiles(info.Siblings, l.GGUF)
	if len(files) == 0 {
		return nil, fmt.Errorf("model %s: no safetensors weights in repo", name)
	}
	dir := l.Layout.ModelCacheDir(name)
	if _, err := l.Hub.Download(ctx, name, l.Revision, files, dir); err != nil {
		return nil, err
	}
	if err := q.Write(dir); err != nil {
		return nil, fmt.Errorf("write quantize config: %w", err)
	}
	tok, err := LoadTokenizer(dir)
	if err != nil {
		return nil, err
	}
	m, err := Open(dir, name, dev, tok)
	if err != nil {
		return nil, err
	}
	m.Revision = l.Revision
	m.Quantize = q
	return m, nil
}

// SelectFiles picks configuration, tokenizer and safetensors weight files
// from a repo listing, plus the named GGUF file when gguf is set. Pickle
// weights are never selected.
func SelectFiles(siblings []hub.Sibling, gguf string) []hub.File {
	var out []hub.File
	weights := 0
	for _, s := range siblings {
		base := path.Base(s.Filename)
		lower := strings.ToLower(base)
		switch {
		case strings.HasSuffix(lower, ".safetensors"):
			weights++
		case strings.HasSuffix(lower, ".json"), base == "tokenizer.model":
		case gguf != "" && s.Filename == gguf:
		default:
			continue
		}
		out = append(out, hub.File{Name: s.Filename, Size: s.Size})
	}
	if weights == 0 && gguf == "" {
		return nil
	}
	return out
}
