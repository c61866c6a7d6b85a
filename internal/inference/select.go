package inference

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aiserver/internal/config"
	"aiserver/internal/model"
	"aiserver/internal/registry"
	"aiserver/pkg/types"
)

// Backend names accepted in config.InferenceConfig.Backend.
const (
	BackendAuto      = "auto"
	BackendServer    = "server"
	BackendSpawn     = "spawn"
	BackendInProcess = "inprocess"
)

// preferredQuant is chosen first when several GGUF files are available.
const preferredQuant = "Q4_K_M"

// Selection is the adapter and model path chosen for serving.
type Selection struct {
	Backend   string
	Adapter   Adapter
	ModelPath string
}

// Select chooses how to serve m. ggufs is the registry of GGUF files found
// for the model. In auto mode a configured server URL wins, then an
// in-process runtime when compiled in, then spawning llama-server. When auto
// finds nothing servable the selection carries a nil Adapter so the API still
// starts and answers 503.
func Select(cfg config.InferenceConfig, m *model.Model, ggufs []types.Model, env []string, log zerolog.Logger) (Selection, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendAuto
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	name := ""
	if m != nil {
		name = m.Name
	}
	server := func() Selection {
		return Selection{
			Backend:   BackendServer,
			Adapter:   NewServerAdapter(cfg.LlamaURL, "", timeout, 5*time.Second, log),
			ModelPath: name,
		}
	}
	path, hasGGUF := ggufPath(m, ggufs)
	spawn := func() Selection {
		return Selection{
			Backend: BackendSpawn,
			Adapter: NewSubprocessAdapter(SubprocessConfig{
				Bin:       cfg.LlamaBin,
				CtxSize:   cfg.CtxSize,
				Threads:   cfg.Threads,
				GPULayers: cfg.GPULayers,
				Env:       env,
			}, log),
			ModelPath: path,
		}
	}
	inproc := func() Selection {
		return Selection{
			Backend:   BackendInProcess,
			Adapter:   NewLlamaAdapter(cfg.CtxSize, cfg.Threads, cfg.GPULayers),
			ModelPath: path,
		}
	}

	switch backend {
	case BackendServer:
		if strings.TrimSpace(cfg.LlamaURL) == "" {
			return Selection{}, fmt.Errorf("inference backend %q requires llama_url", backend)
		}
		return server(), nil
	case BackendSpawn, BackendInProcess:
		if !hasGGUF {
			return Selection{}, ErrDependencyUnavailable(fmt.Sprintf("no GGUF weights found for %s", name))
		}
		if backend == BackendSpawn {
			return spawn(), nil
		}
		if !LlamaBuilt {
			return Selection{}, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
		}
		return inproc(), nil
	case BackendAuto:
		switch {
		case strings.TrimSpace(cfg.LlamaURL) != "":
			return server(), nil
		case hasGGUF && LlamaBuilt:
			return inproc(), nil
		case hasGGUF:
			return spawn(), nil
		}
		log.Warn().Str("model", name).Msg("no servable GGUF weights and no llama server configured; /generate will answer 503")
		return Selection{Backend: BackendAuto}, nil
	default:
		return Selection{}, fmt.Errorf("unknown inference backend: %s", cfg.Backend)
	}
}

// ggufPath prefers the GGUF file the model was fetched with, then the registry.
func ggufPath(m *model.Model, ggufs []types.Model) (string, bool) {
	if m != nil {
		if p, ok := m.GGUF(); ok {
			return p, true
		}
	}
	if g, ok := registry.Pick(ggufs, preferredQuant); ok {
		return g.Path, true
	}
	return "", false
}
