package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables recognized by FromEnv.
const (
	EnvConfig     = "AISERVER_CONFIG"
	EnvRoot       = "AISERVER_ROOT"
	EnvAddr       = "AISERVER_ADDR"
	EnvLogLevel   = "AISERVER_LOG_LEVEL"
	EnvTrainerBin = "AISERVER_TRAINER_BIN"
	EnvLlamaBin   = "AISERVER_LLAMA_BIN"
	EnvLlamaURL   = "AISERVER_LLAMA_URL"
	EnvHFToken    = "HF_TOKEN"
	EnvHFEndpoint = "HF_ENDPOINT"
	EnvCORS       = "AISERVER_CORS_ORIGINS"
)

// Resolve builds the effective configuration from the process environment.
func Resolve() (Config, error) { return FromEnv(os.Getenv) }

// FromEnv starts from Default, overlays the file named by AISERVER_CONFIG (if
// any), then applies individual environment overrides.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	if p := strings.TrimSpace(getenv(EnvConfig)); p != "" {
		var err error
		cfg, err = Load(p)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", p, err)
		}
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Root, EnvRoot)
	set(&cfg.Addr, EnvAddr)
	set(&cfg.LogLevel, EnvLogLevel)
	set(&cfg.Trainer.Bin, EnvTrainerBin)
	set(&cfg.Inference.LlamaBin, EnvLlamaBin)
	set(&cfg.Inference.LlamaURL, EnvLlamaURL)
	set(&cfg.Hub.Token, EnvHFToken)
	set(&cfg.Hub.Endpoint, EnvHFEndpoint)
	if origins := splitCSV(getenv(EnvCORS)); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.Origins = origins
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("root must not be empty")
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("model.name must not be empty")
	}
	if strings.TrimSpace(c.Dataset.Name) == "" {
		return fmt.Errorf("dataset.name must not be empty")
	}
	if len(c.Dataset.Languages) == 0 {
		return fmt.Errorf("dataset.languages must not be empty")
	}
	switch c.Inference.Backend {
	case "", "auto", "server", "spawn", "inprocess":
	default:
		return fmt.Errorf("unknown inference backend: %s", c.Inference.Backend)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
