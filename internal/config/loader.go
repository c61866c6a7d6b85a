package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for a run. Fields absent from a config file
// keep the values from Default.
type Config struct {
	Root      string          `json:"root" yaml:"root" toml:"root"`
	Addr      string          `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string          `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string          `json:"log_format" yaml:"log_format" toml:"log_format"`
	Hub       HubConfig       `json:"hub" yaml:"hub" toml:"hub"`
	Model     ModelConfig     `json:"model" yaml:"model" toml:"model"`
	Dataset   DatasetConfig   `json:"dataset" yaml:"dataset" toml:"dataset"`
	Trainer   TrainerConfig   `json:"trainer" yaml:"trainer" toml:"trainer"`
	Inference InferenceConfig `json:"inference" yaml:"inference" toml:"inference"`
	CORS      CORSConfig      `json:"cors" yaml:"cors" toml:"cors"`
}

// HubConfig controls access to the model hub.
type HubConfig struct {
	Token            string `json:"token" yaml:"token" toml:"token"`
	Endpoint         string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	DatasetsEndpoint string `json:"datasets_endpoint" yaml:"datasets_endpoint" toml:"datasets_endpoint"`
	Concurrency      int    `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
}

// ModelConfig names the pretrained model to fetch.
type ModelConfig struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	Revision string `json:"revision" yaml:"revision" toml:"revision"`
	// GGUF optionally names a GGUF file in the repo to fetch for serving.
	GGUF string `json:"gguf" yaml:"gguf" toml:"gguf"`
}

// DatasetConfig names the dataset split and the language labels to keep.
type DatasetConfig struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	Config    string   `json:"config" yaml:"config" toml:"config"`
	Split     string   `json:"split" yaml:"split" toml:"split"`
	Languages []string `json:"languages" yaml:"languages" toml:"languages"`
	MaxRows   int      `json:"max_rows" yaml:"max_rows" toml:"max_rows"`
	PageSize  int      `json:"page_size" yaml:"page_size" toml:"page_size"`
}

// TrainerConfig points at the external training program.
type TrainerConfig struct {
	Bin  string   `json:"bin" yaml:"bin" toml:"bin"`
	Args []string `json:"args" yaml:"args" toml:"args"`
}

// InferenceConfig selects and tunes the text-generation runtime.
type InferenceConfig struct {
	// Backend is one of auto, server, spawn, inprocess.
	Backend        string `json:"backend" yaml:"backend" toml:"backend"`
	LlamaURL       string `json:"llama_url" yaml:"llama_url" toml:"llama_url"`
	LlamaBin       string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	CtxSize        int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads        int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers      int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// CORSConfig enables cross-origin access to the HTTP API.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:      "~/AIServer",
		Addr:      "0.0.0.0:8000",
		LogLevel:  "info",
		LogFormat: "console",
		Hub: HubConfig{
			Endpoint:         "https://huggingface.co",
			DatasetsEndpoint: "https://datasets-server.huggingface.co",
			Concurrency:      4,
		},
		Model: ModelConfig{
			Name:     "codellama/CodeLlama-7b-Instruct-hf",
			Revision: "main",
		},
		Dataset: DatasetConfig{
			Name:      "codeparrot/github-code",
			Config:    "all-all",
			Split:     "train",
			Languages: []string{"Java", "Python", "HTML", "CSS", "JavaScript"},
			MaxRows:   10000,
			PageSize:  100,
		},
		Trainer: TrainerConfig{
			Bin: "aiserver-train",
		},
		Inference: InferenceConfig{
			Backend:  "auto",
			LlamaBin: "llama-server",
			CtxSize:  4096,
		},
	}
}

// Load reads a configuration file based on its extension, layered over Default.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
