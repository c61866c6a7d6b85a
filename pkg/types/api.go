package types

import "time"

// GenerateResponse is returned by GET /generate.
type GenerateResponse struct {
	// Generated text, including the prompt it continues.
	// example: def fib(n):\n    return n if n < 2 else fib(n-1) + fib(n-2)
	Response string `json:"response" example:"def fib(n):\n    return n if n < 2 else fib(n-1) + fib(n-2)"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompt is required
	Error string `json:"error" example:"prompt is required"`
	// HTTP status code.
	// example: 422
	Code int `json:"code" example:"422"`
}

// SystemInfo is returned by GET /system.
type SystemInfo struct {
	// Device kind used for training and inference: cuda or cpu.
	// example: cuda
	Kind string `json:"kind" example:"cuda"`
	// GPU vendor when an accelerator was found.
	// example: nvidia
	Vendor string `json:"vendor,omitempty" example:"nvidia"`
	// Number of GPUs.
	// example: 1
	Count int `json:"count" example:"1"`
	// example: NVIDIA GeForce RTX 4090
	Name string `json:"name,omitempty" example:"NVIDIA GeForce RTX 4090"`
	// example: 550.54.14
	Driver string `json:"driver,omitempty" example:"550.54.14"`
	// example: 24564 MiB
	Memory string `json:"memory,omitempty" example:"24564 MiB"`
	// Whether a GPU is in use.
	Accelerated bool `json:"accelerated"`
}

// RemoteModel is one hit of GET /models/search.
type RemoteModel struct {
	// example: TheBloke/CodeLlama-7B-Instruct-GGUF
	ID           string   `json:"id" example:"TheBloke/CodeLlama-7B-Instruct-GGUF"`
	Author       string   `json:"author,omitempty"`
	Downloads    int64    `json:"downloads"`
	Likes        int      `json:"likes"`
	Tags         []string `json:"tags,omitempty"`
	LastModified string   `json:"last_modified,omitempty"`
}

// TrainingRun is one fine-tuning run recorded by the process.
type TrainingRun struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Dataset  string `json:"dataset"`
	Examples int    `json:"examples"`
	// One of running, succeeded, failed.
	// example: succeeded
	Status     string     `json:"status" example:"succeeded"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// GenerationRecord is one served generation.
type GenerationRecord struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
