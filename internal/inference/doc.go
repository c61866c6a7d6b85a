// Package inference runs text generation against a loaded model. It is
// structured into small files by concern:
//
//   - adapter.go: Adapter/Session interfaces, Params and Result.
//   - errors.go: error types and helpers (IsDependencyUnavailable).
//   - server_adapter.go: OpenAI-compatible llama.cpp server over HTTP.
//   - subprocess.go: spawns llama-server per GGUF file, then talks HTTP.
//   - llama.go / llama_stub.go: in-process go-llama.cpp (build tag `llama`).
//   - pipeline.go: one-shot generation used by the HTTP layer.
//   - select.go: chooses the adapter and model file for a configuration.
//   - metrics.go: Prometheus counters for generations.
//
// Requests are not queued or serialized here; each Generate call opens its
// own session against the shared adapter.
package inference
