package types

// Model represents a servable model file on disk.
type Model struct {
	// Stable identifier for the model file.
	// example: codellama-7b-instruct.Q4_K_M.gguf
	ID string `json:"id" example:"codellama-7b-instruct.Q4_K_M.gguf"`
	// Human-friendly name.
	// example: codellama-7b-instruct
	Name string `json:"name" example:"codellama-7b-instruct"`
	// Absolute path to the model file on disk.
	// example: /home/user/AIServer/models/codellama_CodeLlama-7b-Instruct-hf/codellama-7b-instruct.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/AIServer/models/codellama_CodeLlama-7b-Instruct-hf/codellama-7b-instruct.Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// File size in bytes.
	// example: 4081004224
	Size int64 `json:"size,omitempty" example:"4081004224"`
}
