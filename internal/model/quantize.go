package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// QuantizeConfigFile is the file name the quantized loader reads.
const QuantizeConfigFile = "quantize_config.json"

// QuantizeConfig is the weight quantization applied when the model is loaded.
type QuantizeConfig struct {
	Method    string `json:"quant_method" yaml:"quant_method"`
	Bits      int    `json:"bits" yaml:"bits"`
	GroupSize int    `json:"group_size" yaml:"group_size"`
	DescAct   bool   `json:"desc_act" yaml:"desc_act"`
}

// DefaultQuantizeConfig is 4-bit GPTQ with group size 128 and no activation ordering.
func DefaultQuantizeConfig() QuantizeConfig {
	return QuantizeConfig{Method: "gptq", Bits: 4, GroupSize: 128, DescAct: false}
}

// Validate rejects configurations the quantized loader cannot honor.
func (q QuantizeConfig) Validate() error {
	switch q.Bits {
	case 2, 3, 4, 8:
	default:
		return fmt.Errorf("unsupported quantization bits: %d", q.Bits)
	}
	if q.GroupSize != -1 && q.GroupSize <= 0 {
		return fmt.Errorf("invalid group size: %d", q.GroupSize)
	}
	return nil
}

// Write stores q as quantize_config.json in dir.
func (q QuantizeConfig) Write(dir string) error {
	b, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, QuantizeConfigFile), b, 0o644)
}

// ReadQuantizeConfig loads quantize_config.json from dir.
func ReadQuantizeConfig(dir string) (QuantizeConfig, error) {
	var q QuantizeConfig
	b, err := os.ReadFile(filepath.Join(dir, QuantizeConfigFile))
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return q, fmt.Errorf("parse %s: %w", QuantizeConfigFile, err)
	}
	return q, nil
}
