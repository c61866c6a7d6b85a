// Package model fetches a pretrained causal language model under a quantized
// configuration, together with its tokenizer, and persists fine-tuned copies.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aiserver/internal/common/fsutil"
	"aiserver/internal/device"
)

// Model is a model checkout on local disk.
type Model struct {
	Name      string
	Revision  string
	Dir       string
	Device    device.Device
	Quantize  QuantizeConfig
	Files     []string // relative to Dir, tokenizer files excluded
	Tokenizer *Tokenizer
	FineTuned bool
}

// Weights returns the weight files of the model.
func (m *Model) Weights() []string {
	var out []string
	for _, f := range m.Files {
		if isWeight(f) {
			out = append(out, f)
		}
	}
	return out
}

// GGUF returns the absolute path of the first GGUF file, if any.
func (m *Model) GGUF() (string, bool) {
	for _, f := range m.Files {
		if strings.HasSuffix(strings.ToLower(f), ".gguf") {
			return filepath.Join(m.Dir, f), true
		}
	}
	return "", false
}

// Save persists the model files, quantization config and tokenizer into dir.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range m.Files {
		if f == QuantizeConfigFile {
			continue
		}
		src := filepath.Join(m.Dir, f)
		dst := filepath.Join(dir, f)
		if src == dst {
			continue
		}
		if err := fsutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("save model: %w", err)
		}
	}
	if err := m.Quantize.Write(dir); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if m.Tokenizer != nil {
		return m.Tokenizer.Save(dir)
	}
	return nil
}

// Open reads a model checkout from dir. The tokenizer is loaded from dir
// when present there, otherwise tok is used.
func Open(dir, name string, dev device.Device, tok *Tokenizer) (*Model, error) {
	files, err := scanFiles(dir)
	if err != nil {
		return nil, err
	}
	m := &Model{Name: name, Dir: dir, Device: dev, Files: files, Tokenizer: tok}
	if len(m.Weights()) == 0 {
		return nil, fmt.Errorf("no weight files in %s", dir)
	}
	if q, err := ReadQuantizeConfig(dir); err == nil {
		m.Quantize = q
	} else {
		m.Quantize = DefaultQuantizeConfig()
	}
	if t, err := LoadTokenizer(dir); err == nil {
		m.Tokenizer = t
	}
	if m.Tokenizer == nil {
		return nil, fmt.Errorf("no tokenizer for %s", dir)
	}
	return m, nil
}

func scanFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".part") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if isTokenizerFile(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func isWeight(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".safetensors") || strings.HasSuffix(n, ".gguf")
}

func isTokenizerFile(name string) bool {
	for _, f := range tokenizerFiles {
		if name == f {
			return true
		}
	}
	return false
}
