package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"aiserver/internal/common/fsutil"
)

// tokenizerFiles are the files that make up a tokenizer, in lookup order.
var tokenizerFiles = []string{
	"tokenizer.json",
	"tokenizer.model",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"added_tokens.json",
}

// Tokenizer is the tokenizer paired with a model.
type Tokenizer struct {
	Dir            string
	Files          []string
	BOS            string
	EOS            string
	PadToken       string
	ModelMaxLength int
}

// LoadTokenizer reads the tokenizer files present in dir. At least one of
// tokenizer.json or tokenizer.model must exist.
func LoadTokenizer(dir string) (*Tokenizer, error) {
	t := &Tokenizer{Dir: dir}
	for _, f := range tokenizerFiles {
		if fsutil.PathExists(filepath.Join(dir, f)) {
			t.Files = append(t.Files, f)
		}
	}
	if !t.has("tokenizer.json") && !t.has("tokenizer.model") {
		return nil, fmt.Errorf("no tokenizer in %s", dir)
	}
	// special_tokens_map.json first; tokenizer_config.json takes precedence.
	for _, f := range []string{"special_tokens_map.json", "tokenizer_config.json"} {
		if !t.has(f) {
			continue
		}
		if err := t.readSpecial(filepath.Join(dir, f)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tokenizer) has(name string) bool {
	for _, f := range t.Files {
		if f == name {
			return true
		}
	}
	return false
}

type tokenizerConfig struct {
	BOS            tokenValue `json:"bos_token"`
	EOS            tokenValue `json:"eos_token"`
	Pad            tokenValue `json:"pad_token"`
	ModelMaxLength float64    `json:"model_max_length"`
}

func (t *Tokenizer) readSpecial(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var tc tokenizerConfig
	if err := json.Unmarshal(b, &tc); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if tc.BOS != "" {
		t.BOS = string(tc.BOS)
	}
	if tc.EOS != "" {
		t.EOS = string(tc.EOS)
	}
	if tc.Pad != "" {
		t.PadToken = string(tc.Pad)
	}
	// Unbounded tokenizers report a sentinel around 1e30.
	if tc.ModelMaxLength > 0 && tc.ModelMaxLength < 1<<31 {
		t.ModelMaxLength = int(tc.ModelMaxLength)
	}
	return nil
}

// tokenValue accepts both "<s>" and {"content": "<s>", ...}.
type tokenValue string

func (v *tokenValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = tokenValue(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*v = tokenValue(obj.Content)
	return nil
}

// Save copies the tokenizer files into dir.
func (t *Tokenizer) Save(dir string) error {
	for _, f := range t.Files {
		src := filepath.Join(t.Dir, f)
		dst := filepath.Join(dir, f)
		if src == dst {
			continue
		}
		if err := fsutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("save tokenizer: %w", err)
		}
	}
	return nil
}
