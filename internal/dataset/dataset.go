// Package dataset fetches a code dataset split and restricts it to a fixed
// set of programming-language labels.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultLanguages are the language labels kept by the loader.
var DefaultLanguages = []string{"Java", "Python", "HTML", "CSS", "JavaScript"}

// Example is one source file of the dataset.
type Example struct {
	Code     string `json:"code"`
	RepoName string `json:"repo_name,omitempty"`
	Path     string `json:"path,omitempty"`
	Language string `json:"language"`
	License  string `json:"license,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Dataset is a loaded, filtered split. It is read-only after Load.
type Dataset struct {
	Name     string
	Split    string
	Examples []Example
}

func (d *Dataset) Len() int { return len(d.Examples) }

// Filter keeps the examples whose language is one of langs. Matching is exact.
func Filter(examples []Example, langs []string) []Example {
	keep := make(map[string]struct{}, len(langs))
	for _, l := range langs {
		keep[l] = struct{}{}
	}
	out := make([]Example, 0, len(examples))
	for _, ex := range examples {
		if _, ok := keep[ex.Language]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// WriteJSONL writes the examples to path, one JSON object per line.
func (d *Dataset) WriteJSONL(path string) error {
	return writeJSONL(path, d.Examples)
}

func writeJSONL(path string, examples []Example) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range examples {
		if err := enc.Encode(&examples[i]); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadJSONL reads examples written by WriteJSONL.
func ReadJSONL(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeJSONL(f)
}

func decodeJSONL(r io.Reader) ([]Example, error) {
	var out []Example
	dec := json.NewDecoder(r)
	for {
		var ex Example
		err := dec.Decode(&ex)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode example %d: %w", len(out), err)
		}
		out = append(out, ex)
	}
}
