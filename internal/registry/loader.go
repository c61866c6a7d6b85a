package registry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"aiserver/internal/common/fsutil"
	"aiserver/pkg/types"
)

// quantPattern matches llama.cpp quantization tags such as Q4_K_M, Q8_0,
// IQ3_XXS, F16 or BF16 in a file name.
var quantPattern = regexp.MustCompile(`(?i)(?:^|[._-])((?:I?Q\d+(?:_[A-Z0-9]+)*)|BF16|F16|F32)(?:[._-]|$)`)

// LoadDir recursively scans dir for *.gguf files and builds a registry.
// ID is the path relative to dir; Path is absolute. Results are sorted by ID.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	var models []types.Model
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".gguf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		models = append(models, types.Model{
			ID:    filepath.ToSlash(rel),
			Name:  strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Path:  p,
			Quant: Quant(d.Name()),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Quant extracts the quantization tag from a GGUF file name, upper-cased.
// It returns "" when the name carries none.
func Quant(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	m := quantPattern.FindAllStringSubmatch(name, -1)
	if len(m) == 0 {
		return ""
	}
	return strings.ToUpper(m[len(m)-1][1])
}

// Pick returns the model preferred for serving: the first whose Quant matches
// prefer (case-insensitive), else the smallest file.
func Pick(models []types.Model, prefer string) (types.Model, bool) {
	if len(models) == 0 {
		return types.Model{}, false
	}
	if prefer != "" {
		for _, m := range models {
			if strings.EqualFold(m.Quant, prefer) {
				return m, true
			}
		}
	}
	best := models[0]
	for _, m := range models[1:] {
		if m.Size < best.Size {
			best = m
		}
	}
	return best, true
}
