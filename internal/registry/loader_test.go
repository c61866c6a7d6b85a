package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiserver/pkg/types"
)

func writeSized(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, n), 0o644))
}

func TestLoadDirRecursive(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, filepath.Join(dir, "codellama-7b-instruct.Q4_K_M.gguf"), 10)
	writeSized(t, filepath.Join(dir, "sub", "deeper", "model-Q8_0.GGUF"), 20)
	writeSized(t, filepath.Join(dir, "sub", "notes.txt"), 1)
	writeSized(t, filepath.Join(dir, "model.safetensors"), 5)

	models, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, models, 2)

	assert.Equal(t, "codellama-7b-instruct.Q4_K_M.gguf", models[0].ID)
	assert.Equal(t, "codellama-7b-instruct.Q4_K_M", models[0].Name)
	assert.Equal(t, "Q4_K_M", models[0].Quant)
	assert.Equal(t, int64(10), models[0].Size)
	assert.True(t, filepath.IsAbs(models[0].Path))

	assert.Equal(t, "sub/deeper/model-Q8_0.GGUF", models[1].ID)
	assert.Equal(t, "Q8_0", models[1].Quant)
	assert.Equal(t, int64(20), models[1].Size)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestLoadDirEmpty(t *testing.T) {
	models, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestQuant(t *testing.T) {
	cases := map[string]string{
		"codellama-7b-instruct.Q4_K_M.gguf": "Q4_K_M",
		"llama-2-7b.q8_0.gguf":              "Q8_0",
		"mistral-IQ3_XXS.gguf":              "IQ3_XXS",
		"phi-2-f16.gguf":                    "F16",
		"tiny.gguf":                         "",
		"qwen2-7b-instruct.gguf":            "",
	}
	for name, want := range cases {
		assert.Equal(t, want, Quant(name), name)
	}
}

func TestPick(t *testing.T) {
	models := []types.Model{
		{ID: "a", Quant: "Q8_0", Size: 30},
		{ID: "b", Quant: "Q4_K_M", Size: 20},
		{ID: "c", Quant: "Q2_K", Size: 10},
	}
	m, ok := Pick(models, "q4_k_m")
	require.True(t, ok)
	assert.Equal(t, "b", m.ID)

	m, ok = Pick(models, "")
	require.True(t, ok)
	assert.Equal(t, "c", m.ID)

	_, ok = Pick(nil, "")
	assert.False(t, ok)
}
