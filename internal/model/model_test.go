package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiserver/internal/device"
	"aiserver/internal/hub"
	"aiserver/internal/workspace"
)

type fakeHub struct {
	siblings []hub.Sibling
	content  map[string]string
	infoErr  error
	fetched  []string
}

func (f *fakeHub) ModelInfo(_ context.Context, repo string) (*hub.RepoInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &hub.RepoInfo{ID: repo, Siblings: f.siblings}, nil
}

func (f *fakeHub) Download(_ context.Context, _, _ string, files []hub.File, dest string) ([]string, error) {
	var out []string
	for _, file := range files {
		p := filepath.Join(dest, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, []byte(f.content[file.Name]), 0o644); err != nil {
			return nil, err
		}
		f.fetched = append(f.fetched, file.Name)
		out = append(out, p)
	}
	return out, nil
}

func codeLlamaHub() *fakeHub {
	return &fakeHub{
		siblings: []hub.Sibling{
			{Filename: "config.json"},
			{Filename: "generation_config.json"},
			{Filename: "model-00001-of-00002.safetensors"},
			{Filename: "model-00002-of-00002.safetensors"},
			{Filename: "model.safetensors.index.json"},
			{Filename: "pytorch_model-00001-of-00002.bin"},
			{Filename: "tokenizer.model"},
			{Filename: "tokenizer.json"},
			{Filename: "tokenizer_config.json"},
			{Filename: "special_tokens_map.json"},
			{Filename: "README.md"},
		},
		content: map[string]string{
			"config.json":             `{"model_type":"llama"}`,
			"tokenizer.json":          `{}`,
			"tokenizer_config.json":   `{"bos_token":{"content":"<s>"},"eos_token":"</s>","model_max_length":16384}`,
			"special_tokens_map.json": `{"bos_token":"<s>","eos_token":"</s>","pad_token":"</s>"}`,
		},
	}
}

func newLoader(t *testing.T, h Hub) *Loader {
	t.Helper()
	l, err := workspace.Resolve(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Ensure())
	return &Loader{Hub: h, Layout: l, Revision: "main", Log: zerolog.Nop()}
}

func TestLoad(t *testing.T) {
	h := codeLlamaHub()
	ld := newLoader(t, h)
	dev := device.Device{Kind: device.KindCUDA}
	m, err := ld.Load(context.Background(), "codellama/CodeLlama-7b-Instruct-hf", dev)
	require.NoError(t, err)

	assert.Equal(t, ld.Layout.ModelCacheDir("codellama/CodeLlama-7b-Instruct-hf"), m.Dir)
	assert.Equal(t, dev, m.Device)
	assert.Equal(t, DefaultQuantizeConfig(), m.Quantize)
	assert.NotContains(t, h.fetched, "pytorch_model-00001-of-00002.bin")
	assert.NotContains(t, h.fetched, "README.md")
	if diff := cmp.Diff([]string{"model-00001-of-00002.safetensors", "model-00002-of-00002.safetensors"}, m.Weights()); diff != "" {
		t.Fatalf("weights mismatch (-want +got):\n%s", diff)
	}

	q, err := ReadQuantizeConfig(m.Dir)
	require.NoError(t, err)
	assert.Equal(t, 4, q.Bits)
	assert.Equal(t, 128, q.GroupSize)
	assert.False(t, q.DescAct)

	require.NotNil(t, m.Tokenizer)
	assert.Equal(t, "<s>", m.Tokenizer.BOS)
	assert.Equal(t, "</s>", m.Tokenizer.EOS)
	assert.Equal(t, "</s>", m.Tokenizer.PadToken)
	assert.Equal(t, 16384, m.Tokenizer.ModelMaxLength)
}

func TestLoadFailure(t *testing.T) {
	ld := newLoader(t, &fakeHub{infoErr: hub.ErrUnauthorized})
	_, err := ld.Load(context.Background(), "org/gated", device.Device{Kind: device.KindCPU})
	require.Error(t, err)
	assert.True(t, errors.Is(err, hub.ErrUnauthorized))
}

func TestLoadWithoutSafetensors(t *testing.T) {
	ld := newLoader(t, &fakeHub{siblings: []hub.Sibling{{Filename: "config.json"}, {Filename: "pytorch_model.bin"}}})
	_, err := ld.Load(context.Background(), "org/pickled", device.Device{Kind: device.KindCPU})
	require.Error(t, err)
}

func TestSelectFilesWithGGUF(t *testing.T) {
	files := SelectFiles([]hub.Sibling{
		{Filename: "codellama-7b-instruct.Q4_K_M.gguf", Size: 10},
		{Filename: "codellama-7b-instruct.Q8_0.gguf", Size: 20},
		{Filename: "config.json"},
	}, "codellama-7b-instruct.Q4_K_M.gguf")
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"codellama-7b-instruct.Q4_K_M.gguf", "config.json"}, names); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ld := newLoader(t, codeLlamaHub())
	m, err := ld.Load(context.Background(), "codellama/CodeLlama-7b-Instruct-hf", device.Device{Kind: device.KindCPU})
	require.NoError(t, err)

	out := filepath.Join(ld.Layout.Root, "fine_tuned_model")
	require.NoError(t, m.Save(out))
	for _, f := range []string{"config.json", "model-00001-of-00002.safetensors", QuantizeConfigFile, "tokenizer.json", "tokenizer_config.json", "tokenizer.model"} {
		_, err := os.Stat(filepath.Join(out, f))
		assert.NoError(t, err, f)
	}
	reopened, err := Open(out, m.Name, m.Device, nil)
	require.NoError(t, err)
	assert.Equal(t, m.Weights(), reopened.Weights())
	assert.Equal(t, m.Tokenizer.EOS, reopened.Tokenizer.EOS)
}

func TestQuantizeValidate(t *testing.T) {
	assert.NoError(t, DefaultQuantizeConfig().Validate())
	assert.Error(t, QuantizeConfig{Bits: 5, GroupSize: 128}.Validate())
	assert.Error(t, QuantizeConfig{Bits: 4, GroupSize: 0}.Validate())
	assert.NoError(t, QuantizeConfig{Bits: 8, GroupSize: -1}.Validate())
}

func TestLoadTokenizerMissing(t *testing.T) {
	_, err := LoadTokenizer(t.TempDir())
	assert.Error(t, err)
}
