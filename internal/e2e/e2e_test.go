package e2e

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiserver/internal/config"
	"aiserver/internal/inference"
	"aiserver/pkg/types"
)

func TestE2E_GenerateThroughLlamaServer(t *testing.T) {
	llama := fakeLlama(t, " return", " a + b")
	srv, sel := newServer(t, t.TempDir(), config.InferenceConfig{Backend: "auto", LlamaURL: llama.URL})
	assert.Equal(t, inference.BackendServer, sel.Backend)

	resp, body := httpGet(t, srv.URL+"/generate?prompt="+url.QueryEscape("def add(a, b):"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out types.GenerateResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "def add(a, b): return a + b", out.Response)

	resp, _ = httpGet(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_NoServableModelAnswers503(t *testing.T) {
	srv, sel := newServer(t, t.TempDir(), config.InferenceConfig{Backend: "auto"})
	assert.Nil(t, sel.Adapter)

	resp, body := httpGet(t, srv.URL+"/generate?prompt=hi")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var e types.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.NotEmpty(t, e.Error)

	resp, _ = httpGet(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = httpGet(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_MissingPrompt(t *testing.T) {
	llama := fakeLlama(t, "x")
	srv, _ := newServer(t, t.TempDir(), config.InferenceConfig{Backend: "server", LlamaURL: llama.URL})
	resp, _ := httpGet(t, srv.URL+"/generate")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestE2E_ModelsListing(t *testing.T) {
	dir := createTempModelsDir(t, "codellama-7b.Q4_K_M.gguf", "q8/codellama-7b.Q8_0.gguf", "README.md")
	llama := fakeLlama(t, "x")
	srv, _ := newServer(t, dir, config.InferenceConfig{Backend: "server", LlamaURL: llama.URL})

	resp, body := httpGet(t, srv.URL+"/models")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Models []types.Model `json:"models"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	models := out.Models
	require.Len(t, models, 2)
	for _, m := range models {
		assert.True(t, hasSuffixFold(m.Path, ".gguf"), m.Path)
	}
	assert.Equal(t, "Q4_K_M", models[0].Quant)
	assert.Equal(t, "Q8_0", models[1].Quant)
}

func TestE2E_SpawnSelectedForLocalGGUF(t *testing.T) {
	dir := createTempModelsDir(t, "codellama-7b.Q4_K_M.gguf")
	_, sel := newServer(t, dir, config.InferenceConfig{Backend: "spawn", LlamaBin: "/nonexistent/llama-server"})
	assert.Equal(t, inference.BackendSpawn, sel.Backend)
	assert.True(t, hasSuffixFold(sel.ModelPath, "codellama-7b.Q4_K_M.gguf"))
}
