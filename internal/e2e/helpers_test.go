package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"aiserver/internal/config"
	"aiserver/internal/httpapi"
	"aiserver/internal/inference"
	"aiserver/internal/model"
	"aiserver/internal/registry"
	"aiserver/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty
// .gguf files and returns its path.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

type service struct {
	pipe   *inference.Pipeline
	models []types.Model
}

func (s *service) Generate(ctx context.Context, prompt string) (string, error) {
	return s.pipe.Generate(ctx, prompt)
}
func (s *service) Models() []types.Model    { return s.models }
func (s *service) Ready() bool              { return s.pipe.Ready() }
func (s *service) System() types.SystemInfo { return types.SystemInfo{Kind: "cpu"} }

func (s *service) SearchModels(context.Context, string, int) ([]types.RemoteModel, error) {
	return nil, inference.ErrDependencyUnavailable("no hub in e2e")
}

func (s *service) Runs(context.Context) ([]types.TrainingRun, error) {
	return nil, inference.ErrDependencyUnavailable("no ledger in e2e")
}

func (s *service) Generations(context.Context, int) ([]types.GenerationRecord, error) {
	return nil, inference.ErrDependencyUnavailable("no ledger in e2e")
}

// newServer wires registry, backend selection, pipeline and HTTP API the way
// the app does for --serve.
func newServer(t *testing.T, modelsDir string, cfg config.InferenceConfig) (*httptest.Server, inference.Selection) {
	t.Helper()
	ggufs, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	m := &model.Model{Name: "test/code-model", Dir: modelsDir}
	sel, err := inference.Select(cfg, m, ggufs, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	pipe := inference.NewPipeline(sel.Adapter, sel.ModelPath, zerolog.Nop())
	t.Cleanup(func() { _ = pipe.Close() })
	srv := httptest.NewServer(httpapi.NewMux(&service{pipe: pipe, models: ggufs}))
	t.Cleanup(srv.Close)
	return srv, sel
}

// fakeLlama serves a streaming completions endpoint that emits tokens.
func fakeLlama(t *testing.T, tokens ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, tok := range tokens {
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":%q}]}\n\n", tok)
			if fl != nil {
				fl.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	cli := &http.Client{Timeout: 10 * time.Second}
	resp, err := cli.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}
