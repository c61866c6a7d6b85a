package inference

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServerAdapter talks to an already running llama.cpp server over its
// OpenAI-compatible HTTP API.
type ServerAdapter struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewServerAdapter constructs a server-backed adapter. reqTimeout bounds each
// generation; zero means no limit beyond the caller's context.
func NewServerAdapter(baseURL, apiKey string, reqTimeout, connectTimeout time.Duration, log zerolog.Logger) *ServerAdapter {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0; deadlines travel on the request context.
	return &ServerAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		reqTimeout: reqTimeout,
		httpClient: &http.Client{Transport: tr},
		log:        log.With().Str("adapter", "llama_server").Logger(),
	}
}

// BaseURL returns the server root without a trailing slash.
func (a *ServerAdapter) BaseURL() string { return a.baseURL }

// Healthy reports whether the server answers /v1/models within timeout.
func (a *ServerAdapter) Healthy(ctx context.Context, timeout time.Duration) bool {
	return modelsReachable(ctx, a.httpClient, a.baseURL, timeout)
}

// Start returns a session; modelPath is passed to the server as the model id.
func (a *ServerAdapter) Start(modelPath string, params Params) (Session, error) {
	return &serverSession{adapter: a, modelID: strings.TrimSpace(modelPath), params: params}, nil
}

type serverSession struct {
	adapter *ServerAdapter
	modelID string
	params  Params
}

func (s *serverSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (Result, error) {
	if s.adapter == nil || s.adapter.httpClient == nil {
		return Result{}, errors.New("llama server adapter not initialized")
	}
	if s.adapter.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.adapter.reqTimeout)
		defer cancel()
	}
	req := newCompletionRequest(s.modelID, prompt, s.params)
	return streamCompletion(ctx, s.adapter.httpClient, s.adapter.baseURL, s.adapter.apiKey, req, onToken, s.adapter.log)
}

func (s *serverSession) Close() error { return nil }

// modelsReachable issues GET /v1/models and reports a 2xx answer.
func modelsReachable(ctx context.Context, cli *http.Client, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := cli.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
