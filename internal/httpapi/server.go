package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aiserver/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	// Generate returns the prompt followed by the generated continuation.
	Generate(ctx context.Context, prompt string) (string, error)
	// Models lists the servable model files known to the process.
	Models() []types.Model
	Ready() bool
	// System describes the detected compute device.
	System() types.SystemInfo
	// SearchModels queries the model hub for GGUF repos.
	SearchModels(ctx context.Context, query string, limit int) ([]types.RemoteModel, error)
	// Runs lists recorded training runs, newest first.
	Runs(ctx context.Context) ([]types.TrainingRun, error)
	// Generations lists recorded generations, newest first.
	Generations(ctx context.Context, limit int) ([]types.GenerationRecord, error)
}

// NewMux builds the router: GET /generate, /models, /models/search, /system,
// /runs, /generations, /healthz, /readyz, /metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Get("/generate", generateHandler(svc))

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": svc.Models()})
	})

	r.Get("/models/search", searchHandler(svc))
	r.Get("/system", systemHandler(svc))
	r.Get("/runs", runsHandler(svc))
	r.Get("/generations", generationsHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no inference backend"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// generateHandler godoc
//
//	@Summary		Generate text
//	@Description	Continues the prompt with the served model. The response text starts with the prompt.
//	@Tags			inference
//	@Produce		json
//	@Param			prompt	query		string	true	"Prompt to continue"
//	@Success		200		{object}	types.GenerateResponse
//	@Failure		422		{object}	types.ErrorResponse
//	@Failure		500		{object}	types.ErrorResponse
//	@Failure		503		{object}	types.ErrorResponse
//	@Router			/generate [get]
func generateHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("prompt") {
			writeJSONError(w, http.StatusUnprocessableEntity, "query parameter 'prompt' is required")
			return
		}
		prompt := q.Get("prompt")

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			ev := zlog.Info().Str("path", r.URL.Path).Int("prompt_len", len(prompt))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Msg("generate start")
		}
		if lvl >= LevelDebug {
			zlog.Debug().Str("prompt", prompt).Msg("generate prompt")
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if d := generateTimeout; d > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, d)
			defer tcancel()
		}
		text, err := svc.Generate(ctx, prompt)
		if err != nil {
			// client went away or the server is shutting down
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			if lvl >= LevelError {
				ev := zlog.Error().Int("status", status).Dur("dur", time.Since(start)).Err(err)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					ev = ev.Str("request_id", rid)
				}
				ev.Msg("generate end")
			}
			return
		}
		writeJSON(w, http.StatusOK, types.GenerateResponse{Response: text})
		if lvl >= LevelInfo {
			ev := zlog.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Int("response_len", len(text))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Msg("generate end")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
