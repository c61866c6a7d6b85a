// Package app wires the run: environment setup, hub login, device probe,
// model and dataset loading, optional fine-tuning, optional serving and the
// final cleanup.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"aiserver/internal/config"
	"aiserver/internal/dataset"
	"aiserver/internal/device"
	"aiserver/internal/httpapi"
	"aiserver/internal/hub"
	"aiserver/internal/inference"
	"aiserver/internal/model"
	"aiserver/internal/registry"
	"aiserver/internal/store"
	"aiserver/internal/trainer"
	"aiserver/internal/workspace"
	"aiserver/pkg/types"
)

// Options are the two run switches exposed on the command line.
type Options struct {
	Train bool
	Serve bool
}

// Hub is the hub client surface the run uses.
type Hub interface {
	model.Hub
	dataset.Rows
	Searcher
	WhoAmI(ctx context.Context) (hub.Identity, error)
	HasToken() bool
	Token() string
}

// App holds the collaborators of a run. Zero-valued optional fields get
// production defaults in Run.
type App struct {
	Config config.Config
	Log    zerolog.Logger
	Hub    Hub
	Runner device.Runner
	// Backend overrides the external trainer command.
	Backend trainer.Backend
	// Listen overrides net.Listen for the HTTP server.
	Listen func(network, addr string) (net.Listener, error)
	// Ready, if set, receives the server address once it accepts connections.
	Ready func(addr string)
}

// New builds an App with a hub client configured from cfg.
func New(cfg config.Config, log zerolog.Logger) *App {
	opts := []hub.Option{hub.WithConcurrency(cfg.Hub.Concurrency)}
	if cfg.Hub.Token != "" {
		opts = append(opts, hub.WithToken(cfg.Hub.Token))
	}
	if cfg.Hub.Endpoint != "" {
		opts = append(opts, hub.WithBaseURL(cfg.Hub.Endpoint))
	}
	if cfg.Hub.DatasetsEndpoint != "" {
		opts = append(opts, hub.WithDatasetsURL(cfg.Hub.DatasetsEndpoint))
	}
	return &App{Config: cfg, Log: log, Hub: hub.NewClient(opts...), Runner: device.ExecRunner{}}
}

// Run executes one run. Any error or panic is logged as "An error occurred"
// and returned for the caller's information only; the temp directory is
// removed in every case.
func (a *App) Run(ctx context.Context, opts Options) (err error) {
	log := a.Log
	var layout workspace.Layout
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error().Err(err).Msg("An error occurred")
		}
		layout.Cleanup(log)
	}()

	layout, err = workspace.Resolve(a.Config.Root)
	if err != nil {
		return err
	}
	if err = layout.Ensure(); err != nil {
		return err
	}
	log.Info().Str("root", layout.Root).Msg("Environment set up")

	st, serr := store.Open(layout.DBPath())
	if serr != nil {
		log.Warn().Err(serr).Msg("run ledger unavailable")
		st = nil
	} else {
		defer st.Close()
	}

	a.login(ctx)
	dev := device.Probe(ctx, a.runner(), log)
	log.Info().Str("device", dev.String()).Str("name", dev.Name).Msg("Using device")

	ml := &model.Loader{
		Hub:      a.Hub,
		Layout:   layout,
		Revision: a.Config.Model.Revision,
		GGUF:     a.Config.Model.GGUF,
		Quantize: model.DefaultQuantizeConfig(),
		Log:      log,
	}
	m, err := ml.Load(ctx, a.Config.Model.Name, dev)
	if err != nil {
		return err
	}
	log.Info().Str("model", m.Name).Msg("Model and tokenizer loaded successfully")

	dl := &dataset.Loader{
		Hub:       a.Hub,
		Layout:    layout,
		Config:    a.Config.Dataset.Config,
		Languages: a.Config.Dataset.Languages,
		MaxRows:   a.Config.Dataset.MaxRows,
		PageSize:  a.Config.Dataset.PageSize,
		Log:       log,
	}
	ds, err := dl.Load(ctx, a.Config.Dataset.Name, a.Config.Dataset.Split)
	if err != nil {
		return err
	}
	log.Info().Int("examples", ds.Len()).Msg("Dataset loaded and filtered")

	if opts.Train {
		t := trainer.New(a.backend(), layout, nil, log)
		if st != nil {
			t.Store = st
		}
		if m, err = t.Train(ctx, m, ds); err != nil {
			return err
		}
	}
	if opts.Serve {
		if err = a.serve(ctx, m, dev, st); err != nil {
			return err
		}
	}
	log.Info().Msg("Script completed successfully.")
	return nil
}

// login verifies the hub token. Failures are warnings; anonymous access continues.
func (a *App) login(ctx context.Context) {
	if !a.Hub.HasToken() {
		a.Log.Info().Msg("No hub token configured, continuing anonymously")
		return
	}
	id, err := a.Hub.WhoAmI(ctx)
	if err != nil {
		a.Log.Warn().Err(err).Msg("Hub login failed, continuing anonymously")
		return
	}
	a.Log.Info().Str("user", id.Name).Msg("Logged in to hub")
}

func (a *App) runner() device.Runner {
	if a.Runner != nil {
		return a.Runner
	}
	return device.ExecRunner{}
}

// childEnv is the extra environment handed to trainer and llama-server.
func (a *App) childEnv() []string {
	if tok := a.Hub.Token(); tok != "" {
		return []string{"HF_TOKEN=" + tok}
	}
	return nil
}

func (a *App) backend() trainer.Backend {
	if a.Backend != nil {
		return a.Backend
	}
	return &trainer.CommandBackend{
		Bin:  a.Config.Trainer.Bin,
		Args: a.Config.Trainer.Args,
		Env:  a.childEnv(),
		Log:  a.Log.With().Str("component", "trainer").Logger(),
	}
}

// servable lists the GGUF files inside the loaded model's own directory.
// Other checkouts in the model cache are never considered: after training
// they hold the base weights, not the model being served.
func servable(m *model.Model, log zerolog.Logger) []types.Model {
	found, err := registry.LoadDir(m.Dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", m.Dir).Msg("scan for gguf")
		return nil
	}
	if len(found) == 0 {
		log.Warn().Str("dir", m.Dir).Bool("fine_tuned", m.FineTuned).Msg("no GGUF weights in model directory")
	}
	return found
}

// serve exposes /generate until ctx is canceled.
func (a *App) serve(ctx context.Context, m *model.Model, dev device.Device, st *store.Store) error {
	log := a.Log.With().Str("component", "server").Logger()
	models := servable(m, log)
	sel, err := inference.Select(a.Config.Inference, m, models, a.childEnv(), log)
	if err != nil {
		return err
	}
	pipe := inference.NewPipeline(sel.Adapter, sel.ModelPath, log)
	if st != nil {
		pipe.Recorder = st
	}
	defer pipe.Close()
	if sa, ok := sel.Adapter.(*inference.ServerAdapter); ok && !sa.Healthy(ctx, 2*time.Second) {
		log.Warn().Str("url", sa.BaseURL()).Msg("llama server not reachable yet")
	}
	log.Info().Str("backend", sel.Backend).Str("model", sel.ModelPath).Msg("Inference pipeline ready")

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetCORSOptions(a.Config.CORS.Enabled, a.Config.CORS.Origins, nil, nil)
	httpapi.SetGenerateTimeout(time.Duration(a.Config.Inference.TimeoutSeconds) * time.Second)

	listen := a.Listen
	if listen == nil {
		listen = net.Listen
	}
	ln, err := listen("tcp", a.Config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.Addr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(&service{pipe: pipe, models: models, dev: dev, hub: a.Hub, store: st}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info().Str("addr", ln.Addr().String()).Msg("Server listening")
	if a.Ready != nil {
		a.Ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	start := time.Now()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Dur("took", time.Since(start)).Msg("Server stopped")
	return nil
}
