package trainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"aiserver/internal/dataset"
	"aiserver/internal/model"
	"aiserver/internal/workspace"
)

const (
	datasetFile = "train.jsonl"
	configFile  = "train_config.yaml"
)

// ErrNoExamples is returned when the dataset is empty after filtering.
var ErrNoExamples = errors.New("no training examples")

// Store records run outcomes. Failures are logged, never fatal.
type Store interface {
	StartRun(ctx context.Context, id, model, dataset string, examples int) (string, error)
	FinishRun(ctx context.Context, id string, runErr error) error
}

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiserver",
			Subsystem: "trainer",
			Name:      "runs_total",
			Help:      "Total number of fine-tuning runs by status",
		},
		[]string{"status"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aiserver",
			Subsystem: "trainer",
			Name:      "run_duration_seconds",
			Help:      "Wall time of fine-tuning runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration)
}

// Trainer fine-tunes a loaded model on a loaded dataset.
type Trainer struct {
	Backend Backend
	Layout  workspace.Layout
	Recipe  Recipe
	// Store is optional.
	Store Store
	Log   zerolog.Logger
}

// New returns a Trainer with DefaultRecipe.
func New(b Backend, l workspace.Layout, s Store, log zerolog.Logger) *Trainer {
	return &Trainer{Backend: b, Layout: l, Recipe: DefaultRecipe(l), Store: s, Log: log}
}

// Train runs one fine-tuning job and persists the result with its tokenizer
// into Layout.FineTuned. It returns the fine-tuned model.
func (t *Trainer) Train(ctx context.Context, m *model.Model, ds *dataset.Dataset) (*model.Model, error) {
	start := time.Now()
	id := uuid.NewString()
	log := t.Log.With().Str("run", id).Logger()

	examples := 0
	if ds != nil {
		examples = ds.Len()
	}
	if t.Store != nil {
		if _, err := t.Store.StartRun(ctx, id, m.Name, datasetName(ds), examples); err != nil {
			log.Warn().Err(err).Msg("record training run")
		}
	}
	out, err := t.train(ctx, id, m, ds, log)
	if t.Store != nil {
		if ferr := t.Store.FinishRun(context.WithoutCancel(ctx), id, err); ferr != nil {
			log.Warn().Err(ferr).Msg("record training result")
		}
	}
	runDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	runsTotal.WithLabelValues("succeeded").Inc()
	log.Info().Str("dir", out.Dir).Dur("took", time.Since(start)).Msg("Training complete")
	return out, nil
}

func (t *Trainer) train(ctx context.Context, id string, m *model.Model, ds *dataset.Dataset, log zerolog.Logger) (*model.Model, error) {
	if m == nil {
		return nil, errors.New("no model to train")
	}
	if ds == nil || ds.Len() == 0 {
		return nil, ErrNoExamples
	}
	if t.Backend == nil {
		return nil, errors.New("no training backend")
	}
	if err := t.Recipe.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.Recipe.OutputDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.Recipe.LoggingDir, 0o755); err != nil {
		return nil, err
	}
	// A stale final dir from an earlier run must not be mistaken for output.
	if err := os.RemoveAll(t.Recipe.FinalDir()); err != nil {
		return nil, err
	}
	job := Job{
		ID:          id,
		Model:       m,
		DatasetPath: filepath.Join(t.Recipe.OutputDir, datasetFile),
		ConfigPath:  filepath.Join(t.Recipe.OutputDir, configFile),
		Recipe:      t.Recipe,
		Device:      m.Device,
	}
	if err := ds.WriteJSONL(job.DatasetPath); err != nil {
		return nil, fmt.Errorf("write training data: %w", err)
	}
	if err := writeJobConfig(job, ds.Len()); err != nil {
		return nil, fmt.Errorf("write training config: %w", err)
	}
	log.Info().
		Str("model", m.Name).
		Int("examples", ds.Len()).
		Str("device", m.Device.String()).
		Int("epochs", t.Recipe.NumTrainEpochs).
		Int("effective_batch", t.Recipe.EffectiveBatchSize()).
		Msg("Starting training")
	if err := t.Backend.Train(ctx, job); err != nil {
		return nil, err
	}

	trained, err := model.Open(t.Recipe.FinalDir(), m.Name, m.Device, m.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("trainer output: %w", err)
	}
	trained.Revision = m.Revision
	if err := os.RemoveAll(t.Layout.FineTuned); err != nil {
		return nil, err
	}
	if err := trained.Save(t.Layout.FineTuned); err != nil {
		return nil, err
	}
	saved, err := model.Open(t.Layout.FineTuned, m.Name, m.Device, trained.Tokenizer)
	if err != nil {
		return nil, err
	}
	saved.Revision = m.Revision
	saved.FineTuned = true
	return saved, nil
}

func datasetName(ds *dataset.Dataset) string {
	if ds == nil {
		return ""
	}
	return ds.Name
}
