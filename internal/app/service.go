package app

import (
	"context"
	"errors"
	"net/http"

	"aiserver/internal/device"
	"aiserver/internal/hub"
	"aiserver/internal/inference"
	"aiserver/internal/store"
	"aiserver/pkg/types"
)

// Searcher is the hub search used by /models/search.
type Searcher interface {
	SearchModels(ctx context.Context, query string, limit int) ([]hub.ModelSummary, error)
}

// service adapts the run's collaborators to httpapi.Service.
type service struct {
	pipe   *inference.Pipeline
	models []types.Model
	dev    device.Device
	hub    Searcher
	store  *store.Store // nil when the ledger could not be opened
}

func (s *service) Generate(ctx context.Context, prompt string) (string, error) {
	return s.pipe.Generate(ctx, prompt)
}

func (s *service) Models() []types.Model { return s.models }

func (s *service) Ready() bool { return s.pipe.Ready() }

func (s *service) System() types.SystemInfo {
	d := s.dev
	return types.SystemInfo{
		Kind:        d.Kind,
		Vendor:      d.Vendor,
		Count:       d.Count,
		Name:        d.Name,
		Driver:      d.Driver,
		Memory:      d.Memory,
		Accelerated: d.Accelerated(),
	}
}

func (s *service) SearchModels(ctx context.Context, query string, limit int) ([]types.RemoteModel, error) {
	if s.hub == nil {
		return nil, inference.ErrDependencyUnavailable("model hub not configured")
	}
	hits, err := s.hub.SearchModels(ctx, query, limit)
	if err != nil {
		return nil, hubError{err}
	}
	out := make([]types.RemoteModel, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.RemoteModel{
			ID:           h.ID,
			Author:       h.Author,
			Downloads:    h.Downloads,
			Likes:        h.Likes,
			Tags:         h.Tags,
			LastModified: h.LastModified,
		})
	}
	return out, nil
}

func (s *service) Runs(ctx context.Context) ([]types.TrainingRun, error) {
	if s.store == nil {
		return nil, errLedgerUnavailable
	}
	runs, err := s.store.Runs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.TrainingRun, 0, len(runs))
	for _, r := range runs {
		tr := types.TrainingRun{
			ID:        r.ID,
			Model:     r.Model,
			Dataset:   r.Dataset,
			Examples:  r.Examples,
			Status:    r.Status,
			Error:     r.Error,
			StartedAt: r.StartedAt,
		}
		if !r.FinishedAt.IsZero() {
			fin := r.FinishedAt
			tr.FinishedAt = &fin
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *service) Generations(ctx context.Context, limit int) ([]types.GenerationRecord, error) {
	if s.store == nil {
		return nil, errLedgerUnavailable
	}
	gens, err := s.store.Generations(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.GenerationRecord, 0, len(gens))
	for _, g := range gens {
		out = append(out, types.GenerationRecord{
			ID:         g.ID,
			Prompt:     g.Prompt,
			Response:   g.Response,
			DurationMS: g.Duration.Milliseconds(),
			CreatedAt:  g.CreatedAt,
		})
	}
	return out, nil
}

var errLedgerUnavailable = inference.ErrDependencyUnavailable("run ledger unavailable")

// hubError carries the HTTP status for a failed hub call.
type hubError struct{ err error }

func (e hubError) Error() string { return e.err.Error() }
func (e hubError) Unwrap() error { return e.err }

func (e hubError) StatusCode() int {
	if errors.Is(e.err, hub.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}
