package httpapi

import (
	"net/http"
	"strconv"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listLimit parses ?limit=, defaulting to 20 and capping at 100.
func listLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

// systemHandler godoc
//
//	@Summary		Compute device
//	@Description	Returns the GPU (or CPU fallback) found at startup.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	types.SystemInfo
//	@Router			/system [get]
func systemHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.System())
	}
}

// searchHandler godoc
//
//	@Summary		Search hub models
//	@Description	Lists GGUF model repos on the hub matching q, most downloaded first.
//	@Tags			models
//	@Produce		json
//	@Param			q		query		string	false	"Search text"
//	@Param			limit	query		int		false	"Maximum hits (1-100, default 20)"
//	@Success		200		{array}		types.RemoteModel
//	@Failure		400		{object}	types.ErrorResponse
//	@Failure		429		{object}	types.ErrorResponse
//	@Failure		502		{object}	types.ErrorResponse
//	@Router			/models/search [get]
func searchHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := listLimit(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		hits, err := svc.SearchModels(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			status := statusFor(err)
			zlog.Warn().Err(err).Int("status", status).Msg("model search failed")
			writeJSONError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, hits)
	}
}

// runsHandler godoc
//
//	@Summary		Training runs
//	@Tags			ledger
//	@Produce		json
//	@Success		200	{array}		types.TrainingRun
//	@Failure		503	{object}	types.ErrorResponse
//	@Router			/runs [get]
func runsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := svc.Runs(r.Context())
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// generationsHandler godoc
//
//	@Summary		Served generations
//	@Tags			ledger
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum records (1-100, default 20)"
//	@Success		200		{array}		types.GenerationRecord
//	@Failure		400		{object}	types.ErrorResponse
//	@Failure		503		{object}	types.ErrorResponse
//	@Router			/generations [get]
func generationsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := listLimit(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		gens, err := svc.Generations(r.Context(), limit)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, gens)
	}
}
